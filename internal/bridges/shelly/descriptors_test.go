package shelly

import (
	"errors"
	"testing"
)

func TestResolveDescriptor(t *testing.T) {
	tests := []struct {
		name       string
		vendorType string
		wantFamily string
		wantErr    bool
	}{
		{"exact model", "SHSW-25", "shelly25", false},
		{"lowercase model", "shsw-25", "shelly25", false},
		{"model embedded in identifier", "shelly1pm-SHSW-PM-ABC123", "shelly1pm", false},
		{"family name fallback", "shellyplug-s-ABC123", "shellyplug", false},
		{"plug s model", "SHPLG-S", "shellyplug", false},
		{"rgbw2", "SHRGBW2", "shellyrgbw2", false},
		{"dimmer gen2 hw", "SHDM-2", "shellydimmer", false},
		{"door window", "SHDW-2", "shellydw", false},
		{"unknown", "SHSW-99", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := ResolveDescriptor(tt.vendorType)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupported) {
					t.Fatalf("expected ErrUnsupported, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if desc.Name != tt.wantFamily {
				t.Errorf("family = %q, want %q", desc.Name, tt.wantFamily)
			}
		})
	}
}

func TestVendorPropertyUniquePerBindingSet(t *testing.T) {
	check := func(t *testing.T, scope string, bindings []PropertyBinding) {
		t.Helper()
		seen := make(map[string]string)
		for _, b := range bindings {
			target := b.Channel + "/" + b.Property
			if prev, dup := seen[b.VendorProperty]; dup {
				t.Errorf("%s: vendor property %q bound to both %s and %s",
					scope, b.VendorProperty, prev, target)
			}
			seen[b.VendorProperty] = target
		}
	}

	for name, desc := range descriptors {
		check(t, name, desc.Bindings)
		for _, mode := range desc.Modes {
			check(t, name+"/"+mode.Mode, mode.Bindings)
		}
	}
}

func TestModeDescriptorShape(t *testing.T) {
	for name, desc := range descriptors {
		hasModes := len(desc.Modes) > 0
		if (desc.ModeProperty != "") != hasModes {
			t.Errorf("%s: ModeProperty and Modes must be set together", name)
		}
		if hasModes && len(desc.Bindings) > 0 {
			t.Errorf("%s: mode-driven descriptor must not carry static bindings", name)
		}
	}
}

func TestActiveBindingsModeSelection(t *testing.T) {
	desc, err := ResolveDescriptor("SHSW-25")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	handle := newMockHandle("aa:bb", "SHSW-25", "10.0.0.5")

	// No mode attribute yet: nothing is bound.
	if got := activeBindings(desc, handle); got != nil {
		t.Errorf("bindings before mode known = %d, want none", len(got))
	}

	handle.setAttr("mode", "relay")
	relayBindings := activeBindings(desc, handle)
	if len(relayBindings) == 0 {
		t.Fatal("expected relay bindings")
	}
	for _, b := range relayBindings {
		if b.Channel == "roller_0" {
			t.Errorf("relay mode exposed roller channel binding %s", b.Property)
		}
	}

	handle.setAttr("mode", "roller")
	rollerBindings := activeBindings(desc, handle)
	if _, ok := bindingForVendorProperty(rollerBindings, "rollerPosition"); !ok {
		t.Error("roller mode missing rollerPosition binding")
	}
	if _, ok := bindingForVendorProperty(rollerBindings, "relay0"); ok {
		t.Error("roller mode exposed relay binding")
	}

	handle.setAttr("mode", "garage")
	if got := activeBindings(desc, handle); got != nil {
		t.Errorf("unknown mode returned %d bindings, want none", len(got))
	}
}

func TestActiveBindingsStaticDescriptor(t *testing.T) {
	desc, err := ResolveDescriptor("SHSW-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	handle := newMockHandle("cc:dd", "SHSW-1", "10.0.0.6")

	got := activeBindings(desc, handle)
	if len(got) != 1 || got[0].VendorProperty != "relay0" {
		t.Errorf("static descriptor bindings = %+v", got)
	}
}

func TestInferChannelCategory(t *testing.T) {
	tests := []struct {
		name     string
		bindings []PropertyBinding
		want     Category
	}{
		{
			"light wins over power",
			[]PropertyBinding{
				{Property: "brightness", Category: CategoryLight},
				{Property: "power", Category: CategoryElectricalPower},
			},
			CategoryLight,
		},
		{
			"power metering channel",
			[]PropertyBinding{
				{Property: "power", Category: CategoryElectricalPower},
				{Property: "consumption", Category: CategoryElectricalPower},
			},
			CategoryElectricalPower,
		},
		{
			"temperature before humidity",
			[]PropertyBinding{
				{Property: "humidity", Category: CategoryHumidity},
				{Property: "temperature", Category: CategoryTemperature},
			},
			CategoryTemperature,
		},
		{
			"contact sensor",
			[]PropertyBinding{
				{Property: "detected", Category: CategoryContact},
				{Property: "battery", Category: CategoryBattery},
			},
			CategoryContact,
		},
		{
			"nothing recognizable",
			[]PropertyBinding{
				{Property: "battery", Category: CategoryBattery},
			},
			CategoryGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferChannelCategory(tt.bindings); got != tt.want {
				t.Errorf("category = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGroupBindingsByChannelPreservesOrder(t *testing.T) {
	bindings := []PropertyBinding{
		{Channel: "relay_0", Property: "state"},
		{Channel: "relay_1", Property: "state"},
		{Channel: "relay_0", Property: "power"},
	}
	order, groups := groupBindingsByChannel(bindings)
	if len(order) != 2 || order[0] != "relay_0" || order[1] != "relay_1" {
		t.Fatalf("order = %v", order)
	}
	if len(groups["relay_0"]) != 2 {
		t.Errorf("relay_0 group = %d bindings, want 2", len(groups["relay_0"]))
	}
}
