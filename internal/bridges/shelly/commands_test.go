package shelly

import (
	"context"
	"errors"
	"testing"
)

func commandFixture(t *testing.T, vendorType, mode string) (*CommandPlatform, *mockStore, *mockHandle) {
	t.Helper()

	store := newMockStore()
	store.seedDevice(DeviceRecord{
		ID:         "dev-1",
		VendorID:   "a4cf12",
		VendorType: vendorType,
		Host:       "10.0.0.20",
		Enabled:    true,
	})

	h := newMockHandle("a4cf12", vendorType, "10.0.0.20")
	if mode != "" {
		h.setAttr("mode", mode)
	}

	resolver := &mockResolver{handles: map[string]DeviceHandle{"a4cf12": h}}
	platform := NewCommandPlatform(store, resolver, newTestLogger(t))
	return platform, store, h
}

func TestProcessRelayCommand(t *testing.T) {
	platform, _, h := commandFixture(t, "SHSW-1", "")

	err := platform.Process(context.Background(), Command{
		DeviceID: "dev-1", Channel: "relay_0", Property: "state", Value: "on",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(h.relayCalls) != 1 || !h.relayCalls[0].on || h.relayCalls[0].index != 0 {
		t.Errorf("relay calls = %+v", h.relayCalls)
	}
}

func TestProcessBatchMergesColorWrites(t *testing.T) {
	platform, _, h := commandFixture(t, "SHRGBW2", "color")

	ok, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "light_0", Property: "state", Value: true},
		{DeviceID: "dev-1", Channel: "light_0", Property: "red", Value: 255},
		{DeviceID: "dev-1", Channel: "light_0", Property: "green", Value: 128},
		{DeviceID: "dev-1", Channel: "light_0", Property: "blue", Value: 0},
		{DeviceID: "dev-1", Channel: "light_0", Property: "gain", Value: 80},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if !ok {
		t.Fatal("batch reported failure")
	}

	// Five writes collapse to one vendor call.
	if len(h.colorCalls) != 1 {
		t.Fatalf("colour calls = %d, want 1", len(h.colorCalls))
	}
	cmd := h.colorCalls[0].cmd
	if cmd.On == nil || !*cmd.On {
		t.Error("on not carried")
	}
	if cmd.Red == nil || *cmd.Red != 255 || cmd.Green == nil || *cmd.Green != 128 {
		t.Errorf("colour components = %+v", cmd)
	}
	if cmd.Gain == nil || *cmd.Gain != 80 {
		t.Errorf("gain = %v", cmd.Gain)
	}
	if len(h.whiteCalls) != 0 {
		t.Errorf("unexpected white calls: %+v", h.whiteCalls)
	}
}

func TestProcessBatchClampsOutOfRange(t *testing.T) {
	platform, _, h := commandFixture(t, "SHDM-1", "")

	ok, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "light_0", Property: "brightness", Value: 250},
	})
	if err != nil || !ok {
		t.Fatalf("ProcessBatch: ok=%v err=%v", ok, err)
	}
	if len(h.whiteCalls) != 1 {
		t.Fatalf("white calls = %d", len(h.whiteCalls))
	}
	if got := h.whiteCalls[0].cmd.Brightness; got == nil || *got != 100 {
		t.Errorf("brightness = %v, want clamped to 100", got)
	}
}

func TestProcessBatchRollerEnumValidation(t *testing.T) {
	platform, _, h := commandFixture(t, "SHSW-25", "roller")

	// Invalid enum fails the whole batch before any vendor call.
	_, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "roller_0", Property: "command", Value: "up"},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if len(h.rollerCalls) != 0 {
		t.Errorf("vendor called despite invalid enum: %+v", h.rollerCalls)
	}

	ok, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "roller_0", Property: "command", Value: "OPEN"},
	})
	if err != nil || !ok {
		t.Fatalf("valid command: ok=%v err=%v", ok, err)
	}
	if len(h.rollerCalls) != 1 || h.rollerCalls[0].command != "open" {
		t.Errorf("roller calls = %+v", h.rollerCalls)
	}
}

func TestProcessBatchRollerCommandWinsOverPosition(t *testing.T) {
	platform, _, h := commandFixture(t, "SHSW-25", "roller")

	ok, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "roller_0", Property: "position", Value: 40},
		{DeviceID: "dev-1", Channel: "roller_0", Property: "command", Value: "stop"},
	})
	if err != nil || !ok {
		t.Fatalf("ProcessBatch: ok=%v err=%v", ok, err)
	}
	if len(h.rollerCalls) != 1 || h.rollerCalls[0].command != "stop" {
		t.Errorf("roller calls = %+v, want single stop", h.rollerCalls)
	}
}

func TestProcessBatchRejectsReadOnlyProperty(t *testing.T) {
	platform, _, h := commandFixture(t, "SHSW-PM", "")

	_, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "relay_0", Property: "power", Value: 10},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if len(h.relayCalls) != 0 {
		t.Error("vendor called for read-only write")
	}
}

func TestProcessBatchRejectsDisabledDevice(t *testing.T) {
	platform, store, h := commandFixture(t, "SHSW-1", "")
	store.seedDevice(DeviceRecord{
		ID: "dev-1", VendorID: "a4cf12", VendorType: "SHSW-1", Enabled: false,
	})

	_, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "relay_0", Property: "state", Value: true},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if len(h.relayCalls) != 0 {
		t.Error("vendor called for disabled device")
	}
}

func TestProcessBatchVanishedDevice(t *testing.T) {
	store := newMockStore()
	store.seedDevice(DeviceRecord{
		ID: "dev-1", VendorID: "gone", VendorType: "SHSW-1", Enabled: true,
	})
	platform := NewCommandPlatform(store, &mockResolver{handles: map[string]DeviceHandle{}}, newTestLogger(t))

	_, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "relay_0", Property: "state", Value: true},
	})
	if !errors.Is(err, ErrDeviceVanished) {
		t.Fatalf("error = %v, want ErrDeviceVanished", err)
	}
}

func TestProcessBatchModeMismatch(t *testing.T) {
	// Device is in roller mode; relay writes have no binding.
	platform, _, h := commandFixture(t, "SHSW-25", "roller")

	_, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "relay_0", Property: "state", Value: true},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if len(h.relayCalls) != 0 {
		t.Error("relay called in roller mode")
	}
}

func TestProcessBatchPartialGroupFailure(t *testing.T) {
	store := newMockStore()
	store.seedDevice(DeviceRecord{
		ID: "dev-1", VendorID: "h1", VendorType: "SHSW-1", Enabled: true,
	})
	store.seedDevice(DeviceRecord{
		ID: "dev-2", VendorID: "h2", VendorType: "SHSW-1", Enabled: true,
	})

	good := newMockHandle("h1", "SHSW-1", "10.0.0.1")
	bad := newMockHandle("h2", "SHSW-1", "10.0.0.2")
	bad.setterErr = ErrTimeout

	platform := NewCommandPlatform(store, &mockResolver{
		handles: map[string]DeviceHandle{"h1": good, "h2": bad},
	}, newTestLogger(t))

	ok, err := platform.ProcessBatch(context.Background(), []Command{
		{DeviceID: "dev-1", Channel: "relay_0", Property: "state", Value: true},
		{DeviceID: "dev-2", Channel: "relay_0", Property: "state", Value: true},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if ok {
		t.Error("batch reported success despite a failed group")
	}
	// The healthy group still executed.
	if len(good.relayCalls) != 1 {
		t.Errorf("healthy device calls = %d, want 1", len(good.relayCalls))
	}
}
