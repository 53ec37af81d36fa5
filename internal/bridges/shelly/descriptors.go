package shelly

import (
	"fmt"
	"strings"
)

// DataType classifies canonical property values.
type DataType string

// Supported canonical data types.
const (
	TypeBool   DataType = "bool"
	TypeInt    DataType = "int"
	TypeFloat  DataType = "float"
	TypeString DataType = "string"
	TypeEnum   DataType = "enum"
)

// Permission describes how a canonical property may be accessed.
type Permission string

// Property permissions.
const (
	PermReadOnly  Permission = "ro"
	PermReadWrite Permission = "rw"
	PermWriteOnly Permission = "wo"
)

// Category classifies devices, channels and properties for the platform.
type Category string

// Categories used by the compiled-in descriptors.
const (
	CategoryGeneric         Category = "generic"
	CategoryLight           Category = "light"
	CategoryRelay           Category = "relay"
	CategoryRoller          Category = "roller"
	CategoryElectricalPower Category = "electrical_power"
	CategoryTemperature     Category = "temperature"
	CategoryHumidity        Category = "humidity"
	CategoryContact         Category = "contact"
	CategoryBattery         Category = "battery"
	CategoryIlluminance     Category = "illuminance"
)

// PropertyBinding maps one vendor device attribute to one canonical
// channel/property pair. It is the single source of truth for that mapping:
// the mapper, the change-event router and the command platform all resolve
// through bindings.
type PropertyBinding struct {
	// Channel is the canonical channel identifier, e.g. "relay_0".
	Channel string

	// Property is the canonical property identifier, unique per channel.
	Property string

	// VendorProperty is the vendor attribute name on the device handle,
	// e.g. "relay0". Unique within a descriptor or mode profile.
	VendorProperty string

	Category    Category
	DataType    DataType
	Permissions Permission

	// Unit is the optional measurement unit, e.g. "W".
	Unit string

	// Format is an optional value constraint: "min:max" for numbers or a
	// comma-separated enum for TypeEnum.
	Format string
}

// ModeProfile is an alternate binding set selected at runtime from the
// device's current operating mode (e.g. colour vs white light).
type ModeProfile struct {
	// Mode is the vendor-reported mode value this profile applies to.
	Mode string

	Bindings []PropertyBinding
}

// Descriptor is the static capability table for one vendor device family.
// Descriptors are compiled in and read-only.
type Descriptor struct {
	// Name is the family key, e.g. "shelly25".
	Name string

	// DisplayName is the human-readable family name.
	DisplayName string

	// Models are vendor type strings matched case-insensitively by
	// substring against the reported device type.
	Models []string

	// Category is the primary device category.
	Category Category

	// ModeProperty, when non-empty, names the vendor attribute holding the
	// current operating mode; the matching ModeProfile supplies bindings.
	ModeProperty string

	// Modes holds the per-mode binding sets. Empty unless ModeProperty is
	// set.
	Modes []ModeProfile

	// Bindings is the static binding set for single-mode devices.
	Bindings []PropertyBinding
}

// rollerCommands is the allowed value set for roller "command" writes.
var rollerCommands = []string{"open", "close", "stop"}

// descriptors is the compiled-in capability table, keyed by family name.
// Within each descriptor (or mode profile) vendor property names are unique;
// descriptors_test enforces the invariant.
var descriptors = map[string]*Descriptor{
	"shelly1": {
		Name:        "shelly1",
		DisplayName: "Shelly 1",
		Models:      []string{"SHSW-1"},
		Category:    CategoryRelay,
		Bindings: []PropertyBinding{
			{Channel: "relay_0", Property: "state", VendorProperty: "relay0", Category: CategoryRelay, DataType: TypeBool, Permissions: PermReadWrite},
		},
	},
	"shelly1pm": {
		Name:        "shelly1pm",
		DisplayName: "Shelly 1PM",
		Models:      []string{"SHSW-PM"},
		Category:    CategoryRelay,
		Bindings: []PropertyBinding{
			{Channel: "relay_0", Property: "state", VendorProperty: "relay0", Category: CategoryRelay, DataType: TypeBool, Permissions: PermReadWrite},
			{Channel: "relay_0", Property: "power", VendorProperty: "power0", Category: CategoryElectricalPower, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "W"},
			{Channel: "relay_0", Property: "consumption", VendorProperty: "energyCounter0", Category: CategoryElectricalPower, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "Wh"},
		},
	},
	"shellyplug": {
		Name:        "shellyplug",
		DisplayName: "Shelly Plug",
		Models:      []string{"SHPLG-1", "SHPLG-S", "SHPLG2-1"},
		Category:    CategoryRelay,
		Bindings: []PropertyBinding{
			{Channel: "relay_0", Property: "state", VendorProperty: "relay0", Category: CategoryRelay, DataType: TypeBool, Permissions: PermReadWrite},
			{Channel: "relay_0", Property: "power", VendorProperty: "power0", Category: CategoryElectricalPower, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "W"},
			{Channel: "relay_0", Property: "consumption", VendorProperty: "energyCounter0", Category: CategoryElectricalPower, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "Wh"},
		},
	},
	"shelly2": {
		Name:         "shelly2",
		DisplayName:  "Shelly 2",
		Models:       []string{"SHSW-21", "SHSW-22"},
		Category:     CategoryRelay,
		ModeProperty: "mode",
		Modes: []ModeProfile{
			{
				Mode: "relay",
				Bindings: []PropertyBinding{
					{Channel: "relay_0", Property: "state", VendorProperty: "relay0", Category: CategoryRelay, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "relay_1", Property: "state", VendorProperty: "relay1", Category: CategoryRelay, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "relay_0", Property: "power", VendorProperty: "power0", Category: CategoryElectricalPower, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "W"},
				},
			},
			{
				Mode: "roller",
				Bindings: []PropertyBinding{
					{Channel: "roller_0", Property: "position", VendorProperty: "rollerPosition", Category: CategoryRoller, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
					{Channel: "roller_0", Property: "command", VendorProperty: "rollerState", Category: CategoryRoller, DataType: TypeEnum, Permissions: PermReadWrite, Format: strings.Join(rollerCommands, ",")},
				},
			},
		},
	},
	"shelly25": {
		Name:         "shelly25",
		DisplayName:  "Shelly 2.5",
		Models:       []string{"SHSW-25"},
		Category:     CategoryRelay,
		ModeProperty: "mode",
		Modes: []ModeProfile{
			{
				Mode: "relay",
				Bindings: []PropertyBinding{
					{Channel: "relay_0", Property: "state", VendorProperty: "relay0", Category: CategoryRelay, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "relay_1", Property: "state", VendorProperty: "relay1", Category: CategoryRelay, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "relay_0", Property: "power", VendorProperty: "power0", Category: CategoryElectricalPower, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "W"},
					{Channel: "relay_1", Property: "power", VendorProperty: "power1", Category: CategoryElectricalPower, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "W"},
				},
			},
			{
				Mode: "roller",
				Bindings: []PropertyBinding{
					{Channel: "roller_0", Property: "position", VendorProperty: "rollerPosition", Category: CategoryRoller, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
					{Channel: "roller_0", Property: "command", VendorProperty: "rollerState", Category: CategoryRoller, DataType: TypeEnum, Permissions: PermReadWrite, Format: strings.Join(rollerCommands, ",")},
					{Channel: "roller_0", Property: "power", VendorProperty: "rollerPower", Category: CategoryElectricalPower, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "W"},
				},
			},
		},
	},
	"shellydimmer": {
		Name:        "shellydimmer",
		DisplayName: "Shelly Dimmer",
		Models:      []string{"SHDM-1", "SHDM-2"},
		Category:    CategoryLight,
		Bindings: []PropertyBinding{
			{Channel: "light_0", Property: "state", VendorProperty: "switch", Category: CategoryLight, DataType: TypeBool, Permissions: PermReadWrite},
			{Channel: "light_0", Property: "brightness", VendorProperty: "brightness", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
			{Channel: "light_0", Property: "power", VendorProperty: "power0", Category: CategoryElectricalPower, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "W"},
		},
	},
	"shellybulb": {
		Name:         "shellybulb",
		DisplayName:  "Shelly Bulb",
		Models:       []string{"SHBLB-1", "SHCB-1"},
		Category:     CategoryLight,
		ModeProperty: "mode",
		Modes: []ModeProfile{
			{
				Mode: "color",
				Bindings: []PropertyBinding{
					{Channel: "light_0", Property: "state", VendorProperty: "switch", Category: CategoryLight, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "light_0", Property: "red", VendorProperty: "red", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:255"},
					{Channel: "light_0", Property: "green", VendorProperty: "green", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:255"},
					{Channel: "light_0", Property: "blue", VendorProperty: "blue", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:255"},
					{Channel: "light_0", Property: "white", VendorProperty: "white", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:255"},
					{Channel: "light_0", Property: "gain", VendorProperty: "gain", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
				},
			},
			{
				Mode: "white",
				Bindings: []PropertyBinding{
					{Channel: "light_0", Property: "state", VendorProperty: "switch", Category: CategoryLight, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "light_0", Property: "brightness", VendorProperty: "brightness", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
					{Channel: "light_0", Property: "color_temperature", VendorProperty: "colorTemperature", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Unit: "K", Format: "2700:6500"},
				},
			},
		},
	},
	"shellyrgbw2": {
		Name:         "shellyrgbw2",
		DisplayName:  "Shelly RGBW2",
		Models:       []string{"SHRGBW2"},
		Category:     CategoryLight,
		ModeProperty: "mode",
		Modes: []ModeProfile{
			{
				Mode: "color",
				Bindings: []PropertyBinding{
					{Channel: "light_0", Property: "state", VendorProperty: "switch", Category: CategoryLight, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "light_0", Property: "red", VendorProperty: "red", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:255"},
					{Channel: "light_0", Property: "green", VendorProperty: "green", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:255"},
					{Channel: "light_0", Property: "blue", VendorProperty: "blue", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:255"},
					{Channel: "light_0", Property: "white", VendorProperty: "white", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:255"},
					{Channel: "light_0", Property: "gain", VendorProperty: "gain", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
				},
			},
			{
				Mode: "white",
				Bindings: []PropertyBinding{
					{Channel: "light_0", Property: "state", VendorProperty: "switch0", Category: CategoryLight, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "light_0", Property: "brightness", VendorProperty: "brightness0", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
					{Channel: "light_1", Property: "state", VendorProperty: "switch1", Category: CategoryLight, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "light_1", Property: "brightness", VendorProperty: "brightness1", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
					{Channel: "light_2", Property: "state", VendorProperty: "switch2", Category: CategoryLight, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "light_2", Property: "brightness", VendorProperty: "brightness2", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
					{Channel: "light_3", Property: "state", VendorProperty: "switch3", Category: CategoryLight, DataType: TypeBool, Permissions: PermReadWrite},
					{Channel: "light_3", Property: "brightness", VendorProperty: "brightness3", Category: CategoryLight, DataType: TypeInt, Permissions: PermReadWrite, Format: "0:100"},
				},
			},
		},
	},
	"shellyht": {
		Name:        "shellyht",
		DisplayName: "Shelly H&T",
		Models:      []string{"SHHT-1"},
		Category:    CategoryTemperature,
		Bindings: []PropertyBinding{
			{Channel: "environment_0", Property: "temperature", VendorProperty: "temperature", Category: CategoryTemperature, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "°C"},
			{Channel: "environment_0", Property: "humidity", VendorProperty: "humidity", Category: CategoryHumidity, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "%"},
			{Channel: "environment_0", Property: "battery", VendorProperty: "battery", Category: CategoryBattery, DataType: TypeInt, Permissions: PermReadOnly, Unit: "%", Format: "0:100"},
		},
	},
	"shellydw": {
		Name:        "shellydw",
		DisplayName: "Shelly Door/Window",
		Models:      []string{"SHDW-1", "SHDW-2"},
		Category:    CategoryContact,
		Bindings: []PropertyBinding{
			{Channel: "sensor_0", Property: "detected", VendorProperty: "state", Category: CategoryContact, DataType: TypeBool, Permissions: PermReadOnly},
			{Channel: "sensor_0", Property: "illuminance", VendorProperty: "illuminance", Category: CategoryIlluminance, DataType: TypeFloat, Permissions: PermReadOnly, Unit: "lx"},
			{Channel: "sensor_0", Property: "battery", VendorProperty: "battery", Category: CategoryBattery, DataType: TypeInt, Permissions: PermReadOnly, Unit: "%", Format: "0:100"},
		},
	},
}

// ResolveDescriptor finds the capability table for a vendor-reported type
// string. Matching is case-insensitive: first by substring against each
// descriptor's model list, then by family name as a fallback.
func ResolveDescriptor(vendorType string) (*Descriptor, error) {
	needle := strings.ToLower(strings.TrimSpace(vendorType))
	if needle == "" {
		return nil, fmt.Errorf("%w: empty device type", ErrUnsupported)
	}

	for _, desc := range descriptors {
		for _, model := range desc.Models {
			if strings.Contains(needle, strings.ToLower(model)) {
				return desc, nil
			}
		}
	}

	// Fallback: match against the family key itself (covers discovery
	// mechanisms that report "shellyplug-s-ABC123" style identifiers).
	for name, desc := range descriptors {
		if strings.Contains(needle, name) {
			return desc, nil
		}
	}

	return nil, fmt.Errorf("%w: no descriptor for type %q", ErrUnsupported, vendorType)
}

// activeBindings resolves the binding set that applies to a device right
// now. For mode-driven descriptors it reads the live mode off the handle and
// selects the matching profile; an unknown or missing mode yields zero
// bindings. This is the single resolution point shared by the mapper, the
// change-event router and the command platform.
func activeBindings(desc *Descriptor, handle DeviceHandle) []PropertyBinding {
	if desc.ModeProperty == "" {
		return desc.Bindings
	}

	raw, ok := handle.Attribute(desc.ModeProperty)
	if !ok {
		return nil
	}
	mode := strings.ToLower(FormatValue(raw))

	for i := range desc.Modes {
		if desc.Modes[i].Mode == mode {
			return desc.Modes[i].Bindings
		}
	}
	return nil
}

// bindingForVendorProperty finds the binding whose vendor attribute name
// matches attr.
func bindingForVendorProperty(bindings []PropertyBinding, attr string) (PropertyBinding, bool) {
	for _, b := range bindings {
		if b.VendorProperty == attr {
			return b, true
		}
	}
	return PropertyBinding{}, false
}

// bindingsForChannel returns the bindings belonging to one canonical
// channel, preserving descriptor order.
func bindingsForChannel(bindings []PropertyBinding, channel string) []PropertyBinding {
	var out []PropertyBinding
	for _, b := range bindings {
		if b.Channel == channel {
			out = append(out, b)
		}
	}
	return out
}

// groupBindingsByChannel splits a binding set by channel identifier,
// returning channel identifiers in first-seen order.
func groupBindingsByChannel(bindings []PropertyBinding) ([]string, map[string][]PropertyBinding) {
	var order []string
	groups := make(map[string][]PropertyBinding)
	for _, b := range bindings {
		if _, seen := groups[b.Channel]; !seen {
			order = append(order, b.Channel)
		}
		groups[b.Channel] = append(groups[b.Channel], b)
	}
	return order, groups
}

// inferChannelCategory picks the channel category from its bound properties.
// First match wins, scanning properties in descriptor order.
func inferChannelCategory(bindings []PropertyBinding) Category {
	for _, b := range bindings {
		switch b.Property {
		case "on", "state", "brightness", "level":
			if b.Category == CategoryLight {
				return CategoryLight
			}
		}
	}
	for _, b := range bindings {
		switch b.Property {
		case "on", "brightness", "level":
			return CategoryLight
		}
	}
	for _, b := range bindings {
		switch b.Property {
		case "power", "consumption":
			return CategoryElectricalPower
		}
	}
	for _, b := range bindings {
		if b.Property == "temperature" {
			return CategoryTemperature
		}
	}
	for _, b := range bindings {
		if b.Property == "humidity" {
			return CategoryHumidity
		}
	}
	for _, b := range bindings {
		if b.Property == "detected" {
			return CategoryContact
		}
	}
	return CategoryGeneric
}
