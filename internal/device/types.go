package device

import "time"

// Device represents one integrated physical device. It is the aggregate
// root: channels and properties belong to exactly one device and are loaded
// and cached with it.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Classification
	Category Category `json:"category"`

	// Vendor identity
	Protocol   string `json:"protocol"`
	VendorType string `json:"vendor_type"`
	VendorID   string `json:"vendor_id"`

	// Network
	Host string `json:"host,omitempty"`

	// Operator control: disabled devices keep their records but receive no
	// events or commands.
	Enabled bool `json:"enabled"`

	// Reachability
	ConnectionState     ConnectionState `json:"connection_state"`
	ConnectionUpdatedAt *time.Time      `json:"connection_updated_at,omitempty"`

	// Metadata
	Manufacturer    *string `json:"manufacturer,omitempty"`
	Model           *string `json:"model,omitempty"`
	FirmwareVersion *string `json:"firmware_version,omitempty"`

	// Channels in creation order.
	Channels []Channel `json:"channels,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Channel is a functional unit on a device: a relay output, a light, a
// roller, a sensor cluster or the synthetic device information channel.
type Channel struct {
	ID         string   `json:"id"`
	DeviceID   string   `json:"device_id"`
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	Category   Category `json:"category"`

	Properties []Property `json:"properties,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Property is one typed value on a channel. Values are stored as strings in
// canonical form; DataType tells consumers how to interpret them.
type Property struct {
	ID         string   `json:"id"`
	ChannelID  string   `json:"channel_id"`
	Identifier string   `json:"identifier"`
	Category   Category `json:"category"`

	DataType    string `json:"data_type"`
	Permissions string `json:"permissions"`
	Unit        string `json:"unit,omitempty"`
	Format      string `json:"format,omitempty"`

	Value          string     `json:"value,omitempty"`
	ValueUpdatedAt *time.Time `json:"value_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DeepCopy creates a complete independent copy of the Device. All slice and
// pointer fields are cloned so modifications to the copy do not affect the
// original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	cpy.ConnectionUpdatedAt = copyTime(d.ConnectionUpdatedAt)
	cpy.Manufacturer = copyString(d.Manufacturer)
	cpy.Model = copyString(d.Model)
	cpy.FirmwareVersion = copyString(d.FirmwareVersion)

	if d.Channels != nil {
		cpy.Channels = make([]Channel, len(d.Channels))
		for i := range d.Channels {
			cpy.Channels[i] = *d.Channels[i].DeepCopy()
		}
	}
	return &cpy
}

// DeepCopy creates an independent copy of the Channel and its properties.
func (c *Channel) DeepCopy() *Channel {
	if c == nil {
		return nil
	}
	cpy := *c
	if c.Properties != nil {
		cpy.Properties = make([]Property, len(c.Properties))
		for i := range c.Properties {
			cpy.Properties[i] = c.Properties[i]
			cpy.Properties[i].ValueUpdatedAt = copyTime(c.Properties[i].ValueUpdatedAt)
		}
	}
	return &cpy
}

// Channel returns the channel with the given identifier, or nil.
func (d *Device) Channel(identifier string) *Channel {
	for i := range d.Channels {
		if d.Channels[i].Identifier == identifier {
			return &d.Channels[i]
		}
	}
	return nil
}

// Property returns the property with the given identifier, or nil.
func (c *Channel) Property(identifier string) *Property {
	for i := range c.Properties {
		if c.Properties[i].Identifier == identifier {
			return &c.Properties[i]
		}
	}
	return nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ConnectionState represents the reachability of a device.
type ConnectionState string

// Connection state constants.
const (
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionUnknown      ConnectionState = "unknown"
)

// AllConnectionStates returns all valid connection state values.
func AllConnectionStates() []ConnectionState {
	return []ConnectionState{ConnectionConnected, ConnectionDisconnected, ConnectionUnknown}
}

// Category classifies devices, channels and properties.
type Category string

// Category constants.
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

// Stats summarises the registry contents for diagnostics.
type Stats struct {
	Total        int                     `json:"total"`
	Enabled      int                     `json:"enabled"`
	ByConnection map[ConnectionState]int `json:"by_connection"`
	ByCategory   map[Category]int        `json:"by_category"`
}
