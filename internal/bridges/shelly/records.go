package shelly

import "context"

// DeviceRecord is the bridge-side view of a canonical device. It is a subset
// of the registry's device model carrying only what the bridge reads and
// writes; the full model lives in internal/device.
type DeviceRecord struct {
	ID         string
	Name       string
	Category   string
	VendorType string
	VendorID   string
	Host       string
	Firmware   string
	Enabled    bool
}

// ChannelRecord is the bridge-side view of a canonical channel.
type ChannelRecord struct {
	DeviceID   string
	Identifier string
	Name       string
	Category   string
}

// PropertyRecord is the bridge-side view of a canonical property.
type PropertyRecord struct {
	DeviceID          string
	ChannelIdentifier string
	Identifier        string
	Category          string
	DataType          string
	Permissions       string
	Unit              string
	Format            string
	Value             string
}

// RecordStore persists canonical device records. The interface is satisfied
// by *device.Registry via an adapter wired up in main; tests substitute an
// in-memory mock.
type RecordStore interface {
	// FindDeviceByVendorID looks a device up by its stable vendor
	// identifier. Returns nil when no record exists.
	FindDeviceByVendorID(ctx context.Context, vendorID string) (*DeviceRecord, error)

	// CreateDevice stores a new device record and returns its assigned ID.
	CreateDevice(ctx context.Context, rec DeviceRecord) (string, error)

	// UpdateDevice overwrites mutable fields (name, host, firmware,
	// enabled) of an existing record.
	UpdateDevice(ctx context.Context, rec DeviceRecord) error

	// EnsureChannel creates the channel if it does not exist. Idempotent.
	EnsureChannel(ctx context.Context, rec ChannelRecord) error

	// EnsureProperty creates the property if it does not exist. Idempotent.
	EnsureProperty(ctx context.Context, rec PropertyRecord) error

	// SetPropertyValue writes the current value of one property.
	SetPropertyValue(ctx context.Context, deviceID, channel, property, value string) error

	// SetConnectionState records the device's reachability
	// ("connected", "disconnected" or "unknown").
	SetConnectionState(ctx context.Context, deviceID, state string) error

	// ListDevices returns every device owned by this bridge.
	ListDevices(ctx context.Context) ([]DeviceRecord, error)
}

// HistoryWriter receives property samples for long-term storage. Optional;
// a nil writer disables history.
type HistoryWriter interface {
	// WriteSample records one property value with device context. Must not
	// block the caller for long; implementations buffer internally.
	WriteSample(deviceID, channel, property string, value any)
}

// MetricsWriter receives bridge-level operational metrics such as device
// counts and uptime. Optional; the health reporter mirrors its status
// snapshots through it when one is wired in.
type MetricsWriter interface {
	// WriteBridgeMetric records one named metric for the bridge. Must not
	// block the caller for long; implementations buffer internally.
	WriteBridgeMetric(bridgeID, metric string, value float64)
}
