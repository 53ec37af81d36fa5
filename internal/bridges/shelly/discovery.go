package shelly

import (
	"context"
	"time"
)

// CancelFunc removes a previously registered event subscription.
// Calling it more than once is safe.
type CancelFunc func()

// Discoverer is the narrow interface over the device discovery mechanism.
//
// The production implementation (Scanner) finds devices over the documented
// Shelly HTTP API; the CoIoT multicast protocol itself is deliberately kept
// behind this boundary and never parsed by the bridge. Tests substitute a
// mock implementation.
type Discoverer interface {
	// Start begins discovery. The context bounds start-up only; discovery
	// continues until Stop is called.
	Start(ctx context.Context) error

	// Stop halts discovery and releases resources. Safe to call when not
	// started.
	Stop()

	// RemoveAllListeners drops every subscription registered via OnDiscover
	// and every per-handle subscription.
	RemoveAllListeners()

	// GetDevice returns the live handle for a device, or nil if the device
	// is not currently known.
	GetDevice(vendorType, id string) DeviceHandle

	// OnDiscover registers a handler invoked once per newly seen device
	// (and again if a known device reappears with changed details).
	OnDiscover(fn func(DeviceHandle)) CancelFunc

	// SetRequestTimeout configures the per-request timeout used when
	// talking to devices.
	SetRequestTimeout(d time.Duration)

	// SetStaleTimeout configures how long a silent device is considered
	// alive. The adapter does not trust the discoverer's own staleness
	// signalling; it reads LastSeen and decides for itself.
	SetStaleTimeout(d time.Duration)
}

// DeviceHandle is the live view of one physical device as exposed by the
// discovery mechanism.
//
// Capability-specific operations (relay, colour, roller, auth) are modelled
// as optional interfaces; callers type-assert before use:
//
//	if setter, ok := handle.(RelaySetter); ok {
//	    err = setter.SetRelay(ctx, 0, true)
//	}
type DeviceHandle interface {
	// ID returns the stable vendor device identifier.
	ID() string

	// Type returns the vendor-reported model type string (e.g. "SHSW-25").
	Type() string

	// Host returns the device's current network address.
	Host() string

	// Online reports whether the discovery mechanism currently believes
	// the device is reachable.
	Online() bool

	// LastSeen returns the time of the last message from the device.
	LastSeen() time.Time

	// Attribute returns the current value of a vendor attribute
	// (e.g. "relay0", "mode"), or false if the attribute is unknown.
	Attribute(name string) (any, bool)

	// OnChange registers a handler for attribute changes.
	OnChange(fn func(attr string, oldValue, newValue any)) CancelFunc

	// OnOnline registers a handler invoked when the device comes online.
	OnOnline(fn func()) CancelFunc

	// OnOffline registers a handler invoked when the device goes offline.
	OnOffline(fn func()) CancelFunc

	// OnRemove registers a handler invoked when the discovery mechanism
	// forgets the device.
	OnRemove(fn func()) CancelFunc
}

// RelaySetter is implemented by handles for devices with switchable relays.
type RelaySetter interface {
	// SetRelay switches relay index on or off.
	SetRelay(ctx context.Context, index int, on bool) error
}

// ColorCommand is a single batched colour write. Nil fields are omitted
// from the vendor call.
type ColorCommand struct {
	On    *bool
	Red   *int
	Green *int
	Blue  *int
	White *int
	Gain  *int
}

// ColorSetter is implemented by handles for RGB(W) capable lights.
type ColorSetter interface {
	SetColor(ctx context.Context, index int, cmd ColorCommand) error
}

// WhiteCommand is a single batched white/brightness write. Nil fields are
// omitted from the vendor call.
type WhiteCommand struct {
	On          *bool
	Brightness  *int
	Temperature *int
}

// WhiteSetter is implemented by handles for white-spectrum capable lights.
type WhiteSetter interface {
	SetWhite(ctx context.Context, index int, cmd WhiteCommand) error
}

// RollerSetter is implemented by handles for roller-shutter devices.
type RollerSetter interface {
	// SetRollerPosition moves the roller to an absolute position (0-100).
	SetRollerPosition(ctx context.Context, index int, position int) error

	// SendRollerCommand issues open/close/stop.
	SendRollerCommand(ctx context.Context, index int, command string) error
}

// AuthCredentialSetter is implemented by handles that accept HTTP auth
// credentials for subsequent vendor calls.
type AuthCredentialSetter interface {
	SetAuthCredentials(username, password string)
}

// AuthCredentialProvider is implemented by handles that can report the
// credentials currently configured for the device.
type AuthCredentialProvider interface {
	AuthCredentials() (username, password string)
}

// Event is a normalized domain event emitted by the Adapter. The set of
// concrete types is closed: DeviceDiscovered, DeviceChanged, DeviceOnline,
// DeviceOffline and AdapterError.
type Event interface {
	event()
}

// DeviceDiscovered is emitted when a device is first seen or re-seen with
// changed details.
type DeviceDiscovered struct {
	ID         string
	VendorType string
	Host       string
	Online     bool
}

// DeviceChanged is emitted when a vendor attribute changes. The attribute
// name and values are passed through without interpretation.
type DeviceChanged struct {
	ID       string
	Property string
	OldValue any
	NewValue any
}

// DeviceOnline is emitted when a device becomes reachable.
type DeviceOnline struct {
	ID         string
	VendorType string
	Host       string
}

// DeviceOffline is emitted when a device becomes unreachable, either via
// the discovery mechanism or the adapter's own staleness sweep.
type DeviceOffline struct {
	ID         string
	VendorType string
	Host       string
}

// AdapterError is emitted for failures inside the adapter that do not
// belong to any single device event.
type AdapterError struct {
	Err error
}

func (DeviceDiscovered) event() {}
func (DeviceChanged) event()    {}
func (DeviceOnline) event()     {}
func (DeviceOffline) event()    {}
func (AdapterError) event()     {}
