package shelly

import "errors"

// Domain errors for the Shelly bridge package.
//
// Vendor-communication failures fall into exactly one of the taxonomy
// sentinels below. Callers are expected to treat every member the same way
// (log with device context and continue); the distinction exists for
// messages and tests, not for divergent control flow.
var (
	// ErrTransport is returned for generic network failures reaching a
	// device: connection refused, DNS, unreachable host.
	ErrTransport = errors.New("shelly: transport error")

	// ErrTimeout is returned when a vendor call exceeds its configured
	// deadline.
	ErrTimeout = errors.New("shelly: request timed out")

	// ErrUnsupported is returned when no descriptor, model or mode matches
	// a discovered device.
	ErrUnsupported = errors.New("shelly: unsupported device")

	// ErrValidation is returned when a canonical value fails enum or range
	// checks before a vendor call is issued.
	ErrValidation = errors.New("shelly: invalid value")

	// ErrNotStarted is returned when an operation requires a started
	// adapter or service.
	ErrNotStarted = errors.New("shelly: not started")

	// ErrAlreadyStarted is returned by start when the component is
	// already running.
	ErrAlreadyStarted = errors.New("shelly: already started")

	// ErrDeviceVanished is returned when a device disappears between
	// discovery and mapping.
	ErrDeviceVanished = errors.New("shelly: device no longer discoverable")

	// ErrUnauthorized is returned when a device rejects the supplied
	// credentials.
	ErrUnauthorized = errors.New("shelly: authentication failed")
)
