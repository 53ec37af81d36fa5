package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID or
	// vendor ID already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrChannelNotFound is returned when a channel identifier does not
	// exist on a device.
	ErrChannelNotFound = errors.New("device: channel not found")

	// ErrPropertyNotFound is returned when a property identifier does not
	// exist on a channel.
	ErrPropertyNotFound = errors.New("device: property not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidSlug is returned when a slug format is invalid.
	ErrInvalidSlug = errors.New("device: invalid slug")

	// ErrInvalidConnectionState is returned when a connection state value
	// is not recognised.
	ErrInvalidConnectionState = errors.New("device: invalid connection state")
)
