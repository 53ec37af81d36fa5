package tsdb

import "errors"

// Sentinel errors, matched with errors.Is.
var (
	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("tsdb: connection failed")

	// ErrWriteFailed indicates a batch flush was rejected or never arrived.
	ErrWriteFailed = errors.New("tsdb: write failed")

	// ErrDisabled indicates the backend is switched off in configuration.
	ErrDisabled = errors.New("tsdb: disabled in configuration")
)
