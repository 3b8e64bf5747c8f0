package platform

import "errors"

var (
	// ErrUnknownHub is returned when no session has been published for a hub.
	ErrUnknownHub = errors.New("platform: unknown hub")

	// ErrInvalidOptions is returned by New for incomplete options.
	ErrInvalidOptions = errors.New("platform: invalid options")

	// ErrDeviceList is returned when a hub's device list cannot be read.
	ErrDeviceList = errors.New("platform: listing devices failed")
)
