package events

import "errors"

var (
	// ErrBusStopped is returned by Start after Stop has been called.
	ErrBusStopped = errors.New("events: bus stopped")

	// ErrUnknownType is returned by a sink that cannot route an event.
	ErrUnknownType = errors.New("events: unknown event type")
)
