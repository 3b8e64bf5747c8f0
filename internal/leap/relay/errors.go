package relay

import "errors"

var (
	// ErrInvalidOptions is returned when a Connector is built without a transport.
	ErrInvalidOptions = errors.New("relay: invalid options")

	// ErrTimeout is returned when the relay does not answer in time.
	ErrTimeout = errors.New("relay: request timed out")

	// ErrRequestFailed is returned when the hub answers with a non-success status.
	ErrRequestFailed = errors.New("relay: request failed")

	// ErrRelay is returned when the relay itself reports a failure, for
	// example when it cannot reach the hub.
	ErrRelay = errors.New("relay: relay error")

	// ErrUnexpectedBody is returned when a response body does not carry the
	// expected resource.
	ErrUnexpectedBody = errors.New("relay: unexpected response body")
)
