package leap

import "errors"

var (
	// ErrInvalidCredentials is returned when a credential set fails local checks.
	ErrInvalidCredentials = errors.New("leap: invalid credentials")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("leap: session closed")

	// ErrNotFound is returned when the hub reports a resource does not exist.
	ErrNotFound = errors.New("leap: resource not found")
)
