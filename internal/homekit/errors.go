package homekit

import "errors"

var (
	// ErrUnknownShell is returned for a shell not created by this framework.
	ErrUnknownShell = errors.New("homekit: unknown shell")

	// ErrInvalidConfig is returned by NewServer for unusable options.
	ErrInvalidConfig = errors.New("homekit: invalid configuration")

	errServerExited = errors.New("server exited unexpectedly")
)
