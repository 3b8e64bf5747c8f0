package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrStartFailed is returned when the binary cannot be started.
	ErrStartFailed = errors.New("process: start failed")

	// ErrUnexpectedExit is recorded when the process exits with status 0
	// without a stop request.
	ErrUnexpectedExit = errors.New("process: exited unexpectedly")
)
