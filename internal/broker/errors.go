package broker

import "errors"

// ErrTimeout is returned by Get when the hub is not published in time.
var ErrTimeout = errors.New("broker: timed out waiting for bridge to appear")
