package accessory

import "errors"

var (
	// ErrNotFound is returned when no accessory has the requested ID.
	ErrNotFound = errors.New("accessory: not found")

	// ErrInvalid is returned for a record missing its ID or hub.
	ErrInvalid = errors.New("accessory: invalid record")

	// ErrContextCodec wraps failures encoding or decoding a context blob.
	ErrContextCodec = errors.New("accessory: context codec")
)
