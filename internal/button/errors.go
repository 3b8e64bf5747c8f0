package button

import "errors"

// ErrUnknownProfile is returned by Resolve for an unrecognized profile name.
var ErrUnknownProfile = errors.New("button: unknown timing profile")
