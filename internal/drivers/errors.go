package drivers

import "errors"

// ErrInvalidOptions is returned by NewCatalog for unusable options.
var ErrInvalidOptions = errors.New("drivers: invalid options")
