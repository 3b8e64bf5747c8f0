package discovery

import "errors"

var (
	// ErrNoHubID is returned when an announcement carries no recognisable hub ID.
	ErrNoHubID = errors.New("discovery: no hub id")

	// ErrBrowse is returned when the mDNS browser cannot start.
	ErrBrowse = errors.New("discovery: mdns browse failed")
)
