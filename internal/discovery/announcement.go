package discovery

import "strings"

// Source names where an announcement came from.
type Source string

const (
	SourceMDNS   Source = "mdns"
	SourceRelay  Source = "relay"
	SourceStatic Source = "static"
)

// Announcement reports a hub reachable at an address.
type Announcement struct {
	HubID   string `json:"hub_id"`
	Address string `json:"address"`
	Source  Source `json:"source,omitempty"`
}

// NormalizeHubID upper-cases a hub ID so every source agrees on its form.
func NormalizeHubID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
