// Package discovery finds Caseta hubs.
//
// Three announcers feed one stream of Announcements: an mDNS browser for
// the hubs' _lutron._tcp service, the relay's announcements on its
// discovery topic, and hubs given a static address in configuration. The
// stream is not de-duplicated; consumers ignore hubs they already have.
package discovery
