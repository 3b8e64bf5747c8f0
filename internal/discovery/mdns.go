package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/config"
)

// hubNamePrefix starts both the instance and host names a hub advertises,
// e.g. "Lutron-032e7e88".
const hubNamePrefix = "lutron-"

// MDNS browses for hubs advertising the LEAP service.
type MDNS struct {
	cfg    config.DiscoveryConfig
	logger Logger
}

// NewMDNS returns a browser for cfg.Service in cfg.Domain.
func NewMDNS(cfg config.DiscoveryConfig, logger Logger) *MDNS {
	if cfg.Service == "" {
		cfg.Service = "_lutron._tcp"
	}
	if cfg.Domain == "" {
		cfg.Domain = "local."
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &MDNS{cfg: cfg, logger: logger}
}

// Announce browses until ctx is done, emitting one announcement per service
// entry the browser resolves.
func (m *MDNS) Announce(ctx context.Context, out chan<- Announcement) error {
	opts, err := m.options()
	if err != nil {
		return err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	errc := make(chan error, 1)
	go func() {
		errc <- zeroconf.Browse(ctx, m.cfg.Service, m.cfg.Domain, entries, removed, opts...)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return ctx.Err()
			}
			ann, ok := announcementFromEntry(entry)
			if !ok {
				m.logger.Debug("ignoring mdns entry", "instance", entry.Instance, "host", entry.HostName)
				continue
			}
			if err := send(ctx, out, ann); err != nil {
				return err
			}
		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			m.logger.Debug("mdns entry expired", "instance", entry.Instance)
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBrowse, err)
			}
			errc = nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *MDNS) options() ([]zeroconf.ClientOption, error) {
	if len(m.cfg.Interfaces) == 0 {
		return nil, nil
	}
	ifaces := make([]net.Interface, 0, len(m.cfg.Interfaces))
	for _, name := range m.cfg.Interfaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: interface %s: %w", ErrBrowse, name, err)
		}
		ifaces = append(ifaces, *iface)
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces(ifaces)}, nil
}

// announcementFromEntry extracts the hub ID and address from a resolved
// service entry. The ID is taken from the instance name, falling back to the
// host name. IPv4 is preferred over IPv6, and the host name is used when the
// entry carries no address.
func announcementFromEntry(e *zeroconf.ServiceEntry) (Announcement, bool) {
	if e == nil {
		return Announcement{}, false
	}
	id := hubIDFromName(e.Instance)
	if id == "" {
		id = hubIDFromName(e.HostName)
	}
	if id == "" {
		return Announcement{}, false
	}

	var host string
	switch {
	case len(e.AddrIPv4) > 0:
		host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		host = e.AddrIPv6[0].String()
	default:
		host = strings.TrimSuffix(e.HostName, ".")
	}
	if host == "" {
		return Announcement{}, false
	}

	addr := host
	if e.Port > 0 {
		addr = net.JoinHostPort(host, strconv.Itoa(e.Port))
	}
	return Announcement{HubID: NormalizeHubID(id), Address: addr, Source: SourceMDNS}, true
}

// hubIDFromName returns the part after "Lutron-" up to the first dot.
func hubIDFromName(name string) string {
	name, _, _ = strings.Cut(name, ".")
	if len(name) <= len(hubNamePrefix) || !strings.EqualFold(name[:len(hubNamePrefix)], hubNamePrefix) {
		return ""
	}
	return name[len(hubNamePrefix):]
}
