package discovery

import (
	"context"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/config"
)

// Static announces each configured hub that has a fixed address, once.
func Static(hubs []config.HubConfig) Announcer {
	return AnnouncerFunc(func(ctx context.Context, out chan<- Announcement) error {
		for _, h := range hubs {
			if h.Address == "" {
				continue
			}
			if err := send(ctx, out, Announcement{HubID: h.ID, Address: h.Address, Source: SourceStatic}); err != nil {
				return err
			}
		}
		return nil
	})
}
