package discovery

import (
	"context"
	"errors"
	"sync"
)

// Announcer emits hub announcements until ctx is done or it fails.
type Announcer interface {
	Announce(ctx context.Context, out chan<- Announcement) error
}

// AnnouncerFunc adapts a function to Announcer.
type AnnouncerFunc func(ctx context.Context, out chan<- Announcement) error

// Announce calls f.
func (f AnnouncerFunc) Announce(ctx context.Context, out chan<- Announcement) error {
	return f(ctx, out)
}

// Logger is the logging interface used by the package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Merge runs every announcer and returns their announcements on one
// channel. Hub IDs are normalized. An announcer that fails is logged and
// does not stop the others. The channel closes once every announcer has
// returned.
func Merge(ctx context.Context, logger Logger, announcers ...Announcer) <-chan Announcement {
	if logger == nil {
		logger = noopLogger{}
	}
	raw := make(chan Announcement)
	out := make(chan Announcement)

	var wg sync.WaitGroup
	for _, a := range announcers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.Announce(ctx, raw)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("hub announcer stopped", "error", err)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(raw)
	}()

	go func() {
		defer close(out)
		for ann := range raw {
			ann.HubID = NormalizeHubID(ann.HubID)
			if ann.HubID == "" {
				logger.Debug("dropping announcement without hub id", "address", ann.Address, "source", ann.Source)
				continue
			}
			select {
			case out <- ann:
			case <-ctx.Done():
				// Drain so announcers blocked on raw can return.
				for range raw {
				}
				return
			}
		}
	}()
	return out
}

// send delivers ann unless ctx is done first.
func send(ctx context.Context, out chan<- Announcement, ann Announcement) error {
	select {
	case out <- ann:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
