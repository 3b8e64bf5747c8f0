package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/caseta-bridge/internal/clock"
)

// DefaultTimeout is how long Get waits when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Logger is the logging interface used by the broker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Options configures a Broker.
type Options struct {
	// Timeout bounds each Get call that has to wait.
	Timeout time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	Logger Logger
}

// Broker is a registry of published handles keyed by hub ID.
//
// Thread Safety: all methods are safe for concurrent use.
type Broker[H any] struct {
	timeout time.Duration
	clock   clock.Clock
	logger  Logger

	mu      sync.Mutex
	handles map[string]H
	waiters map[string]map[*waiter[H]]struct{}
}

// waiter is one outstanding Get. resolved receives the handle; expired is
// closed by the timeout. Exactly one of them fires, decided under the
// broker lock by whoever removes the waiter from the pending set.
type waiter[H any] struct {
	resolved chan H
	expired  chan struct{}
}

// New creates an empty Broker.
func New[H any](opts Options) *Broker[H] {
	b := &Broker[H]{
		timeout: opts.Timeout,
		clock:   opts.Clock,
		logger:  opts.Logger,
		handles: make(map[string]H),
		waiters: make(map[string]map[*waiter[H]]struct{}),
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	if b.clock == nil {
		b.clock = clock.Real()
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	return b
}

// Get returns the handle for hubID, waiting for it to be published if
// necessary.
//
// Parameters:
//   - ctx: Cancels the wait; the waiter is removed on cancellation
//   - hubID: Hub identity as announced by discovery
//
// Returns:
//   - H: The published handle
//   - error: ErrTimeout after the configured timeout, or the context's error
func (b *Broker[H]) Get(ctx context.Context, hubID string) (H, error) {
	b.mu.Lock()
	if h, ok := b.handles[hubID]; ok {
		b.mu.Unlock()
		return h, nil
	}
	w := &waiter[H]{
		resolved: make(chan H, 1),
		expired:  make(chan struct{}),
	}
	if b.waiters[hubID] == nil {
		b.waiters[hubID] = make(map[*waiter[H]]struct{})
	}
	b.waiters[hubID][w] = struct{}{}
	b.mu.Unlock()

	b.logger.Debug("waiting for hub", "hub_id", hubID)

	timer := b.clock.AfterFunc(b.timeout, func() {
		if b.remove(hubID, w) {
			close(w.expired)
		}
	})
	defer timer.Stop()

	var zero H
	select {
	case h := <-w.resolved:
		return h, nil
	case <-w.expired:
		return zero, fmt.Errorf("%w: hub %s", ErrTimeout, hubID)
	case <-ctx.Done():
		if b.remove(hubID, w) {
			return zero, ctx.Err()
		}
		// Add won the race; its handle is already buffered.
		return <-w.resolved, nil
	}
}

// remove deletes w from the pending set and reports whether it was still
// there.
func (b *Broker[H]) remove(hubID string, w *waiter[H]) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.waiters[hubID]
	if _, ok := pending[w]; !ok {
		return false
	}
	delete(pending, w)
	if len(pending) == 0 {
		delete(b.waiters, hubID)
	}
	return true
}

// Add publishes the handle for hubID and releases every waiter.
//
// Returns:
//   - bool: false if the hub was already published (the call is a no-op)
func (b *Broker[H]) Add(hubID string, h H) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handles[hubID]; ok {
		return false
	}
	b.handles[hubID] = h

	pending := b.waiters[hubID]
	delete(b.waiters, hubID)
	for w := range pending {
		w.resolved <- h
	}

	b.logger.Info("hub published", "hub_id", hubID, "released_waiters", len(pending))
	return true
}

// Has reports whether hubID has been published.
func (b *Broker[H]) Has(hubID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handles[hubID]
	return ok
}

// Lookup returns the handle for hubID without waiting.
func (b *Broker[H]) Lookup(hubID string) (H, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handles[hubID]
	return h, ok
}

// Hubs returns the published hub IDs in sorted order.
func (b *Broker[H]) Hubs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.handles))
	for id := range b.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pending returns the number of outstanding waiters for hubID.
func (b *Broker[H]) Pending(hubID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters[hubID])
}
