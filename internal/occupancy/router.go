// Package occupancy fans a hub's occupancy feed out to individual sensors.
//
// A hub publishes occupancy for all of its groups on one subscription. The
// Router subscribes once per hub, keeps the last known status of every
// group, and routes updates to the sensor registered for each group. A new
// registration immediately receives the cached status, since the initial
// statuses arrive only once, with the subscription.
package occupancy

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// Logger is the logging interface used by the router.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Callback receives the status of one occupancy group.
type Callback func(leap.OccupancyStatus)

type hubSubscription struct {
	ready chan struct{}
	err   error
	unsub leap.Unsubscribe
}

// Router routes occupancy updates by (hub, occupancy group).
//
// Thread Safety: all methods are safe for concurrent use.
type Router struct {
	logger Logger

	mu        sync.Mutex
	hubs      map[string]*hubSubscription
	callbacks map[string]map[uint64]Callback
	state     map[string]leap.OccupancyStatus
	nextID    uint64
}

// NewRouter creates an empty Router. A nil logger discards output.
func NewRouter(logger Logger) *Router {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{
		logger:    logger,
		hubs:      make(map[string]*hubSubscription),
		callbacks: make(map[string]map[uint64]Callback),
		state:     make(map[string]leap.OccupancyStatus),
	}
}

func key(hubID, groupHref string) string {
	return hubID + "_" + groupHref
}

// Register routes updates for one occupancy group to fn, subscribing to the
// hub's occupancy feed first if this is the hub's first registration.
//
// Parameters:
//   - ctx: Bounds the wait for the hub subscription
//   - session: Session of the hub owning the group
//   - groupHref: Occupancy group href, e.g. "/occupancygroup/3"
//   - fn: Called with the cached status (if any) before Register returns,
//     then with every update
//
// Returns:
//   - func(): Removes the registration; safe to call more than once
//   - error: If the hub subscription failed
func (r *Router) Register(ctx context.Context, session leap.Session, groupHref string, fn Callback) (func(), error) {
	hubID := session.HubID()
	if err := r.subscribe(ctx, session); err != nil {
		return nil, err
	}

	k := key(hubID, groupHref)

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	if r.callbacks[k] == nil {
		r.callbacks[k] = make(map[uint64]Callback)
	}
	r.callbacks[k][id] = fn
	status, cached := r.state[k]
	r.mu.Unlock()

	if cached {
		r.logger.Debug("replaying cached occupancy", "key", k, "status", status)
		fn(status)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.callbacks[k], id)
			if len(r.callbacks[k]) == 0 {
				delete(r.callbacks, k)
			}
		})
	}, nil
}

// subscribe ensures exactly one occupancy subscription per hub. Concurrent
// first registrations wait for the same attempt; a failed attempt is
// forgotten so the next registration retries.
func (r *Router) subscribe(ctx context.Context, session leap.Session) error {
	hubID := session.HubID()

	r.mu.Lock()
	sub, exists := r.hubs[hubID]
	if !exists {
		sub = &hubSubscription{ready: make(chan struct{})}
		r.hubs[hubID] = sub
	}
	r.mu.Unlock()

	if exists {
		select {
		case <-sub.ready:
			return sub.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.logger.Debug("subscribing to hub occupancy", "hub_id", hubID)
	initial, unsub, err := session.SubscribeOccupancy(ctx, func(update []leap.OccupancyGroupStatus) {
		r.dispatch(hubID, update)
	})

	r.mu.Lock()
	if err != nil {
		sub.err = fmt.Errorf("subscribing to occupancy on hub %s: %w", hubID, err)
		delete(r.hubs, hubID)
	} else {
		sub.unsub = unsub
		r.storeLocked(hubID, initial)
	}
	r.mu.Unlock()
	close(sub.ready)

	return sub.err
}

func (r *Router) storeLocked(hubID string, update []leap.OccupancyGroupStatus) {
	for _, s := range update {
		r.state[key(hubID, s.OccupancyGroup.Href)] = s.OccupancyStatus
	}
}

func (r *Router) dispatch(hubID string, update []leap.OccupancyGroupStatus) {
	type call struct {
		fn     Callback
		status leap.OccupancyStatus
	}

	r.mu.Lock()
	r.storeLocked(hubID, update)
	var calls []call
	for _, s := range update {
		for _, fn := range r.callbacks[key(hubID, s.OccupancyGroup.Href)] {
			calls = append(calls, call{fn, s.OccupancyStatus})
		}
	}
	r.mu.Unlock()

	for _, c := range calls {
		c.fn(c.status)
	}
}

// Status returns the cached status of a group.
func (r *Router) Status(hubID, groupHref string) (leap.OccupancyStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.state[key(hubID, groupHref)]
	return s, ok
}

// Close cancels every hub subscription. Registrations made afterwards
// subscribe again.
func (r *Router) Close() {
	r.mu.Lock()
	hubs := r.hubs
	r.hubs = make(map[string]*hubSubscription)
	r.mu.Unlock()

	for _, sub := range hubs {
		<-sub.ready
		if sub.unsub != nil {
			sub.unsub()
		}
	}
}
