package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/caseta-bridge/internal/broker"
	"github.com/nerrad567/caseta-bridge/internal/clock"
	"github.com/nerrad567/caseta-bridge/internal/discovery"
	"github.com/nerrad567/caseta-bridge/internal/homekit"
	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// HandleDiscovery connects to an announced hub, publishes its session and
// runs a full pass. Announcements for a hub that is already published are
// ignored.
//
// Parameters:
//   - ctx: Bounds the connect and the pass
//   - ann: Hub identity and address from discovery
//
// Returns:
//   - error: If credentials are missing, the connect fails or the device
//     list cannot be read
func (e *Engine) HandleDiscovery(ctx context.Context, ann discovery.Announcement) error {
	hubID := discovery.NormalizeHubID(ann.HubID)
	if e.broker.Has(hubID) {
		e.logger.Debug("hub already connected", "hub_id", hubID, "source", ann.Source)
		return nil
	}
	if e.connector == nil || e.credentials == nil {
		return fmt.Errorf("%w: connector and credentials are required for discovery", ErrInvalidOptions)
	}

	v, err, _ := e.connects.Do(hubID, func() (any, error) {
		return e.connect(ctx, hubID, ann.Address)
	})
	if err != nil {
		return err
	}
	session := v.(leap.Session)

	_, err = e.ProcessAllDevices(ctx, session)
	return err
}

func (e *Engine) connect(ctx context.Context, hubID, address string) (leap.Session, error) {
	if s, ok := e.broker.Lookup(hubID); ok {
		return s, nil
	}

	creds, err := e.credentials(hubID)
	if err != nil {
		return nil, fmt.Errorf("credentials for hub %s: %w", hubID, err)
	}

	e.logger.Info("connecting to hub", "hub_id", hubID, "address", address)
	session, err := e.connector.Connect(ctx, hubID, address, creds)
	if err != nil {
		return nil, fmt.Errorf("connecting to hub %s: %w", hubID, err)
	}

	e.watch(session)
	if !e.broker.Add(hubID, session) {
		e.unwatch(hubID)
		_ = session.Close() //nolint:errcheck // duplicate session
		existing, _ := e.broker.Lookup(hubID)
		return existing, nil
	}
	return session, nil
}

// watch routes device-heard pushes from session into the debounce timer.
func (e *Engine) watch(session leap.Session) {
	hubID := session.HubID()
	unsub := session.Unsolicited(func(msg leap.Message) {
		if msg.BodyType == leap.BodyOneDeviceHeard {
			e.deviceHeard(session)
		}
	})

	e.mu.Lock()
	old := e.watches[hubID]
	e.watches[hubID] = unsub
	e.mu.Unlock()
	if old != nil {
		old()
	}
}

func (e *Engine) unwatch(hubID string) {
	e.mu.Lock()
	unsub := e.watches[hubID]
	delete(e.watches, hubID)
	e.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// deviceHeard (re)arms the hub's debounce timer. When it fires the hub's
// device list is reconciled again.
func (e *Engine) deviceHeard(session leap.Session) {
	hubID := session.HubID()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.Err() != nil {
		return
	}
	if t, ok := e.heard[hubID]; ok {
		t.Stop()
	}

	var timer clock.Timer
	timer = e.clock.AfterFunc(e.heardDelay, func() {
		e.mu.Lock()
		current := e.heard[hubID] == timer
		if current {
			delete(e.heard, hubID)
		}
		e.mu.Unlock()
		if !current {
			return
		}

		e.logger.Info("hub heard new device, reconciling", "hub_id", hubID)
		if _, err := e.ProcessAllDevices(e.ctx, session); err != nil {
			e.logger.Warn("device-heard reconciliation failed", "hub_id", hubID, "error", err)
		}
	})
	e.heard[hubID] = timer
	e.logger.Debug("device heard, pass scheduled", "hub_id", hubID, "delay", e.heardDelay)
}

// Restore re-attaches drivers to persisted accessories. Each accessory
// waits on the broker for its hub; accessories whose hub does not appear in
// time are left registered without a driver until the hub's first pass.
//
// Restore blocks until every accessory has been handled.
func (e *Engine) Restore(ctx context.Context, shells []*homekit.Shell) {
	var wg sync.WaitGroup
	for _, shell := range shells {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.restore(ctx, shell)
		}()
	}
	wg.Wait()
}

func (e *Engine) restore(ctx context.Context, shell *homekit.Shell) {
	c := shell.Context()
	id := shell.ID()

	session, err := e.broker.Get(ctx, c.HubID)
	if err != nil {
		if errors.Is(err, broker.ErrTimeout) {
			e.logger.Warn("hub not available for restored accessory", "accessory_id", id, "hub_id", c.HubID, "error", err)
		} else {
			e.logger.Debug("restore cancelled", "accessory_id", id, "error", err)
		}
		return
	}

	if e.Attached(id) {
		e.logger.Debug("accessory already attached", "accessory_id", id)
		return
	}
	out := e.ProcessDevice(ctx, session, c.Device)
	e.logger.Info("restored accessory", "accessory_id", id, "outcome", out.String())
}
