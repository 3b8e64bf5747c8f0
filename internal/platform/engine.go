package platform

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/caseta-bridge/internal/accessory"
	"github.com/nerrad567/caseta-bridge/internal/broker"
	"github.com/nerrad567/caseta-bridge/internal/clock"
	"github.com/nerrad567/caseta-bridge/internal/drivers"
	"github.com/nerrad567/caseta-bridge/internal/events"
	"github.com/nerrad567/caseta-bridge/internal/homekit"
	"github.com/nerrad567/caseta-bridge/internal/leap"
)

const (
	// DefaultDeviceHeardDelay debounces device-heard pushes.
	DefaultDeviceHeardDelay = 30 * time.Second

	// maxConcurrentDevices bounds the per-pass fan-out.
	maxConcurrentDevices = 16
)

// Wirer attaches behavior to one device. *drivers.Catalog implements it.
type Wirer interface {
	Wire(ctx context.Context, t drivers.Target) (drivers.Driver, drivers.Outcome)
}

// CredentialSource returns the client credentials paired with a hub.
type CredentialSource func(hubID string) (leap.Credentials, error)

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an Engine.
type Options struct {
	// Broker publishes hub sessions. Required.
	Broker *broker.Broker[leap.Session]

	// Framework owns the accessory shells. Required.
	Framework *homekit.Framework

	// Wirer dispatches devices to drivers. Required.
	Wirer Wirer

	// Connector and Credentials are needed only by HandleDiscovery.
	Connector   leap.Connector
	Credentials CredentialSource

	// DeviceHeardDelay defaults to DefaultDeviceHeardDelay.
	DeviceHeardDelay time.Duration

	Publisher events.Publisher
	Clock     clock.Clock
	Logger    Logger
}

// Engine is the device reconciliation engine.
//
// Thread Safety: all methods are safe for concurrent use.
type Engine struct {
	broker      *broker.Broker[leap.Session]
	framework   *homekit.Framework
	wirer       Wirer
	connector   leap.Connector
	credentials CredentialSource
	heardDelay  time.Duration
	publisher   events.Publisher
	clock       clock.Clock
	logger      Logger

	ctx    context.Context
	cancel context.CancelFunc

	passes   singleflight.Group
	connects singleflight.Group

	mu          sync.Mutex
	drivers     map[string]drivers.Driver
	deviceLocks map[string]*sync.Mutex
	heard       map[string]clock.Timer
	watches     map[string]leap.Unsubscribe
	reports     map[string]Report
}

// New validates opts and creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Broker == nil || opts.Framework == nil || opts.Wirer == nil {
		return nil, fmt.Errorf("%w: broker, framework and wirer are required", ErrInvalidOptions)
	}
	if opts.DeviceHeardDelay <= 0 {
		opts.DeviceHeardDelay = DefaultDeviceHeardDelay
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Discard
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		broker:      opts.Broker,
		framework:   opts.Framework,
		wirer:       opts.Wirer,
		connector:   opts.Connector,
		credentials: opts.Credentials,
		heardDelay:  opts.DeviceHeardDelay,
		publisher:   opts.Publisher,
		clock:       opts.Clock,
		logger:      opts.Logger,
		ctx:         ctx,
		cancel:      cancel,
		drivers:     make(map[string]drivers.Driver),
		deviceLocks: make(map[string]*sync.Mutex),
		heard:       make(map[string]clock.Timer),
		watches:     make(map[string]leap.Unsubscribe),
		reports:     make(map[string]Report),
	}, nil
}

// ProcessAllDevices reconciles every device the hub lists.
//
// Devices are processed concurrently and independently: one device's
// failure or panic never affects the others. Concurrent calls for the same
// hub share a single pass. The shared pass runs under the engine's lifetime,
// not the caller's: cancelling ctx only stops this caller from waiting.
//
// Returns:
//   - Report: One result per listed device, in list order
//   - error: ErrDeviceList if the device list could not be read, or ctx.Err()
func (e *Engine) ProcessAllDevices(ctx context.Context, session leap.Session) (Report, error) {
	hubID := session.HubID()
	ch := e.passes.DoChan(hubID, func() (any, error) {
		return e.processAll(e.ctx, session)
	})

	select {
	case <-ctx.Done():
		e.logger.Debug("stopped waiting for reconciliation", "hub_id", hubID, "error", ctx.Err())
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			e.logger.Debug("joined in-flight reconciliation", "hub_id", hubID)
		}
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	}
}

func (e *Engine) processAll(ctx context.Context, session leap.Session) (Report, error) {
	hubID := session.HubID()
	started := e.clock.Now()

	devices, err := session.Devices(ctx)
	if err != nil {
		e.logger.Error("listing devices failed", "hub_id", hubID, "error", err)
		return Report{}, fmt.Errorf("%w: hub %s: %w", ErrDeviceList, hubID, err)
	}
	e.logger.Info("reconciling devices", "hub_id", hubID, "devices", len(devices))

	results := make([]DeviceResult, len(devices))
	var g errgroup.Group
	g.SetLimit(maxConcurrentDevices)
	for i, device := range devices {
		g.Go(func() error {
			out := e.ProcessDevice(ctx, session, device)
			results[i] = DeviceResult{
				AccessoryID: accessory.IdentityFor(device.SerialNumber),
				Name:        device.DisplayName(),
				DeviceType:  device.DeviceType,
				Outcome:     out,
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // per-device failures are reported as outcomes

	report := newReport(hubID, started, e.clock.Now().Sub(started), results)
	e.logger.Info("reconciliation complete",
		"hub_id", hubID,
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)

	e.mu.Lock()
	e.reports[hubID] = report
	e.mu.Unlock()

	e.publisher.Publish(events.Event{
		Type:  events.TypeReconcileCompleted,
		HubID: hubID,
		Reconcile: &events.ReconcilePayload{
			Succeeded: report.Succeeded,
			Skipped:   report.Skipped,
			Failed:    report.Failed,
			ElapsedMS: report.Elapsed.Milliseconds(),
		},
	})
	return report, nil
}

// ProcessDevice reconciles one device and returns its outcome.
//
// It tears down any live driver for the device's identity before wiring,
// and makes at most one register or unregister call.
func (e *Engine) ProcessDevice(ctx context.Context, session leap.Session, device leap.Device) drivers.Outcome {
	hubID := session.HubID()
	id := accessory.IdentityFor(device.SerialNumber)
	name := device.DisplayName()

	unlock := e.lockDevice(id)
	defer unlock()

	shell, cached := e.framework.Lookup(id)
	if !cached {
		shell = e.framework.Create(id, name)
	}
	shell.SetContext(device, hubID)

	e.teardown(id)
	driver, out := e.wire(ctx, drivers.Target{Session: session, Shell: shell, Device: device})

	// A failure caused by cancellation says nothing about the device.
	if out.Kind != drivers.KindSuccess && ctx.Err() != nil {
		e.logger.Warn("device reconciliation interrupted", "hub_id", hubID, "device", name, "reason", out.Reason)
		return out
	}

	switch out.Kind {
	case drivers.KindSuccess:
		var err error
		if shell.IsNew() {
			err = e.framework.Register(ctx, shell)
		} else {
			err = e.framework.Refresh(ctx, shell)
		}
		if err != nil {
			driver.Teardown()
			out = drivers.Errorf("persisting accessory: %v", err)
			e.logger.Error("device setup failed", "hub_id", hubID, "device", name, "reason", out.Reason)
			if ctx.Err() == nil {
				e.retire(ctx, shell)
			}
			return out
		}
		e.mu.Lock()
		e.drivers[id] = driver
		e.mu.Unlock()
		e.logger.Debug("device wired", "hub_id", hubID, "device", name, "accessory_id", id)

	case drivers.KindSkipped:
		e.logger.Info("device skipped", "hub_id", hubID, "device", name, "type", device.DeviceType, "reason", out.Reason)
		e.retire(ctx, shell)

	default:
		e.logger.Error("device setup failed", "hub_id", hubID, "device", name, "type", device.DeviceType, "reason", out.Reason)
		e.retire(ctx, shell)
	}
	return out
}

// retire unregisters a pre-existing accessory. New shells were never
// registered and are dropped.
func (e *Engine) retire(ctx context.Context, shell *homekit.Shell) {
	if shell.IsNew() {
		return
	}
	if err := e.framework.Unregister(ctx, shell.ID()); err != nil {
		e.logger.Error("unregistering accessory failed", "accessory_id", shell.ID(), "error", err)
	}
}

// wire calls the wirer, converting a panic into an Error outcome.
func (e *Engine) wire(ctx context.Context, t drivers.Target) (driver drivers.Driver, out drivers.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while wiring device",
				"device", t.Device.DisplayName(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			driver, out = nil, drivers.Errorf("panic: %v", r)
		}
	}()

	driver, out = e.wirer.Wire(ctx, t)
	if out.Kind == drivers.KindSuccess && driver == nil {
		return nil, drivers.Errorf("wiring returned no driver")
	}
	if out.Kind != drivers.KindSuccess && driver != nil {
		driver.Teardown()
		driver = nil
	}
	return driver, out
}

func (e *Engine) lockDevice(id string) func() {
	e.mu.Lock()
	m, ok := e.deviceLocks[id]
	if !ok {
		m = &sync.Mutex{}
		e.deviceLocks[id] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// teardown stops and forgets the live driver for id, if any.
func (e *Engine) teardown(id string) {
	e.mu.Lock()
	d, ok := e.drivers[id]
	delete(e.drivers, id)
	e.mu.Unlock()

	if ok {
		d.Teardown()
	}
}

// Attached reports whether a live driver is attached to the accessory.
func (e *Engine) Attached(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.drivers[id]
	return ok
}

// DriverCount returns the number of live drivers.
func (e *Engine) DriverCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.drivers)
}

// LastReport returns the most recent pass report for hubID.
func (e *Engine) LastReport(hubID string) (Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.reports[hubID]
	return r, ok
}

// Hubs returns the IDs of hubs with a published session.
func (e *Engine) Hubs() []string {
	return e.broker.Hubs()
}

// Reconcile runs a pass for an already connected hub.
//
// Returns:
//   - error: ErrUnknownHub if the hub has no published session
func (e *Engine) Reconcile(ctx context.Context, hubID string) (Report, error) {
	session, ok := e.broker.Lookup(hubID)
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownHub, hubID)
	}
	return e.ProcessAllDevices(ctx, session)
}

// Close tears down every driver, cancels pending device-heard passes and
// drops hub watches. Sessions are owned by the caller.
func (e *Engine) Close() {
	e.cancel()

	e.mu.Lock()
	ds := e.drivers
	timers := e.heard
	watches := e.watches
	e.drivers = make(map[string]drivers.Driver)
	e.heard = make(map[string]clock.Timer)
	e.watches = make(map[string]leap.Unsubscribe)
	e.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	for _, unsub := range watches {
		unsub()
	}
	for _, d := range ds {
		d.Teardown()
	}
}
