package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/caseta-bridge/internal/accessory"
	"github.com/nerrad567/caseta-bridge/internal/broker"
	"github.com/nerrad567/caseta-bridge/internal/clock"
	"github.com/nerrad567/caseta-bridge/internal/discovery"
	"github.com/nerrad567/caseta-bridge/internal/drivers"
	"github.com/nerrad567/caseta-bridge/internal/events"
	"github.com/nerrad567/caseta-bridge/internal/homekit"
	"github.com/nerrad567/caseta-bridge/internal/infrastructure/database"
	"github.com/nerrad567/caseta-bridge/internal/leap"
	"github.com/nerrad567/caseta-bridge/internal/leap/leaptest"
	_ "github.com/nerrad567/caseta-bridge/migrations"
)

const hubID = "032E7E88"

type fakeDriver struct {
	teardowns atomic.Int32
}

func (d *fakeDriver) Teardown() { d.teardowns.Add(1) }

// fakeWirer returns Success for every device unless an outcome or panic is
// scripted for its serial number. Like the catalog it fails once ctx is done.
type fakeWirer struct {
	mu       sync.Mutex
	outcomes map[uint32]drivers.Outcome
	panics   map[uint32]bool
	wired    map[uint32][]*fakeDriver

	// entered is closed by the first Wire call, which then waits on release.
	entered   chan struct{}
	release   chan struct{}
	enterOnce sync.Once
	cancelled atomic.Int32
}

func newFakeWirer() *fakeWirer {
	return &fakeWirer{
		outcomes: make(map[uint32]drivers.Outcome),
		panics:   make(map[uint32]bool),
		wired:    make(map[uint32][]*fakeDriver),
	}
}

func (w *fakeWirer) Wire(ctx context.Context, t drivers.Target) (drivers.Driver, drivers.Outcome) {
	w.mu.Lock()
	entered, release := w.entered, w.release
	w.mu.Unlock()
	if entered != nil {
		w.enterOnce.Do(func() { close(entered) })
		<-release
	}
	if err := ctx.Err(); err != nil {
		w.cancelled.Add(1)
		return nil, drivers.Errorf("fetching device state: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	serial := t.Device.SerialNumber
	if w.panics[serial] {
		panic("wiring exploded")
	}
	out, ok := w.outcomes[serial]
	if !ok {
		out = drivers.Success(t.Device.DisplayName())
	}
	if out.Kind != drivers.KindSuccess {
		return nil, out
	}
	d := &fakeDriver{}
	w.wired[serial] = append(w.wired[serial], d)
	return d, out
}

func (w *fakeWirer) set(serial uint32, out drivers.Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes[serial] = out
}

// hold makes Wire block until the returned release func is called.
func (w *fakeWirer) hold() (entered <-chan struct{}, release func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entered = make(chan struct{})
	w.release = make(chan struct{})
	return w.entered, sync.OnceFunc(func() { close(w.release) })
}

func (w *fakeWirer) drivers(serial uint32) []*fakeDriver {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*fakeDriver(nil), w.wired[serial]...)
}

// countingRepo records successful Save and Delete calls per accessory ID.
// Setting saveErr makes every later Save fail.
type countingRepo struct {
	accessory.Repository
	mu      sync.Mutex
	saves   map[string]int
	deletes map[string]int
	saveErr error
}

func (r *countingRepo) Save(ctx context.Context, a *accessory.Accessory) error {
	r.mu.Lock()
	if r.saveErr != nil {
		r.mu.Unlock()
		return r.saveErr
	}
	r.saves[a.ID]++
	r.mu.Unlock()
	return r.Repository.Save(ctx, a)
}

func (r *countingRepo) failSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

func (r *countingRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	r.deletes[id]++
	r.mu.Unlock()
	return r.Repository.Delete(ctx, id)
}

func (r *countingRepo) counts(id string) (saves, deletes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[id], r.deletes[id]
}

// recordingLogger keeps the messages logged at error level.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  {}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type harness struct {
	engine    *Engine
	framework *homekit.Framework
	store     *accessory.Store
	repo      *countingRepo
	broker    *broker.Broker[leap.Session]
	session   *leaptest.Session
	wirer     *fakeWirer
	clock     *clock.Fake
	events    *recorder
	logs      *recordingLogger
	connector *fakeConnector
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	h := &harness{
		repo: &countingRepo{
			Repository: accessory.NewSQLiteRepository(db.DB),
			saves:      make(map[string]int),
			deletes:    make(map[string]int),
		},
		session: leaptest.New(hubID),
		wirer:   newFakeWirer(),
		clock:   clock.NewFake(),
		events:  &recorder{},
		logs:    &recordingLogger{},
	}
	h.connector = &fakeConnector{sessions: map[string]*leaptest.Session{hubID: h.session}}
	h.store = accessory.NewStore(h.repo)
	h.framework = homekit.NewFramework(h.store, nil)
	h.broker = broker.New[leap.Session](broker.Options{Clock: h.clock})

	h.engine, err = New(Options{
		Broker:    h.broker,
		Framework: h.framework,
		Wirer:     h.wirer,
		Connector: h.connector,
		Credentials: func(string) (leap.Credentials, error) {
			return leap.Credentials{}, nil
		},
		DeviceHeardDelay: 30 * time.Second,
		Publisher:        h.events,
		Clock:            h.clock,
		Logger:           h.logs,
	})
	require.NoError(t, err)
	t.Cleanup(h.engine.Close)
	return h
}

type fakeConnector struct {
	mu       sync.Mutex
	sessions map[string]*leaptest.Session
	err      error
	calls    int
}

func (c *fakeConnector) Connect(_ context.Context, hubID, _ string, _ leap.Credentials) (leap.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	s, ok := c.sessions[hubID]
	if !ok {
		return nil, fmt.Errorf("no such hub %s", hubID)
	}
	return s, nil
}

func (c *fakeConnector) connectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func dev(serial uint32) leap.Device {
	return leap.Device{
		Href:               fmt.Sprintf("/device/%d", serial),
		FullyQualifiedName: []string{"Room", fmt.Sprintf("Device %d", serial)},
		SerialNumber:       serial,
		DeviceType:         "Pico2Button",
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestProcessDevice_NewDeviceOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		outcome    *drivers.Outcome
		registered bool
		errorLogs  int
	}{
		{name: "success registers", registered: true},
		{name: "skipped does nothing", outcome: &drivers.Outcome{Kind: drivers.KindSkipped, Reason: "native"}},
		{name: "error does nothing", outcome: &drivers.Outcome{Kind: drivers.KindError, Reason: "boom"}, errorLogs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			d := dev(1001)
			if tt.outcome != nil {
				h.wirer.set(d.SerialNumber, *tt.outcome)
			}

			out := h.engine.ProcessDevice(t.Context(), h.session, d)

			id := accessory.IdentityFor(d.SerialNumber)
			_, registered := h.framework.Lookup(id)
			assert.Equal(t, tt.registered, registered)
			_, stored := h.store.Get(id)
			assert.Equal(t, tt.registered, stored)

			saves, deletes := h.repo.counts(id)
			if tt.registered {
				assert.Equal(t, drivers.KindSuccess, out.Kind)
				assert.Equal(t, 1, saves)
				assert.Equal(t, 1, h.engine.DriverCount())
			} else {
				assert.Zero(t, saves)
				assert.Zero(t, h.engine.DriverCount())
			}
			assert.Zero(t, deletes)
			assert.Len(t, h.logs.errorMessages(), tt.errorLogs, "errors logged: %v", h.logs.errorMessages())
		})
	}
}

func TestProcessDevice_PreExistingAccessoryOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		outcome    drivers.Outcome
		saveErr    error
		want       drivers.Kind
		registered bool
	}{
		{name: "success keeps", outcome: drivers.Success("Room Device 2002"), want: drivers.KindSuccess, registered: true},
		{name: "skipped unregisters", outcome: drivers.Skipped("filtered"), want: drivers.KindSkipped},
		{name: "error unregisters", outcome: drivers.Errorf("device has been removed"), want: drivers.KindError},
		{name: "persist failure unregisters", outcome: drivers.Success("Room Device 2002"), saveErr: errors.New("disk full"), want: drivers.KindError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			d := dev(2002)
			id := accessory.IdentityFor(d.SerialNumber)

			require.Equal(t, drivers.KindSuccess, h.engine.ProcessDevice(t.Context(), h.session, d).Kind)
			h.wirer.set(d.SerialNumber, tt.outcome)
			if tt.saveErr != nil {
				h.repo.failSaves(tt.saveErr)
			}

			d.FullyQualifiedName = []string{"Renamed", "Device"}
			out := h.engine.ProcessDevice(t.Context(), h.session, d)
			assert.Equal(t, tt.want, out.Kind)

			_, registered := h.framework.Lookup(id)
			assert.Equal(t, tt.registered, registered)

			saves, deletes := h.repo.counts(id)
			if tt.registered {
				assert.Equal(t, 2, saves)
				assert.Zero(t, deletes)
				record, ok := h.store.Get(id)
				require.True(t, ok)
				assert.Equal(t, "Renamed Device", record.DisplayName)
				assert.Equal(t, hubID, record.Context.HubID)
			} else {
				assert.Equal(t, 1, saves)
				assert.Equal(t, 1, deletes)
				_, stored := h.store.Get(id)
				assert.False(t, stored)
				assert.Zero(t, h.engine.DriverCount())
			}

			// Every driver that is not kept live has been torn down.
			wired := h.wirer.drivers(d.SerialNumber)
			assert.Equal(t, int32(1), wired[0].teardowns.Load())
			if tt.saveErr != nil {
				require.Len(t, wired, 2)
				assert.Equal(t, int32(1), wired[1].teardowns.Load())
			}
		})
	}
}

func TestProcessDevice_CancelledContextKeepsPreExistingAccessory(t *testing.T) {
	h := newHarness(t)
	d := dev(3003)
	id := accessory.IdentityFor(d.SerialNumber)
	require.Equal(t, drivers.KindSuccess, h.engine.ProcessDevice(t.Context(), h.session, d).Kind)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	out := h.engine.ProcessDevice(ctx, h.session, d)
	assert.Equal(t, drivers.KindError, out.Kind)
	assert.Contains(t, out.Reason, context.Canceled.Error())

	_, registered := h.framework.Lookup(id)
	assert.True(t, registered)
	_, stored := h.store.Get(id)
	assert.True(t, stored)
	_, deletes := h.repo.counts(id)
	assert.Zero(t, deletes)

	// The next live pass wires it again.
	require.Equal(t, drivers.KindSuccess, h.engine.ProcessDevice(t.Context(), h.session, d).Kind)
	assert.Equal(t, 1, h.engine.DriverCount())
}

func TestProcessAllDevices_CancelledCallerLeavesSharedPassRunning(t *testing.T) {
	h := newHarness(t)
	h.session.SetDevices([]leap.Device{dev(1)})
	entered, release := h.wirer.hold()
	defer release()

	reqCtx, cancel := context.WithCancel(t.Context())
	reqErr := make(chan error, 1)
	go func() {
		_, err := h.engine.ProcessAllDevices(reqCtx, h.session)
		reqErr <- err
	}()
	<-entered

	joined := make(chan Report, 1)
	go func() {
		report, err := h.engine.ProcessAllDevices(t.Context(), h.session)
		assert.NoError(t, err)
		joined <- report
	}()

	cancel()
	assert.ErrorIs(t, <-reqErr, context.Canceled)
	release()

	report := <-joined
	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, h.wirer.cancelled.Load())
	_, registered := h.framework.Lookup(accessory.IdentityFor(1))
	assert.True(t, registered)
}

func TestProcessAllDevices_IsolatesPanics(t *testing.T) {
	h := newHarness(t)
	var devices []leap.Device
	for i := uint32(1); i <= 10; i++ {
		devices = append(devices, dev(i))
	}
	h.session.SetDevices(devices)
	h.wirer.panics[5] = true

	report, err := h.engine.ProcessAllDevices(t.Context(), h.session)
	require.NoError(t, err)

	require.Len(t, report.Results, 10)
	assert.Equal(t, 9, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, drivers.KindError, report.Results[4].Outcome.Kind)
	assert.Contains(t, report.Results[4].Outcome.Reason, "wiring exploded")
	assert.Len(t, report.Failures(), 1)
	assert.Equal(t, 9, h.engine.DriverCount())

	last, ok := h.engine.LastReport(hubID)
	require.True(t, ok)
	assert.Equal(t, report.Succeeded, last.Succeeded)
}

func TestProcessAllDevices_PublishesSummary(t *testing.T) {
	h := newHarness(t)
	h.session.SetDevices([]leap.Device{dev(1), dev(2), dev(3)})
	h.wirer.set(2, drivers.Skipped("native"))
	h.wirer.set(3, drivers.Errorf("broken"))

	_, err := h.engine.ProcessAllDevices(t.Context(), h.session)
	require.NoError(t, err)

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	require.Len(t, h.events.events, 1)
	ev := h.events.events[0]
	assert.Equal(t, events.TypeReconcileCompleted, ev.Type)
	assert.Equal(t, hubID, ev.HubID)
	assert.Equal(t, events.ReconcilePayload{Succeeded: 1, Skipped: 1, Failed: 1}, *ev.Reconcile)
}

func TestProcessAllDevices_RepeatedPassKeepsOneDriverPerAccessory(t *testing.T) {
	h := newHarness(t)
	h.session.SetDevices([]leap.Device{dev(7)})

	for range 3 {
		_, err := h.engine.ProcessAllDevices(t.Context(), h.session)
		require.NoError(t, err)
	}

	wired := h.wirer.drivers(7)
	require.Len(t, wired, 3)
	assert.Equal(t, int32(1), wired[0].teardowns.Load())
	assert.Equal(t, int32(1), wired[1].teardowns.Load())
	assert.Equal(t, int32(0), wired[2].teardowns.Load())
	assert.Equal(t, 1, h.engine.DriverCount())
}

func TestProcessAllDevices_DeviceListError(t *testing.T) {
	h := newHarness(t)
	h.session.DevicesErr = errors.New("session reset")

	_, err := h.engine.ProcessAllDevices(t.Context(), h.session)
	assert.ErrorIs(t, err, ErrDeviceList)
}

func TestReconcile_UnknownHub(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Reconcile(t.Context(), "NOPE")
	assert.ErrorIs(t, err, ErrUnknownHub)
}

func TestHandleDiscovery_ConnectsOnceAndReconciles(t *testing.T) {
	h := newHarness(t)
	h.session.SetDevices([]leap.Device{dev(1), dev(2)})

	ann := discovery.Announcement{HubID: "032e7e88", Address: "192.0.2.10:8081", Source: discovery.SourceMDNS}
	require.NoError(t, h.engine.HandleDiscovery(t.Context(), ann))
	require.NoError(t, h.engine.HandleDiscovery(t.Context(), ann))

	assert.True(t, h.broker.Has(hubID))
	assert.Equal(t, 1, h.connector.connectCalls())
	assert.Equal(t, 1, h.session.DevicesCalls())
	assert.Equal(t, 2, h.engine.DriverCount())
	assert.Equal(t, []string{hubID}, h.engine.Hubs())

	report, err := h.engine.Reconcile(t.Context(), hubID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
}

func TestHandleDiscovery_ConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.connector.err = errors.New("tls handshake failed")

	err := h.engine.HandleDiscovery(t.Context(), discovery.Announcement{HubID: hubID})
	require.Error(t, err)
	assert.False(t, h.broker.Has(hubID))
}

func TestDeviceHeard_DebouncesPass(t *testing.T) {
	h := newHarness(t)
	h.session.SetDevices([]leap.Device{dev(1)})
	require.NoError(t, h.engine.HandleDiscovery(t.Context(), discovery.Announcement{HubID: hubID}))
	require.Equal(t, 1, h.session.DevicesCalls())

	heard := leap.Message{BodyType: leap.BodyOneDeviceHeard, DeviceHeard: &leap.DeviceHeard{SerialNumber: 2}}
	h.session.PushUnsolicited(heard)
	h.clock.Advance(20 * time.Second)
	h.session.PushUnsolicited(heard)
	h.clock.Advance(20 * time.Second)
	assert.Equal(t, 1, h.session.DevicesCalls(), "pass ran before the debounce settled")

	h.session.SetDevices([]leap.Device{dev(1), dev(2)})
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, 2, h.session.DevicesCalls())
	assert.Equal(t, 2, h.engine.DriverCount())

	h.clock.Advance(time.Minute)
	assert.Equal(t, 2, h.session.DevicesCalls())
}

func TestRestore_WaitsForHub(t *testing.T) {
	h := newHarness(t)
	d := dev(42)
	require.NoError(t, h.store.Save(t.Context(), accessory.New(d, hubID)))
	shells := h.framework.Restore()
	require.Len(t, shells, 1)

	done := make(chan struct{})
	go func() {
		h.engine.Restore(t.Context(), shells)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.broker.Pending(hubID) == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, h.engine.DriverCount())

	h.broker.Add(hubID, h.session)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Restore did not return after the hub appeared")
	}

	assert.Equal(t, 1, h.engine.DriverCount())
	_, registered := h.framework.Lookup(accessory.IdentityFor(42))
	assert.True(t, registered)
}

func TestRestore_TimesOutWithoutHub(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(t.Context(), accessory.New(dev(43), hubID)))
	shells := h.framework.Restore()

	done := make(chan struct{})
	go func() {
		h.engine.Restore(t.Context(), shells)
		close(done)
	}()

	// Wait until the waiter's timeout timer is armed before advancing.
	require.Eventually(t, func() bool {
		return h.broker.Pending(hubID) == 1 && h.clock.Pending() == 1
	}, time.Second, time.Millisecond)
	h.clock.Advance(broker.DefaultTimeout)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Restore did not return after the broker timeout")
	}
	assert.Zero(t, h.engine.DriverCount())
	_, registered := h.framework.Lookup(accessory.IdentityFor(43))
	assert.True(t, registered, "restored accessory stays registered until its hub is reconciled")
}

func TestClose_TearsDownDrivers(t *testing.T) {
	h := newHarness(t)
	h.session.SetDevices([]leap.Device{dev(1), dev(2)})
	_, err := h.engine.ProcessAllDevices(t.Context(), h.session)
	require.NoError(t, err)

	h.engine.Close()

	assert.Zero(t, h.engine.DriverCount())
	assert.Equal(t, int32(1), h.wirer.drivers(1)[0].teardowns.Load())
	assert.Equal(t, int32(1), h.wirer.drivers(2)[0].teardowns.Load())
}
