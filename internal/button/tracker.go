package button

import (
	"sync"
	"time"

	"github.com/nerrad567/caseta-bridge/internal/clock"
	"github.com/nerrad567/caseta-bridge/internal/leap"
)

// State is the classifier state of one button.
type State int

const (
	Idle State = iota
	Down
	Up
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Down:
		return "down"
	case Up:
		return "up"
	}
	return "unknown"
}

// Gesture is a classified button gesture.
type Gesture string

const (
	Single Gesture = "single"
	Double Gesture = "double"
	Long   Gesture = "long"
)

// Logger is the logging interface used by the tracker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Tracker.
type Options struct {
	// Href identifies the button in logs.
	Href string

	Timing Timing

	// OnGesture is invoked once per completed gesture. Required.
	OnGesture func(Gesture)

	// Clock defaults to clock.Real().
	Clock clock.Clock

	Logger Logger
}

// Tracker is the gesture classifier for one button.
type Tracker struct {
	href      string
	timing    Timing
	onGesture func(Gesture)
	clock     clock.Clock
	logger    Logger

	mu      sync.Mutex
	state   State
	pending bool
	timer   clock.Timer
	gen     uint64
}

// NewTracker creates a Tracker in the Idle state.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		href:      opts.Href,
		timing:    opts.Timing,
		onGesture: opts.OnGesture,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if t.onGesture == nil {
		t.onGesture = func(Gesture) {}
	}
	if t.clock == nil {
		t.clock = clock.Real()
	}
	if t.logger == nil {
		t.logger = noopLogger{}
	}
	return t
}

// State returns the current classifier state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Pending reports whether a gesture is waiting on its dwell timer.
func (t *Tracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Reset returns the tracker to Idle and cancels any pending timer.
// It is idempotent.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.resetLocked()
	t.mu.Unlock()
}

// resetLocked bumps the generation so an already-fired timer callback that
// is blocked on the lock becomes a no-op.
func (t *Tracker) resetLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.state = Idle
	t.pending = false
}

// armLocked schedules a timer that completes gesture g if the tracker is
// still in state want and no transition has happened since it was armed.
func (t *Tracker) armLocked(d time.Duration, want State, g Gesture) {
	gen := t.gen
	t.timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if gen != t.gen || t.state != want {
			t.mu.Unlock()
			return
		}
		t.resetLocked()
		t.mu.Unlock()
		t.emit(g)
	})
}

// Update feeds one raw edge into the state machine.
func (t *Tracker) Update(edge leap.ButtonEventType) {
	if edge != leap.ButtonPress && edge != leap.ButtonRelease {
		t.logger.Debug("ignoring button edge", "button", t.href, "edge", edge)
		return
	}

	t.mu.Lock()
	gesture, fire := t.updateLocked(edge)
	t.mu.Unlock()

	if fire {
		t.emit(gesture)
	}
}

func (t *Tracker) updateLocked(edge leap.ButtonEventType) (Gesture, bool) {
	t.logger.Debug("button edge", "button", t.href, "edge", edge, "state", t.state)

	switch t.state {
	case Idle:
		if edge != leap.ButtonPress {
			return "", false
		}
		t.state = Down
		if t.timing.LongDisabled() {
			t.logger.Debug("long press disabled", "button", t.href)
		} else {
			t.gen++
			t.armLocked(t.timing.LongPress, Down, Long)
		}

	case Down:
		if edge != leap.ButtonRelease {
			t.invalidLocked(edge)
			return "", false
		}
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.gen++
		t.state = Up
		t.pending = true
		t.armLocked(t.timing.DoubleDwell, Up, Single)

	case Up:
		if edge != leap.ButtonPress || !t.pending {
			t.invalidLocked(edge)
			return "", false
		}
		t.resetLocked()
		if t.timing.DoubleDisabled() {
			t.logger.Debug("double press disabled", "button", t.href)
			return "", false
		}
		return Double, true
	}
	return "", false
}

func (t *Tracker) invalidLocked(edge leap.ButtonEventType) {
	t.logger.Warn("invalid button edge for state, resetting",
		"button", t.href,
		"edge", edge,
		"state", t.state,
	)
	t.resetLocked()
}

func (t *Tracker) emit(g Gesture) {
	t.logger.Info("button gesture", "button", t.href, "gesture", g)
	t.onGesture(g)
}
