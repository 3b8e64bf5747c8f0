package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/caseta-bridge/internal/clock"
)

// DefaultBufferSize is the queue depth used when Options.BufferSize is zero.
const DefaultBufferSize = 256

// Logger is the logging surface the bus needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Bus.
type Options struct {
	// BufferSize bounds the queue. Events published while it is full are
	// dropped and counted.
	BufferSize int

	// Clock stamps events published without a Timestamp. Defaults to the
	// wall clock.
	Clock clock.Clock

	Logger Logger
}

type namedSink struct {
	name string
	sink Sink
}

// Bus queues events and delivers them to every sink in publication order.
//
// Thread Safety:
//   - Publish and AddSink are safe for concurrent use.
//   - Sinks are called from a single goroutine, one event at a time.
type Bus struct {
	clock  clock.Clock
	logger Logger
	queue  chan Event

	mu      sync.RWMutex
	sinks   []namedSink
	started bool
	stopped bool
	done    chan struct{}

	dropped atomic.Uint64
}

// NewBus creates a bus. Call Start to begin delivery.
func NewBus(opts Options) *Bus {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Bus{
		clock:  opts.Clock,
		logger: opts.Logger,
		queue:  make(chan Event, opts.BufferSize),
		done:   make(chan struct{}),
	}
}

// AddSink registers a sink. Sinks added after Start see only later events.
func (b *Bus) AddSink(name string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: sink})
}

// Publish queues ev without blocking. A zero Timestamp is filled from the
// bus clock. Events published after Stop, or while the queue is full, are
// dropped.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.clock.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return
	}

	select {
	case b.queue <- ev:
	default:
		n := b.dropped.Add(1)
		b.logger.Warn("event queue full, dropping event", "type", ev.Type, "hub_id", ev.HubID, "dropped", n)
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Start launches the delivery goroutine. Calling it twice is a no-op.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrBusStopped
	}
	if b.started {
		return nil
	}
	b.started = true
	go b.run()
	return nil
}

// Stop closes the queue and waits until every queued event has been
// delivered. Safe to call more than once.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.stopped = true
	started := b.started
	close(b.queue)
	b.mu.Unlock()

	if !started {
		close(b.done)
		return
	}
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for ev := range b.queue {
		b.mu.RLock()
		sinks := make([]namedSink, len(b.sinks))
		copy(sinks, b.sinks)
		b.mu.RUnlock()

		for _, s := range sinks {
			if err := b.deliver(s.sink, ev); err != nil {
				b.logger.Warn("event delivery failed", "sink", s.name, "type", ev.Type, "error", err)
			}
		}
	}
}

func (b *Bus) deliver(sink Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Deliver(ev)
}
