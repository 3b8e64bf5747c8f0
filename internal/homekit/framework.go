package homekit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	hapaccessory "github.com/brutella/hap/accessory"

	"github.com/nerrad567/caseta-bridge/internal/accessory"
)

// Logger is the logging interface used by the framework and server.
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

// Framework tracks the registered accessory set and persists it.
//
// All public methods are thread-safe.
type Framework struct {
	store  *accessory.Store
	logger Logger

	mu         sync.Mutex
	registered map[string]*Shell
	onChange   func()
}

// NewFramework creates a Framework persisting through store. A nil logger
// discards output.
func NewFramework(store *accessory.Store, logger Logger) *Framework {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Framework{
		store:      store,
		logger:     logger,
		registered: make(map[string]*Shell),
	}
}

// SetOnChange sets the callback invoked when the served accessory set or
// its layout changes.
func (f *Framework) SetOnChange(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

func (f *Framework) changed() {
	f.mu.Lock()
	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Restore creates a registered shell for every persisted record. Call it
// once after the store is loaded and before the server starts.
func (f *Framework) Restore() []*Shell {
	records := f.store.List()
	shells := make([]*Shell, 0, len(records))

	f.mu.Lock()
	for _, r := range records {
		shell := newShell(r, false)
		f.registered[r.ID] = shell
		shells = append(shells, shell)
	}
	f.mu.Unlock()

	f.logger.Info("restored accessories", "count", len(shells))
	return shells
}

// Lookup returns the registered shell for id.
func (f *Framework) Lookup(id string) (*Shell, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.registered[id]
	return s, ok
}

// Create returns a new, unregistered shell.
func (f *Framework) Create(id, displayName string) *Shell {
	return newShell(&accessory.Accessory{ID: id, DisplayName: displayName}, true)
}

// Register persists the shell and adds it to the served set.
//
// Returns:
//   - error: If the record cannot be persisted; the shell is not registered
func (f *Framework) Register(ctx context.Context, shell *Shell) error {
	record := shell.Record()
	if err := f.store.Save(ctx, record); err != nil {
		return fmt.Errorf("registering accessory %s: %w", record.ID, err)
	}
	shell.markRegistered()
	shell.takeChanged()

	f.mu.Lock()
	f.registered[record.ID] = shell
	f.mu.Unlock()

	f.logger.Info("accessory registered", "accessory_id", record.ID, "name", record.DisplayName)
	f.changed()
	return nil
}

// Refresh persists the context of a registered shell. A layout change since
// the last Register or Refresh triggers the change callback.
func (f *Framework) Refresh(ctx context.Context, shell *Shell) error {
	record := shell.Record()

	f.mu.Lock()
	current, ok := f.registered[record.ID]
	f.mu.Unlock()
	if !ok || current != shell {
		return fmt.Errorf("%w: %s", ErrUnknownShell, record.ID)
	}

	if err := f.store.Save(ctx, record); err != nil {
		return fmt.Errorf("refreshing accessory %s: %w", record.ID, err)
	}
	if shell.takeChanged() {
		f.logger.Debug("accessory layout changed", "accessory_id", record.ID)
		f.changed()
	}
	return nil
}

// Unregister removes an accessory from the store and then the served set.
// Unregistering an unknown ID only clears the store.
//
// Returns:
//   - error: If the record cannot be deleted; the accessory stays served
func (f *Framework) Unregister(ctx context.Context, id string) error {
	if err := f.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("unregistering accessory %s: %w", id, err)
	}

	f.mu.Lock()
	_, served := f.registered[id]
	delete(f.registered, id)
	f.mu.Unlock()

	if served {
		f.logger.Info("accessory unregistered", "accessory_id", id)
		f.changed()
	}
	return nil
}

// Shells returns the registered shells ordered by accessory ID.
func (f *Framework) Shells() []*Shell {
	f.mu.Lock()
	out := make([]*Shell, 0, len(f.registered))
	for _, s := range f.registered {
		out = append(out, s)
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].A.Id < out[j].A.Id })
	return out
}

// Accessories returns the hap accessories to serve, ordered by accessory ID.
func (f *Framework) Accessories() []*hapaccessory.A {
	shells := f.Shells()
	out := make([]*hapaccessory.A, len(shells))
	for i, s := range shells {
		out[i] = s.A
	}
	return out
}
