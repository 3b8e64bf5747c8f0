package accessory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Store caches every persisted accessory in memory over a Repository.
//
// The cache is populated by Load and kept in sync by Save and Delete.
// Returned records are copies; callers may modify them freely.
//
// All public methods are thread-safe.
type Store struct {
	repo   Repository
	logger Logger

	mu    sync.RWMutex
	cache map[string]*Accessory
}

// NewStore creates a Store backed by repo.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:   repo,
		logger: noopLogger{},
		cache:  make(map[string]*Accessory),
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load replaces the cache with every record in the repository.
func (s *Store) Load(ctx context.Context) error {
	all, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading accessories: %w", err)
	}

	cache := make(map[string]*Accessory, len(all))
	for _, a := range all {
		cache[a.ID] = a
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()

	s.logger.Info("accessory cache loaded", "count", len(all))
	return nil
}

// Get returns a copy of the cached record for id.
func (s *Store) Get(id string) (*Accessory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.cache[id]
	return a.Clone(), ok
}

// List returns copies of all records ordered by display name.
func (s *Store) List() []*Accessory {
	return s.filter(func(*Accessory) bool { return true })
}

// ListByHub returns copies of the records owned by hubID.
func (s *Store) ListByHub(hubID string) []*Accessory {
	return s.filter(func(a *Accessory) bool { return a.Context.HubID == hubID })
}

func (s *Store) filter(keep func(*Accessory) bool) []*Accessory {
	s.mu.RLock()
	out := make([]*Accessory, 0, len(s.cache))
	for _, a := range s.cache {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].ID < out[j].ID
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// Count returns the number of cached records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Save persists a and updates the cache. Timestamps set by the repository
// are written back to a.
func (s *Store) Save(ctx context.Context, a *Accessory) error {
	if err := s.repo.Save(ctx, a); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[a.ID] = a.Clone()
	s.mu.Unlock()

	s.logger.Debug("accessory saved", "accessory_id", a.ID, "name", a.DisplayName)
	return nil
}

// Delete removes the record for id. Deleting an unknown ID is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	s.logger.Debug("accessory deleted", "accessory_id", id)
	return nil
}
