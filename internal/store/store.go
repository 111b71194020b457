// Package store holds the single live chart document of an editing session.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
	"github.com/bizmatters/agent-builder/chart-studio/internal/guard"
	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

var (
	// ErrAbsent is returned when no document is loaded.
	ErrAbsent = guard.ErrAbsent
	// ErrVersionConflict is returned by ReplaceIfVersion when the live
	// document moved on since the caller read it.
	ErrVersionConflict = errors.New("chart version conflict")
)

// Event sources.
const (
	SourceLoad   = "load"
	SourceDirect = "direct"
	SourceAI     = "ai"
	SourceReset  = "reset"
)

// Store is the live document container. Documents are never mutated once
// stored; every change installs a new *ChartSpec. Subscribers are notified
// synchronously, in mutation order, while the store is locked, so they must
// not call back into the Store.
type Store struct {
	mu     sync.Mutex
	latest guard.Cell[chartspec.ChartSpec]

	subs   map[int]func(models.ChartEvent)
	nextID int
}

// New returns an empty store.
func New() *Store {
	return &Store{subs: make(map[int]func(models.ChartEvent))}
}

// Get returns the live document, or nil. The result must be treated as
// read-only.
func (s *Store) Get() *chartspec.ChartSpec {
	return s.latest.Load()
}

// Latest exposes the cell that always holds the live document, for code that
// must re-read it after a suspending call.
func (s *Store) Latest() *guard.Cell[chartspec.ChartSpec] {
	return &s.latest
}

// Load validates spec and makes it the live document, keeping its version.
// The store takes ownership of spec.
func (s *Store) Load(spec *chartspec.ChartSpec) error {
	if err := chartspec.Validate(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.install(spec, models.ChartEventLoaded, SourceLoad)
	return nil
}

// Replace installs spec unconditionally. When a document is live the new
// version is one past the live one. The store takes ownership of spec.
func (s *Store) Replace(spec *chartspec.ChartSpec, source string) (*chartspec.ChartSpec, error) {
	if spec == nil {
		return nil, fmt.Errorf("replace chart: %w", ErrAbsent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.latest.Load(); cur != nil {
		spec.Version = cur.Version + 1
	}
	if err := chartspec.Validate(spec); err != nil {
		return nil, err
	}

	s.install(spec, models.ChartEventReplaced, source)
	return spec, nil
}

// ReplaceIfVersion installs next only if the live version is still expected.
// next must already carry its new version.
func (s *Store) ReplaceIfVersion(expected int64, next *chartspec.ChartSpec, source string) error {
	if next == nil {
		return fmt.Errorf("replace chart: %w", ErrAbsent)
	}
	if next.Version <= expected {
		return fmt.Errorf("replace chart: new version %d must exceed %d", next.Version, expected)
	}
	if err := chartspec.Validate(next); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.latest.Load()
	if cur == nil {
		return ErrAbsent
	}
	if cur.Version != expected {
		return fmt.Errorf("%w: expected %d, live %d", ErrVersionConflict, expected, cur.Version)
	}

	s.install(next, models.ChartEventReplaced, source)
	return nil
}

// Edit applies fn to a copy of the live document, validates the result and
// installs it with the next version.
func (s *Store) Edit(fn func(spec *chartspec.ChartSpec) error, source string) (*chartspec.ChartSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.latest.Load()
	if cur == nil {
		return nil, ErrAbsent
	}

	next, err := cur.Clone()
	if err != nil {
		return nil, err
	}
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	if err := chartspec.Validate(next); err != nil {
		return nil, err
	}

	s.install(next, models.ChartEventReplaced, source)
	return next, nil
}

// Clear drops the live document. It reports whether one was loaded.
func (s *Store) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.latest.Load()
	if cur == nil {
		return false
	}
	s.latest.Store(nil)
	s.notify(models.ChartEvent{
		Type:      models.ChartEventCleared,
		Version:   cur.Version,
		Source:    SourceReset,
		Timestamp: time.Now().UTC(),
	})
	return true
}

// Subscribe registers fn for change events and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(models.ChartEvent)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// install must be called with mu held.
func (s *Store) install(spec *chartspec.ChartSpec, typ models.ChartEventType, source string) {
	s.latest.Store(spec)
	s.notify(models.ChartEvent{
		Type:      typ,
		Version:   spec.Version,
		Source:    source,
		Spec:      spec,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Store) notify(ev models.ChartEvent) {
	for _, fn := range s.subs {
		fn(ev)
	}
}
