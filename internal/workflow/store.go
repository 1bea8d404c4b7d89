package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"parley/internal/domain"
)

var (
	// ErrNotFound is returned for unknown thread ids.
	ErrNotFound = errors.New("workflow thread not found")
	// ErrDuplicateThread is returned when creating a thread whose id exists.
	ErrDuplicateThread = errors.New("workflow thread already exists")
)

// Store is the keyed registry of active workflow threads. All access goes
// through the store's lock so that a mutation and the regeneration that
// follows it appear atomic to concurrent requests.
type Store struct {
	mu      sync.Mutex
	threads map[string]*Thread
	order   []string
	Now     func() time.Time
}

// NewStore returns an empty thread store.
func NewStore() *Store {
	return &Store{threads: make(map[string]*Thread), Now: time.Now}
}

// Create registers a new thread. Reusing an existing id is an error rather
// than a silent overwrite.
func (s *Store) Create(opts ThreadOptions) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[opts.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateThread, opts.ID)
	}
	t := NewThread(opts)
	if s.Now != nil {
		t.Now = s.Now
		now := t.timestamp()
		t.CreatedAt = now
		t.LastUpdated = now
	}
	s.threads[opts.ID] = t
	s.order = append(s.order, opts.ID)
	return t, nil
}

// WithThread runs fn with exclusive access to the thread. Mutations plus the
// regeneration fn performs are observed atomically by other callers.
func (s *Store) WithThread(id string, fn func(*Thread) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fn(t)
}

// Snapshot returns a consistent copy of the thread state.
func (s *Store) Snapshot(id string) (domain.ThreadSnapshot, error) {
	var snap domain.ThreadSnapshot
	err := s.WithThread(id, func(t *Thread) error {
		snap = t.Snapshot()
		return nil
	})
	return snap, err
}

// Delete removes the thread, reporting whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; !ok {
		return false
	}
	delete(s.threads, id)
	for i, tid := range s.order {
		if tid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns summaries of all threads in creation order.
func (s *Store) List() []domain.ThreadSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ThreadSummary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.threads[id].Summary())
	}
	return out
}

// Len returns the number of active threads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}
