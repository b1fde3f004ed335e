package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	tasks  map[string]*Task
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory task store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
}

// Create persists a new pending task.
func (s *MemoryStore) Create(ctx context.Context, in Input) (*Task, error) {
	t, err := newTask(uuid.NewString(), in, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	s.tasks[t.ID] = t
	return t.Clone(), nil
}

// Update applies u to the task with the given id.
func (s *MemoryStore) Update(ctx context.Context, id string, u Update) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	current, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := current.Clone()
	if err := applyUpdate(next, u, s.now()); err != nil {
		return nil, err
	}
	s.tasks[id] = next
	return next.Clone(), nil
}

// Get returns a copy of the task.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// List returns tasks matching the filter.
func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	all := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		all = append(all, t.Clone())
	}
	return selectTasks(all, f), nil
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
