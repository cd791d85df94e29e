package assignment

import (
	"context"
	"strings"
	"sync"

	"lead_automation_backend/platform/keylock"
)

// MemoryStore keeps cursors in process memory. Suitable for tests and single
// instance deployments where fairness may reset on restart.
type MemoryStore struct {
	locks   *keylock.Locker
	mu      sync.RWMutex
	cursors map[string]Cursor
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:   keylock.New(),
		cursors: make(map[string]Cursor),
	}
}

func (s *MemoryStore) Advance(ctx context.Context, key string, fn AdvanceFunc) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return Cursor{}, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	current, _, _ := s.Get(ctx, key)
	next, err := fn(current.clone())
	if err != nil {
		return Cursor{}, err
	}
	next.Key = key

	s.mu.Lock()
	s.cursors[key] = next.clone()
	s.mu.Unlock()
	return next, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Cursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[key]
	if !ok {
		return NewCursor(key), false, nil
	}
	return c.clone(), true, nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.cursors {
		if strings.HasPrefix(key, prefix) {
			delete(s.cursors, key)
		}
	}
	return nil
}
