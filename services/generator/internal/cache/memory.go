package cache

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps entries in process memory. Used for tests and dry runs.
type MemoryStore struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{objs: make(map[string][]byte)} }

func (s *MemoryStore) Driver() Driver { return DriverMemory }

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objs[key]
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	b, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	b := make([]byte, len(value))
	copy(b, value)
	s.objs[key] = b
	return nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objs)
}
