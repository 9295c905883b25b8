package memory

import (
	"context"
	"sync"
	"time"

	"kalshi-trader/internal/storage"
)

// CooldownStore is an in-memory implementation of storage.CooldownStore.
type CooldownStore struct {
	mu   sync.RWMutex
	data map[string]time.Time
}

// NewCooldownStore creates a new in-memory cooldown store.
func NewCooldownStore() *CooldownStore {
	return &CooldownStore{
		data: make(map[string]time.Time),
	}
}

// Compile-time interface check.
var _ storage.CooldownStore = (*CooldownStore)(nil)

// Get returns the timestamp for key. Returns ErrNotFound if absent.
func (s *CooldownStore) Get(_ context.Context, key string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.data[key]
	if !ok {
		return time.Time{}, storage.ErrNotFound
	}
	return at, nil
}

// Set records the timestamp for key.
func (s *CooldownStore) Set(_ context.Context, key string, at time.Time) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = at
	return nil
}

// All returns a copy of every stored key.
func (s *CooldownStore) All(_ context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

// Flush is a no-op for the in-memory store.
func (s *CooldownStore) Flush(_ context.Context) error {
	return nil
}
