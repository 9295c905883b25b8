package file

import (
	"context"
	"sync"
	"time"

	"kalshi-trader/internal/storage"
)

// CooldownStore buffers cooldown timestamps in memory and writes the whole
// map on Flush.
type CooldownStore struct {
	mu    sync.RWMutex
	path  string
	data  map[string]time.Time
	dirty bool
}

// NewCooldownStore opens (or creates on first flush) the ledger at path.
func NewCooldownStore(path string) (*CooldownStore, error) {
	s := &CooldownStore{
		path: path,
		data: make(map[string]time.Time),
	}
	if _, err := readJSON(path, &s.data); err != nil {
		return nil, err
	}
	if s.data == nil {
		s.data = make(map[string]time.Time)
	}
	return s, nil
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

// Set records the timestamp for key in memory.
func (s *CooldownStore) Set(_ context.Context, key string, at time.Time) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = at.UTC()
	s.dirty = true
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

// Flush writes the ledger if it changed since the last flush.
func (s *CooldownStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if err := writeJSON(s.path, s.data); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
