package memory

import (
	"context"
	"sync"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu    sync.RWMutex
	book  domain.PositionBook
	saves int
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Load returns a copy of the stored book.
func (s *PositionStore) Load(_ context.Context) (*domain.PositionBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyBook(&s.book), nil
}

// Save replaces the stored book with a copy of book.
func (s *PositionStore) Save(_ context.Context, book *domain.PositionBook) error {
	if book == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.book = *copyBook(book)
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *PositionStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func copyBook(b *domain.PositionBook) *domain.PositionBook {
	out := &domain.PositionBook{
		Open:   make([]domain.Position, len(b.Open)),
		Closed: make([]domain.Position, len(b.Closed)),
	}
	copy(out.Open, b.Open)
	copy(out.Closed, b.Closed)
	return out
}
