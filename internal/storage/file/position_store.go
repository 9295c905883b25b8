package file

import (
	"context"
	"sync"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage"
)

// PositionStore keeps the position book in a single JSON file.
type PositionStore struct {
	mu   sync.Mutex
	path string
}

// NewPositionStore creates a store backed by path.
func NewPositionStore(path string) *PositionStore {
	return &PositionStore{path: path}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Load reads the book. A missing file yields an empty book.
func (s *PositionStore) Load(_ context.Context) (*domain.PositionBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book := &domain.PositionBook{}
	if _, err := readJSON(s.path, book); err != nil {
		return nil, err
	}
	return book, nil
}

// Save atomically replaces the file with book.
func (s *PositionStore) Save(_ context.Context, book *domain.PositionBook) error {
	if book == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := *book
	if out.Open == nil {
		out.Open = []domain.Position{}
	}
	if out.Closed == nil {
		out.Closed = []domain.Position{}
	}
	return writeJSON(s.path, &out)
}
