// Package storage defines the persistence interfaces for positions, events and
// cooldowns. Backends live in the memory, file, postgres and clickhouse subpackages.
package storage

import (
	"context"
	"time"

	"kalshi-trader/internal/domain"
)

// PositionStore persists the open/closed position book.
// Save replaces the whole book so a crash never leaves a partially written set.
type PositionStore interface {
	// Load returns the last saved book, or an empty book if nothing was saved.
	Load(ctx context.Context) (*domain.PositionBook, error)

	// Save atomically replaces the stored book.
	Save(ctx context.Context, book *domain.PositionBook) error
}

// CooldownStore is a keyed store of last-signaled timestamps.
// Each detector owns one store (one namespace).
type CooldownStore interface {
	// Get returns the timestamp for key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) (time.Time, error)

	// Set records the timestamp for key. Durable only after Flush for buffered backends.
	Set(ctx context.Context, key string, at time.Time) error

	// All returns every stored key (for warming the in-memory ledger).
	All(ctx context.Context) (map[string]time.Time, error)

	// Flush makes pending writes durable.
	Flush(ctx context.Context) error
}

// EventLog is a bounded append-only trade/event log used for post-hoc analysis.
type EventLog interface {
	// Append adds an event.
	Append(ctx context.Context, e domain.Event) error

	// Recent returns up to limit most recent events, oldest first.
	Recent(ctx context.Context, limit int) ([]domain.Event, error)
}
