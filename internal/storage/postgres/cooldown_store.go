package postgres

import (
	"context"
	"fmt"
	"time"

	"kalshi-trader/internal/storage"
)

// CooldownStore implements storage.CooldownStore using PostgreSQL.
// Rows are scoped by namespace so all detectors share one table.
type CooldownStore struct {
	pool      *Pool
	namespace string
}

// NewCooldownStore creates a CooldownStore for one detector namespace.
func NewCooldownStore(pool *Pool, namespace string) *CooldownStore {
	return &CooldownStore{pool: pool, namespace: namespace}
}

// Compile-time interface check.
var _ storage.CooldownStore = (*CooldownStore)(nil)

// Get returns the timestamp for key. Returns ErrNotFound if absent.
func (s *CooldownStore) Get(ctx context.Context, key string) (time.Time, error) {
	query := `SELECT signaled_at FROM cooldowns WHERE namespace = $1 AND key = $2`

	var at time.Time
	err := s.pool.QueryRow(ctx, query, s.namespace, key).Scan(&at)
	if err != nil {
		if isNotFoundError(err) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("get cooldown: %w", err)
	}
	return at.UTC(), nil
}

// Set upserts the timestamp for key. Writes are durable immediately.
func (s *CooldownStore) Set(ctx context.Context, key string, at time.Time) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO cooldowns (namespace, key, signaled_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO UPDATE SET signaled_at = EXCLUDED.signaled_at
	`
	if _, err := s.pool.Exec(ctx, query, s.namespace, key, at); err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// All returns every key in the namespace.
func (s *CooldownStore) All(ctx context.Context) (map[string]time.Time, error) {
	query := `SELECT key, signaled_at FROM cooldowns WHERE namespace = $1`

	rows, err := s.pool.Query(ctx, query, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("query cooldowns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			key string
			at  time.Time
		)
		if err := rows.Scan(&key, &at); err != nil {
			return nil, fmt.Errorf("scan cooldown: %w", err)
		}
		out[key] = at.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cooldowns: %w", err)
	}
	return out, nil
}

// Flush is a no-op: Set writes through.
func (s *CooldownStore) Flush(_ context.Context) error {
	return nil
}
