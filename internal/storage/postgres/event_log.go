package postgres

import (
	"context"
	"fmt"
	"time"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage"
)

// EventLog implements storage.EventLog using PostgreSQL.
// Rows older than the newest max are pruned on append.
type EventLog struct {
	pool *Pool
	max  int
}

// NewEventLog creates an EventLog keeping at most capacity rows (0 = unbounded).
func NewEventLog(pool *Pool, capacity int) *EventLog {
	return &EventLog{pool: pool, max: capacity}
}

// Compile-time interface check.
var _ storage.EventLog = (*EventLog)(nil)

// Append inserts an event.
func (l *EventLog) Append(ctx context.Context, e domain.Event) error {
	start := time.Now()
	err := l.append(ctx, e)
	observe("event_append", start, err)
	return err
}

func (l *EventLog) append(ctx context.Context, e domain.Event) error {
	if e.Type == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO event_log (ts, event_type, ticker, kind, pnl, fields)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := l.pool.QueryRow(ctx, query,
		e.Time, e.Type, e.Ticker, string(e.Kind), int64(e.PnL), e.Fields,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if l.max > 0 && id > int64(l.max) {
		if _, err := l.pool.Exec(ctx, `DELETE FROM event_log WHERE id <= $1`, id-int64(l.max)); err != nil {
			return fmt.Errorf("prune event log: %w", err)
		}
	}
	return nil
}

// Recent returns up to limit most recent events, oldest first.
func (l *EventLog) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = l.max
	}
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT ts, event_type, ticker, kind, pnl, fields FROM (
			SELECT id, ts, event_type, ticker, kind, pnl, fields
			FROM event_log
			ORDER BY id DESC
			LIMIT $1
		) recent
		ORDER BY id ASC
	`

	rows, err := l.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e    domain.Event
			kind string
			pnl  int64
		)
		if err := rows.Scan(&e.Time, &e.Type, &e.Ticker, &kind, &pnl, &e.Fields); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Time = e.Time.UTC()
		e.Kind = domain.SignalKind(kind)
		e.PnL = domain.Cents(pnl)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
