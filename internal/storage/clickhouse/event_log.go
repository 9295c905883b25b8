package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/observability"
	"kalshi-trader/internal/storage"
)

// EventLog implements storage.EventLog on a ClickHouse MergeTree table.
// Retention is bounded by the table TTL rather than by row count.
type EventLog struct {
	conn *Conn
}

// NewEventLog creates a new EventLog.
func NewEventLog(conn *Conn) *EventLog {
	return &EventLog{conn: conn}
}

// Compile-time interface check.
var _ storage.EventLog = (*EventLog)(nil)

// Append inserts one event.
func (l *EventLog) Append(ctx context.Context, e domain.Event) error {
	if e.Type == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	err := l.append(ctx, e)
	observability.RecordDBQuery("clickhouse", "event_append", time.Since(start).Seconds(), err)
	return err
}

func (l *EventLog) append(ctx context.Context, e domain.Event) error {

	fields := "{}"
	if len(e.Fields) > 0 {
		data, err := json.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("marshal event fields: %w", err)
		}
		fields = string(data)
	}

	batch, err := l.conn.PrepareBatch(ctx, `
		INSERT INTO event_log (ts, event_type, ticker, kind, pnl, fields)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	if err := batch.Append(e.Time.UTC(), e.Type, e.Ticker, string(e.Kind), int64(e.PnL), fields); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent events, oldest first.
func (l *EventLog) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := l.conn.Query(ctx, `
		SELECT ts, event_type, ticker, kind, pnl, fields
		FROM event_log
		ORDER BY ts DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			ts              time.Time
			typ, tick, kind string
			pnl             int64
			fields          string
		)
		if err := rows.Scan(&ts, &typ, &tick, &kind, &pnl, &fields); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e := domain.Event{
			Time:   ts.UTC(),
			Type:   typ,
			Ticker: tick,
			Kind:   domain.SignalKind(kind),
			PnL:    domain.Cents(pnl),
		}
		if fields != "" && fields != "{}" {
			if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
				return nil, fmt.Errorf("decode event fields: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}
