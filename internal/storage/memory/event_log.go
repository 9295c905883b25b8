package memory

import (
	"context"
	"sync"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage"
)

// EventLog is a bounded in-memory implementation of storage.EventLog.
type EventLog struct {
	mu     sync.RWMutex
	events []domain.Event
	max    int
}

// NewEventLog creates an event log keeping at most max events (0 = unbounded).
func NewEventLog(capacity int) *EventLog {
	return &EventLog{max: capacity}
}

// Compile-time interface check.
var _ storage.EventLog = (*EventLog)(nil)

// Append adds an event, dropping the oldest when over capacity.
func (l *EventLog) Append(_ context.Context, e domain.Event) error {
	if e.Type == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	if l.max > 0 && len(l.events) > l.max {
		l.events = append([]domain.Event(nil), l.events[len(l.events)-l.max:]...)
	}
	return nil
}

// Recent returns up to limit most recent events, oldest first.
func (l *EventLog) Recent(_ context.Context, limit int) ([]domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if limit > 0 && len(l.events) > limit {
		start = len(l.events) - limit
	}
	out := make([]domain.Event, len(l.events)-start)
	copy(out, l.events[start:])
	return out, nil
}

// ByType returns all retained events of the given type.
func (l *EventLog) ByType(eventType string) []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
