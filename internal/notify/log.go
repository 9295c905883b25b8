package notify

import (
	"context"

	"github.com/rs/zerolog"

	"kalshi-trader/internal/domain"
)

// Log writes notifications to a zerolog logger.
type Log struct {
	log zerolog.Logger
}

// NewLog creates a logging notifier.
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log.With().Str("component", "notify").Logger()}
}

// Startup implements Notifier.
func (l *Log) Startup(_ context.Context, s Startup) error {
	l.emit(startupMessage(s))
	return nil
}

// Entry implements Notifier.
func (l *Log) Entry(_ context.Context, sig domain.Signal, exec *domain.Execution) error {
	l.emit(entryMessage(sig, exec))
	return nil
}

// Skipped implements Notifier.
func (l *Log) Skipped(_ context.Context, sig domain.Signal, reason string) error {
	l.emit(skippedMessage(sig, reason))
	return nil
}

// Resting implements Notifier.
func (l *Log) Resting(_ context.Context, sig domain.Signal, order RestingOrder) error {
	l.emit(restingMessage(sig, order))
	return nil
}

// Closed implements Notifier.
func (l *Log) Closed(_ context.Context, pos domain.Position) error {
	l.emit(closedMessage(pos))
	return nil
}

func (l *Log) emit(m Message) {
	l.log.Info().Str("title", m.Title).Msg(m.Body)
}

var _ Notifier = (*Log)(nil)
