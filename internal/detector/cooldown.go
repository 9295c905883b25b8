package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kalshi-trader/internal/storage"
)

// Ledger tracks when each key (ticker or event) was last signaled.
// Writes go through to a CooldownStore; persistence failures are logged, never returned.
type Ledger struct {
	store  storage.CooldownStore
	window time.Duration
	seen   map[string]time.Time
	log    zerolog.Logger
}

// NewLedger creates a ledger and warms it from store.
func NewLedger(ctx context.Context, store storage.CooldownStore, window time.Duration, log zerolog.Logger) (*Ledger, error) {
	seen, err := store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cooldown ledger: %w", err)
	}
	if seen == nil {
		seen = make(map[string]time.Time)
	}
	return &Ledger{
		store:  store,
		window: window,
		seen:   seen,
		log:    log,
	}, nil
}

// Window returns the cooldown duration.
func (l *Ledger) Window() time.Duration {
	return l.window
}

// Active reports whether key was signaled less than the window ago.
func (l *Ledger) Active(key string, now time.Time) bool {
	last, ok := l.seen[key]
	if !ok {
		return false
	}
	return now.Sub(last) < l.window
}

// Last returns when key was last recorded.
func (l *Ledger) Last(key string) (time.Time, bool) {
	at, ok := l.seen[key]
	return at, ok
}

// Record marks key as signaled at now and flushes.
func (l *Ledger) Record(ctx context.Context, key string, now time.Time) {
	l.seen[key] = now
	if err := l.store.Set(ctx, key, now); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("cooldown write failed")
		return
	}
	l.flush(ctx)
}

// Seed records keys that are not already known, with one flush.
// Returns how many keys were added.
func (l *Ledger) Seed(ctx context.Context, keys []string, now time.Time) int {
	added := 0
	for _, k := range keys {
		if _, ok := l.seen[k]; ok || k == "" {
			continue
		}
		l.seen[k] = now
		if err := l.store.Set(ctx, k, now); err != nil {
			l.log.Warn().Err(err).Str("key", k).Msg("cooldown seed failed")
			continue
		}
		added++
	}
	if added > 0 {
		l.flush(ctx)
	}
	return added
}

func (l *Ledger) flush(ctx context.Context) {
	if err := l.store.Flush(ctx); err != nil {
		l.log.Warn().Err(err).Msg("cooldown flush failed")
	}
}
