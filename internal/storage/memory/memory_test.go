package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage"
)

func TestPositionStore_SaveLoadCopies(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()

	book, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, book.Open)
	assert.Empty(t, book.Closed)

	in := &domain.PositionBook{Open: []domain.Position{{ID: "p1", Ticker: "T1", Status: domain.PositionOpen}}}
	require.NoError(t, store.Save(ctx, in))

	// Mutating the caller's book must not leak into the store.
	in.Open[0].Ticker = "MUTATED"

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Open, 1)
	assert.Equal(t, "T1", got.Open[0].Ticker)
	assert.Equal(t, 1, store.Saves())

	assert.ErrorIs(t, store.Save(ctx, nil), storage.ErrInvalidInput)
}

func TestCooldownStore(t *testing.T) {
	ctx := context.Background()
	store := NewCooldownStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Get(ctx, "T1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Set(ctx, "T1", now))
	got, err := store.Get(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, got.Equal(now))

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, store.Set(ctx, "", now), storage.ErrInvalidInput)
}

func TestEventLog_Bounded(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog(3)

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, domain.Event{Type: domain.EventSignal, Ticker: fmt.Sprintf("T%d", i)}))
	}

	events, err := log.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "T2", events[0].Ticker)
	assert.Equal(t, "T4", events[2].Ticker)

	events, err = log.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "T4", events[0].Ticker)

	assert.ErrorIs(t, log.Append(ctx, domain.Event{}), storage.ErrInvalidInput)
}
