package clickhouse

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

func TestEventLog_AppendRecent(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	log := NewEventLog(conn)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, log.Append(ctx, domain.Event{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Type:   domain.EventOrderFilled,
			Ticker: fmt.Sprintf("KXA-%d", i),
			Kind:   domain.KindReversion,
			PnL:    domain.Cents(i),
			Fields: map[string]any{"filled": float64(i)},
		}))
	}

	events, err := log.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "KXA-2", events[0].Ticker)
	assert.Equal(t, "KXA-3", events[1].Ticker)
	assert.Equal(t, domain.KindReversion, events[1].Kind)
	assert.Equal(t, float64(3), events[1].Fields["filled"])

	assert.ErrorIs(t, log.Append(ctx, domain.Event{}), storage.ErrInvalidInput)
}
