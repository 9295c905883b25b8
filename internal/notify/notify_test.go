package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-trader/internal/domain"
)

func testSignal() domain.Signal {
	return domain.Signal{
		Ticker:      "KXNFLMENTION-26MAR14-TOUCH",
		Title:       "Will the announcers say Touchdown?",
		Kind:        domain.KindMention,
		Side:        domain.SideNo,
		TargetPrice: 20,
		Mention:     &domain.MentionEvidence{Category: "mention", HoursToEvent: 1.2, EventVolume24h: 5000},
	}
}

func TestWebhook_PostsEmbed(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, 5*time.Second)
	w.now = func() time.Time { return time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC) }

	exec := &domain.Execution{Side: domain.SideNo, FilledCount: 15, AvgFillPrice: 20, SlippagePct: 0}
	require.NoError(t, w.Entry(context.Background(), testSignal(), exec))

	require.Len(t, got.Embeds, 1)
	e := got.Embeds[0]
	assert.Equal(t, "mention entry: KXNFLMENTION-26MAR14-TOUCH", e.Title)
	assert.Contains(t, e.Description, "Buy NO 15 @ 20¢")
	assert.Contains(t, e.Description, "Cost: $3.00")
	assert.Equal(t, ColorSuccess, e.Color)
	assert.Equal(t, "2026-03-14T18:00:00Z", e.Timestamp)
}

func TestWebhook_ErrorStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, 5*time.Second)
	err := w.Skipped(context.Background(), testSignal(), "book too thin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestWebhook_DisabledWithoutURL(t *testing.T) {
	w := NewWebhook("", time.Second)
	assert.NoError(t, w.Closed(context.Background(), domain.Position{Ticker: "X"}))
}

type failing struct{ Log }

func (failing) Closed(context.Context, domain.Position) error { return errors.New("boom") }

type counting struct {
	Log
	closed int
}

func (c *counting) Closed(context.Context, domain.Position) error {
	c.closed++
	return nil
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	c := &counting{}
	m := Multi{&failing{}, nil, c}

	err := m.Closed(context.Background(), domain.Position{Ticker: "X"})
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, 1, c.closed)
}

func TestClosedMessage(t *testing.T) {
	pos := domain.Position{
		Ticker:      "KXM-A",
		Kind:        domain.KindMention,
		Side:        domain.SideNo,
		Status:      domain.PositionSettled,
		EntryPrice:  20,
		ExitPrice:   0,
		FillCount:   15,
		BetAmount:   300,
		RealizedPnL: -300,
		Result:      "yes",
	}
	m := closedMessage(pos)
	assert.Equal(t, "mention settled: KXM-A", m.Title)
	assert.Equal(t, ColorLoss, m.Color)
	assert.True(t, strings.Contains(m.Body, "P&L: -$3.00 (-100%)"), m.Body)
	assert.Contains(t, m.Body, "Result: YES")
}
