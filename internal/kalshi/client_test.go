package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/gateway"
)

const apiPrefix = "/trade-api/v2"

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithBaseURL(srv.URL + apiPrefix),
		WithRateLimit(1000, 1000),
		WithRetryWait(time.Millisecond, 2*time.Millisecond),
		WithClock(func() time.Time { return t0 }),
	}
	c, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_GetMarketParsesDollarsAndCaches(t *testing.T) {
	var marketCalls, eventCalls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case apiPrefix + "/markets/KXFED-26MAR-T4.50":
			marketCalls.Add(1)
			writeJSON(w, map[string]any{"market": map[string]any{
				"ticker":             "KXFED-26MAR-T4.50",
				"event_ticker":       "KXFED-26MAR",
				"title":              "Fed above 4.50%?",
				"status":             "active",
				"yes_bid_dollars":    "0.4450",
				"yes_ask_dollars":    "0.4650",
				"last_price_dollars": "0.4500",
				"volume_24h":         1200,
				"close_time":         "2026-03-20T18:00:00Z",
			}})
		case apiPrefix + "/events/KXFED-26MAR":
			eventCalls.Add(1)
			writeJSON(w, map[string]any{"event": map[string]any{"title": "Fed", "category": "Economics"}})
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	m, err := c.GetMarket(ctx, "KXFED-26MAR-T4.50")
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(45), m.YesBid) // 44.5 rounds half away from zero
	assert.Equal(t, domain.Cents(47), m.YesAsk)
	assert.Equal(t, domain.Cents(45), m.LastPrice)
	assert.Equal(t, "KXFED", m.SeriesTicker)
	assert.Equal(t, "Economics", m.Category)
	assert.Equal(t, time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC), m.CloseTime)

	_, err = c.GetMarket(ctx, "KXFED-26MAR-T4.50")
	require.NoError(t, err)
	assert.Equal(t, int32(1), marketCalls.Load(), "second read served from cache")

	c.Invalidate("KXFED-26MAR-T4.50")
	_, err = c.GetMarket(ctx, "KXFED-26MAR-T4.50")
	require.NoError(t, err)
	assert.Equal(t, int32(2), marketCalls.Load())
	assert.Equal(t, int32(1), eventCalls.Load(), "event category cached")

	_, err = c.GetMarket(ctx, "MISSING")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestClient_RecentTradesStopsAtCutoff(t *testing.T) {
	since := t0.Add(-65 * time.Minute)
	var pages atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, apiPrefix+"/markets/trades", r.URL.Path)
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, "1773507300", r.URL.Query().Get("min_ts"))
		switch pages.Add(1) {
		case 1:
			assert.Empty(t, r.URL.Query().Get("cursor"))
			writeJSON(w, map[string]any{
				"trades": []map[string]any{
					{"trade_id": "a", "ticker": "X", "count": 5, "taker_side": "yes", "yes_price_dollars": "0.55", "created_time": "2026-03-14T17:59:00Z"},
					{"trade_id": "b", "ticker": "X", "count": 3, "taker_side": "no", "yes_price": 50, "created_time": "2026-03-14T17:30:00Z"},
				},
				"cursor": "next",
			})
		case 2:
			assert.Equal(t, "next", r.URL.Query().Get("cursor"))
			writeJSON(w, map[string]any{
				"trades": []map[string]any{
					{"trade_id": "c", "ticker": "Y", "count": 1, "taker_side": "yes", "yes_price_dollars": "0.20", "created_time": "2026-03-14T17:00:00Z"},
					{"trade_id": "d", "ticker": "Y", "count": 1, "taker_side": "yes", "yes_price_dollars": "0.20", "created_time": "2026-03-14T16:00:00Z"},
				},
				"cursor": "more",
			})
		default:
			t.Error("paged past the cutoff")
		}
	})
	c := newTestClient(t, srv)

	trades, err := c.RecentTrades(context.Background(), gateway.TradeFilter{Since: since})
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "a", trades[0].ID)
	assert.Equal(t, domain.Cents(55), trades[0].YesPrice)
	assert.Equal(t, domain.SideNo, trades[1].TakerSide)
	assert.Equal(t, domain.Cents(50), trades[1].YesPrice)
	assert.Equal(t, "c", trades[2].ID)
	assert.Equal(t, int32(2), pages.Load())
}

func TestClient_OpenMarketsPaginates(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "open", q.Get("status"))
		assert.Equal(t, "200", q.Get("limit"))
		assert.Equal(t, "KXNFLMENTION", q.Get("series_ticker"))
		if q.Get("cursor") == "" {
			writeJSON(w, map[string]any{"markets": []map[string]any{{"ticker": "A", "event_ticker": "E-1"}}, "cursor": "p2"})
			return
		}
		writeJSON(w, map[string]any{"markets": []map[string]any{{"ticker": "B", "event_ticker": "E-1"}}, "cursor": ""})
	})
	c := newTestClient(t, srv)

	markets, err := c.OpenMarkets(context.Background(), gateway.MarketFilter{SeriesTicker: "KXNFLMENTION"})
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "B", markets[1].Ticker)
	assert.Equal(t, "KXNFLMENTION", markets[1].SeriesTicker)
}

func TestClient_GetOrderbook(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case apiPrefix + "/markets/A/orderbook":
			writeJSON(w, map[string]any{"orderbook": map[string]any{
				"yes": [][]int{{40, 10}, {42, 5}},
				"no":  [][]int{{55, 7}},
			}})
		case apiPrefix + "/markets/B/orderbook":
			writeJSON(w, map[string]any{"orderbook": map[string]any{
				"yes_dollars": []any{[]any{"0.3100", 4}},
				"no_dollars":  nil,
			}})
		}
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	book, err := c.GetOrderbook(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []domain.Level{{Price: 40, Quantity: 10}, {Price: 42, Quantity: 5}}, book.Yes)
	best, ok := book.BestBid(domain.SideYes)
	require.True(t, ok)
	assert.Equal(t, domain.Cents(42), best)
	assert.Equal(t, []domain.Level{{Price: 55, Quantity: 7}}, book.No)

	book, err = c.GetOrderbook(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, []domain.Level{{Price: 31, Quantity: 4}}, book.Yes)
	assert.Empty(t, book.No)
}

func TestClient_CreateOrderSignsAndSendsYesPrice(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var body createOrderRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, apiPrefix+"/portfolio/orders", r.URL.Path)

		ts := r.Header.Get(HeaderTimestamp)
		assert.Equal(t, "1773511200000", ts)
		assert.Equal(t, "key-1", r.Header.Get(HeaderAccessKey))
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get(HeaderSignature))
		assert.NoError(t, err)
		digest := sha256.Sum256([]byte(ts + "POST" + apiPrefix + "/portfolio/orders"))
		assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig, nil))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"order": map[string]any{"order_id": "o-1", "status": "resting", "remaining_count": 9}})
	})
	c := newTestClient(t, srv, WithSigner(NewRSASigner("key-1", key)))

	st, err := c.CreateOrder(context.Background(), domain.OrderRequest{
		Ticker: "KXFED-26MAR-T4.50",
		Side:   domain.SideNo,
		Action: domain.ActionBuy,
		Count:  9,
		Price:  46,
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", st.OrderID)
	assert.Equal(t, domain.OrderPending, st.State)
	assert.Equal(t, domain.SideNo, st.Side)
	assert.Equal(t, 9, st.Remaining)

	assert.Equal(t, "no", body.Side)
	assert.Equal(t, "buy", body.Action)
	assert.Equal(t, "limit", body.Type)
	assert.Equal(t, int64(54), body.YesPrice)
	assert.NotEmpty(t, body.ClientOrderID)
}

func TestClient_CreateOrderRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	c := newTestClient(t, srv, WithSigner(stubSigner{}))
	ctx := context.Background()

	_, err := c.CreateOrder(ctx, domain.OrderRequest{Ticker: "X", Side: domain.SideYes, Action: domain.ActionBuy, Count: 1, Price: 100})
	assert.Error(t, err)
	_, err = c.CreateOrder(ctx, domain.OrderRequest{Ticker: "X", Side: domain.SideYes, Action: domain.ActionBuy, Count: 0, Price: 50})
	assert.Error(t, err)
}

func TestClient_TradingRequiresSigner(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unauthenticated trading call reached the server")
	})
	c := newTestClient(t, srv)
	assert.False(t, c.Authenticated())

	_, err := c.Balance(context.Background())
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	err = c.CancelOrder(context.Background(), "o-1")
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]any{"balance": 12345})
	})
	c := newTestClient(t, srv, WithSigner(stubSigner{}))

	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(12345), bal)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, srv, WithMaxRetries(2))

	_, err := c.ListSeries(context.Background())
	assert.ErrorIs(t, err, gateway.ErrRateLimited)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_OrderLifecycle(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == apiPrefix+"/portfolio/orders/o-1":
			writeJSON(w, map[string]any{"order": map[string]any{
				"order_id": "o-1", "ticker": "X", "side": "no", "action": "buy",
				"status": "cancelled", "fill_count": 4, "remaining_count": 0,
				"taker_fill_cost": 120, "maker_fill_cost": 64,
			}})
		case r.Method == http.MethodGet && r.URL.Path == apiPrefix+"/portfolio/orders/o-2":
			writeJSON(w, map[string]any{"order": map[string]any{
				"order_id": "o-2", "status": "executed", "fill_count": 3, "average_fill_price": 47,
			}})
		case r.Method == http.MethodDelete && r.URL.Path == apiPrefix+"/portfolio/orders/o-1":
			mu.Lock()
			deleted = append(deleted, "o-1")
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestClient(t, srv, WithSigner(stubSigner{}))
	ctx := context.Background()

	st, err := c.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCanceled, st.State)
	assert.Equal(t, 4, st.FilledCount)
	assert.Equal(t, domain.Cents(46), st.AvgFillPrice)

	st, err = c.GetOrder(ctx, "o-2")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, st.State)
	assert.Equal(t, domain.Cents(47), st.AvgFillPrice)

	require.NoError(t, c.CancelOrder(ctx, "o-1"))
	assert.Equal(t, []string{"o-1"}, deleted)

	err = c.CancelOrder(ctx, "o-9")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestClient_PositionsSkipsFlat(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"market_positions": []map[string]any{
			{"ticker": "A", "position": -12},
			{"ticker": "B", "position": 0},
			{"ticker": "C", "position": 3},
		}})
	})
	c := newTestClient(t, srv, WithSigner(stubSigner{}))

	pos, err := c.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ExchangePosition{{Ticker: "A", Position: -12}, {Ticker: "C", Position: 3}}, pos)
}

func TestClient_MilestonesPrimaryWins(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("with_milestones"))
		switch r.URL.Query().Get("series_ticker") {
		case "S1":
			writeJSON(w, map[string]any{"milestones": []map[string]any{
				{
					"title":                 "Pregame show",
					"start_date":            "2026-03-14T17:00:00Z",
					"related_event_tickers": []string{"E-1", "E-2"},
				},
				{
					"title":                 "Game",
					"start_date":            "2026-03-14T19:00:00Z",
					"end_date":              "2026-03-14T22:00:00Z",
					"primary_event_tickers": []string{"E-1"},
				},
				{"title": "No start", "primary_event_tickers": []string{"E-3"}},
			}})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	c := newTestClient(t, srv, WithMaxRetries(0))

	ms, err := c.Milestones(context.Background(), []string{"S1", "S2"})
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "Game", ms["E-1"].Title)
	assert.Equal(t, time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC), ms["E-1"].End)
	assert.Equal(t, "Pregame show", ms["E-2"].Title)
	assert.True(t, ms["E-2"].End.IsZero())

	_, err = c.Milestones(context.Background(), []string{"S2"})
	assert.Error(t, err, "every series failing is an error")
}

func TestSigner_LoadPKCS1AndPKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	dir := t.TempDir()

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	blocks := map[string]*pem.Block{
		"pkcs1.pem": {Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)},
		"pkcs8.pem": {Type: "PRIVATE KEY", Bytes: pkcs8},
	}
	for name, block := range blocks {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

		s, err := LoadRSASigner("key-1", path)
		require.NoError(t, err, name)
		h, err := s.Headers(http.MethodGet, "/trade-api/v2/portfolio/balance", t0)
		require.NoError(t, err)
		assert.Equal(t, "1773511200000", h[HeaderTimestamp])
	}

	_, err = ParsePrivateKey([]byte("not a key"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

type stubSigner struct{}

func (stubSigner) Headers(_, _ string, _ time.Time) (map[string]string, error) {
	return map[string]string{HeaderAccessKey: "test"}, nil
}
