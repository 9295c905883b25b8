package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/gateway"
)

// DefaultStreamURL is the production websocket endpoint.
const DefaultStreamURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"

// StreamConfig configures TradeStream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration `yaml:"ping_interval"`
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Retention is how far back trades are kept.
	Retention time.Duration `yaml:"retention"`
	// MaxTrades bounds the buffer regardless of retention.
	MaxTrades int `yaml:"max_trades"`
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Retention:         70 * time.Minute,
		MaxTrades:         50000,
	}
}

// TradeStream subscribes to the public trade channel and keeps a rolling buffer.
// It implements gateway.TradeSource for windows it fully covers.
type TradeStream struct {
	endpoint string
	path     string
	config   StreamConfig
	signer   Signer
	now      func() time.Time
	log      zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	bufMu       sync.RWMutex
	trades      []domain.Trade // oldest first
	coveredFrom time.Time      // buffer is complete from this instant

	done chan struct{}
	wg   sync.WaitGroup
}

var _ gateway.TradeSource = (*TradeStream)(nil)

// NewTradeStream connects, subscribes to trades and starts the read and ping loops.
// signer may be nil for unauthenticated endpoints.
func NewTradeStream(ctx context.Context, endpoint string, config *StreamConfig, signer Signer, log zerolog.Logger) (*TradeStream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}

	s := &TradeStream{
		endpoint: endpoint,
		path:     u.Path,
		config:   cfg,
		signer:   signer,
		now:      time.Now,
		log:      log.With().Str("component", "trade_stream").Logger(),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.subscribe(); err != nil {
		s.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// connect establishes the websocket connection and marks the start of coverage.
func (s *TradeStream) connect(ctx context.Context) error {
	header := http.Header{}
	if s.signer != nil {
		h, err := s.signer.Headers(http.MethodGet, s.path, s.now())
		if err != nil {
			return err
		}
		for k, v := range h {
			header.Set(k, v)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.bufMu.Lock()
	s.coveredFrom = s.now()
	s.bufMu.Unlock()
	return nil
}

// subscribe requests the trade channel for all markets.
func (s *TradeStream) subscribe() error {
	req := streamCommand{
		ID:  s.requestID.Add(1),
		Cmd: "subscribe",
		Params: streamParams{
			Channels: []string{"trade"},
		},
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Covers reports whether the buffer holds every trade since the given instant.
func (s *TradeStream) Covers(since time.Time) bool {
	if s.config.Retention > 0 && since.Before(s.now().Add(-s.config.Retention)) {
		return false
	}
	s.bufMu.RLock()
	defer s.bufMu.RUnlock()
	return !s.coveredFrom.IsZero() && !since.Before(s.coveredFrom)
}

// Len returns the number of buffered trades.
func (s *TradeStream) Len() int {
	s.bufMu.RLock()
	defer s.bufMu.RUnlock()
	return len(s.trades)
}

// RecentTrades implements gateway.TradeSource from the buffer, newest first.
// Paging fields of the filter are ignored.
func (s *TradeStream) RecentTrades(_ context.Context, f gateway.TradeFilter) ([]domain.Trade, error) {
	s.bufMu.RLock()
	defer s.bufMu.RUnlock()

	start := sort.Search(len(s.trades), func(i int) bool {
		return !s.trades[i].CreatedAt.Before(f.Since)
	})
	out := make([]domain.Trade, 0, len(s.trades)-start)
	for i := len(s.trades) - 1; i >= start; i-- {
		t := s.trades[i]
		if f.Ticker != "" && t.Ticker != f.Ticker {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Close closes the websocket connection and stops the loops.
func (s *TradeStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

// readLoop reads messages and reconnects on errors.
func (s *TradeStream) readLoop() {
	defer s.wg.Done()
	defer func() {
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()
	}()

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.reconnect() {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.log.Warn().Err(err).Msg("trade stream read failed, reconnecting")
			s.connMu.Lock()
			if s.conn == conn {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			continue
		}

		s.handleMessage(message)
	}
}

// reconnect dials with exponential backoff until it succeeds or the stream
// is closed. Coverage restarts at the new connection since trades during the
// gap are lost. Returns false when closed.
func (s *TradeStream) reconnect() bool {
	delay := s.config.ReconnectDelay
	for {
		select {
		case <-s.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.connect(ctx)
		cancel()
		if err == nil {
			if err = s.subscribe(); err != nil {
				s.connMu.Lock()
				if s.conn != nil {
					s.conn.Close()
					s.conn = nil
				}
				s.connMu.Unlock()
			}
		}
		if err == nil {
			s.log.Info().Msg("trade stream reconnected")
			return true
		}

		s.log.Warn().Err(err).Dur("delay", delay).Msg("trade stream reconnect failed")
		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

// handleMessage dispatches one websocket message.
func (s *TradeStream) handleMessage(message []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return
	}

	switch env.Type {
	case "trade":
		var w streamTrade
		if err := json.Unmarshal(env.Msg, &w); err != nil {
			return
		}
		s.add(w.toDomain())
	case "subscribed":
		s.log.Debug().RawJSON("msg", env.Msg).Msg("trade channel subscribed")
	case "error":
		s.log.Error().RawJSON("msg", env.Msg).Uint64("id", env.ID).Msg("trade stream error response")
	}
}

// add appends a trade, keeping the buffer ordered and bounded.
func (s *TradeStream) add(t domain.Trade) {
	if t.Ticker == "" || t.CreatedAt.IsZero() {
		return
	}

	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	i := len(s.trades)
	for i > 0 && s.trades[i-1].CreatedAt.After(t.CreatedAt) {
		i--
	}
	s.trades = append(s.trades, domain.Trade{})
	copy(s.trades[i+1:], s.trades[i:])
	s.trades[i] = t

	drop := 0
	if s.config.Retention > 0 {
		cutoff := s.now().Add(-s.config.Retention)
		for drop < len(s.trades) && s.trades[drop].CreatedAt.Before(cutoff) {
			drop++
		}
	}
	if s.config.MaxTrades > 0 && len(s.trades)-drop > s.config.MaxTrades {
		drop = len(s.trades) - s.config.MaxTrades
		// Evicted by size, so coverage now starts at the oldest kept trade.
		if oldest := s.trades[drop].CreatedAt; oldest.After(s.coveredFrom) {
			s.coveredFrom = oldest
		}
	}
	if drop > 0 {
		s.trades = s.trades[drop:]
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *TradeStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				// A dead connection surfaces in the read loop.
				_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}

// WebSocket message types

type streamCommand struct {
	ID     uint64       `json:"id"`
	Cmd    string       `json:"cmd"`
	Params streamParams `json:"params"`
}

type streamParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

type streamEnvelope struct {
	ID   uint64          `json:"id"`
	Type string          `json:"type"`
	SID  int64           `json:"sid"`
	Msg  json.RawMessage `json:"msg"`
}

type streamTrade struct {
	TradeID         string              `json:"trade_id"`
	MarketTicker    string              `json:"market_ticker"`
	YesPrice        *int64              `json:"yes_price"`
	YesPriceDollars decimal.NullDecimal `json:"yes_price_dollars"`
	Count           int                 `json:"count"`
	TakerSide       string              `json:"taker_side"`
	TS              int64               `json:"ts"`
}

func (w streamTrade) toDomain() domain.Trade {
	var created time.Time
	if w.TS > 0 {
		created = time.Unix(w.TS, 0).UTC()
	}
	return domain.Trade{
		ID:        w.TradeID,
		Ticker:    w.MarketTicker,
		Count:     w.Count,
		YesPrice:  price(w.YesPriceDollars, w.YesPrice),
		TakerSide: domain.Side(strings.ToLower(w.TakerSide)),
		CreatedAt: created,
	}
}
