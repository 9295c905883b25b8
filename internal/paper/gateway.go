// Package paper simulates order execution against live market data.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/gateway"
)

// ErrInsufficientCash is returned when a simulated buy cannot be paid for.
var ErrInsufficientCash = errors.New("paper: insufficient cash")

// Config configures the paper account.
type Config struct {
	StartingCash domain.Cents `yaml:"starting_cash"`
}

// DefaultConfig returns a $100 paper account.
func DefaultConfig() Config {
	return Config{StartingCash: 10000}
}

type order struct {
	req    domain.OrderRequest
	status domain.OrderStatus
	cost   domain.Cents
}

// Gateway forwards market reads to a live reader and fills orders against its book.
// Resting orders are re-matched against a fresh book on every GetOrder.
// Holdings in a market seen settled are paid out at Par on the winning side.
type Gateway struct {
	gateway.MarketReader

	log   zerolog.Logger
	newID func() string

	mu       sync.Mutex
	cash     domain.Cents
	holdings map[string]int // positive YES, negative NO
	orders   map[string]*order
}

// Compile-time interface checks.
var (
	_ gateway.Gateway          = (*Gateway)(nil)
	_ gateway.CacheInvalidator = (*Gateway)(nil)
)

// New creates a paper gateway over reader.
func New(reader gateway.MarketReader, cfg Config, log zerolog.Logger) *Gateway {
	return &Gateway{
		MarketReader: reader,
		log:          log.With().Str("component", "paper").Logger(),
		newID:        func() string { return "paper-" + uuid.NewString() },
		cash:         cfg.StartingCash,
		holdings:     make(map[string]int),
		orders:       make(map[string]*order),
	}
}

// Invalidate forwards to the underlying reader.
func (g *Gateway) Invalidate(ticker string) {
	gateway.Invalidate(g.MarketReader, ticker)
}

// CreateOrder matches the order against the current book; any remainder rests.
func (g *Gateway) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderStatus, error) {
	if !req.Price.Tradable() || req.Count <= 0 {
		return nil, fmt.Errorf("paper order %s: invalid price %d or count %d", req.Ticker, req.Price, req.Count)
	}
	book, err := g.GetOrderbook(ctx, req.Ticker)
	if err != nil {
		return nil, fmt.Errorf("paper order %s: %w", req.Ticker, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if req.Action == domain.ActionBuy && g.cash < req.Price*domain.Cents(req.Count) {
		return nil, ErrInsufficientCash
	}

	o := &order{
		req: req,
		status: domain.OrderStatus{
			OrderID:   g.newID(),
			Ticker:    req.Ticker,
			Side:      req.Side,
			Action:    req.Action,
			State:     domain.OrderPending,
			Remaining: req.Count,
		},
	}
	g.orders[o.status.OrderID] = o
	g.match(o, book)

	g.log.Info().
		Str("order_id", o.status.OrderID).
		Str("ticker", req.Ticker).
		Str("side", string(req.Side)).
		Str("action", string(req.Action)).
		Int("count", req.Count).
		Int64("price", int64(req.Price)).
		Int("filled", o.status.FilledCount).
		Msg("paper order")

	st := o.status
	return &st, nil
}

// CancelOrder cancels a resting simulated order.
func (g *Gateway) CancelOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok {
		return gateway.ErrNotFound
	}
	if !o.status.State.Terminal() {
		o.status.State = domain.OrderCanceled
	}
	return nil
}

// GetOrder re-matches a resting order and returns its status.
func (g *Gateway) GetOrder(ctx context.Context, orderID string) (*domain.OrderStatus, error) {
	g.mu.Lock()
	o, ok := g.orders[orderID]
	resting := ok && !o.status.State.Terminal()
	g.mu.Unlock()
	if !ok {
		return nil, gateway.ErrNotFound
	}

	if resting {
		book, err := g.GetOrderbook(ctx, o.req.Ticker)
		if err == nil {
			g.mu.Lock()
			if !o.status.State.Terminal() {
				g.match(o, book)
			}
			g.mu.Unlock()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	st := o.status
	return &st, nil
}

// GetMarket forwards to the reader and settles any holding in a settled market.
func (g *Gateway) GetMarket(ctx context.Context, ticker string) (*domain.Market, error) {
	m, err := g.MarketReader.GetMarket(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if m.Settled() {
		g.mu.Lock()
		g.settle(m)
		g.mu.Unlock()
	}
	return m, nil
}

// Balance returns simulated cash after settling held markets that have resolved.
// A market that cannot be read is left for the next call.
func (g *Gateway) Balance(ctx context.Context) (domain.Cents, error) {
	g.mu.Lock()
	held := make([]string, 0, len(g.holdings))
	for t, n := range g.holdings {
		if n != 0 {
			held = append(held, t)
		}
	}
	g.mu.Unlock()
	sort.Strings(held)

	for _, t := range held {
		if _, err := g.GetMarket(ctx, t); err != nil {
			g.log.Debug().Err(err).Str("ticker", t).Msg("settlement check failed")
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cash, nil
}

// settle pays Par per contract held on the winning side and clears the holding.
// A settled market without a result is left untouched. Caller holds g.mu.
func (g *Gateway) settle(m *domain.Market) {
	n, ok := g.holdings[m.Ticker]
	if !ok || n == 0 {
		return
	}
	var payout domain.Cents
	switch domain.Side(m.Result) {
	case domain.SideYes:
		if n > 0 {
			payout = domain.Par * domain.Cents(n)
		}
	case domain.SideNo:
		if n < 0 {
			payout = domain.Par * domain.Cents(-n)
		}
	default:
		return
	}
	g.cash += payout
	delete(g.holdings, m.Ticker)
	g.log.Info().
		Str("ticker", m.Ticker).
		Str("result", m.Result).
		Int("position", n).
		Int64("payout", int64(payout)).
		Msg("paper settlement")
}

// Positions returns simulated holdings.
func (g *Gateway) Positions(context.Context) ([]domain.ExchangePosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.ExchangePosition, 0, len(g.holdings))
	for t, n := range g.holdings {
		if n != 0 {
			out = append(out, domain.ExchangePosition{Ticker: t, Position: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// match fills as much of o's remainder as the book allows at its limit.
// Buys take implied asks at or below the limit; sells hit bids at or above it.
// Book depth is not consumed between calls. Caller holds g.mu.
func (g *Gateway) match(o *order, book *domain.Orderbook) {
	remaining := o.req.Count - o.status.FilledCount
	if remaining <= 0 {
		return
	}

	var levels []domain.Level
	if o.req.Action == domain.ActionBuy {
		for _, l := range book.Asks(o.req.Side) {
			if l.Price <= o.req.Price {
				levels = append(levels, l)
			}
		}
	} else {
		for _, l := range book.Bids(o.req.Side) {
			if l.Quantity > 0 && l.Price >= o.req.Price {
				levels = append(levels, l)
			}
		}
		sort.SliceStable(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	}

	filled := 0
	var cost domain.Cents
	for _, l := range levels {
		if remaining == 0 {
			break
		}
		n := l.Quantity
		if n > remaining {
			n = remaining
		}
		if o.req.Action == domain.ActionBuy && g.cash < cost+l.Price*domain.Cents(n) {
			n = int((g.cash - cost) / l.Price)
			if n <= 0 {
				break
			}
		}
		filled += n
		remaining -= n
		cost += l.Price * domain.Cents(n)
	}
	if filled == 0 {
		return
	}

	o.cost += cost
	o.status.FilledCount += filled
	o.status.Remaining = remaining
	o.status.AvgFillPrice = domain.Cents((int64(o.cost) + int64(o.status.FilledCount)/2) / int64(o.status.FilledCount))
	if remaining == 0 {
		o.status.State = domain.OrderFilled
	} else {
		o.status.State = domain.OrderPartiallyFilled
	}

	signed := filled
	if o.req.Side == domain.SideNo {
		signed = -filled
	}
	if o.req.Action == domain.ActionBuy {
		g.cash -= cost
		g.holdings[o.req.Ticker] += signed
	} else {
		g.cash += cost
		g.holdings[o.req.Ticker] -= signed
	}
}
