// Package stub provides a scriptable in-memory exchange for tests.
package stub

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/gateway"
)

// Gateway implements gateway.Gateway for testing.
// Order status sequences are scripted per created order, in creation order.
type Gateway struct {
	mu sync.Mutex

	Markets    map[string]*domain.Market
	Books      map[string]*domain.Orderbook
	Trades     []domain.Trade
	Series     []domain.Series
	Schedule   map[string]domain.Milestone
	Cash       domain.Cents
	Holdings   []domain.ExchangePosition
	BalanceErr error
	CreateErr  error
	CancelErr  error

	// Scripts[i] is returned by successive GetOrder calls on the i-th created order.
	// The last entry repeats. Unscripted orders stay pending.
	Scripts [][]domain.OrderStatus

	Created       []domain.OrderRequest
	Canceled      []string
	GetOrderCalls map[string]int
	Invalidated   []string

	orderIDs []string
	requests map[string]domain.OrderRequest
}

// NewGateway creates an empty stub exchange.
func NewGateway() *Gateway {
	return &Gateway{
		Markets:       make(map[string]*domain.Market),
		Books:         make(map[string]*domain.Orderbook),
		Schedule:      make(map[string]domain.Milestone),
		GetOrderCalls: make(map[string]int),
		requests:      make(map[string]domain.OrderRequest),
	}
}

// Compile-time interface checks.
var (
	_ gateway.Gateway          = (*Gateway)(nil)
	_ gateway.CacheInvalidator = (*Gateway)(nil)
)

// AddMarket adds or replaces a market.
func (g *Gateway) AddMarket(m domain.Market) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Markets[m.Ticker] = &m
}

// SetBook sets the order book for a ticker.
func (g *Gateway) SetBook(ticker string, book *domain.Orderbook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Books[ticker] = book
}

// Script appends a status sequence for the next created order.
func (g *Gateway) Script(statuses ...domain.OrderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Scripts = append(g.Scripts, statuses)
}

// RecentTrades returns trades at or after f.Since, newest first.
func (g *Gateway) RecentTrades(_ context.Context, f gateway.TradeFilter) ([]domain.Trade, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []domain.Trade
	for _, t := range g.Trades {
		if !f.Since.IsZero() && t.CreatedAt.Before(f.Since) {
			continue
		}
		if f.Ticker != "" && t.Ticker != f.Ticker {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// OpenMarkets returns markets matching the filter, sorted by ticker.
func (g *Gateway) OpenMarkets(_ context.Context, f gateway.MarketFilter) ([]domain.Market, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []domain.Market
	for _, m := range g.Markets {
		if f.SeriesTicker != "" && m.SeriesTicker != f.SeriesTicker {
			continue
		}
		if f.EventTicker != "" && m.EventTicker != f.EventTicker {
			continue
		}
		if m.Settled() {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// GetMarket returns a copy of the market.
func (g *Gateway) GetMarket(_ context.Context, ticker string) (*domain.Market, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.Markets[ticker]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// GetOrderbook returns the configured book.
func (g *Gateway) GetOrderbook(_ context.Context, ticker string) (*domain.Orderbook, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.Books[ticker]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return b, nil
}

// ListSeries returns the configured series.
func (g *Gateway) ListSeries(_ context.Context) ([]domain.Series, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Series(nil), g.Series...), nil
}

// Milestones returns the configured schedule.
func (g *Gateway) Milestones(_ context.Context, _ []string) (map[string]domain.Milestone, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]domain.Milestone, len(g.Schedule))
	for k, v := range g.Schedule {
		out[k] = v
	}
	return out, nil
}

// CreateOrder records the request and assigns a sequential id.
func (g *Gateway) CreateOrder(_ context.Context, req domain.OrderRequest) (*domain.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Created = append(g.Created, req)
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}

	id := fmt.Sprintf("ord-%d", len(g.orderIDs)+1)
	g.orderIDs = append(g.orderIDs, id)
	g.requests[id] = req
	return &domain.OrderStatus{
		OrderID:   id,
		Ticker:    req.Ticker,
		Side:      req.Side,
		Action:    req.Action,
		State:     domain.OrderPending,
		Remaining: req.Count,
	}, nil
}

// CancelOrder records the cancel request.
func (g *Gateway) CancelOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Canceled = append(g.Canceled, orderID)
	return g.CancelErr
}

// GetOrder returns the next scripted status for the order.
func (g *Gateway) GetOrder(_ context.Context, orderID string) (*domain.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requests[orderID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	call := g.GetOrderCalls[orderID]
	g.GetOrderCalls[orderID] = call + 1

	idx := -1
	for i, id := range g.orderIDs {
		if id == orderID {
			idx = i
			break
		}
	}

	st := domain.OrderStatus{State: domain.OrderPending, Remaining: req.Count}
	if idx >= 0 && idx < len(g.Scripts) && len(g.Scripts[idx]) > 0 {
		seq := g.Scripts[idx]
		if call >= len(seq) {
			call = len(seq) - 1
		}
		st = seq[call]
	}
	st.OrderID = orderID
	st.Ticker = req.Ticker
	st.Side = req.Side
	st.Action = req.Action
	return &st, nil
}

// Balance returns the configured cash balance.
func (g *Gateway) Balance(_ context.Context) (domain.Cents, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Cash, g.BalanceErr
}

// Positions returns the configured exchange holdings.
func (g *Gateway) Positions(_ context.Context) ([]domain.ExchangePosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.ExchangePosition(nil), g.Holdings...), nil
}

// Invalidate records a cache invalidation.
func (g *Gateway) Invalidate(ticker string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Invalidated = append(g.Invalidated, ticker)
}

// OrderIDs returns ids of all created orders in creation order.
func (g *Gateway) OrderIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.orderIDs...)
}
