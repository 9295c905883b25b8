// Package gateway defines the exchange contract consumed by the trading core.
package gateway

import (
	"context"
	"errors"
	"time"

	"kalshi-trader/internal/domain"
)

// Gateway errors visible to callers.
var (
	// ErrNotFound is returned when a market or order does not exist.
	ErrNotFound = errors.New("gateway: not found")

	// ErrRateLimited is returned when retries were exhausted on rate limiting.
	ErrRateLimited = errors.New("gateway: rate limited")

	// ErrUnauthorized is returned when a trading call has no usable credentials.
	ErrUnauthorized = errors.New("gateway: unauthorized")
)

// TradeFilter selects public trades.
type TradeFilter struct {
	Since    time.Time // only trades at or after Since
	Ticker   string    // empty for all markets
	PageSize int
	MaxPages int
}

// MarketFilter selects markets.
type MarketFilter struct {
	Status       string // defaults to open
	SeriesTicker string
	EventTicker  string
	MaxPages     int
}

// TradeSource supplies recent public trades.
type TradeSource interface {
	// RecentTrades returns trades matching f, newest first.
	RecentTrades(ctx context.Context, f TradeFilter) ([]domain.Trade, error)
}

// MarketReader is the read-only market data surface.
type MarketReader interface {
	TradeSource

	// OpenMarkets lists markets matching f across pages.
	OpenMarkets(ctx context.Context, f MarketFilter) ([]domain.Market, error)

	// GetMarket returns a single market. Returns ErrNotFound if unknown.
	GetMarket(ctx context.Context, ticker string) (*domain.Market, error)

	// GetOrderbook returns resting bids for both sides.
	GetOrderbook(ctx context.Context, ticker string) (*domain.Orderbook, error)

	// ListSeries returns every series on the venue.
	ListSeries(ctx context.Context) ([]domain.Series, error)

	// Milestones returns real-world event schedules keyed by event ticker
	// for events in the given series.
	Milestones(ctx context.Context, seriesTickers []string) (map[string]domain.Milestone, error)
}

// Trader is the authenticated order surface.
type Trader interface {
	// CreateOrder places a limit order and returns its initial status.
	CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderStatus, error)

	// CancelOrder requests cancellation. A nil error means the request was accepted,
	// not that the order is dead; callers must re-query with GetOrder.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrder returns the current status of an order.
	GetOrder(ctx context.Context, orderID string) (*domain.OrderStatus, error)
}

// Portfolio is the authenticated account surface.
type Portfolio interface {
	// Balance returns the available cash balance.
	Balance(ctx context.Context) (domain.Cents, error)

	// Positions returns positions currently held on the exchange.
	Positions(ctx context.Context) ([]domain.ExchangePosition, error)
}

// Gateway is the full exchange surface.
type Gateway interface {
	MarketReader
	Trader
	Portfolio
}

// CacheInvalidator is implemented by gateways that cache market reads.
type CacheInvalidator interface {
	// Invalidate drops any cached state for ticker so the next read is fresh.
	Invalidate(ticker string)
}

// Invalidate drops cached market state if r caches it.
func Invalidate(r MarketReader, ticker string) {
	if inv, ok := r.(CacheInvalidator); ok {
		inv.Invalidate(ticker)
	}
}
