// Package execution realizes signals as exchange orders under slippage and capital limits.
//
// Every order's fate is confirmed before the next order for the same signal is placed:
// a cancel request is always followed by status polling, and a fill that races a cancel
// is accepted rather than dropped.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/gateway"
	"kalshi-trader/internal/observability"
	"kalshi-trader/internal/sizing"
	"kalshi-trader/internal/storage"
)

// Execution errors.
var (
	ErrNoOrderbook    = errors.New("execution: no order book")
	ErrBookTooThin    = errors.New("execution: book too thin")
	ErrSlippage       = errors.New("execution: slippage above limit")
	ErrNotFilled      = errors.New("execution: not filled")
	ErrPriceOutOfBand = errors.New("execution: price out of band")
)

// Config holds executor timing and risk parameters.
type Config struct {
	MaxSlippage    float64       `yaml:"max_slippage"` // fraction of target, e.g. 0.15
	MaxRetries     int           `yaml:"max_retries"`  // retries after the first attempt
	FillWait       time.Duration `yaml:"fill_wait"`
	CancelPolls    int           `yaml:"cancel_polls"`
	CancelInterval time.Duration `yaml:"cancel_interval"`
	QuickFillWait  time.Duration `yaml:"quick_fill_wait"`
	RestBudget     time.Duration `yaml:"rest_budget"`
	ExitWait       time.Duration `yaml:"exit_wait"`
	Simulated      bool          `yaml:"-"`
}

// DefaultConfig returns default executor parameters.
func DefaultConfig() Config {
	return Config{
		MaxSlippage:    0.15,
		MaxRetries:     2,
		FillWait:       5 * time.Second,
		CancelPolls:    6,
		CancelInterval: 500 * time.Millisecond,
		QuickFillWait:  2 * time.Second,
		RestBudget:     600 * time.Second,
		ExitWait:       5 * time.Second,
	}
}

// Limits are the per-signal risk limits chosen by the caller.
type Limits struct {
	Sizing   sizing.Params // depth sizing for Enter
	FixedBet domain.Cents  // bet for Place
	MinPrice domain.Cents  // price band for Place
	MaxPrice domain.Cents
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures an Executor.
type Option func(*Executor)

// WithSleeper replaces the wall-clock sleeper.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithClientIDs replaces the client order id generator.
func WithClientIDs(next func() string) Option {
	return func(e *Executor) { e.clientID = next }
}

// Executor places and reconciles orders.
// Not safe for concurrent use; the scan loop is its only caller.
type Executor struct {
	gw       gateway.Gateway
	cfg      Config
	events   storage.EventLog
	log      zerolog.Logger
	sleep    Sleeper
	now      func() time.Time
	clientID func() string
}

// New creates an executor.
func New(gw gateway.Gateway, cfg Config, events storage.EventLog, log zerolog.Logger, opts ...Option) *Executor {
	e := &Executor{
		gw:       gw,
		cfg:      cfg,
		events:   events,
		log:      log.With().Str("component", "executor").Logger(),
		sleep:    sleepContext,
		now:      time.Now,
		clientID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the executor configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Enter sizes against the live book and works a limit order up to MaxRetries times.
// At most one order's fill is accepted. Returns ErrNotFilled when nothing filled.
func (e *Executor) Enter(ctx context.Context, sig domain.Signal, lim Limits) (*domain.Execution, error) {
	book, err := e.gw.GetOrderbook(ctx, sig.Ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoOrderbook, sig.Ticker, err)
	}
	if book.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoOrderbook, sig.Ticker)
	}

	q := sizing.Size(book, sig.Side, lim.Sizing)
	if !q.Tradable() {
		return nil, fmt.Errorf("%w: %s: %s", ErrBookTooThin, sig.Ticker, q.Reason)
	}

	slip := slippage(q.BestPrice, sig.TargetPrice)
	if slip > e.cfg.MaxSlippage {
		return nil, fmt.Errorf("%w: %s: best %d target %d (%.1f%%)",
			ErrSlippage, sig.Ticker, q.BestPrice, sig.TargetPrice, slip*100)
	}

	maxPrice := domain.Cents(math.Floor(float64(sig.TargetPrice) * (1 + e.cfg.MaxSlippage)))
	if maxPrice >= domain.MaxPrice {
		maxPrice = domain.MaxPrice - 1
	}
	if maxPrice < q.BestPrice {
		maxPrice = q.BestPrice
	}

	var orders []*domain.Order
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		price := q.BestPrice + domain.Cents(attempt)
		if price > maxPrice {
			price = maxPrice
		}
		// Price and count move together so count*price stays within the bet.
		count := sizing.Affordable(q.Bet, price)
		if count == 0 {
			break
		}

		o, err := e.place(ctx, sig, domain.ActionBuy, count, price)
		if err != nil {
			e.log.Warn().Err(err).Str("ticker", sig.Ticker).Int("attempt", attempt+1).Msg("order placement failed")
			continue
		}
		orders = append(orders, o)

		if err := e.sleep(ctx, e.cfg.FillWait); err != nil {
			// A fill found while unwinding is returned as the execution.
			if exec := e.cleanup(context.WithoutCancel(ctx), sig, orders); exec != nil {
				return exec, nil
			}
			return nil, err
		}
		e.poll(ctx, o)
		if o.FilledCount > 0 {
			return e.acceptFill(ctx, sig, o, orders)
		}

		confirmed := e.cancelAndConfirm(ctx, o)
		if o.FilledCount > 0 {
			e.lateFill(ctx, sig, o)
			return e.acceptFill(ctx, sig, o, orders)
		}
		if !confirmed {
			e.log.Warn().Str("ticker", sig.Ticker).Str("order_id", o.ID).Msg("cancel unconfirmed, not retrying")
			break
		}
		e.log.Info().
			Str("ticker", sig.Ticker).
			Int("attempt", attempt+1).
			Int64("price", int64(price)).
			Msg("no fill, retrying")
	}

	if exec := e.cleanup(ctx, sig, orders); exec != nil {
		return exec, nil
	}
	return nil, fmt.Errorf("%w: %s after %d orders", ErrNotFilled, sig.Ticker, len(orders))
}

// acceptFill makes o the signal's only authoritative fill: other orders are
// canceled, the remainder of o is canceled and o is re-polled before returning.
func (e *Executor) acceptFill(ctx context.Context, sig domain.Signal, o *domain.Order, orders []*domain.Order) (*domain.Execution, error) {
	for _, other := range orders {
		if other == o || other.Status.Terminal() {
			continue
		}
		e.cancelAndConfirm(ctx, other)
		if other.FilledCount > 0 {
			e.log.Error().
				Str("ticker", sig.Ticker).
				Str("order_id", other.ID).
				Int("filled", other.FilledCount).
				Msg("superseded order filled after acceptance")
		}
	}

	if !o.Status.Terminal() {
		e.cancelAndConfirm(ctx, o)
	}

	exec := domain.ExecutionFromOrder(o, slippage(o.AvgFillPrice, sig.TargetPrice)*100)
	exec.Simulated = e.cfg.Simulated

	observability.RecordFill(string(o.Action), exec.SlippagePct)
	e.record(ctx, domain.Event{
		Type:   domain.EventOrderFilled,
		Ticker: sig.Ticker,
		Kind:   sig.Kind,
		Fields: map[string]any{
			"order_id":  o.ID,
			"side":      string(o.Side),
			"filled":    o.FilledCount,
			"requested": o.RequestedCount,
			"avg_price": int64(o.AvgFillPrice),
			"slippage":  exec.SlippagePct,
		},
	})
	e.log.Info().
		Str("ticker", sig.Ticker).
		Str("order_id", o.ID).
		Int("filled", o.FilledCount).
		Int("requested", o.RequestedCount).
		Int64("avg_price", int64(o.AvgFillPrice)).
		Msg("fill accepted")
	return exec, nil
}

// cleanup cancels every live order and rechecks each for a late fill.
// The first order found filled is accepted.
func (e *Executor) cleanup(ctx context.Context, sig domain.Signal, orders []*domain.Order) *domain.Execution {
	var filled *domain.Order
	for _, o := range orders {
		if !o.Status.Terminal() {
			if err := e.gw.CancelOrder(ctx, o.ID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
				e.log.Warn().Err(err).Str("order_id", o.ID).Msg("cleanup cancel failed")
			}
			e.poll(ctx, o)
		}
		if filled == nil && o.FilledCount > 0 {
			filled = o
		}
	}
	if filled == nil {
		return nil
	}
	e.lateFill(ctx, sig, filled)
	exec, _ := e.acceptFill(ctx, sig, filled, orders)
	return exec
}

// cancelAndConfirm requests cancellation and polls until the order is terminal or filled.
// Returns false when the order's fate is still unknown.
func (e *Executor) cancelAndConfirm(ctx context.Context, o *domain.Order) bool {
	if err := e.gw.CancelOrder(ctx, o.ID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
		e.log.Warn().Err(err).Str("order_id", o.ID).Msg("cancel request failed")
	}
	for i := 0; i < e.cfg.CancelPolls; i++ {
		if err := e.sleep(ctx, e.cfg.CancelInterval); err != nil {
			break
		}
		e.poll(ctx, o)
		if o.Status.Terminal() {
			observability.RecordCancel("confirmed")
			e.record(ctx, domain.Event{
				Type:   domain.EventOrderCanceled,
				Ticker: o.Ticker,
				Fields: map[string]any{"order_id": o.ID, "filled": o.FilledCount, "state": string(o.Status)},
			})
			return true
		}
	}
	observability.RecordCancel("unconfirmed")
	return false
}

func (e *Executor) place(ctx context.Context, sig domain.Signal, action domain.OrderAction, count int, price domain.Cents) (*domain.Order, error) {
	req := domain.OrderRequest{
		Ticker:        sig.Ticker,
		Side:          sig.Side,
		Action:        action,
		Count:         count,
		Price:         price,
		ClientOrderID: e.clientID(),
	}
	st, err := e.gw.CreateOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create order %s: %w", sig.Ticker, err)
	}
	if st == nil || st.OrderID == "" {
		return nil, fmt.Errorf("create order %s: no order id returned", sig.Ticker)
	}

	o := domain.NewOrder(st.OrderID, req)
	o.Apply(st)

	observability.RecordOrderPlaced(string(action))
	e.record(ctx, domain.Event{
		Type:   domain.EventOrderPlaced,
		Ticker: sig.Ticker,
		Kind:   sig.Kind,
		Fields: map[string]any{
			"order_id": o.ID,
			"side":     string(req.Side),
			"action":   string(action),
			"count":    count,
			"price":    int64(price),
		},
	})
	e.log.Info().
		Str("ticker", sig.Ticker).
		Str("order_id", o.ID).
		Str("side", string(req.Side)).
		Str("action", string(action)).
		Int("count", count).
		Int64("price", int64(price)).
		Msg("order placed")
	return o, nil
}

func (e *Executor) poll(ctx context.Context, o *domain.Order) {
	st, err := e.gw.GetOrder(ctx, o.ID)
	if err != nil {
		e.log.Warn().Err(err).Str("order_id", o.ID).Msg("order status unavailable")
		return
	}
	o.Apply(st)
}

func (e *Executor) lateFill(ctx context.Context, sig domain.Signal, o *domain.Order) {
	observability.RecordLateFill()
	e.record(ctx, domain.Event{
		Type:   domain.EventLateFill,
		Ticker: sig.Ticker,
		Kind:   sig.Kind,
		Fields: map[string]any{"order_id": o.ID, "filled": o.FilledCount},
	})
	e.log.Warn().Str("ticker", sig.Ticker).Str("order_id", o.ID).Int("filled", o.FilledCount).Msg("late fill detected")
}

func (e *Executor) record(ctx context.Context, ev domain.Event) {
	if e.events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = e.now().UTC()
	}
	if err := e.events.Append(ctx, ev); err != nil {
		e.log.Warn().Err(err).Str("event", ev.Type).Msg("event log append failed")
	}
}

// slippage returns |actual - target| / target.
func slippage(actual, target domain.Cents) float64 {
	if target <= 0 {
		return 0
	}
	return math.Abs(float64(actual-target)) / float64(target)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
