package execution

import (
	"context"
	"fmt"
	"time"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/observability"
	"kalshi-trader/internal/sizing"
)

// Resting is an entry order left on the book across scan cycles.
type Resting struct {
	Signal   domain.Signal
	Order    *domain.Order
	PlacedAt time.Time
}

// Age returns how long the order has been resting.
func (r *Resting) Age(now time.Time) time.Duration {
	return now.Sub(r.PlacedAt)
}

// Place posts a fixed-bet entry for hold-to-settle signals.
// A fill within QuickFillWait is returned as an execution; otherwise the order
// is handed back as resting for CheckResting on later cycles.
func (e *Executor) Place(ctx context.Context, sig domain.Signal, lim Limits) (*domain.Execution, *Resting, error) {
	book, err := e.gw.GetOrderbook(ctx, sig.Ticker)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrNoOrderbook, sig.Ticker, err)
	}
	if book.Empty() {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoOrderbook, sig.Ticker)
	}

	q := sizing.Fixed(book, sig.Side, lim.FixedBet)
	if q.BestPrice == 0 {
		return nil, nil, fmt.Errorf("%w: %s: %s", ErrBookTooThin, sig.Ticker, q.Reason)
	}
	if q.BestPrice < lim.MinPrice || (lim.MaxPrice > 0 && q.BestPrice > lim.MaxPrice) {
		return nil, nil, fmt.Errorf("%w: %s: ask %d outside [%d, %d]",
			ErrPriceOutOfBand, sig.Ticker, q.BestPrice, lim.MinPrice, lim.MaxPrice)
	}

	price := q.BestPrice
	if lim.MaxPrice > 0 && price > lim.MaxPrice {
		price = lim.MaxPrice
	}
	count := sizing.Affordable(lim.FixedBet, price)
	if count == 0 {
		return nil, nil, fmt.Errorf("%w: %s: %s", ErrBookTooThin, sig.Ticker, sizing.ReasonTooPricey)
	}

	o, err := e.place(ctx, sig, domain.ActionBuy, count, price)
	if err != nil {
		return nil, nil, err
	}
	placedAt := e.now()

	if err := e.sleep(ctx, e.cfg.QuickFillWait); err != nil {
		return nil, &Resting{Signal: sig, Order: o, PlacedAt: placedAt}, nil
	}
	e.poll(ctx, o)
	if o.FilledCount > 0 {
		exec, err := e.acceptFill(ctx, sig, o, nil)
		return exec, nil, err
	}
	if o.Status == domain.OrderCanceled {
		return nil, nil, fmt.Errorf("%w: %s: canceled by exchange", ErrNotFilled, sig.Ticker)
	}

	e.log.Info().
		Str("ticker", sig.Ticker).
		Str("order_id", o.ID).
		Int("count", count).
		Int64("price", int64(price)).
		Msg("order resting")
	return nil, &Resting{Signal: sig, Order: o, PlacedAt: placedAt}, nil
}

// CheckResting reconciles a resting order.
// Returns an execution when it filled, and done=true once the order needs no further tracking.
// An order past the rest budget is canceled; if the cancel cannot be confirmed it stays tracked.
func (e *Executor) CheckResting(ctx context.Context, r *Resting, now time.Time) (*domain.Execution, bool, error) {
	st, err := e.gw.GetOrder(ctx, r.Order.ID)
	if err != nil {
		return nil, false, fmt.Errorf("resting order %s: %w", r.Order.ID, err)
	}
	r.Order.Apply(st)

	if r.Order.FilledCount > 0 {
		exec, err := e.acceptFill(ctx, r.Signal, r.Order, nil)
		e.record(ctx, domain.Event{
			Type:   domain.EventRestingFill,
			Ticker: r.Signal.Ticker,
			Kind:   r.Signal.Kind,
			Fields: map[string]any{"order_id": r.Order.ID, "age_s": int64(r.Age(now).Seconds())},
		})
		return exec, true, err
	}
	if r.Order.Status == domain.OrderCanceled {
		return nil, true, nil
	}
	if r.Age(now) < e.cfg.RestBudget {
		return nil, false, nil
	}

	confirmed := e.cancelAndConfirm(ctx, r.Order)
	if r.Order.FilledCount > 0 {
		e.lateFill(ctx, r.Signal, r.Order)
		exec, err := e.acceptFill(ctx, r.Signal, r.Order, nil)
		return exec, true, err
	}
	if !confirmed {
		e.log.Warn().Str("ticker", r.Signal.Ticker).Str("order_id", r.Order.ID).Msg("resting cancel unconfirmed")
		return nil, false, nil
	}

	e.record(ctx, domain.Event{
		Type:   domain.EventRestingExpire,
		Ticker: r.Signal.Ticker,
		Kind:   r.Signal.Kind,
		Fields: map[string]any{"order_id": r.Order.ID, "age_s": int64(r.Age(now).Seconds())},
	})
	e.log.Info().Str("ticker", r.Signal.Ticker).Str("order_id", r.Order.ID).Msg("resting order expired")
	observability.RecordSkip(string(r.Signal.Kind), "resting_expired")
	return nil, true, nil
}

// Withdraw cancels a resting order on shutdown and confirms its fate.
// A fill that raced the cancel is accepted and returned. done is false when
// the cancel could not be confirmed and the order may still be live.
func (e *Executor) Withdraw(ctx context.Context, r *Resting) (*domain.Execution, bool, error) {
	if r.Order.Status.Terminal() && r.Order.FilledCount == 0 {
		return nil, true, nil
	}
	confirmed := e.cancelAndConfirm(ctx, r.Order)
	if r.Order.FilledCount > 0 {
		e.lateFill(ctx, r.Signal, r.Order)
		exec, err := e.acceptFill(ctx, r.Signal, r.Order, nil)
		return exec, true, err
	}
	if !confirmed {
		e.log.Warn().Str("ticker", r.Signal.Ticker).Str("order_id", r.Order.ID).Msg("withdraw unconfirmed")
		return nil, false, nil
	}
	e.log.Info().Str("ticker", r.Signal.Ticker).Str("order_id", r.Order.ID).Msg("resting order withdrawn")
	return nil, true, nil
}
