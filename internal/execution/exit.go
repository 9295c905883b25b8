package execution

import (
	"context"
	"fmt"

	"kalshi-trader/internal/domain"
)

// ExitResult is the outcome of selling a held position.
type ExitResult struct {
	OrderID     string
	LimitPrice  domain.Cents
	FilledCount int
	AvgPrice    domain.Cents
	PnL         domain.Cents
}

// Exit sells the held side one cent inside its best bid, falling back to the
// market mid when the book has no bid. P&L = (exit - entry) * filled.
// A zero fill returns the result with ErrNotFilled.
func (e *Executor) Exit(ctx context.Context, pos *domain.Position) (*ExitResult, error) {
	if pos.FillCount <= 0 {
		return nil, fmt.Errorf("exit %s: no contracts held", pos.Ticker)
	}
	price, err := e.exitPrice(ctx, pos)
	if err != nil {
		return nil, err
	}

	sig := domain.Signal{Ticker: pos.Ticker, Side: pos.Side, Kind: pos.Kind}
	o, err := e.place(ctx, sig, domain.ActionSell, pos.FillCount, price)
	if err != nil {
		return nil, err
	}

	if err := e.sleep(ctx, e.cfg.ExitWait); err == nil {
		e.poll(ctx, o)
	}
	if !o.Status.Terminal() {
		e.cancelAndConfirm(context.WithoutCancel(ctx), o)
	}

	res := &ExitResult{
		OrderID:     o.ID,
		LimitPrice:  price,
		FilledCount: o.FilledCount,
		AvgPrice:    o.AvgFillPrice,
	}
	if o.FilledCount == 0 {
		return res, fmt.Errorf("%w: exit %s", ErrNotFilled, pos.Ticker)
	}
	res.PnL = (o.AvgFillPrice - pos.EntryPrice) * domain.Cents(o.FilledCount)

	e.record(ctx, domain.Event{
		Type:   domain.EventExit,
		Ticker: pos.Ticker,
		Kind:   pos.Kind,
		PnL:    res.PnL,
		Fields: map[string]any{
			"order_id":  o.ID,
			"filled":    o.FilledCount,
			"avg_price": int64(o.AvgFillPrice),
			"entry":     int64(pos.EntryPrice),
		},
	})
	e.log.Info().
		Str("ticker", pos.Ticker).
		Int("filled", o.FilledCount).
		Int64("exit_price", int64(o.AvgFillPrice)).
		Int64("pnl", int64(res.PnL)).
		Msg("position exited")
	return res, nil
}

func (e *Executor) exitPrice(ctx context.Context, pos *domain.Position) (domain.Cents, error) {
	book, err := e.gw.GetOrderbook(ctx, pos.Ticker)
	if err == nil {
		if bid, ok := book.BestBid(pos.Side); ok {
			return clampPrice(bid - 1), nil
		}
	}

	m, merr := e.gw.GetMarket(ctx, pos.Ticker)
	if merr != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNoOrderbook, pos.Ticker, merr)
	}
	mid, ok := m.SideMid(pos.Side)
	if !ok {
		return 0, fmt.Errorf("%w: %s: no bid and no market price", ErrNoOrderbook, pos.Ticker)
	}
	return clampPrice(mid), nil
}

func clampPrice(p domain.Cents) domain.Cents {
	if p < domain.MinPrice {
		return domain.MinPrice
	}
	if p > domain.MaxPrice {
		return domain.MaxPrice
	}
	return p
}
