// Package position tracks open positions through exit or settlement.
package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/execution"
	"kalshi-trader/internal/gateway"
	"kalshi-trader/internal/idhash"
	"kalshi-trader/internal/observability"
	"kalshi-trader/internal/storage"
	"kalshi-trader/internal/strategy"
)

// Tracker errors.
var (
	ErrDuplicateTicker = errors.New("position: ticker already has an open position")
	ErrNoFill          = errors.New("position: execution has no fill")
)

// Exiter sells an open timed position.
type Exiter interface {
	Exit(ctx context.Context, pos *domain.Position) (*execution.ExitResult, error)
}

// Config holds tracker parameters.
type Config struct {
	SettlementGrace time.Duration `yaml:"settlement_grace"`
	MaxExitAttempts int           `yaml:"max_exit_attempts"`
	ClosedLimit     int           `yaml:"closed_limit"`
}

// DefaultConfig returns default tracker parameters.
func DefaultConfig() Config {
	return Config{
		SettlementGrace: 2 * time.Hour,
		MaxExitAttempts: 3,
		ClosedLimit:     100,
	}
}

// Transition is a position that reached a terminal status during Check.
type Transition struct {
	Position domain.Position
	From     domain.PositionStatus
	Reason   string
}

// Tracker owns the open and closed position sets.
// Every mutation is saved as a whole book before the call returns.
// Not safe for concurrent use.
type Tracker struct {
	cfg      Config
	markets  gateway.MarketReader
	exiter   Exiter
	policies strategy.Set
	store    storage.PositionStore
	events   storage.EventLog
	log      zerolog.Logger
	book     domain.PositionBook
}

// NewTracker creates a tracker and loads the persisted book.
func NewTracker(
	ctx context.Context,
	cfg Config,
	markets gateway.MarketReader,
	exiter Exiter,
	policies strategy.Set,
	store storage.PositionStore,
	events storage.EventLog,
	log zerolog.Logger,
) (*Tracker, error) {
	book, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	t := &Tracker{
		cfg:      cfg,
		markets:  markets,
		exiter:   exiter,
		policies: policies,
		store:    store,
		events:   events,
		log:      log.With().Str("component", "tracker").Logger(),
	}
	if book != nil {
		t.book = *book
	}
	t.log.Info().Int("open", len(t.book.Open)).Int("closed", len(t.book.Closed)).Msg("positions loaded")
	return t, nil
}

// Add opens a position for a filled execution.
func (t *Tracker) Add(ctx context.Context, sig domain.Signal, exec *domain.Execution, now time.Time) (*domain.Position, error) {
	if exec == nil || exec.FilledCount <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFill, sig.Ticker)
	}
	if t.HasOpen(sig.Ticker) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTicker, sig.Ticker)
	}

	entry := exec.AvgFillPrice
	if entry == 0 {
		entry = exec.LimitPrice
	}
	policy := t.policies.For(sig.Kind)
	pos := domain.Position{
		ID:           idhash.ComputePositionID(sig.Kind, sig.Ticker, exec.OrderID, now),
		Ticker:       sig.Ticker,
		EventTicker:  sig.EventTicker,
		Title:        sig.Title,
		Kind:         sig.Kind,
		Action:       sig.Action,
		Side:         exec.Side,
		OrderID:      exec.OrderID,
		Simulated:    exec.Simulated,
		TargetPrice:  sig.TargetPrice,
		EntryPrice:   entry,
		FillCount:    exec.FilledCount,
		BetAmount:    entry * domain.Cents(exec.FilledCount),
		EntryTime:    now,
		ExitTime:     policy.ExitTime(sig, now),
		HoldToSettle: policy.HoldToSettle(),
		Status:       domain.PositionOpen,
	}
	t.book.Open = append(t.book.Open, pos)
	t.save(ctx)

	t.log.Info().
		Str("ticker", pos.Ticker).
		Str("kind", string(pos.Kind)).
		Str("side", string(pos.Side)).
		Int("count", pos.FillCount).
		Int64("entry", int64(pos.EntryPrice)).
		Time("exit_time", pos.ExitTime).
		Msg("position opened")
	return &pos, nil
}

// Check advances every open position and returns the ones that closed.
func (t *Tracker) Check(ctx context.Context, now time.Time) []Transition {
	var (
		transitions []Transition
		open        = make([]domain.Position, 0, len(t.book.Open))
		changed     bool
	)
	for i := range t.book.Open {
		pos := t.book.Open[i]
		var mutated bool
		if pos.HoldToSettle {
			mutated = t.checkSettlement(ctx, &pos, now)
		} else {
			mutated = t.checkTimed(ctx, &pos, now)
		}
		changed = changed || mutated

		if pos.Status.Terminal() {
			transitions = append(transitions, Transition{Position: pos, From: domain.PositionOpen, Reason: string(pos.Status)})
			t.book.Closed = append(t.book.Closed, pos)
			continue
		}
		open = append(open, pos)
	}
	t.book.Open = open

	if limit := t.cfg.ClosedLimit; limit > 0 && len(t.book.Closed) > limit {
		t.book.Closed = append([]domain.Position(nil), t.book.Closed[len(t.book.Closed)-limit:]...)
	}
	if changed {
		t.save(ctx)
	}
	return transitions
}

func (t *Tracker) checkSettlement(ctx context.Context, pos *domain.Position, now time.Time) bool {
	if !pos.ExitTime.IsZero() && now.After(pos.ExitTime.Add(t.cfg.SettlementGrace)) {
		// Past the deadline: do not trust cached market state.
		gateway.Invalidate(t.markets, pos.Ticker)
		t.log.Debug().Str("ticker", pos.Ticker).Msg("settlement overdue, forcing refresh")
	}
	m, err := t.markets.GetMarket(ctx, pos.Ticker)
	if err != nil {
		t.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("market read failed")
		return false
	}
	if !m.Settled() {
		return false
	}
	t.settle(ctx, pos, m.Result, now)
	return true
}

func (t *Tracker) checkTimed(ctx context.Context, pos *domain.Position, now time.Time) bool {
	policy := t.policies.For(pos.Kind)

	var (
		m        *domain.Market
		current  domain.Cents
		hasPrice bool
	)
	_, stopping := policy.(*strategy.StopLoss)
	if stopping || !now.Before(pos.ExitTime) {
		var err error
		m, err = t.markets.GetMarket(ctx, pos.Ticker)
		if err != nil {
			t.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("market read failed")
		} else {
			if m.Settled() {
				t.settle(ctx, pos, m.Result, now)
				return true
			}
			current, hasPrice = m.SideMid(pos.Side)
		}
	}

	reason := policy.Evaluate(pos, current, hasPrice, now)
	if reason == strategy.ExitNone {
		return false
	}

	res, err := t.exiter.Exit(ctx, pos)
	if res != nil && res.FilledCount > 0 {
		pos.RealizedPnL += res.PnL
		pos.ExitOrderID = res.OrderID
		pos.ExitPrice = res.AvgPrice
		pos.ExitFillCount += res.FilledCount
		if res.FilledCount < pos.FillCount {
			// Partial exit: the rest is retried next cycle.
			pos.FillCount -= res.FilledCount
			pos.ExitAttempts++
			t.log.Info().Str("ticker", pos.Ticker).Int("sold", res.FilledCount).Int("left", pos.FillCount).Msg("partial exit")
			return true
		}
		status := domain.PositionClosedByTimer
		if reason == strategy.ExitStopLoss {
			status = domain.PositionStoppedOut
		}
		t.close(ctx, pos, status, pos.RealizedPnL, now)
		return true
	}

	pos.ExitAttempts++
	t.log.Warn().Err(err).Str("ticker", pos.Ticker).Int("attempt", pos.ExitAttempts).Msg("exit not filled")
	if pos.ExitAttempts < t.cfg.MaxExitAttempts {
		return true
	}

	// Give up selling: book the position at mark-to-market.
	var mark domain.Cents
	if hasPrice {
		mark = pos.MarkToMarket(current)
		pos.ExitPrice = current
	}
	t.close(ctx, pos, domain.PositionClosedByTimer, pos.RealizedPnL+mark, now)
	return true
}

func (t *Tracker) settle(ctx context.Context, pos *domain.Position, result string, now time.Time) {
	pnl := pos.SettlementPnL(result)
	pos.Result = result
	switch domain.Side(result) {
	case pos.Side:
		pos.ExitPrice = domain.Par
	case pos.Side.Opposite():
		pos.ExitPrice = 0
	default:
		pos.ExitPrice = pos.EntryPrice
	}
	t.close(ctx, pos, domain.PositionSettled, pos.RealizedPnL+pnl, now)
}

func (t *Tracker) close(ctx context.Context, pos *domain.Position, status domain.PositionStatus, pnl domain.Cents, now time.Time) {
	pos.Status = status
	pos.RealizedPnL = pnl
	pos.ClosedAt = now

	observability.RecordClose(string(pos.Kind), string(status), int64(pnl))
	evType := domain.EventExit
	if status == domain.PositionSettled {
		evType = domain.EventSettled
	}
	if t.events != nil {
		ev := domain.Event{
			Time:   now.UTC(),
			Type:   evType,
			Ticker: pos.Ticker,
			Kind:   pos.Kind,
			PnL:    pnl,
			Fields: map[string]any{
				"status": string(status),
				"result": pos.Result,
				"entry":  int64(pos.EntryPrice),
				"exit":   int64(pos.ExitPrice),
				"count":  pos.FillCount,
			},
		}
		if err := t.events.Append(ctx, ev); err != nil {
			t.log.Warn().Err(err).Msg("event log append failed")
		}
	}
	t.log.Info().
		Str("ticker", pos.Ticker).
		Str("status", string(status)).
		Str("result", pos.Result).
		Int64("pnl", int64(pnl)).
		Float64("roi", pos.ROI(pnl)).
		Msg("position closed")
}

func (t *Tracker) save(ctx context.Context) {
	if err := t.store.Save(ctx, &t.book); err != nil {
		t.log.Error().Err(err).Msg("position save failed")
	}
}

// HasOpen reports whether ticker has an open position.
func (t *Tracker) HasOpen(ticker string) bool {
	for i := range t.book.Open {
		if t.book.Open[i].Ticker == ticker {
			return true
		}
	}
	return false
}

// EventExposure sums bet amounts of open positions on event.
func (t *Tracker) EventExposure(event string) domain.Cents {
	var total domain.Cents
	if event == "" {
		return 0
	}
	for i := range t.book.Open {
		if t.book.Open[i].EventTicker == event {
			total += t.book.Open[i].BetAmount
		}
	}
	return total
}

// Count returns the number of open positions of kind.
func (t *Tracker) Count(kind domain.SignalKind) int {
	n := 0
	for i := range t.book.Open {
		if t.book.Open[i].Kind == kind {
			n++
		}
	}
	return n
}

// OpenPositions returns a copy of the open positions.
func (t *Tracker) OpenPositions() []domain.Position {
	return append([]domain.Position(nil), t.book.Open...)
}

// Closed returns a copy of the closed archive, oldest first.
func (t *Tracker) Closed() []domain.Position {
	return append([]domain.Position(nil), t.book.Closed...)
}

// OpenTickers returns the tickers of all open positions.
func (t *Tracker) OpenTickers() []string {
	out := make([]string, 0, len(t.book.Open))
	for i := range t.book.Open {
		out = append(out, t.book.Open[i].Ticker)
	}
	return out
}

// DailyPnL sums realized P&L of positions closed on now's UTC day.
func (t *Tracker) DailyPnL(now time.Time) domain.Cents {
	y, m, d := now.UTC().Date()
	var total domain.Cents
	for i := range t.book.Closed {
		cy, cm, cd := t.book.Closed[i].ClosedAt.UTC().Date()
		if cy == y && cm == m && cd == d {
			total += t.book.Closed[i].RealizedPnL
		}
	}
	return total
}
