package domain

import "time"

// PositionStatus is the lifecycle state of a tracked position.
type PositionStatus string

const (
	PositionOpen          PositionStatus = "open"
	PositionSettled       PositionStatus = "settled"
	PositionClosedByTimer PositionStatus = "closed_by_timer"
	PositionStoppedOut    PositionStatus = "stopped_out"
)

// Terminal reports whether the status is final.
func (s PositionStatus) Terminal() bool {
	return s == PositionSettled || s == PositionClosedByTimer || s == PositionStoppedOut
}

// Position is the tracked consequence of a filled or simulated entry order.
type Position struct {
	ID           string         `json:"id"`
	Ticker       string         `json:"ticker"`
	EventTicker  string         `json:"event_ticker"`
	Title        string         `json:"title"`
	Kind         SignalKind     `json:"kind"`
	Action       FadeAction     `json:"action"`
	Side         Side           `json:"side"`
	OrderID      string         `json:"order_id"`
	Simulated    bool           `json:"simulated"`
	TargetPrice  Cents          `json:"target_price"`
	EntryPrice   Cents          `json:"entry_price"`
	FillCount    int            `json:"fill_count"`
	BetAmount    Cents          `json:"bet_amount"`
	EntryTime    time.Time      `json:"entry_time"`
	ExitTime     time.Time      `json:"exit_time"`
	HoldToSettle bool           `json:"hold_to_settle"`
	Status       PositionStatus `json:"status"`

	ExitAttempts  int       `json:"exit_attempts,omitempty"`
	ExitOrderID   string    `json:"exit_order_id,omitempty"`
	ExitPrice     Cents     `json:"exit_price,omitempty"`
	ExitFillCount int       `json:"exit_fill_count,omitempty"`
	Result        string    `json:"result,omitempty"`
	RealizedPnL   Cents     `json:"realized_pnl"`
	ClosedAt      time.Time `json:"closed_at,omitempty"`
}

// ROI returns realized (or marked) P&L relative to the bet amount, in percent.
func (p *Position) ROI(pnl Cents) float64 {
	if p.BetAmount == 0 {
		return 0
	}
	return float64(pnl) / float64(p.BetAmount) * 100
}

// MarkToMarket values the position against a current price of the held side.
func (p *Position) MarkToMarket(current Cents) Cents {
	return (current - p.EntryPrice) * Cents(p.FillCount)
}

// SettlementPnL computes P&L from a market result: the held side wins Par per contract.
// An empty or unknown result voids the position at zero.
func (p *Position) SettlementPnL(result string) Cents {
	switch Side(result) {
	case p.Side:
		return Cents(p.FillCount) * (Par - p.EntryPrice)
	case p.Side.Opposite():
		return -Cents(p.FillCount) * p.EntryPrice
	default:
		return 0
	}
}

// PositionBook is the durable open/closed record.
type PositionBook struct {
	Open   []Position `json:"open"`
	Closed []Position `json:"closed"`
}
