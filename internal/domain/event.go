package domain

import "time"

// Event log types.
const (
	EventSignal        = "signal"
	EventOrderPlaced   = "order_placed"
	EventOrderFilled   = "order_filled"
	EventOrderCanceled = "order_canceled"
	EventLateFill      = "late_fill"
	EventEntrySkipped  = "entry_skipped"
	EventRestingFill   = "resting_filled"
	EventRestingExpire = "resting_expired"
	EventExit          = "exit"
	EventSettled       = "settled"
	EventLowBalance    = "low_balance"
	EventCycleError    = "cycle_error"
)

// Event is one append-only trade/event log record.
type Event struct {
	Time   time.Time      `json:"ts"`
	Type   string         `json:"event"`
	Ticker string         `json:"ticker,omitempty"`
	Kind   SignalKind     `json:"kind,omitempty"`
	PnL    Cents          `json:"pnl,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}
