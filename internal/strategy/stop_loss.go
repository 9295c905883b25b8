package strategy

import (
	"fmt"
	"math"
	"time"

	"kalshi-trader/internal/domain"
)

// StopLoss exits when the held side drops StopPct below entry, or after MaxHold.
type StopLoss struct {
	StopPct float64 // e.g. 0.30 = exit 30% below entry
	MaxHold time.Duration
}

// NewStopLoss creates a StopLoss policy.
func NewStopLoss(stopPct float64, maxHold time.Duration) *StopLoss {
	return &StopLoss{StopPct: stopPct, MaxHold: maxHold}
}

// ID returns the policy identifier including parameters.
func (s *StopLoss) ID() string {
	return fmt.Sprintf("STOP_LOSS_stop%.0f_%s", s.StopPct*100, s.MaxHold)
}

// HoldToSettle implements Policy.
func (s *StopLoss) HoldToSettle() bool { return false }

// ExitTime returns entry + max hold.
func (s *StopLoss) ExitTime(_ domain.Signal, entry time.Time) time.Time {
	return entry.Add(s.MaxHold)
}

// StopPrice returns the held-side price at or below which the stop fires.
func (s *StopLoss) StopPrice(entry domain.Cents) domain.Cents {
	return domain.Cents(math.Round(float64(entry) * (1 - s.StopPct)))
}

// Evaluate checks the stop first, then the deadline.
func (s *StopLoss) Evaluate(pos *domain.Position, current domain.Cents, hasPrice bool, now time.Time) ExitReason {
	if hasPrice && current <= s.StopPrice(pos.EntryPrice) {
		return ExitStopLoss
	}
	if !now.Before(pos.ExitTime) {
		return ExitTime
	}
	return ExitNone
}

var _ Policy = (*StopLoss)(nil)
