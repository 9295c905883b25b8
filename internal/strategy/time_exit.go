package strategy

import (
	"fmt"
	"time"

	"kalshi-trader/internal/domain"
)

// TimeExit exits after a fixed hold duration.
type TimeExit struct {
	Hold time.Duration
}

// NewTimeExit creates a TimeExit policy.
func NewTimeExit(hold time.Duration) *TimeExit {
	return &TimeExit{Hold: hold}
}

// ID returns the policy identifier including parameters.
func (s *TimeExit) ID() string {
	return fmt.Sprintf("TIME_EXIT_%s", s.Hold)
}

// HoldToSettle implements Policy.
func (s *TimeExit) HoldToSettle() bool { return false }

// ExitTime returns entry + hold.
func (s *TimeExit) ExitTime(_ domain.Signal, entry time.Time) time.Time {
	return entry.Add(s.Hold)
}

// Evaluate asks for an exit once the deadline has passed.
func (s *TimeExit) Evaluate(pos *domain.Position, _ domain.Cents, _ bool, now time.Time) ExitReason {
	if !now.Before(pos.ExitTime) {
		return ExitTime
	}
	return ExitNone
}

// HoldToSettle keeps positions until the market resolves.
type HoldToSettle struct {
	// Fallback is added to the entry time when the market close time is unknown.
	Fallback time.Duration
}

// NewHoldToSettle creates a HoldToSettle policy.
func NewHoldToSettle(fallback time.Duration) *HoldToSettle {
	return &HoldToSettle{Fallback: fallback}
}

// ID returns the policy identifier including parameters.
func (s *HoldToSettle) ID() string {
	return fmt.Sprintf("HOLD_TO_SETTLE_%s", s.Fallback)
}

// HoldToSettle implements Policy.
func (s *HoldToSettle) HoldToSettle() bool { return true }

// ExitTime returns the market close time, or entry + fallback.
func (s *HoldToSettle) ExitTime(sig domain.Signal, entry time.Time) time.Time {
	if !sig.CloseTime.IsZero() {
		return sig.CloseTime
	}
	return entry.Add(s.Fallback)
}

// Evaluate never asks for an exit; settlement closes the position.
func (s *HoldToSettle) Evaluate(*domain.Position, domain.Cents, bool, time.Time) ExitReason {
	return ExitNone
}

var (
	_ Policy = (*TimeExit)(nil)
	_ Policy = (*HoldToSettle)(nil)
)
