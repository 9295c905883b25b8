// Package strategy defines exit policies for tracked positions.
package strategy

import (
	"time"

	"kalshi-trader/internal/domain"
)

// ExitReason explains why a policy asks for an exit.
type ExitReason string

const (
	ExitNone     ExitReason = ""
	ExitTime     ExitReason = "time_exit"
	ExitStopLoss ExitReason = "stop_loss"
)

// Policy decides when an open position should be exited.
type Policy interface {
	// ID returns the policy identifier (includes parameters).
	ID() string

	// HoldToSettle reports whether positions are held until the market settles.
	HoldToSettle() bool

	// ExitTime returns the exit deadline for a position entered at entry.
	// For hold-to-settle policies it is the expected settlement time.
	ExitTime(sig domain.Signal, entry time.Time) time.Time

	// Evaluate checks an open timed position. current is the held side's price;
	// hasPrice is false when no price could be observed.
	Evaluate(pos *domain.Position, current domain.Cents, hasPrice bool, now time.Time) ExitReason
}

// Set maps signal kinds to their exit policy.
type Set map[domain.SignalKind]Policy

// For returns the policy for kind, or a 24h time exit when none is configured.
func (s Set) For(kind domain.SignalKind) Policy {
	if p, ok := s[kind]; ok && p != nil {
		return p
	}
	return NewTimeExit(24 * time.Hour)
}
