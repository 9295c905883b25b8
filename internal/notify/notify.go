// Package notify renders trading activity for humans. Notifiers never feed
// back into trading decisions; delivery errors are returned for logging only.
package notify

import (
	"context"
	"errors"

	"kalshi-trader/internal/domain"
)

// Startup describes the trader at launch.
type Startup struct {
	Balance    domain.Cents
	DryRun     bool
	Strategies []domain.SignalKind
	Open       int
}

// RestingOrder describes an entry left on the book.
type RestingOrder struct {
	OrderID string
	Count   int
	Price   domain.Cents
}

// Notifier receives finished signals and positions.
type Notifier interface {
	Startup(ctx context.Context, s Startup) error
	Entry(ctx context.Context, sig domain.Signal, exec *domain.Execution) error
	Skipped(ctx context.Context, sig domain.Signal, reason string) error
	Resting(ctx context.Context, sig domain.Signal, order RestingOrder) error
	Closed(ctx context.Context, pos domain.Position) error
}

// Multi fans out to several notifiers and joins their errors.
type Multi []Notifier

// Startup implements Notifier.
func (m Multi) Startup(ctx context.Context, s Startup) error {
	return m.each(func(n Notifier) error { return n.Startup(ctx, s) })
}

// Entry implements Notifier.
func (m Multi) Entry(ctx context.Context, sig domain.Signal, exec *domain.Execution) error {
	return m.each(func(n Notifier) error { return n.Entry(ctx, sig, exec) })
}

// Skipped implements Notifier.
func (m Multi) Skipped(ctx context.Context, sig domain.Signal, reason string) error {
	return m.each(func(n Notifier) error { return n.Skipped(ctx, sig, reason) })
}

// Resting implements Notifier.
func (m Multi) Resting(ctx context.Context, sig domain.Signal, order RestingOrder) error {
	return m.each(func(n Notifier) error { return n.Resting(ctx, sig, order) })
}

// Closed implements Notifier.
func (m Multi) Closed(ctx context.Context, pos domain.Position) error {
	return m.each(func(n Notifier) error { return n.Closed(ctx, pos) })
}

func (m Multi) each(fn func(Notifier) error) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = Multi(nil)
