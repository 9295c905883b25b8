// Package detector turns batches of market observations into trade signals.
package detector

import (
	"context"
	"time"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/idhash"
)

// Observations is one cycle's batch of market data.
type Observations struct {
	Trades      []domain.Trade
	Markets     []domain.Market
	Milestones  map[string]domain.Milestone   // by event ticker
	EventVolume map[string]domain.EventVolume // by event ticker
}

// Detector classifies observations into zero or more signals.
// Detect is pure with respect to obs except for the detector's cooldown ledger.
type Detector interface {
	// Kind returns the signal kind produced.
	Kind() domain.SignalKind

	// Detect evaluates obs at now.
	Detect(ctx context.Context, obs Observations, now time.Time) []domain.Signal

	// Acknowledge is called once an order was placed for sig.
	Acknowledge(ctx context.Context, sig domain.Signal, now time.Time)
}

func newSignal(kind domain.SignalKind, ticker string, now time.Time) domain.Signal {
	return domain.Signal{
		ID:        idhash.ComputeSignalID(kind, ticker, now),
		Ticker:    ticker,
		Kind:      kind,
		CreatedAt: now,
	}
}

func marketIndex(markets []domain.Market) map[string]*domain.Market {
	idx := make(map[string]*domain.Market, len(markets))
	for i := range markets {
		idx[markets[i].Ticker] = &markets[i]
	}
	return idx
}
