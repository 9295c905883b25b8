package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/observability"
)

// CycleReport summarizes one scan cycle.
type CycleReport struct {
	At             time.Time
	Duration       time.Duration
	Balance        domain.Cents
	LowBalance     bool
	Trades         int
	Markets        int
	MentionScanned bool
	MentionMarkets int
	Signals        map[domain.SignalKind]int
	Entered        map[domain.SignalKind]int
	Skipped        map[string]int // by reason
	Rested         int
	Resting        int
	Closed         int
	Open           map[domain.SignalKind]int
	DailyPnL       domain.Cents
	Errors         []error
}

func newReport(now time.Time) CycleReport {
	return CycleReport{
		At:      now,
		Signals: make(map[domain.SignalKind]int),
		Entered: make(map[domain.SignalKind]int),
		Skipped: make(map[string]int),
		Open:    make(map[domain.SignalKind]int),
	}
}

func (r *CycleReport) fail(stage string, err error) {
	r.Errors = append(r.Errors, fmt.Errorf("%s: %w", stage, err))
}

// Err joins the stage errors of the cycle.
func (r *CycleReport) Err() error {
	return errors.Join(r.Errors...)
}

// finish fills the position counters, updates gauges and logs the summary.
func (s *Scanner) finish(r *CycleReport, now time.Time) {
	for _, kind := range domain.AllKinds {
		n := s.tracker.Count(kind)
		r.Open[kind] = n
		observability.SetOpenPositions(string(kind), n)
	}
	r.Resting = len(s.resting)
	r.DailyPnL = s.tracker.DailyPnL(now)
	for key, at := range s.skipNotes {
		if now.Sub(at) >= s.cfg.SkipNotifyEvery {
			delete(s.skipNotes, key)
		}
	}
	observability.SetRestingOrders(r.Resting)
	observability.SetDailyPnL(int64(r.DailyPnL))

	status := "ok"
	if len(r.Errors) > 0 {
		status = "degraded"
	}
	observability.RecordCycle(status, r.Duration.Seconds(), now.Unix())

	ev := s.log.Info()
	if len(r.Errors) > 0 {
		ev = s.log.Warn().Err(r.Err())
	}
	ev.
		Int("trades", r.Trades).
		Int("markets", r.Markets).
		Int("mention_markets", r.MentionMarkets).
		Int("signals", sum(r.Signals)).
		Int("entered", sum(r.Entered)).
		Int("rested", r.Rested).
		Int("resting", r.Resting).
		Int("closed", r.Closed).
		Int("open", sum(r.Open)).
		Int64("daily_pnl_cents", int64(r.DailyPnL)).
		Bool("low_balance", r.LowBalance).
		Dur("duration", r.Duration).
		Msg("scan cycle complete")
}

func sum[K comparable](m map[K]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
