// Package orchestrator runs the scan loop.
// Each cycle: circuit breakers → resting orders → reversion → implied → mention → position checks → report.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"kalshi-trader/internal/classify"
	"kalshi-trader/internal/detector"
	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/execution"
	"kalshi-trader/internal/gateway"
	"kalshi-trader/internal/notify"
	"kalshi-trader/internal/observability"
	"kalshi-trader/internal/position"
	"kalshi-trader/internal/sizing"
	"kalshi-trader/internal/storage"
)

// Config holds scan loop parameters.
type Config struct {
	ScanInterval      time.Duration `yaml:"scan_interval"`
	MentionInterval   time.Duration `yaml:"mention_interval"`
	ErrorBackoff      time.Duration `yaml:"error_backoff"`
	TradeLookback     time.Duration `yaml:"trade_lookback"`
	TradePageSize     int           `yaml:"trade_page_size"`
	TradeMaxPages     int           `yaml:"trade_max_pages"`
	MarketMaxPages    int           `yaml:"market_max_pages"`
	PrefetchMinTrades int           `yaml:"prefetch_min_trades"` // trades per ticker before its market is fetched
	MinBalance        domain.Cents  `yaml:"min_balance"`
	SkipNotifyEvery   time.Duration `yaml:"skip_notify_every"` // per ticker and reason

	Reversion KindLimits    `yaml:"reversion"`
	Implied   KindLimits    `yaml:"implied"`
	Mention   MentionLimits `yaml:"mention"`
}

// KindLimits are the entry limits for a depth-sized strategy.
type KindLimits struct {
	Enabled      bool          `yaml:"enabled"`
	MaxPositions int           `yaml:"max_positions"`
	EventCap     domain.Cents  `yaml:"event_cap"`
	Sizing       sizing.Params `yaml:"sizing"`
}

// MentionLimits are the entry limits for fixed-bet mention entries.
type MentionLimits struct {
	Enabled      bool         `yaml:"enabled"`
	MaxPositions int          `yaml:"max_positions"` // open positions plus resting orders
	MaxResting   int          `yaml:"max_resting"`
	EventCap     domain.Cents `yaml:"event_cap"`
	Bet          domain.Cents `yaml:"bet"`
}

// DefaultConfig returns the default scan loop parameters.
func DefaultConfig() Config {
	return Config{
		ScanInterval:      300 * time.Second,
		MentionInterval:   120 * time.Second,
		ErrorBackoff:      60 * time.Second,
		TradeLookback:     65 * time.Minute,
		TradePageSize:     1000,
		TradeMaxPages:     15,
		MarketMaxPages:    200,
		PrefetchMinTrades: 12,
		MinBalance:        100,
		SkipNotifyEvery:   30 * time.Minute,
		Reversion: KindLimits{
			Enabled:      true,
			MaxPositions: 20,
			EventCap:     300,
			Sizing:       sizing.DefaultParams(),
		},
		Implied: KindLimits{
			Enabled:      true,
			MaxPositions: 5,
			EventCap:     300,
			Sizing: sizing.Params{
				TopLevels:     3,
				DepthFraction: 0.5,
				MaxBet:        100,
				MinBet:        50,
			},
		},
		Mention: MentionLimits{
			Enabled:      true,
			MaxPositions: 40,
			MaxResting:   10,
			EventCap:     1000,
			Bet:          300,
		},
	}
}

// Enabled returns the strategies switched on in cfg.
func (c Config) Enabled() []domain.SignalKind {
	var kinds []domain.SignalKind
	if c.Reversion.Enabled {
		kinds = append(kinds, domain.KindReversion)
	}
	if c.Implied.Enabled {
		kinds = append(kinds, domain.KindImpliedProb)
	}
	if c.Mention.Enabled {
		kinds = append(kinds, domain.KindMention)
	}
	return kinds
}

// SeriesSource discovers mention series and their event schedule.
type SeriesSource interface {
	MentionSeries(ctx context.Context, now time.Time) []string
	Milestones(ctx context.Context, series []string, now time.Time) (map[string]domain.Milestone, error)
}

// coverage is implemented by trade sources that only hold a recent window.
type coverage interface {
	Covers(since time.Time) bool
}

// Options for creating a Scanner.
type Options struct {
	Config  Config
	Gateway gateway.Gateway

	// Trades is an optional streaming trade source used when it covers the lookback.
	Trades gateway.TradeSource

	Executor *execution.Executor
	Tracker  *position.Tracker

	// Nil detectors disable their strategy.
	Reversion detector.Detector
	Implied   detector.Detector
	Mention   *detector.Mention

	// Cooldowns is the mention ledger seeded from exchange holdings at startup.
	Cooldowns  *detector.Ledger
	Series     SeriesSource
	Classifier classify.Classifier
	Notifier   notify.Notifier
	Events     storage.EventLog
	Log        zerolog.Logger
	DryRun     bool

	// Sleep and Now default to the wall clock.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

type volumeSample struct {
	volume int64
	at     time.Time
}

// Scanner is the scan orchestrator. Not safe for concurrent use.
type Scanner struct {
	cfg        Config
	gw         gateway.Gateway
	trades     gateway.TradeSource
	exec       *execution.Executor
	tracker    *position.Tracker
	reversion  detector.Detector
	implied    detector.Detector
	mention    *detector.Mention
	cooldowns  *detector.Ledger
	series     SeriesSource
	classifier classify.Classifier
	notifier   notify.Notifier
	events     storage.EventLog
	log        zerolog.Logger
	dryRun     bool
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time

	resting     map[string]*execution.Resting // by ticker
	lastMention time.Time
	volumes     map[string]volumeSample // by event ticker
	skipNotes   map[string]time.Time    // by reason and ticker
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	s := &Scanner{
		cfg:        opts.Config,
		gw:         opts.Gateway,
		trades:     opts.Trades,
		exec:       opts.Executor,
		tracker:    opts.Tracker,
		reversion:  opts.Reversion,
		implied:    opts.Implied,
		mention:    opts.Mention,
		cooldowns:  opts.Cooldowns,
		series:     opts.Series,
		classifier: opts.Classifier,
		notifier:   opts.Notifier,
		events:     opts.Events,
		log:        opts.Log.With().Str("component", "scanner").Logger(),
		dryRun:     opts.DryRun,
		sleep:      opts.Sleep,
		now:        opts.Now,
		resting:    make(map[string]*execution.Resting),
		volumes:    make(map[string]volumeSample),
		skipNotes:  make(map[string]time.Time),
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.classifier == nil {
		s.classifier = classify.NewDefault()
	}
	if s.notifier == nil {
		s.notifier = notify.NewLog(opts.Log)
	}
	return s
}

// Start logs the account state, seeds mention cooldowns from exchange holdings
// and announces the trader. Failures are logged only.
func (s *Scanner) Start(ctx context.Context) {
	now := s.now()

	balance, err := s.gw.Balance(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("balance unavailable at startup")
	} else {
		observability.SetBalance(int64(balance))
		s.log.Info().Int64("balance_cents", int64(balance)).Bool("dry_run", s.dryRun).Msg("account balance")
	}

	if s.cooldowns != nil {
		holdings, err := s.gw.Positions(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("exchange positions unavailable, cooldowns not seeded")
		} else {
			var keys []string
			for _, h := range holdings {
				if h.Position != 0 && s.classifier.Classify(h.Ticker, "").IsMention() {
					keys = append(keys, h.Ticker)
				}
			}
			if n := s.cooldowns.Seed(ctx, keys, now); n > 0 {
				s.log.Info().Int("seeded", n).Msg("cooldowns seeded from exchange positions")
			}
		}
	}

	err = s.notifier.Startup(ctx, notify.Startup{
		Balance:    balance,
		DryRun:     s.dryRun,
		Strategies: s.cfg.Enabled(),
		Open:       len(s.tracker.OpenPositions()),
	})
	s.notifyFailed(err, "startup")
}

// Run cycles until ctx is done. A failed or panicking cycle is logged and
// followed by ErrorBackoff instead of ScanInterval.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		report, err := s.safeCycle(ctx, s.now())
		wait := s.cfg.ScanInterval
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error().Err(err).Dur("backoff", s.cfg.ErrorBackoff).Msg("scan cycle failed")
			s.record(ctx, domain.Event{
				Time:   s.now(),
				Type:   domain.EventCycleError,
				Fields: map[string]any{"error": err.Error()},
			})
			wait = s.cfg.ErrorBackoff
		} else if len(report.Errors) > 0 {
			wait = s.cfg.ErrorBackoff
		}
		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

func (s *Scanner) safeCycle(ctx context.Context, now time.Time) (report CycleReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			observability.RecordCycle("panic", s.now().Sub(now).Seconds(), s.now().Unix())
		}
	}()
	return s.Cycle(ctx, now), nil
}

// Cycle runs one scan at now. Errors of individual stages are collected in the
// report; they never abort the remaining stages.
func (s *Scanner) Cycle(ctx context.Context, now time.Time) CycleReport {
	started := s.now()
	r := newReport(now)

	allow := s.breakers(ctx, now, &r)
	s.checkResting(ctx, now, &r)

	if s.reversion != nil && s.cfg.Reversion.Enabled {
		s.scanReversion(ctx, now, allow, &r)
	}
	if s.implied != nil && s.cfg.Implied.Enabled {
		s.scanImplied(ctx, now, allow, &r)
	}
	if s.mention != nil && s.series != nil && s.cfg.Mention.Enabled && s.mentionDue(now) {
		s.scanMention(ctx, now, allow, &r)
	}

	for _, tr := range s.tracker.Check(ctx, now) {
		r.Closed++
		s.notifyFailed(s.notifier.Closed(ctx, tr.Position), "closed")
	}

	r.Duration = s.now().Sub(started)
	s.finish(&r, now)
	return r
}

// breakers reports whether new entries are allowed this cycle.
// An unknown balance does not block entries.
func (s *Scanner) breakers(ctx context.Context, now time.Time, r *CycleReport) bool {
	balance, err := s.gw.Balance(ctx)
	if err != nil {
		r.fail("balance", err)
		s.log.Warn().Err(err).Msg("balance check failed")
		return true
	}
	r.Balance = balance
	observability.SetBalance(int64(balance))
	if balance >= s.cfg.MinBalance {
		return true
	}

	r.LowBalance = true
	s.log.Warn().
		Int64("balance_cents", int64(balance)).
		Int64("min_cents", int64(s.cfg.MinBalance)).
		Msg("low balance, new entries blocked")
	s.record(ctx, domain.Event{
		Time:   now,
		Type:   domain.EventLowBalance,
		Fields: map[string]any{"balance_cents": int64(balance)},
	})
	return false
}

func (s *Scanner) checkResting(ctx context.Context, now time.Time, r *CycleReport) {
	if len(s.resting) == 0 {
		return
	}
	tickers := make([]string, 0, len(s.resting))
	for t := range s.resting {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		rest := s.resting[ticker]
		exec, done, err := s.exec.CheckResting(ctx, rest, now)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("resting order check failed")
		}
		if done {
			delete(s.resting, ticker)
		}
		if exec != nil && exec.FilledCount > 0 {
			s.open(ctx, rest.Signal, exec, now, r)
		}
	}
}

// Stop withdraws every resting entry order. A fill that raced the cancel is
// tracked as a position. Orders whose cancel cannot be confirmed stay listed
// in Resting. ctx must outlive the scan loop's context.
func (s *Scanner) Stop(ctx context.Context) {
	if len(s.resting) == 0 {
		return
	}
	now := s.now()
	r := newReport(now)
	for _, ticker := range s.Resting() {
		rest := s.resting[ticker]
		exec, done, err := s.exec.Withdraw(ctx, rest)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("resting order withdraw failed")
		}
		if done {
			delete(s.resting, ticker)
		}
		if exec != nil && exec.FilledCount > 0 {
			s.open(ctx, rest.Signal, exec, now, &r)
		}
	}
	if left := s.Resting(); len(left) > 0 {
		s.log.Error().Strs("tickers", left).Msg("resting orders may still be live")
	}
}

func (s *Scanner) mentionDue(now time.Time) bool {
	return s.lastMention.IsZero() || now.Sub(s.lastMention) >= s.cfg.MentionInterval
}

// Resting returns the tickers with a resting entry order.
func (s *Scanner) Resting() []string {
	out := make([]string, 0, len(s.resting))
	for t := range s.resting {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Scanner) record(ctx context.Context, ev domain.Event) {
	if s.events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	if err := s.events.Append(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Msg("event log append failed")
	}
}

func (s *Scanner) notifyFailed(err error, what string) {
	if err != nil {
		s.log.Warn().Err(err).Str("notification", what).Msg("notification failed")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
