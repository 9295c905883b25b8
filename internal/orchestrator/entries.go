package orchestrator

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"kalshi-trader/internal/detector"
	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/execution"
	"kalshi-trader/internal/gateway"
	"kalshi-trader/internal/notify"
	"kalshi-trader/internal/observability"
)

// Skip reasons.
const (
	SkipDuplicate     = "duplicate"
	SkipResting       = "resting"
	SkipEventCap      = "event_cap"
	SkipPositionCap   = "position_cap"
	SkipRestingCap    = "resting_cap"
	SkipLowBalance    = "low_balance"
	SkipNoOrderbook   = "no_orderbook"
	SkipBookTooThin   = "book_too_thin"
	SkipSlippage      = "slippage"
	SkipNotFilled     = "not_filled"
	SkipPriceOutBand  = "price_out_of_band"
	SkipExecutionFail = "execution_error"
)

func (s *Scanner) scanReversion(ctx context.Context, now time.Time, allow bool, r *CycleReport) {
	since := now.Add(-s.cfg.TradeLookback)
	src := s.tradeSource(since)
	trades, err := src.RecentTrades(ctx, gateway.TradeFilter{
		Since:    since,
		PageSize: s.cfg.TradePageSize,
		MaxPages: s.cfg.TradeMaxPages,
	})
	if err != nil {
		r.fail("trades", err)
		s.log.Warn().Err(err).Msg("recent trades unavailable")
		return
	}
	r.Trades = len(trades)

	markets := s.prefetch(ctx, trades)
	signals := s.reversion.Detect(ctx, detector.Observations{Trades: trades, Markets: markets}, now)
	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}
		s.enter(ctx, sig, s.cfg.Reversion, allow, now, r)
	}
}

// tradeSource prefers the streaming source when its buffer reaches back to since.
func (s *Scanner) tradeSource(since time.Time) gateway.TradeSource {
	if c, ok := s.trades.(coverage); ok && c.Covers(since) {
		return s.trades
	}
	return s.gw
}

// prefetch loads markets for tickers busy enough to be reversion candidates,
// so detectors can see titles, events and exchange categories.
func (s *Scanner) prefetch(ctx context.Context, trades []domain.Trade) []domain.Market {
	counts := make(map[string]int)
	for _, t := range trades {
		if t.Ticker != "" {
			counts[t.Ticker]++
		}
	}
	tickers := make([]string, 0, len(counts))
	for t, n := range counts {
		if n >= s.cfg.PrefetchMinTrades {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)

	markets := make([]domain.Market, 0, len(tickers))
	for _, t := range tickers {
		if ctx.Err() != nil {
			break
		}
		m, err := s.gw.GetMarket(ctx, t)
		if err != nil {
			s.log.Debug().Err(err).Str("ticker", t).Msg("market lookup failed")
			continue
		}
		markets = append(markets, *m)
	}
	return markets
}

func (s *Scanner) scanImplied(ctx context.Context, now time.Time, allow bool, r *CycleReport) {
	markets, err := s.gw.OpenMarkets(ctx, gateway.MarketFilter{MaxPages: s.cfg.MarketMaxPages})
	if err != nil {
		r.fail("markets", err)
		s.log.Warn().Err(err).Msg("open markets unavailable")
		return
	}
	r.Markets = len(markets)

	signals := s.implied.Detect(ctx, detector.Observations{Markets: markets}, now)
	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}
		s.enter(ctx, sig, s.cfg.Implied, allow, now, r)
	}
}

// enter runs the guards and the depth-sized retry ladder for one signal.
func (s *Scanner) enter(ctx context.Context, sig domain.Signal, lim KindLimits, allow bool, now time.Time, r *CycleReport) {
	s.signal(ctx, sig, r)

	if reason := s.guard(sig, lim.EventCap); reason != "" {
		s.skip(ctx, sig, reason, r)
		return
	}
	if lim.MaxPositions > 0 && s.tracker.Count(sig.Kind) >= lim.MaxPositions {
		s.skip(ctx, sig, SkipPositionCap, r)
		return
	}
	if !allow {
		s.skip(ctx, sig, SkipLowBalance, r)
		return
	}

	exec, err := s.exec.Enter(ctx, sig, execution.Limits{Sizing: lim.Sizing})
	if err != nil {
		s.rejected(ctx, sig, err, r)
		return
	}
	s.open(ctx, sig, exec, now, r)
}

func (s *Scanner) scanMention(ctx context.Context, now time.Time, allow bool, r *CycleReport) {
	s.lastMention = now
	r.MentionScanned = true

	series := s.series.MentionSeries(ctx, now)
	var markets []domain.Market
	for _, st := range series {
		if ctx.Err() != nil {
			return
		}
		ms, err := s.gw.OpenMarkets(ctx, gateway.MarketFilter{SeriesTicker: st})
		if err != nil {
			s.log.Warn().Err(err).Str("series", st).Msg("series markets unavailable")
			continue
		}
		markets = append(markets, ms...)
	}
	r.MentionMarkets = len(markets)
	if len(markets) == 0 {
		return
	}

	volumes := s.eventVolumes(markets, now)
	milestones, err := s.series.Milestones(ctx, series, now)
	if err != nil {
		r.fail("milestones", err)
		s.log.Warn().Err(err).Msg("milestones unavailable")
	}

	signals := s.mention.Detect(ctx, detector.Observations{
		Markets:     markets,
		Milestones:  milestones,
		EventVolume: volumes,
	}, now)

	lim := s.cfg.Mention
	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}
		s.signal(ctx, sig, r)

		if lim.MaxPositions > 0 && s.tracker.Count(domain.KindMention)+len(s.resting) >= lim.MaxPositions {
			s.skip(ctx, sig, SkipPositionCap, r)
			break
		}
		if lim.MaxResting > 0 && len(s.resting) >= lim.MaxResting {
			s.skip(ctx, sig, SkipRestingCap, r)
			break
		}
		if reason := s.guard(sig, lim.EventCap); reason != "" {
			s.skip(ctx, sig, reason, r)
			continue
		}
		if !allow {
			s.skip(ctx, sig, SkipLowBalance, r)
			continue
		}

		minPrice, maxPrice := s.mention.Band(sig.Ticker, sig.Title)
		exec, rest, err := s.exec.Place(ctx, sig, execution.Limits{
			FixedBet: lim.Bet,
			MinPrice: minPrice,
			MaxPrice: maxPrice,
		})
		if err != nil {
			s.rejected(ctx, sig, err, r)
			continue
		}

		// Cooldown starts once an order is on the book, filled or not.
		s.mention.Acknowledge(ctx, sig, now)
		if rest != nil {
			s.resting[sig.Ticker] = rest
			r.Rested++
			s.notifyFailed(s.notifier.Resting(ctx, sig, notify.RestingOrder{
				OrderID: rest.Order.ID,
				Count:   rest.Order.RequestedCount,
				Price:   rest.Order.LimitPrice,
			}), "resting")
			continue
		}
		s.open(ctx, sig, exec, now, r)
	}
}

// eventVolumes sums 24h volume per event and derives contracts per minute
// traded since the previous mention scan. Events no longer listed are forgotten.
func (s *Scanner) eventVolumes(markets []domain.Market, now time.Time) map[string]domain.EventVolume {
	sums := make(map[string]int64)
	for _, m := range markets {
		event := m.EventTicker
		if event == "" {
			event = m.Ticker
		}
		sums[event] += m.Volume24h
	}

	out := make(map[string]domain.EventVolume, len(sums))
	next := make(map[string]volumeSample, len(sums))
	for event, vol := range sums {
		ev := domain.EventVolume{Volume24h: vol}
		if prev, ok := s.volumes[event]; ok {
			minutes := math.Max(now.Sub(prev.at).Minutes(), 0.5)
			delta := vol - prev.volume
			if delta < 0 {
				delta = 0
			}
			ev.Velocity = math.Round(float64(delta)/minutes*10) / 10
		}
		out[event] = ev
		next[event] = volumeSample{volume: vol, at: now}
	}
	s.volumes = next
	return out
}

// guard applies the duplicate and per-event exposure checks.
func (s *Scanner) guard(sig domain.Signal, eventCap domain.Cents) string {
	if s.tracker.HasOpen(sig.Ticker) {
		return SkipDuplicate
	}
	if _, ok := s.resting[sig.Ticker]; ok {
		return SkipResting
	}
	if sig.EventTicker != "" && eventCap > 0 && s.tracker.EventExposure(sig.EventTicker) >= eventCap {
		return SkipEventCap
	}
	return ""
}

func (s *Scanner) signal(ctx context.Context, sig domain.Signal, r *CycleReport) {
	r.Signals[sig.Kind]++
	observability.RecordSignal(string(sig.Kind))
	s.record(ctx, domain.Event{
		Time:   sig.CreatedAt,
		Type:   domain.EventSignal,
		Ticker: sig.Ticker,
		Kind:   sig.Kind,
		Fields: map[string]any{
			"event":  sig.EventTicker,
			"side":   string(sig.Side),
			"target": int64(sig.TargetPrice),
		},
	})
}

// skip records an entry that was not attempted or produced no position and
// notifies it, at most once per ticker and reason every SkipNotifyEvery.
func (s *Scanner) skip(ctx context.Context, sig domain.Signal, reason string, r *CycleReport) {
	r.Skipped[reason]++
	observability.RecordSkip(string(sig.Kind), reason)
	s.log.Info().Str("ticker", sig.Ticker).Str("kind", string(sig.Kind)).Str("reason", reason).Msg("entry skipped")
	s.record(ctx, domain.Event{
		Type:   domain.EventEntrySkipped,
		Ticker: sig.Ticker,
		Kind:   sig.Kind,
		Fields: map[string]any{"reason": reason},
	})

	key := reason + "|" + sig.Ticker
	if last, ok := s.skipNotes[key]; ok && r.At.Sub(last) < s.cfg.SkipNotifyEvery {
		return
	}
	s.skipNotes[key] = r.At
	s.notifyFailed(s.notifier.Skipped(ctx, sig, reason), "skipped")
}

// rejected handles an execution that produced no position.
func (s *Scanner) rejected(ctx context.Context, sig domain.Signal, err error, r *CycleReport) {
	s.log.Info().Err(err).Str("ticker", sig.Ticker).Msg("execution produced no position")
	s.skip(ctx, sig, skipReason(err), r)
}

// open records a filled execution as a position.
// Tracking runs even after ctx is canceled.
func (s *Scanner) open(ctx context.Context, sig domain.Signal, exec *domain.Execution, now time.Time, r *CycleReport) {
	ctx = context.WithoutCancel(ctx)
	pos, err := s.tracker.Add(ctx, sig, exec, now)
	if err != nil {
		// The fill is real; only local tracking failed.
		s.log.Error().Err(err).Str("ticker", sig.Ticker).Str("order_id", exec.OrderID).Msg("filled order not tracked")
		r.fail("track", err)
		return
	}
	r.Entered[sig.Kind]++
	s.log.Info().
		Str("ticker", pos.Ticker).
		Str("kind", string(pos.Kind)).
		Int("count", pos.FillCount).
		Int64("entry", int64(pos.EntryPrice)).
		Time("exit_time", pos.ExitTime).
		Msg("position opened")
	s.notifyFailed(s.notifier.Entry(ctx, sig, exec), "entry")
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, execution.ErrNoOrderbook):
		return SkipNoOrderbook
	case errors.Is(err, execution.ErrBookTooThin):
		return SkipBookTooThin
	case errors.Is(err, execution.ErrSlippage):
		return SkipSlippage
	case errors.Is(err, execution.ErrNotFilled):
		return SkipNotFilled
	case errors.Is(err, execution.ErrPriceOutOfBand):
		return SkipPriceOutBand
	default:
		return SkipExecutionFail
	}
}
