package detector

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"kalshi-trader/internal/classify"
	"kalshi-trader/internal/domain"
)

// ReversionConfig configures the retail-surge reversion detector.
type ReversionConfig struct {
	Window         time.Duration       `yaml:"window"`
	SmallTradeMax  int                 `yaml:"small_trade_max"`
	MinSmallTrades int                 `yaml:"min_small_trades"`
	MaxSmallTrades int                 `yaml:"max_small_trades"`
	MinSideRatio   float64             `yaml:"min_side_ratio"`
	MinMove        domain.Cents        `yaml:"min_move"`
	EntryMin       domain.Cents        `yaml:"entry_min"`
	EntryMax       domain.Cents        `yaml:"entry_max"`
	SellOnly       bool                `yaml:"sell_only"`
	Cooldown       time.Duration       `yaml:"cooldown"`
	Excluded       []classify.Category `yaml:"excluded"`
}

// DefaultReversionConfig returns the default reversion thresholds.
func DefaultReversionConfig() ReversionConfig {
	return ReversionConfig{
		Window:         60 * time.Minute,
		SmallTradeMax:  100,
		MinSmallTrades: 12,
		MaxSmallTrades: 40,
		MinSideRatio:   0.65,
		MinMove:        15,
		EntryMin:       30,
		EntryMax:       60,
		SellOnly:       true,
		Cooldown:       4 * time.Hour,
		Excluded: []classify.Category{
			classify.Sports, classify.Crypto, classify.Financials,
			classify.Mention, classify.MentionLive, classify.MentionExtended, classify.MentionExcluded,
		},
	}
}

// Reversion fades bursts of small one-sided retail trades that moved the price.
// The cooldown is recorded on detection.
type Reversion struct {
	cfg        ReversionConfig
	classifier classify.Classifier
	ledger     *Ledger
	excluded   classify.Set
	log        zerolog.Logger
}

// NewReversion creates a reversion detector.
func NewReversion(cfg ReversionConfig, classifier classify.Classifier, ledger *Ledger, log zerolog.Logger) *Reversion {
	return &Reversion{
		cfg:        cfg,
		classifier: classifier,
		ledger:     ledger,
		excluded:   classify.NewSet(cfg.Excluded...),
		log:        log.With().Str("detector", string(domain.KindReversion)).Logger(),
	}
}

// Kind implements Detector.
func (r *Reversion) Kind() domain.SignalKind {
	return domain.KindReversion
}

// Detect implements Detector.
func (r *Reversion) Detect(ctx context.Context, obs Observations, now time.Time) []domain.Signal {
	byTicker := make(map[string][]domain.Trade)
	var cutoff time.Time
	if r.cfg.Window > 0 {
		cutoff = now.Add(-r.cfg.Window)
	}
	for _, t := range obs.Trades {
		// Trades with no timestamp are not eligible.
		if t.Ticker == "" || t.CreatedAt.IsZero() || t.CreatedAt.Before(cutoff) {
			continue
		}
		byTicker[t.Ticker] = append(byTicker[t.Ticker], t)
	}

	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	markets := marketIndex(obs.Markets)
	var signals []domain.Signal
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		m := markets[ticker]
		sig, ok := r.evaluate(ticker, byTicker[ticker], m, now)
		if !ok {
			continue
		}
		r.ledger.Record(ctx, ticker, now)
		r.log.Info().
			Str("ticker", ticker).
			Int("small_trades", sig.Reversion.SmallTrades).
			Float64("yes_ratio", sig.Reversion.YesRatio).
			Float64("move", sig.Reversion.PriceMove).
			Int64("target", int64(sig.TargetPrice)).
			Msg("reversion signal")
		signals = append(signals, sig)
	}
	return signals
}

func (r *Reversion) evaluate(ticker string, trades []domain.Trade, m *domain.Market, now time.Time) (domain.Signal, bool) {
	var title string
	if m != nil {
		title = m.Title
		if r.excluded.Has(classify.FromExchange(m.Category)) {
			return domain.Signal{}, false
		}
	}
	if r.excluded.Has(r.classifier.Classify(ticker, title)) {
		return domain.Signal{}, false
	}

	small, yes := 0, 0
	for _, t := range trades {
		if t.Count > r.cfg.SmallTradeMax {
			continue
		}
		small++
		if t.TakerSide == domain.SideYes {
			yes++
		}
	}
	if small < r.cfg.MinSmallTrades || small > r.cfg.MaxSmallTrades {
		return domain.Signal{}, false
	}

	yesRatio := float64(yes) / float64(small)
	var dominant domain.Side
	switch {
	case yesRatio >= r.cfg.MinSideRatio:
		dominant = domain.SideYes
	case 1-yesRatio >= r.cfg.MinSideRatio:
		dominant = domain.SideNo
	default:
		return domain.Signal{}, false
	}
	if r.cfg.SellOnly && dominant != domain.SideYes {
		return domain.Signal{}, false
	}

	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	n := len(sorted) / 5
	if n < 3 {
		n = 3
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	start, okStart := meanPrice(sorted[:n])
	end, okEnd := meanPrice(sorted[len(sorted)-n:])
	if !okStart || !okEnd {
		return domain.Signal{}, false
	}

	move := end - start
	minMove := float64(r.cfg.MinMove)
	if dominant == domain.SideYes && move < minMove {
		return domain.Signal{}, false
	}
	if dominant == domain.SideNo && move > -minMove {
		return domain.Signal{}, false
	}
	if end < float64(r.cfg.EntryMin) || end > float64(r.cfg.EntryMax) {
		return domain.Signal{}, false
	}
	if r.ledger.Active(ticker, now) {
		return domain.Signal{}, false
	}

	action := domain.FadeSell
	if dominant == domain.SideNo {
		action = domain.FadeBuy
	}
	yesPrice := domain.Cents(math.Round(end))
	side := action.Side()
	target := side.PriceFromYes(yesPrice)
	if !target.Tradable() {
		return domain.Signal{}, false
	}

	sig := newSignal(domain.KindReversion, ticker, now)
	sig.Action = action
	sig.Side = side
	sig.TargetPrice = target
	sig.YesPrice = yesPrice
	sig.Title = title
	sig.Reversion = &domain.ReversionEvidence{
		SmallTrades:   small,
		YesRatio:      yesRatio,
		StartMean:     start,
		EndMean:       end,
		PriceMove:     move,
		DominantSide:  dominant,
		WindowMinutes: int(r.cfg.Window / time.Minute),
	}
	return sig.WithMarket(m), true
}

// Acknowledge implements Detector. The cooldown is already recorded at detection.
func (r *Reversion) Acknowledge(context.Context, domain.Signal, time.Time) {}

func meanPrice(trades []domain.Trade) (float64, bool) {
	var sum float64
	n := 0
	for _, t := range trades {
		if t.YesPrice <= 0 {
			continue
		}
		sum += float64(t.YesPrice)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

var _ Detector = (*Reversion)(nil)
