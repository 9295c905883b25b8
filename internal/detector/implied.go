package detector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"kalshi-trader/internal/classify"
	"kalshi-trader/internal/domain"
)

// ImpliedConfig configures the implied-probability detector.
type ImpliedConfig struct {
	MinOutcomes  int                 `yaml:"min_outcomes"`
	MaxOutcomes  int                 `yaml:"max_outcomes"`
	MinPrice     domain.Cents        `yaml:"min_price"`
	MaxPrice     domain.Cents        `yaml:"max_price"`
	MinPriced    int                 `yaml:"min_priced"`
	MinDeviation domain.Cents        `yaml:"min_deviation"`
	MaxDeviation domain.Cents        `yaml:"max_deviation"`
	Cooldown     time.Duration       `yaml:"cooldown"`
	Excluded     []classify.Category `yaml:"excluded"`
}

// DefaultImpliedConfig returns the default implied-probability thresholds.
func DefaultImpliedConfig() ImpliedConfig {
	return ImpliedConfig{
		MinOutcomes:  3,
		MaxOutcomes:  20,
		MinPrice:     3,
		MaxPrice:     97,
		MinPriced:    3,
		MinDeviation: 5,
		MaxDeviation: 30,
		Cooldown:     6 * time.Hour,
		Excluded: []classify.Category{
			classify.Prop, classify.Independent, classify.Combo, classify.Crypto, classify.Financials,
			classify.Mention, classify.MentionLive, classify.MentionExtended, classify.MentionExcluded,
		},
	}
}

// Implied flags mutually exclusive events whose YES prices do not sum to 100.
// The cooldown is keyed by event and recorded on detection.
type Implied struct {
	cfg        ImpliedConfig
	classifier classify.Classifier
	ledger     *Ledger
	excluded   classify.Set
	log        zerolog.Logger
}

// NewImplied creates an implied-probability detector.
func NewImplied(cfg ImpliedConfig, classifier classify.Classifier, ledger *Ledger, log zerolog.Logger) *Implied {
	return &Implied{
		cfg:        cfg,
		classifier: classifier,
		ledger:     ledger,
		excluded:   classify.NewSet(cfg.Excluded...),
		log:        log.With().Str("detector", string(domain.KindImpliedProb)).Logger(),
	}
}

// Kind implements Detector.
func (d *Implied) Kind() domain.SignalKind {
	return domain.KindImpliedProb
}

type pricedOutcome struct {
	market *domain.Market
	midX2  int64
}

// Detect implements Detector. Events are evaluated in order of first appearance.
func (d *Implied) Detect(ctx context.Context, obs Observations, now time.Time) []domain.Signal {
	var order []string
	byEvent := make(map[string][]*domain.Market)
	for i := range obs.Markets {
		m := &obs.Markets[i]
		if m.EventTicker == "" || m.Ticker == "" || m.Settled() {
			continue
		}
		if _, ok := byEvent[m.EventTicker]; !ok {
			order = append(order, m.EventTicker)
		}
		byEvent[m.EventTicker] = append(byEvent[m.EventTicker], m)
	}

	var signals []domain.Signal
	for _, event := range order {
		if ctx.Err() != nil {
			break
		}
		sig, ok := d.evaluate(event, byEvent[event], now)
		if !ok {
			continue
		}
		d.ledger.Record(ctx, event, now)
		d.log.Info().
			Str("event", event).
			Str("ticker", sig.Ticker).
			Float64("sum", sig.Implied.ProbabilitySum).
			Float64("deviation", sig.Implied.Deviation).
			Str("side", string(sig.Side)).
			Msg("implied probability signal")
		signals = append(signals, sig)
	}
	return signals
}

func (d *Implied) evaluate(event string, markets []*domain.Market, now time.Time) (domain.Signal, bool) {
	if len(markets) < d.cfg.MinOutcomes || len(markets) > d.cfg.MaxOutcomes {
		return domain.Signal{}, false
	}
	if d.excluded.Has(d.classifier.Classify(event, "")) {
		return domain.Signal{}, false
	}
	for _, m := range markets {
		if d.excluded.Has(d.classifier.Classify(m.Ticker, m.Title)) {
			return domain.Signal{}, false
		}
	}
	if d.ledger.Active(event, now) {
		return domain.Signal{}, false
	}

	lo, hi := int64(2*d.cfg.MinPrice), int64(2*d.cfg.MaxPrice)
	priced := make([]pricedOutcome, 0, len(markets))
	var sumX2 int64
	for _, m := range markets {
		x2, ok := m.YesMidX2()
		if !ok || x2 < lo || x2 > hi {
			continue
		}
		priced = append(priced, pricedOutcome{market: m, midX2: x2})
		sumX2 += x2
	}
	if len(priced) < d.cfg.MinPriced {
		return domain.Signal{}, false
	}

	devX2 := sumX2 - 2*int64(domain.Par)
	abs := devX2
	if abs < 0 {
		abs = -abs
	}
	if abs < 2*int64(d.cfg.MinDeviation) || abs > 2*int64(d.cfg.MaxDeviation) {
		return domain.Signal{}, false
	}

	pick := priced[0]
	action := domain.FadeSell
	if devX2 > 0 {
		for _, p := range priced[1:] {
			if p.midX2 > pick.midX2 {
				pick = p
			}
		}
	} else {
		action = domain.FadeBuy
		for _, p := range priced[1:] {
			if p.midX2 < pick.midX2 {
				pick = p
			}
		}
	}

	side := action.Side()
	sideX2 := pick.midX2
	if side == domain.SideNo {
		sideX2 = 2*int64(domain.Par) - pick.midX2
	}
	target := domain.Cents(sideX2 / 2)
	if !target.Tradable() {
		return domain.Signal{}, false
	}

	sig := newSignal(domain.KindImpliedProb, pick.market.Ticker, now)
	sig.EventTicker = event
	sig.Action = action
	sig.Side = side
	sig.TargetPrice = target
	sig.YesPrice = domain.Cents(pick.midX2 / 2)
	sig.Implied = &domain.ImpliedEvidence{
		Outcomes:       len(priced),
		ProbabilitySum: float64(sumX2) / 200,
		Deviation:      float64(devX2) / 200,
		OutcomePrice:   float64(pick.midX2) / 2,
	}
	return sig.WithMarket(pick.market), true
}

// Acknowledge implements Detector. The cooldown is already recorded at detection.
func (d *Implied) Acknowledge(context.Context, domain.Signal, time.Time) {}

var _ Detector = (*Implied)(nil)
