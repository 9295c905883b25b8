package detector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"kalshi-trader/internal/classify"
	"kalshi-trader/internal/domain"
)

// MentionWindow bounds entry timing relative to the real-world event start.
// Entry is allowed while -After <= start-now <= Before.
type MentionWindow struct {
	Before     time.Duration `yaml:"before"`
	After      time.Duration `yaml:"after"`
	MaxNoPrice domain.Cents  `yaml:"max_no_price"` // zero uses MentionConfig.MaxNoPrice
}

// Allows reports whether an event starting at start is inside the window at now.
func (w MentionWindow) Allows(start, now time.Time) bool {
	until := start.Sub(now)
	return until <= w.Before && until >= -w.After
}

// MentionConfig configures the mention-market detector.
type MentionConfig struct {
	MinNoPrice       domain.Cents                        `yaml:"min_no_price"`
	MaxNoPrice       domain.Cents                        `yaml:"max_no_price"`
	Windows          map[classify.Category]MentionWindow `yaml:"windows"`
	MaxCloseHorizon  time.Duration                       `yaml:"max_close_horizon"` // zero disables
	DefaultHold      time.Duration                       `yaml:"default_hold"`      // exit deadline when close time is unknown
	Cooldown         time.Duration                       `yaml:"cooldown"`
	RequireMilestone bool                                `yaml:"require_milestone"`
}

// DefaultMentionConfig returns the default mention thresholds.
func DefaultMentionConfig() MentionConfig {
	return MentionConfig{
		MinNoPrice: 5,
		MaxNoPrice: 30,
		Windows: map[classify.Category]MentionWindow{
			classify.Mention:         {Before: 90 * time.Minute},
			classify.MentionLive:     {After: 2 * time.Hour, MaxNoPrice: 25},
			classify.MentionExtended: {Before: 24 * time.Hour},
		},
		DefaultHold:      24 * time.Hour,
		Cooldown:         24 * time.Hour,
		RequireMilestone: true,
	}
}

// Mention buys NO on phrase-mention markets near their live event.
// The cooldown is recorded only in Acknowledge, after an order was placed.
type Mention struct {
	cfg        MentionConfig
	classifier classify.Classifier
	ledger     *Ledger
	log        zerolog.Logger
}

// NewMention creates a mention detector.
func NewMention(cfg MentionConfig, classifier classify.Classifier, ledger *Ledger, log zerolog.Logger) *Mention {
	return &Mention{
		cfg:        cfg,
		classifier: classifier,
		ledger:     ledger,
		log:        log.With().Str("detector", string(domain.KindMention)).Logger(),
	}
}

// Kind implements Detector.
func (d *Mention) Kind() domain.SignalKind {
	return domain.KindMention
}

// Band returns the NO price band that applies to ticker.
func (d *Mention) Band(ticker, title string) (domain.Cents, domain.Cents) {
	maxNo := d.cfg.MaxNoPrice
	if w, ok := d.window(d.classifier.Classify(ticker, title)); ok && w.MaxNoPrice > 0 {
		maxNo = w.MaxNoPrice
	}
	return d.cfg.MinNoPrice, maxNo
}

func (d *Mention) window(cat classify.Category) (MentionWindow, bool) {
	if !cat.IsMention() || cat == classify.MentionExcluded {
		return MentionWindow{}, false
	}
	if w, ok := d.cfg.Windows[cat]; ok {
		return w, true
	}
	w, ok := d.cfg.Windows[classify.Mention]
	return w, ok
}

// Detect implements Detector.
func (d *Mention) Detect(ctx context.Context, obs Observations, now time.Time) []domain.Signal {
	var signals []domain.Signal
	for i := range obs.Markets {
		if ctx.Err() != nil {
			break
		}
		m := &obs.Markets[i]
		sig, ok := d.evaluate(m, obs, now)
		if !ok {
			continue
		}
		d.log.Info().
			Str("ticker", m.Ticker).
			Str("category", sig.Mention.Category).
			Float64("hours_to_event", sig.Mention.HoursToEvent).
			Int64("no_price", int64(sig.TargetPrice)).
			Msg("mention signal")
		signals = append(signals, sig)
	}
	return signals
}

func (d *Mention) evaluate(m *domain.Market, obs Observations, now time.Time) (domain.Signal, bool) {
	if m.Ticker == "" || m.Settled() || m.Status == domain.MarketClosed {
		return domain.Signal{}, false
	}
	cat := d.classifier.Classify(m.Ticker, m.Title)
	w, ok := d.window(cat)
	if !ok {
		return domain.Signal{}, false
	}
	if d.ledger.Active(m.Ticker, now) {
		return domain.Signal{}, false
	}

	closeTime := m.CloseTime
	if closeTime.IsZero() {
		closeTime = now.Add(d.cfg.DefaultHold)
	}
	if !closeTime.After(now) {
		return domain.Signal{}, false
	}
	if d.cfg.MaxCloseHorizon > 0 && closeTime.Sub(now) > d.cfg.MaxCloseHorizon {
		return domain.Signal{}, false
	}

	x2, ok := m.YesMidX2()
	if !ok {
		return domain.Signal{}, false
	}
	noX2 := 2*int64(domain.Par) - x2
	minNo, maxNo := d.cfg.MinNoPrice, d.cfg.MaxNoPrice
	if w.MaxNoPrice > 0 {
		maxNo = w.MaxNoPrice
	}
	if noX2 < 2*int64(minNo) || noX2 > 2*int64(maxNo) {
		return domain.Signal{}, false
	}

	ms, hasMilestone := obs.Milestones[m.EventTicker]
	if hasMilestone && ms.Start.IsZero() {
		hasMilestone = false
	}
	var hours float64
	if hasMilestone {
		if !w.Allows(ms.Start, now) {
			return domain.Signal{}, false
		}
		hours = ms.Start.Sub(now).Hours()
	} else if d.cfg.RequireMilestone {
		return domain.Signal{}, false
	}

	target := domain.Cents(noX2 / 2)
	if !target.Tradable() {
		return domain.Signal{}, false
	}

	ev := obs.EventVolume[m.EventTicker]
	sig := newSignal(domain.KindMention, m.Ticker, now)
	sig.Action = domain.FadeSell
	sig.Side = domain.SideNo
	sig.TargetPrice = target
	sig.YesPrice = domain.Cents(x2 / 2)
	sig.CloseTime = closeTime
	sig.Mention = &domain.MentionEvidence{
		Category:       string(cat),
		HoursToEvent:   hours,
		EventStart:     ms.Start,
		EventLive:      hasMilestone && ms.Live(now),
		Volume24h:      m.Volume24h,
		EventVolume24h: ev.Volume24h,
		EventVelocity:  ev.Velocity,
	}
	return sig.WithMarket(m), true
}

// Acknowledge implements Detector. It starts the ticker's cooldown.
func (d *Mention) Acknowledge(ctx context.Context, sig domain.Signal, now time.Time) {
	d.ledger.Record(ctx, sig.Ticker, now)
}

var _ Detector = (*Mention)(nil)
