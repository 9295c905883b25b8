package domain

import "time"

// SignalKind identifies the detector that produced a signal.
type SignalKind string

const (
	KindReversion   SignalKind = "reversion"
	KindImpliedProb SignalKind = "implied_prob"
	KindMention     SignalKind = "mention"
)

// AllKinds lists every signal kind in evaluation order.
var AllKinds = []SignalKind{KindReversion, KindImpliedProb, KindMention}

// String returns the string representation of SignalKind.
func (k SignalKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a valid value.
func (k SignalKind) IsValid() bool {
	return k == KindReversion || k == KindImpliedProb || k == KindMention
}

// FadeAction describes the direction relative to the crowd on the YES side.
// FadeSell fades YES buyers by buying NO; FadeBuy buys YES.
type FadeAction string

const (
	FadeSell FadeAction = "sell"
	FadeBuy  FadeAction = "buy"
)

// Side returns the contract side bought to express the fade.
func (a FadeAction) Side() Side {
	if a == FadeSell {
		return SideNo
	}
	return SideYes
}

// Signal is an immutable trade proposal produced by a detector within one cycle.
type Signal struct {
	ID          string
	Ticker      string
	EventTicker string
	Title       string
	Kind        SignalKind
	Action      FadeAction
	Side        Side  // side to buy
	TargetPrice Cents // price of Side at detection, 1..99
	YesPrice    Cents // observed YES price at detection
	CreatedAt   time.Time
	CloseTime   time.Time // market close, zero when unknown

	Reversion *ReversionEvidence
	Implied   *ImpliedEvidence
	Mention   *MentionEvidence
}

// ReversionEvidence records the retail-surge observation behind a reversion signal.
type ReversionEvidence struct {
	SmallTrades   int
	YesRatio      float64
	StartMean     float64 // cents
	EndMean       float64 // cents
	PriceMove     float64 // cents, signed
	DominantSide  Side
	WindowMinutes int
}

// ImpliedEvidence records the mispriced outcome set behind an implied-probability signal.
type ImpliedEvidence struct {
	Outcomes       int
	ProbabilitySum float64 // sum of YES mids as probability, e.g. 1.15
	Deviation      float64 // ProbabilitySum - 1
	OutcomePrice   float64 // YES mid of the chosen outcome, cents
}

// MentionEvidence records timing and flow data behind a mention signal.
type MentionEvidence struct {
	Category       string
	HoursToEvent   float64
	EventStart     time.Time
	EventLive      bool
	Volume24h      int64
	EventVolume24h int64
	EventVelocity  float64 // contracts per minute across the event since the last scan
}

// WithMarket returns a copy enriched with market identity fields that were unknown at detection.
func (s Signal) WithMarket(m *Market) Signal {
	if m == nil {
		return s
	}
	if s.EventTicker == "" {
		s.EventTicker = m.EventTicker
	}
	if s.Title == "" || s.Title == s.Ticker {
		if m.Title != "" {
			s.Title = m.Title
		}
	}
	if s.CloseTime.IsZero() {
		s.CloseTime = m.CloseTime
	}
	return s
}

// Valid reports whether the signal carries a tradable target on a known side.
func (s Signal) Valid() bool {
	return s.Ticker != "" && s.Side.IsValid() && s.TargetPrice.Tradable() && s.Kind.IsValid()
}
