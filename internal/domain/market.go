package domain

import (
	"sort"
	"time"
)

// Market status values reported by the exchange.
const (
	MarketOpen      = "open"
	MarketActive    = "active"
	MarketClosed    = "closed"
	MarketSettled   = "settled"
	MarketFinalized = "finalized"
)

// Market is a single binary contract listing.
type Market struct {
	Ticker       string
	EventTicker  string
	SeriesTicker string
	Title        string
	Subtitle     string
	Category     string
	Status       string
	Result       string // "yes", "no", or empty while unresolved
	YesBid       Cents  // zero when absent
	YesAsk       Cents  // zero when absent
	LastPrice    Cents  // zero when absent
	Volume24h    int64
	OpenInterest int64
	CloseTime    time.Time
}

// Settled reports whether the market has a final outcome.
func (m *Market) Settled() bool {
	return m.Status == MarketSettled || m.Status == MarketFinalized
}

// YesMidX2 returns twice the YES mid price (to keep half cents exact).
// Falls back to twice the last price when either quote is missing.
func (m *Market) YesMidX2() (int64, bool) {
	if m.YesBid > 0 && m.YesAsk > 0 {
		return int64(m.YesBid + m.YesAsk), true
	}
	if m.LastPrice > 0 {
		return int64(2 * m.LastPrice), true
	}
	return 0, false
}

// SideMid returns the mid price for side s rounded down to a whole cent.
func (m *Market) SideMid(s Side) (Cents, bool) {
	x2, ok := m.YesMidX2()
	if !ok {
		return 0, false
	}
	if s == SideNo {
		x2 = 200 - x2
	}
	return Cents(x2 / 2), true
}

// Trade is a single public execution on the exchange.
type Trade struct {
	ID        string
	Ticker    string
	Count     int
	YesPrice  Cents
	TakerSide Side
	CreatedAt time.Time
}

// Level is one order book price level.
type Level struct {
	Price    Cents
	Quantity int
}

// Orderbook holds resting bids for both sides. The venue publishes bids only.
type Orderbook struct {
	Ticker string
	Yes    []Level
	No     []Level
}

// Bids returns the bids for side s.
func (b *Orderbook) Bids(s Side) []Level {
	if b == nil {
		return nil
	}
	if s == SideYes {
		return b.Yes
	}
	return b.No
}

// Asks derives asks for side s by inverting the opposite side's bids, sorted ascending.
func (b *Orderbook) Asks(s Side) []Level {
	opp := b.Bids(s.Opposite())
	asks := make([]Level, 0, len(opp))
	for _, l := range opp {
		if l.Quantity <= 0 || !l.Price.Tradable() {
			continue
		}
		asks = append(asks, Level{Price: l.Price.Complement(), Quantity: l.Quantity})
	}
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	return asks
}

// BestBid returns the highest bid for side s.
func (b *Orderbook) BestBid(s Side) (Cents, bool) {
	var best Cents
	for _, l := range b.Bids(s) {
		if l.Quantity > 0 && l.Price > best {
			best = l.Price
		}
	}
	return best, best > 0
}

// Empty reports whether neither side has liquidity.
func (b *Orderbook) Empty() bool {
	return b == nil || (len(b.Yes) == 0 && len(b.No) == 0)
}

// Milestone is an out-of-band real-world event schedule entry.
type Milestone struct {
	EventTicker string
	Title       string
	Start       time.Time
	End         time.Time // zero when open-ended
}

// Live reports whether the event has started and not yet ended.
func (m Milestone) Live(now time.Time) bool {
	if now.Before(m.Start) {
		return false
	}
	return m.End.IsZero() || now.Before(m.End)
}

// Series is a family of recurring events.
type Series struct {
	Ticker   string
	Title    string
	Category string
}

// ExchangePosition is a position as held on the exchange account.
type ExchangePosition struct {
	Ticker   string
	Position int // positive YES, negative NO
}

// EventVolume aggregates 24h volume across all markets of an event.
type EventVolume struct {
	Volume24h int64
	Velocity  float64 // contracts per minute since the previous observation
}
