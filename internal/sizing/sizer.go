// Package sizing computes order sizes from order book depth.
package sizing

import (
	"kalshi-trader/internal/domain"
)

// Params configures depth-based sizing.
type Params struct {
	TopLevels     int          `yaml:"top_levels"`     // number of ask levels counted as depth
	DepthFraction float64      `yaml:"depth_fraction"` // share of depth committed
	MaxBet        domain.Cents `yaml:"max_bet"`
	MinBet        domain.Cents `yaml:"min_bet"`
}

// DefaultParams returns the reversion sizing defaults.
func DefaultParams() Params {
	return Params{
		TopLevels:     3,
		DepthFraction: 0.5,
		MaxBet:        300,
		MinBet:        100,
	}
}

// Reasons a quote proposes no trade.
const (
	ReasonNoAsks      = "no_asks"
	ReasonBelowMinBet = "below_min_bet"
	ReasonTooPricey   = "price_exceeds_bet"
)

// Quote is the sizing result for one side of a book.
type Quote struct {
	Side      domain.Side
	BestPrice domain.Cents // best implied ask, zero when the side has no asks
	Depth     domain.Cents // notional of the top levels
	Bet       domain.Cents // capital committed
	Contracts int
	Reason    string // set when Contracts is zero
}

// Tradable reports whether the quote proposes at least one contract.
func (q Quote) Tradable() bool {
	return q.Contracts > 0
}

// Size proposes a bet from the implied asks of side s.
// bet = min(depth * fraction, MaxBet); below MinBet there is no trade.
func Size(book *domain.Orderbook, s domain.Side, p Params) Quote {
	q := Quote{Side: s}

	asks := book.Asks(s)
	if len(asks) == 0 {
		q.Reason = ReasonNoAsks
		return q
	}
	q.BestPrice = asks[0].Price

	levels := p.TopLevels
	if levels <= 0 || levels > len(asks) {
		levels = len(asks)
	}
	for _, l := range asks[:levels] {
		q.Depth += l.Price * domain.Cents(l.Quantity)
	}

	bet := domain.Cents(float64(q.Depth) * p.DepthFraction)
	if p.MaxBet > 0 && bet > p.MaxBet {
		bet = p.MaxBet
	}
	if bet < p.MinBet || bet <= 0 {
		q.Reason = ReasonBelowMinBet
		return q
	}
	q.Bet = bet

	return withContracts(q)
}

// Fixed proposes a fixed bet at the best implied ask of side s.
func Fixed(book *domain.Orderbook, s domain.Side, bet domain.Cents) Quote {
	q := Quote{Side: s, Bet: bet}

	asks := book.Asks(s)
	if len(asks) == 0 {
		q.Reason = ReasonNoAsks
		return q
	}
	q.BestPrice = asks[0].Price
	q.Depth = asks[0].Price * domain.Cents(asks[0].Quantity)

	return withContracts(q)
}

// Affordable returns how many contracts fit under a cap at a given price.
func Affordable(limit, price domain.Cents) int {
	if price <= 0 || limit <= 0 {
		return 0
	}
	return int(limit / price)
}

func withContracts(q Quote) Quote {
	q.Contracts = Affordable(q.Bet, q.BestPrice)
	if q.Contracts == 0 {
		q.Reason = ReasonTooPricey
	}
	return q
}
