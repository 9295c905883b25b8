package domain

import "fmt"

// Cents is the canonical fixed-point unit for prices and money.
// Contract prices are 1..99; dollar amounts (bets, balances, P&L) use the same unit.
type Cents int64

// Contract price bounds.
const (
	MinPrice Cents = 1
	MaxPrice Cents = 99
	Par      Cents = 100
)

// Complement returns the price of the opposite side (NO = 100 - YES).
func (c Cents) Complement() Cents {
	return Par - c
}

// Tradable reports whether c is a valid limit price.
func (c Cents) Tradable() bool {
	return c >= MinPrice && c <= MaxPrice
}

// Dollars converts to a float dollar amount for display.
func (c Cents) Dollars() float64 {
	return float64(c) / 100
}

// String formats the value as dollars, e.g. "$1.05" or "-$0.40".
func (c Cents) String() string {
	sign := ""
	v := c
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}

// Side is a contract side.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other contract side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideYes || s == SideNo
}

// PriceFromYes converts a YES price into the price of side s.
func (s Side) PriceFromYes(yes Cents) Cents {
	if s == SideNo {
		return yes.Complement()
	}
	return yes
}

// OrderAction is buy or sell.
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)
