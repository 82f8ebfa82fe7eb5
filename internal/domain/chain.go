package domain

import "time"

// OptionContract is one row of an option chain as served by the pricing
// service: quotes, liquidity and per-contract Greeks.
type OptionContract struct {
	Symbol       string
	Ticker       string
	Expiration   time.Time
	Strike       float64
	Type         OptionType
	Bid          *float64
	Ask          *float64
	Last         *float64
	Mark         *float64
	Volume       int64
	OpenInterest int64
	Greeks       *Greeks
	ImpliedVol   *float64
	InTheMoney   bool
}

// Expiration is one selectable expiration date for an underlying.
type Expiration struct {
	Date             time.Time
	DaysToExpiration int
}

// ChainFilter narrows an option chain lookup. Zero bounds mean unbounded.
type ChainFilter struct {
	Type      OptionType // empty = both
	MinStrike float64
	MaxStrike float64
}
