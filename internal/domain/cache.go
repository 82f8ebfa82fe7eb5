package domain

import (
	"context"
	"time"
)

// Quote is a bid/ask pair for one option symbol or underlying.
type Quote struct {
	Symbol string
	Bid    *float64
	Ask    *float64
	At     time.Time
}

// QuoteCache provides fast access to the latest quotes so mark-price
// refreshes do not hit the pricing service for every position.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// ChainCache fronts option-chain and expiration lookups with single-flight,
// TTL-bounded caching. Concurrent calls for the same key share one producer
// invocation; failed producers cache nothing.
type ChainCache interface {
	GetChain(ctx context.Context, ticker string, expiration time.Time, filter ChainFilter,
		producer func(ctx context.Context) ([]OptionContract, error)) ([]OptionContract, error)
	GetExpirations(ctx context.Context, ticker string,
		producer func(ctx context.Context) ([]Expiration, error)) ([]Expiration, error)
	Invalidate(ticker string)
}
