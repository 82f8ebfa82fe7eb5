package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/optfolio/optfolio/internal/domain"
	"github.com/optfolio/optfolio/internal/engine"
)

// ChainService serves option-chain and expiration lookups through the chain
// cache, so the ticker/expiration selection flow and the mark-price deriver
// share one bounded set of upstream calls.
type ChainService struct {
	pricing domain.PricingService
	cache   domain.ChainCache
	logger  *slog.Logger
}

// NewChainService creates a ChainService.
func NewChainService(pricing domain.PricingService, cache domain.ChainCache, logger *slog.Logger) *ChainService {
	return &ChainService{
		pricing: pricing,
		cache:   cache,
		logger:  logger,
	}
}

// GetChain returns the option chain for a ticker/expiration, narrowed by the
// filter, with each contract's mark price derived from its quotes.
func (s *ChainService) GetChain(ctx context.Context, ticker string, expiration time.Time, filter domain.ChainFilter) ([]domain.OptionContract, error) {
	contracts, err := s.cache.GetChain(ctx, ticker, expiration, filter, func(ctx context.Context) ([]domain.OptionContract, error) {
		return s.pricing.GetOptionChain(ctx, ticker, expiration, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("chain_service: get chain %s: %w", ticker, err)
	}

	out := make([]domain.OptionContract, len(contracts))
	copy(out, contracts)
	for i := range out {
		out[i].Mark = engine.DeriveMark(out[i].Bid, out[i].Ask)
	}
	return out, nil
}

// GetExpirations returns the selectable expirations for a ticker.
func (s *ChainService) GetExpirations(ctx context.Context, ticker string) ([]domain.Expiration, error) {
	expirations, err := s.cache.GetExpirations(ctx, ticker, func(ctx context.Context) ([]domain.Expiration, error) {
		return s.pricing.GetExpirations(ctx, ticker)
	})
	if err != nil {
		return nil, fmt.Errorf("chain_service: get expirations %s: %w", ticker, err)
	}
	return expirations, nil
}

// LookupMark finds the chain row matching a position and derives its mark
// price. domain.ErrNotFound when the contract is absent from the chain.
func (s *ChainService) LookupMark(ctx context.Context, pos domain.Position) (*float64, error) {
	filter := domain.ChainFilter{
		Type:      pos.Type,
		MinStrike: pos.Strike,
		MaxStrike: pos.Strike,
	}
	contracts, err := s.GetChain(ctx, pos.Ticker, pos.Expiration, filter)
	if err != nil {
		return nil, err
	}

	for _, c := range contracts {
		if c.Type == pos.Type && c.Strike == pos.Strike {
			return engine.DeriveMark(c.Bid, c.Ask), nil
		}
	}
	return nil, domain.ErrNotFound
}

// Invalidate drops cached chain data for a ticker, forcing the next lookup
// to hit the pricing service.
func (s *ChainService) Invalidate(ticker string) {
	s.cache.Invalidate(ticker)
}

// Compile-time check: ChainService feeds the portfolio mark refresher.
var _ MarkSource = (*ChainService)(nil)
