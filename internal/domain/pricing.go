package domain

import (
	"context"
	"time"
)

// PricingService is the remote pricing/market-data collaborator. It is the
// sole source of Greeks (already action/quantity adjusted) and the preferred
// source of P&L; the engine only approximates locally when this service is
// absent or unreachable.
//
// Implementations translate errors into the sentinel taxonomy:
// ErrNotImplemented (capability absent), ErrUnavailable (transport failure),
// ErrRemote (any other non-2xx, retryable).
type PricingService interface {
	GetGreeks(ctx context.Context, pos Position) (Greeks, error)
	GetPnL(ctx context.Context, positionID string, forceRecompute bool) (PnLResult, error)
	GetTheoreticalPnL(ctx context.Context, positionID string, settings TheoreticalPnLSettings, forceRecompute bool) (PnLResult, error)
	GetBulkTheoreticalPnL(ctx context.Context, positionIDs []string, settings TheoreticalPnLSettings, forceRecompute bool) (map[string]PnLResult, error)
	GetOptionChain(ctx context.Context, ticker string, expiration time.Time, filter ChainFilter) ([]OptionContract, error)
	GetExpirations(ctx context.Context, ticker string) ([]Expiration, error)
}
