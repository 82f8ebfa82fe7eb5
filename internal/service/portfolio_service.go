// Package service wires the analytics engine to the stores and caches:
// portfolio management, recalculation entrypoints, and cache-fronted chain
// lookups.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optfolio/optfolio/internal/domain"
	"github.com/optfolio/optfolio/internal/engine"
)

// MarkSource resolves a current mark price for a position, typically from
// chain data. Implemented by ChainService.
type MarkSource interface {
	LookupMark(ctx context.Context, pos domain.Position) (*float64, error)
}

// PositionInput is the raw user input for creating or editing a position. A
// negative quantity is accepted and normalized to a sell.
type PositionInput struct {
	Ticker     string
	Expiration time.Time
	Strike     float64
	Type       domain.OptionType
	Action     domain.Action
	Quantity   int
	Premium    *float64
	MarkPrice  *float64
}

// PortfolioService owns the position list and the theoretical projection
// settings. All list mutations go through the store's atomic writes; grouped
// views are derived on every read.
type PortfolioService struct {
	store  domain.PositionStore
	calc   *engine.Calculator
	quotes domain.QuoteCache // optional
	marks  MarkSource        // optional
	logger *slog.Logger

	mu       sync.RWMutex
	settings domain.TheoreticalPnLSettings
}

// NewPortfolioService creates a PortfolioService. quotes and marks may be nil
// when no quote cache or chain lookup is configured; mark-price refresh then
// skips the corresponding source.
func NewPortfolioService(
	store domain.PositionStore,
	calc *engine.Calculator,
	quotes domain.QuoteCache,
	marks MarkSource,
	logger *slog.Logger,
) *PortfolioService {
	return &PortfolioService{
		store:  store,
		calc:   calc,
		quotes: quotes,
		marks:  marks,
		logger: logger,
	}
}

// AddPosition validates the input, assigns an ID, and stores the position.
func (s *PortfolioService) AddPosition(ctx context.Context, input PositionInput) (domain.Position, error) {
	pos, err := domain.NewPosition(uuid.NewString(), input.Ticker, input.Expiration,
		input.Strike, input.Type, input.Action, input.Quantity)
	if err != nil {
		return domain.Position{}, fmt.Errorf("portfolio_service: add position: %w", err)
	}
	pos.Premium = input.Premium
	pos.MarkPrice = input.MarkPrice

	if err := s.store.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("portfolio_service: create position: %w", err)
	}

	s.logger.InfoContext(ctx, "portfolio_service: position added",
		slog.String("position_id", pos.ID),
		slog.String("ticker", pos.Ticker),
		slog.String("action", string(pos.Action)),
		slog.Int("quantity", pos.Quantity),
	)
	return pos, nil
}

// UpdatePosition replaces the editable terms of an existing position.
// Calculated figures (Greeks, P&L) are cleared: they belong to the old terms.
func (s *PortfolioService) UpdatePosition(ctx context.Context, id string, input PositionInput) (domain.Position, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("portfolio_service: get position %q: %w", id, err)
	}

	updated, err := domain.NewPosition(id, input.Ticker, input.Expiration,
		input.Strike, input.Type, input.Action, input.Quantity)
	if err != nil {
		return domain.Position{}, fmt.Errorf("portfolio_service: update position: %w", err)
	}
	updated.Premium = input.Premium
	updated.MarkPrice = current.MarkPrice
	updated.MarkPriceOverride = current.MarkPriceOverride
	updated.CreatedAt = current.CreatedAt
	if input.MarkPrice != nil {
		updated.MarkPrice = input.MarkPrice
		updated.MarkPriceOverride = true
	}

	if err := s.store.Update(ctx, updated); err != nil {
		return domain.Position{}, fmt.Errorf("portfolio_service: update position %q: %w", id, err)
	}
	return updated, nil
}

// DeletePosition removes a position.
func (s *PortfolioService) DeletePosition(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("portfolio_service: delete position %q: %w", id, err)
	}
	return nil
}

// GetPosition returns a single position.
func (s *PortfolioService) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	pos, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("portfolio_service: get position %q: %w", id, err)
	}
	return pos, nil
}

// Positions returns the current position list.
func (s *PortfolioService) Positions(ctx context.Context) ([]domain.Position, error) {
	positions, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list positions: %w", err)
	}
	return positions, nil
}

// Grouped returns the per-underlying view, recomputed from the current
// position list on every call.
func (s *PortfolioService) Grouped(ctx context.Context) ([]domain.GroupedPosition, error) {
	positions, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list positions: %w", err)
	}
	return engine.GroupByUnderlying(positions), nil
}

// SetMarkPrice records a manual mark-price edit. The override flag suppresses
// every automatic update until ClearMarkPriceOverride.
func (s *PortfolioService) SetMarkPrice(ctx context.Context, id string, price float64) error {
	pos, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("portfolio_service: get position %q: %w", id, err)
	}
	if price < 0 {
		return fmt.Errorf("portfolio_service: %w: mark price must be non-negative", domain.ErrValidation)
	}

	pos.MarkPrice = &price
	pos.MarkPriceOverride = true
	if err := s.store.Update(ctx, pos); err != nil {
		return fmt.Errorf("portfolio_service: set mark price %q: %w", id, err)
	}
	return nil
}

// ClearMarkPriceOverride re-enables automatic mark-price updates for a
// position.
func (s *PortfolioService) ClearMarkPriceOverride(ctx context.Context, id string) error {
	pos, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("portfolio_service: get position %q: %w", id, err)
	}

	pos.MarkPriceOverride = false
	if err := s.store.Update(ctx, pos); err != nil {
		return fmt.Errorf("portfolio_service: clear mark override %q: %w", id, err)
	}
	return nil
}

// RefreshMarkPrices updates every position's mark price from the freshest
// available source: the shared quote cache first, then chain data. Positions
// with a manual override are never touched. The updated list is published in
// one atomic replacement.
func (s *PortfolioService) RefreshMarkPrices(ctx context.Context) error {
	positions, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("portfolio_service: list positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	var cached map[string]domain.Quote
	if s.quotes != nil {
		symbols := make([]string, 0, len(positions))
		for _, p := range positions {
			if !p.MarkPriceOverride {
				symbols = append(symbols, p.OCCSymbol())
			}
		}
		cached, err = s.quotes.GetQuotes(ctx, symbols)
		if err != nil {
			s.logger.WarnContext(ctx, "portfolio_service: quote cache read failed",
				slog.String("error", err.Error()),
			)
			cached = nil
		}
	}

	for i := range positions {
		if positions[i].MarkPriceOverride {
			continue
		}

		if q, ok := cached[positions[i].OCCSymbol()]; ok {
			if mark := engine.DeriveMark(q.Bid, q.Ask); mark != nil {
				positions[i].MarkPrice = mark
				continue
			}
		}

		if s.marks == nil {
			continue
		}
		mark, err := s.marks.LookupMark(ctx, positions[i])
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "portfolio_service: mark lookup failed",
					slog.String("position_id", positions[i].ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		if mark != nil {
			positions[i].MarkPrice = mark
		}
	}

	if err := s.store.ReplaceAll(ctx, positions); err != nil {
		return fmt.Errorf("portfolio_service: publish mark prices: %w", err)
	}
	return nil
}

// RecalculateGreeks refreshes Greeks for every position concurrently and
// publishes the result atomically.
func (s *PortfolioService) RecalculateGreeks(ctx context.Context) error {
	return s.recalculate(ctx, engine.MetricGreeks)
}

// RecalculatePnL refreshes current-market P&L for every position.
func (s *PortfolioService) RecalculatePnL(ctx context.Context) error {
	return s.recalculate(ctx, engine.MetricPnL)
}

// RecalculateTheoreticalPnL refreshes projected P&L for every position under
// the current theoretical settings.
func (s *PortfolioService) RecalculateTheoreticalPnL(ctx context.Context) error {
	return s.recalculate(ctx, engine.MetricTheoreticalPnL)
}

func (s *PortfolioService) recalculate(ctx context.Context, metric engine.Metric) error {
	positions, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("portfolio_service: list positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	updated := s.calc.RecalculateAll(ctx, positions, metric, s.TheoreticalSettings())

	if err := s.store.ReplaceAll(ctx, updated); err != nil {
		return fmt.Errorf("portfolio_service: publish %s recalculation: %w", metric, err)
	}

	s.logger.InfoContext(ctx, "portfolio_service: batch recalculation published",
		slog.String("metric", string(metric)),
		slog.Int("positions", len(updated)),
	)
	return nil
}

// SetTheoreticalSettings replaces the projection parameters used by every
// subsequent theoretical recalculation.
func (s *PortfolioService) SetTheoreticalSettings(settings domain.TheoreticalPnLSettings) error {
	if settings.DaysForward < 0 {
		return fmt.Errorf("portfolio_service: %w: days forward must be non-negative", domain.ErrValidation)
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// TheoreticalSettings returns the current projection parameters.
func (s *PortfolioService) TheoreticalSettings() domain.TheoreticalPnLSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Snapshot captures the current portfolio, including grouped aggregates, for
// persistence and archival.
func (s *PortfolioService) Snapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	positions, err := s.store.List(ctx)
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("portfolio_service: list positions: %w", err)
	}
	return domain.PortfolioSnapshot{
		ID:        uuid.NewString(),
		TakenAt:   time.Now().UTC(),
		Positions: positions,
		Groups:    engine.GroupByUnderlying(positions),
	}, nil
}
