package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/optfolio/optfolio/internal/domain"
)

// Metric identifies which figure a calculation run produces.
type Metric string

const (
	MetricGreeks         Metric = "greeks"
	MetricPnL            Metric = "pnl"
	MetricTheoreticalPnL Metric = "theoretical_pnl"
)

const (
	defaultMaxRetries   = 3
	defaultRetryDelay   = time.Second
	defaultProbeTimeout = 5 * time.Second
)

// SleepFunc delays between retry attempts. The default honors context
// cancellation; tests inject a no-op to avoid wall-clock waits.
type SleepFunc func(ctx context.Context, d time.Duration) error

// CalculatorConfig tunes the retry behavior of a Calculator. Zero values fall
// back to the defaults (3 retries, 1s fixed delay, 5s probe timeout).
type CalculatorConfig struct {
	MaxRetries   int
	RetryDelay   time.Duration
	ProbeTimeout time.Duration
	Sleep        SleepFunc
}

// Calculator orchestrates per-position metric calculations against the
// pricing service. Every public method resolves to a value: remote failures
// are retried, routed to the local approximation where one exists, or
// surfaced inside the result instead of escaping as errors mid-batch.
type Calculator struct {
	pricing      domain.PricingService
	maxRetries   int
	retryDelay   time.Duration
	probeTimeout time.Duration
	sleep        SleepFunc
	logger       *slog.Logger
}

// NewCalculator creates a Calculator talking to the given pricing service.
func NewCalculator(pricing domain.PricingService, cfg CalculatorConfig, logger *slog.Logger) *Calculator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepWithContext
	}
	return &Calculator{
		pricing:      pricing,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		probeTimeout: cfg.ProbeTimeout,
		sleep:        cfg.Sleep,
		logger:       logger,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Greeks fetches position Greeks from the pricing service with bounded
// retries. There is no local fallback: the service is the sole source of
// sign/quantity-adjusted Greeks, so a terminal failure yields a nil value and
// a descriptive error.
func (c *Calculator) Greeks(ctx context.Context, pos domain.Position) (*domain.Greeks, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attempts++
		g, err := c.pricing.GetGreeks(ctx, pos)
		if err == nil {
			return &g, nil
		}
		lastErr = err

		// A missing capability cannot be retried into existence.
		if errors.Is(err, domain.ErrNotImplemented) {
			break
		}
		if attempt < c.maxRetries {
			if sleepErr := c.sleep(ctx, c.retryDelay); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}
	return nil, fmt.Errorf("greeks for %s failed after %d attempts: %w", pos.ID, attempts, lastErr)
}

// PnL produces a current-market P&L result for a position. Not-implemented
// and unreachable-service failures route to the local approximation; other
// failures retry with the force-recompute flag set from the first retry on.
func (c *Calculator) PnL(ctx context.Context, pos domain.Position) domain.PnLResult {
	return c.remotePnL(ctx, pos, func(ctx context.Context, force bool) (domain.PnLResult, error) {
		return c.pricing.GetPnL(ctx, pos.ID, force)
	}, func() domain.PnLResult {
		return c.fallbackPnL(pos)
	})
}

// TheoreticalPnL produces a projected P&L result under the given settings,
// with the same retry/fallback routing as PnL.
func (c *Calculator) TheoreticalPnL(ctx context.Context, pos domain.Position, settings domain.TheoreticalPnLSettings) domain.PnLResult {
	return c.remotePnL(ctx, pos, func(ctx context.Context, force bool) (domain.PnLResult, error) {
		return c.pricing.GetTheoreticalPnL(ctx, pos.ID, settings, force)
	}, func() domain.PnLResult {
		return c.fallbackTheoretical(pos, settings)
	})
}

// remotePnL is the shared per-position state machine for P&L metrics:
// request, then succeed, fall back, retry, or fail terminally.
func (c *Calculator) remotePnL(ctx context.Context, pos domain.Position,
	call func(ctx context.Context, force bool) (domain.PnLResult, error),
	fallback func() domain.PnLResult,
) domain.PnLResult {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attempts++

		// Once a retry has occurred the request carries the force flag so we
		// never retry against a stale cached remote value.
		res, err := call(ctx, attempt > 0)
		if err == nil {
			res.PositionID = pos.ID
			res.Err = ""
			return res
		}
		lastErr = err

		if errors.Is(err, domain.ErrNotImplemented) || errors.Is(err, domain.ErrUnavailable) {
			c.logger.Debug("pricing service unavailable, using local approximation",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			return fallback()
		}

		if attempt < c.maxRetries {
			if sleepErr := c.sleep(ctx, c.retryDelay); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	return domain.ErrorResult(pos.ID, fmt.Sprintf("calculation failed after %d attempts: %v", attempts, lastErr))
}

// fallbackPnL runs the local approximation for current P&L. Missing inputs
// yield an error-flagged result immediately; retrying cannot produce data the
// position does not carry.
func (c *Calculator) fallbackPnL(pos domain.Position) domain.PnLResult {
	if !pos.HasPricingInputs() {
		res := domain.ErrorResult(pos.ID, domain.ErrMissingInputs.Error())
		res.ClientCalculated = true
		return res
	}
	return clientPnL(pos, *pos.MarkPrice)
}

func (c *Calculator) fallbackTheoretical(pos domain.Position, settings domain.TheoreticalPnLSettings) domain.PnLResult {
	if !pos.HasPricingInputs() {
		res := domain.ErrorResult(pos.ID, domain.ErrMissingInputs.Error())
		res.ClientCalculated = true
		return res
	}
	mark := TheoreticalMark(*pos.MarkPrice, pos.Type, settings.PriceChangePercent)
	return clientPnL(pos, mark)
}

// RecalculateAll runs the per-position state machine for every position
// concurrently and returns a fully recalculated copy of the list. One
// position's terminal failure never cancels the others, and the input slice
// is not mutated: the caller publishes the returned slice in a single atomic
// replacement.
//
// For P&L metrics a single representative position is probed first; when the
// probe reports the capability is missing, the whole batch short-circuits to
// the local approximation instead of issuing N doomed remote calls.
func (c *Calculator) RecalculateAll(ctx context.Context, positions []domain.Position, metric Metric, settings domain.TheoreticalPnLSettings) []domain.Position {
	out := make([]domain.Position, len(positions))
	copy(out, positions)
	if len(out) == 0 {
		return out
	}

	switch metric {
	case MetricGreeks:
		c.recalcGreeks(ctx, out)
	case MetricPnL:
		if !c.probeSupported(ctx, out[0], metric, settings) {
			for i := range out {
				res := c.fallbackPnL(out[i])
				out[i].PnL = &res
			}
			return out
		}
		forEachConcurrent(out, func(i int) {
			res := c.PnL(ctx, out[i])
			out[i].PnL = &res
		})
	case MetricTheoreticalPnL:
		if !c.probeSupported(ctx, out[0], metric, settings) {
			for i := range out {
				res := c.fallbackTheoretical(out[i], settings)
				out[i].TheoreticalPnL = &res
			}
			return out
		}
		c.recalcTheoretical(ctx, out, settings)
	}
	return out
}

func (c *Calculator) recalcGreeks(ctx context.Context, out []domain.Position) {
	forEachConcurrent(out, func(i int) {
		g, err := c.Greeks(ctx, out[i])
		if err != nil {
			c.logger.Warn("greeks calculation failed",
				slog.String("position_id", out[i].ID),
				slog.String("error", err.Error()),
			)
			out[i].Greeks = nil
			return
		}
		out[i].Greeks = g
	})
}

// recalcTheoretical prefers the bulk endpoint: one request for the whole
// batch. Positions the bulk response omits, and the entire batch when bulk
// fails, drop down to the per-position state machine.
func (c *Calculator) recalcTheoretical(ctx context.Context, out []domain.Position, settings domain.TheoreticalPnLSettings) {
	ids := make([]string, len(out))
	for i, p := range out {
		ids[i] = p.ID
	}

	bulk, err := c.pricing.GetBulkTheoreticalPnL(ctx, ids, settings, false)
	if err != nil {
		c.logger.Debug("bulk theoretical pnl unavailable, calculating per position",
			slog.String("error", err.Error()),
		)
		bulk = nil
	}

	forEachConcurrent(out, func(i int) {
		if res, ok := bulk[out[i].ID]; ok {
			res.PositionID = out[i].ID
			out[i].TheoreticalPnL = &res
			return
		}
		res := c.TheoreticalPnL(ctx, out[i], settings)
		out[i].TheoreticalPnL = &res
	})
}

// probeSupported issues a single bounded request for the representative
// position. Only a definite not-implemented answer disables the batch;
// transient trouble lets the per-position machines handle their own retries.
func (c *Calculator) probeSupported(ctx context.Context, pos domain.Position, metric Metric, settings domain.TheoreticalPnLSettings) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	var err error
	if metric == MetricTheoreticalPnL {
		_, err = c.pricing.GetTheoreticalPnL(probeCtx, pos.ID, settings, false)
	} else {
		_, err = c.pricing.GetPnL(probeCtx, pos.ID, false)
	}
	if errors.Is(err, domain.ErrNotImplemented) {
		c.logger.Info("pricing service does not support metric, batch using local approximation",
			slog.String("metric", string(metric)),
		)
		return false
	}
	return true
}

// forEachConcurrent runs fn for every index and joins with an all-settled
// wait. Each goroutine owns its own index, so no locking is needed; this is
// deliberately not an errgroup, whose first-error cancellation would be
// exactly the fail-fast behavior batch recalculation must avoid.
func forEachConcurrent(positions []domain.Position, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(len(positions))
	for i := range positions {
		go func(i int) {
			defer wg.Done()
			fn(i)
		}(i)
	}
	wg.Wait()
}
