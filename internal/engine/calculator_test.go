package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optfolio/optfolio/internal/domain"
)

// fakePricing is a scriptable domain.PricingService. Unset function fields
// succeed with zero values. Call counters are safe for concurrent use.
type fakePricing struct {
	mu sync.Mutex

	greeksFn func(pos domain.Position) (domain.Greeks, error)
	pnlFn    func(positionID string, force bool) (domain.PnLResult, error)
	theoFn   func(positionID string, force bool) (domain.PnLResult, error)
	bulkFn   func(positionIDs []string) (map[string]domain.PnLResult, error)

	greeksCalls int
	pnlCalls    int
	theoCalls   int
	bulkCalls   int
	forceFlags  []bool
}

func (f *fakePricing) GetGreeks(_ context.Context, pos domain.Position) (domain.Greeks, error) {
	f.mu.Lock()
	f.greeksCalls++
	f.mu.Unlock()
	if f.greeksFn == nil {
		return domain.Greeks{}, nil
	}
	return f.greeksFn(pos)
}

func (f *fakePricing) GetPnL(_ context.Context, positionID string, force bool) (domain.PnLResult, error) {
	f.mu.Lock()
	f.pnlCalls++
	f.forceFlags = append(f.forceFlags, force)
	f.mu.Unlock()
	if f.pnlFn == nil {
		return domain.PnLResult{PositionID: positionID}, nil
	}
	return f.pnlFn(positionID, force)
}

func (f *fakePricing) GetTheoreticalPnL(_ context.Context, positionID string, _ domain.TheoreticalPnLSettings, force bool) (domain.PnLResult, error) {
	f.mu.Lock()
	f.theoCalls++
	f.mu.Unlock()
	if f.theoFn == nil {
		return domain.PnLResult{PositionID: positionID}, nil
	}
	return f.theoFn(positionID, force)
}

func (f *fakePricing) GetBulkTheoreticalPnL(_ context.Context, positionIDs []string, _ domain.TheoreticalPnLSettings, _ bool) (map[string]domain.PnLResult, error) {
	f.mu.Lock()
	f.bulkCalls++
	f.mu.Unlock()
	if f.bulkFn == nil {
		return map[string]domain.PnLResult{}, nil
	}
	return f.bulkFn(positionIDs)
}

func (f *fakePricing) GetOptionChain(_ context.Context, _ string, _ time.Time, _ domain.ChainFilter) ([]domain.OptionContract, error) {
	return nil, domain.ErrNotImplemented
}

func (f *fakePricing) GetExpirations(_ context.Context, _ string) ([]domain.Expiration, error) {
	return nil, domain.ErrNotImplemented
}

var _ domain.PricingService = (*fakePricing)(nil)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func newTestCalculator(pricing domain.PricingService) *Calculator {
	return NewCalculator(pricing, CalculatorConfig{Sleep: noSleep}, slog.Default())
}

func testPosition(id string) domain.Position {
	return domain.Position{
		ID:         id,
		Ticker:     "AAPL",
		Expiration: time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC),
		Strike:     150,
		Type:       domain.OptionTypeCall,
		Action:     domain.ActionBuy,
		Quantity:   1,
		Premium:    fp(2.0),
		MarkPrice:  fp(3.0),
	}
}

func TestCalculator_Greeks_Success(t *testing.T) {
	pricing := &fakePricing{
		greeksFn: func(domain.Position) (domain.Greeks, error) {
			return domain.Greeks{Delta: 0.5, Theta: -0.02}, nil
		},
	}
	calc := newTestCalculator(pricing)

	g, err := calc.Greeks(context.Background(), testPosition("p1"))

	require.NoError(t, err)
	require.NotNil(t, g)
	assert.InDelta(t, 0.5, g.Delta, 1e-9)
	assert.Equal(t, 1, pricing.greeksCalls)
}

func TestCalculator_Greeks_RetriesThenTerminal(t *testing.T) {
	pricing := &fakePricing{
		greeksFn: func(domain.Position) (domain.Greeks, error) {
			return domain.Greeks{}, domain.ErrRemote
		},
	}
	calc := newTestCalculator(pricing)

	g, err := calc.Greeks(context.Background(), testPosition("p1"))

	require.Error(t, err)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, domain.ErrRemote)
	// Initial attempt plus three retries.
	assert.Equal(t, 4, pricing.greeksCalls)
}

func TestCalculator_Greeks_NoFallbackOnNotImplemented(t *testing.T) {
	pricing := &fakePricing{
		greeksFn: func(domain.Position) (domain.Greeks, error) {
			return domain.Greeks{}, domain.ErrNotImplemented
		},
	}
	calc := newTestCalculator(pricing)

	g, err := calc.Greeks(context.Background(), testPosition("p1"))

	require.Error(t, err)
	assert.Nil(t, g)
	// Missing capability is terminal immediately, never retried.
	assert.Equal(t, 1, pricing.greeksCalls)
}

func TestCalculator_PnL_RemoteSuccess(t *testing.T) {
	pricing := &fakePricing{
		pnlFn: func(positionID string, _ bool) (domain.PnLResult, error) {
			return domain.PnLResult{Amount: 42.0, Percent: 10.0}, nil
		},
	}
	calc := newTestCalculator(pricing)

	res := calc.PnL(context.Background(), testPosition("p1"))

	assert.Empty(t, res.Err)
	assert.Equal(t, "p1", res.PositionID)
	assert.InDelta(t, 42.0, res.Amount, 1e-9)
	assert.False(t, res.ClientCalculated)
}

func TestCalculator_PnL_FallbackOnNotImplemented(t *testing.T) {
	pricing := &fakePricing{
		pnlFn: func(string, bool) (domain.PnLResult, error) {
			return domain.PnLResult{}, domain.ErrNotImplemented
		},
	}
	calc := newTestCalculator(pricing)

	res := calc.PnL(context.Background(), testPosition("p1"))

	assert.Empty(t, res.Err)
	assert.True(t, res.ClientCalculated)
	assert.InDelta(t, 100.0, res.Amount, 1e-9)
	assert.InDelta(t, 50.0, res.Percent, 1e-9)
	// Fallback happens on the first failure, no retries.
	assert.Equal(t, 1, pricing.pnlCalls)
}

func TestCalculator_PnL_FallbackOnUnavailable(t *testing.T) {
	pricing := &fakePricing{
		pnlFn: func(string, bool) (domain.PnLResult, error) {
			return domain.PnLResult{}, domain.ErrUnavailable
		},
	}
	calc := newTestCalculator(pricing)

	res := calc.PnL(context.Background(), testPosition("p1"))

	assert.True(t, res.ClientCalculated)
	assert.Equal(t, 1, pricing.pnlCalls)
}

func TestCalculator_PnL_RetriesWithForceFlag(t *testing.T) {
	pricing := &fakePricing{
		pnlFn: func(string, bool) (domain.PnLResult, error) {
			return domain.PnLResult{}, domain.ErrRemote
		},
	}
	calc := newTestCalculator(pricing)

	res := calc.PnL(context.Background(), testPosition("p1"))

	assert.NotEmpty(t, res.Err)
	assert.Equal(t, "p1", res.PositionID)
	require.Equal(t, 4, pricing.pnlCalls)
	// First attempt is a plain request; every retry demands a fresh value.
	assert.Equal(t, []bool{false, true, true, true}, pricing.forceFlags)
}

func TestCalculator_PnL_FallbackMissingInputs(t *testing.T) {
	pricing := &fakePricing{
		pnlFn: func(string, bool) (domain.PnLResult, error) {
			return domain.PnLResult{}, domain.ErrUnavailable
		},
	}
	calc := newTestCalculator(pricing)

	pos := testPosition("p1")
	pos.Premium = nil

	res := calc.PnL(context.Background(), pos)

	assert.NotEmpty(t, res.Err)
	assert.True(t, res.ClientCalculated)
	// Data insufficiency is terminal: one remote call, zero retries.
	assert.Equal(t, 1, pricing.pnlCalls)
}

func TestCalculator_TheoreticalPnL_FallbackUsesProjectedMark(t *testing.T) {
	pricing := &fakePricing{
		theoFn: func(string, bool) (domain.PnLResult, error) {
			return domain.PnLResult{}, domain.ErrNotImplemented
		},
	}
	calc := newTestCalculator(pricing)

	res := calc.TheoreticalPnL(context.Background(), testPosition("p1"),
		domain.TheoreticalPnLSettings{PriceChangePercent: 10.0})

	assert.True(t, res.ClientCalculated)
	// Projected mark 3.3 vs premium 2.0 on one contract.
	assert.InDelta(t, 130.0, res.Amount, 1e-6)
}

func TestCalculator_RecalculateAll_AllSettled(t *testing.T) {
	pricing := &fakePricing{
		pnlFn: func(positionID string, _ bool) (domain.PnLResult, error) {
			if positionID == "bad" {
				return domain.PnLResult{}, domain.ErrRemote
			}
			return domain.PnLResult{Amount: 10.0}, nil
		},
	}
	calc := newTestCalculator(pricing)

	positions := []domain.Position{testPosition("p1"), testPosition("bad"), testPosition("p3")}
	out := calc.RecalculateAll(context.Background(), positions, MetricPnL, domain.TheoreticalPnLSettings{})

	require.Len(t, out, 3)
	require.NotNil(t, out[0].PnL)
	require.NotNil(t, out[1].PnL)
	require.NotNil(t, out[2].PnL)
	// One position's terminal failure never blocks its peers.
	assert.Empty(t, out[0].PnL.Err)
	assert.NotEmpty(t, out[1].PnL.Err)
	assert.Empty(t, out[2].PnL.Err)
}

func TestCalculator_RecalculateAll_DoesNotMutateInput(t *testing.T) {
	calc := newTestCalculator(&fakePricing{})

	positions := []domain.Position{testPosition("p1")}
	out := calc.RecalculateAll(context.Background(), positions, MetricPnL, domain.TheoreticalPnLSettings{})

	assert.Nil(t, positions[0].PnL)
	require.NotNil(t, out[0].PnL)
}

func TestCalculator_RecalculateAll_ProbeShortCircuit(t *testing.T) {
	pricing := &fakePricing{
		pnlFn: func(string, bool) (domain.PnLResult, error) {
			return domain.PnLResult{}, domain.ErrNotImplemented
		},
	}
	calc := newTestCalculator(pricing)

	positions := []domain.Position{testPosition("p1"), testPosition("p2"), testPosition("p3")}
	out := calc.RecalculateAll(context.Background(), positions, MetricPnL, domain.TheoreticalPnLSettings{})

	// One probe for the whole batch, then local approximation everywhere.
	assert.Equal(t, 1, pricing.pnlCalls)
	for _, p := range out {
		require.NotNil(t, p.PnL)
		assert.True(t, p.PnL.ClientCalculated)
	}
}

func TestCalculator_RecalculateAll_TransientProbeDoesNotShortCircuit(t *testing.T) {
	var calls int
	var mu sync.Mutex
	pricing := &fakePricing{}
	pricing.pnlFn = func(string, bool) (domain.PnLResult, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			// Probe hits a transient error; the batch proceeds remotely.
			return domain.PnLResult{}, domain.ErrRemote
		}
		return domain.PnLResult{Amount: 1.0}, nil
	}
	calc := newTestCalculator(pricing)

	positions := []domain.Position{testPosition("p1"), testPosition("p2")}
	out := calc.RecalculateAll(context.Background(), positions, MetricPnL, domain.TheoreticalPnLSettings{})

	for _, p := range out {
		require.NotNil(t, p.PnL)
		assert.False(t, p.PnL.ClientCalculated)
		assert.Empty(t, p.PnL.Err)
	}
}

func TestCalculator_RecalculateAll_Greeks(t *testing.T) {
	pricing := &fakePricing{
		greeksFn: func(pos domain.Position) (domain.Greeks, error) {
			if pos.ID == "bad" {
				return domain.Greeks{}, domain.ErrNotImplemented
			}
			return domain.Greeks{Delta: 0.4}, nil
		},
	}
	calc := newTestCalculator(pricing)

	positions := []domain.Position{testPosition("p1"), testPosition("bad")}
	out := calc.RecalculateAll(context.Background(), positions, MetricGreeks, domain.TheoreticalPnLSettings{})

	require.NotNil(t, out[0].Greeks)
	assert.InDelta(t, 0.4, out[0].Greeks.Delta, 1e-9)
	// Greeks have no local approximation: failure clears the value.
	assert.Nil(t, out[1].Greeks)
}

func TestCalculator_RecalculateAll_TheoreticalPrefersBulk(t *testing.T) {
	pricing := &fakePricing{
		bulkFn: func(positionIDs []string) (map[string]domain.PnLResult, error) {
			out := make(map[string]domain.PnLResult, len(positionIDs))
			for _, id := range positionIDs {
				if id == "missing" {
					continue
				}
				out[id] = domain.PnLResult{Amount: 7.0}
			}
			return out, nil
		},
		theoFn: func(positionID string, _ bool) (domain.PnLResult, error) {
			return domain.PnLResult{Amount: 9.0}, nil
		},
	}
	calc := newTestCalculator(pricing)

	positions := []domain.Position{testPosition("p1"), testPosition("missing")}
	out := calc.RecalculateAll(context.Background(), positions, MetricTheoreticalPnL, domain.TheoreticalPnLSettings{})

	assert.Equal(t, 1, pricing.bulkCalls)
	require.NotNil(t, out[0].TheoreticalPnL)
	assert.InDelta(t, 7.0, out[0].TheoreticalPnL.Amount, 1e-9)
	// Positions the bulk response omits fall back to per-position calls.
	require.NotNil(t, out[1].TheoreticalPnL)
	assert.InDelta(t, 9.0, out[1].TheoreticalPnL.Amount, 1e-9)
}

func TestCalculator_RecalculateAll_EmptyInput(t *testing.T) {
	calc := newTestCalculator(&fakePricing{})

	out := calc.RecalculateAll(context.Background(), nil, MetricPnL, domain.TheoreticalPnLSettings{})

	assert.Empty(t, out)
}
