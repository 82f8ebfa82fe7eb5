package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optfolio/optfolio/internal/domain"
)

func TestComputePnL_Buy(t *testing.T) {
	amount, percent, initial, current := ComputePnL(1, 2.0, 3.0, domain.ActionBuy)

	assert.InDelta(t, 100.0, amount, 1e-9)
	assert.InDelta(t, 50.0, percent, 1e-9)
	assert.InDelta(t, 200.0, initial, 1e-9)
	assert.InDelta(t, 300.0, current, 1e-9)
}

func TestComputePnL_Sell(t *testing.T) {
	// A sold option that got more expensive is a loss for the writer.
	amount, percent, initial, current := ComputePnL(1, 2.0, 3.0, domain.ActionSell)

	assert.InDelta(t, -100.0, amount, 1e-9)
	assert.InDelta(t, -50.0, percent, 1e-9)
	assert.InDelta(t, 200.0, initial, 1e-9)
	assert.InDelta(t, 300.0, current, 1e-9)
}

func TestComputePnL_MultipleContracts(t *testing.T) {
	amount, percent, _, _ := ComputePnL(5, 1.0, 1.2, domain.ActionBuy)

	assert.InDelta(t, 100.0, amount, 1e-9)
	assert.InDelta(t, 20.0, percent, 1e-9)
}

func TestComputePnL_NegativeQuantityTreatedAsMagnitude(t *testing.T) {
	amount, _, initial, _ := ComputePnL(-2, 1.0, 1.5, domain.ActionBuy)

	assert.InDelta(t, 100.0, amount, 1e-9)
	assert.InDelta(t, 200.0, initial, 1e-9)
}

func TestComputePnL_ZeroPremiumGuardsPercent(t *testing.T) {
	amount, percent, initial, _ := ComputePnL(1, 0.0, 2.0, domain.ActionBuy)

	assert.InDelta(t, 200.0, amount, 1e-9)
	assert.Zero(t, percent)
	assert.Zero(t, initial)
}

func TestTheoreticalMark_Call(t *testing.T) {
	assert.InDelta(t, 5.5, TheoreticalMark(5.0, domain.OptionTypeCall, 10.0), 1e-9)
}

func TestTheoreticalMark_Put(t *testing.T) {
	assert.InDelta(t, 4.5, TheoreticalMark(5.0, domain.OptionTypePut, 10.0), 1e-9)
}

func TestTheoreticalMark_NegativeMove(t *testing.T) {
	assert.InDelta(t, 4.5, TheoreticalMark(5.0, domain.OptionTypeCall, -10.0), 1e-9)
	assert.InDelta(t, 5.5, TheoreticalMark(5.0, domain.OptionTypePut, -10.0), 1e-9)
}

func TestTheoreticalMark_ClampedAtZero(t *testing.T) {
	assert.Zero(t, TheoreticalMark(5.0, domain.OptionTypeCall, -300.0))
	assert.Zero(t, TheoreticalMark(5.0, domain.OptionTypePut, 300.0))
}

func TestTheoreticalMark_ZeroMoveIsIdentity(t *testing.T) {
	assert.InDelta(t, 5.0, TheoreticalMark(5.0, domain.OptionTypeCall, 0.0), 1e-9)
	assert.InDelta(t, 5.0, TheoreticalMark(5.0, domain.OptionTypePut, 0.0), 1e-9)
}
