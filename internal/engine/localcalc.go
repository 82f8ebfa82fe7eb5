package engine

import (
	"time"

	"github.com/optfolio/optfolio/internal/domain"
)

// ContractMultiplier converts a per-share option price into per-contract cash
// value: one contract covers 100 underlying shares.
const ContractMultiplier = 100

// ComputePnL calculates profit/loss from entry premium and current mark
// price, with no remote call. Quantity is a magnitude; direction comes from
// action. For sells the premium received is the profit and later price
// increases are losses.
func ComputePnL(quantity int, premium, markPrice float64, action domain.Action) (amount, percent, initialValue, currentValue float64) {
	if quantity < 0 {
		quantity = -quantity
	}

	initialValue = float64(quantity) * premium * ContractMultiplier
	currentValue = float64(quantity) * markPrice * ContractMultiplier

	if action == domain.ActionSell {
		amount = initialValue - currentValue
	} else {
		amount = currentValue - initialValue
	}

	if initialValue > 0 {
		percent = amount / initialValue * 100
	}
	return amount, percent, initialValue, currentValue
}

// TheoreticalMark projects a mark price under a hypothetical underlying move.
// Calls scale with the move, puts scale against it. This is a deliberate
// linear proxy for option sensitivity with no volatility or time-decay term;
// the pricing service owns the real model. Result is clamped at zero.
func TheoreticalMark(markPrice float64, typ domain.OptionType, priceChangePercent float64) float64 {
	m := 1 + priceChangePercent/100

	var theoretical float64
	if typ == domain.OptionTypePut {
		theoretical = markPrice * (2 - m)
	} else {
		theoretical = markPrice * m
	}

	if theoretical < 0 {
		return 0
	}
	return theoretical
}

// clientPnL builds a full client-calculated PnLResult for a position. The
// caller must have checked HasPricingInputs; mark is passed explicitly so
// theoretical calculations can substitute a projected mark.
func clientPnL(pos domain.Position, mark float64) domain.PnLResult {
	amount, percent, initial, current := ComputePnL(pos.Quantity, *pos.Premium, mark, pos.Action)
	return domain.PnLResult{
		PositionID:       pos.ID,
		Amount:           amount,
		Percent:          percent,
		InitialValue:     initial,
		CurrentValue:     current,
		CalculatedAt:     time.Now().UTC(),
		ClientCalculated: true,
	}
}
