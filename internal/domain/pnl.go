package domain

import "time"

// PnLResult is the outcome of one profit/loss calculation, whether current
// (market) or theoretical (projected price/time shift). A result is always
// structurally valid: failures are carried in Err, never as a missing value.
type PnLResult struct {
	PositionID string

	// Amount is the signed P&L in currency; Percent is relative to cost basis.
	Amount  float64
	Percent float64

	// InitialValue is the cost basis magnitude, CurrentValue the present
	// value, both non-negative.
	InitialValue float64
	CurrentValue float64

	ImpliedVolatility *float64
	UnderlyingPrice   *float64

	CalculatedAt time.Time

	// Err, when non-empty, is the human-readable reason the calculation
	// failed. Magnitudes are zero unless a partial client-side calculation
	// succeeded.
	Err string

	// ClientCalculated marks results produced by the local approximation
	// rather than the pricing service.
	ClientCalculated bool
}

// ErrorResult builds a zeroed, error-flagged result for a position.
func ErrorResult(positionID, reason string) PnLResult {
	return PnLResult{
		PositionID:   positionID,
		CalculatedAt: time.Now().UTC(),
		Err:          reason,
	}
}

// TheoreticalPnLSettings are the projection parameters applied to every
// theoretical recalculation until changed again.
type TheoreticalPnLSettings struct {
	DaysForward        int
	PriceChangePercent float64
}
