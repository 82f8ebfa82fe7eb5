// Package engine implements the analytics core: mark-price derivation, the
// local P&L approximation, the remote-calculation orchestrator with retry and
// fallback, and cross-position aggregation.
package engine

import "math"

// DeriveMark computes a tradable reference price from a bid/ask pair.
//
// Both sides present yields the midpoint; exactly one side yields that side.
// A present side that is negative or NaN marks the whole quote as corrupt and
// the result is nil, regardless of the other side. A nil result means
// "unknown" and must never be coerced to zero by callers.
func DeriveMark(bid, ask *float64) *float64 {
	if quoteCorrupt(bid) || quoteCorrupt(ask) {
		return nil
	}

	switch {
	case bid != nil && ask != nil:
		mid := (*bid + *ask) / 2
		return &mid
	case bid != nil:
		v := *bid
		return &v
	case ask != nil:
		v := *ask
		return &v
	default:
		return nil
	}
}

func quoteCorrupt(v *float64) bool {
	return v != nil && (math.IsNaN(*v) || *v < 0)
}
