package engine

import (
	"time"

	"github.com/optfolio/optfolio/internal/domain"
)

// GroupByUnderlying partitions positions by ticker, preserving first-seen
// group order and original relative order within each group, and attaches
// aggregate figures. A total is only defined when every member carries the
// corresponding value: partial data suppresses the aggregate entirely rather
// than producing a misleading partial sum.
func GroupByUnderlying(positions []domain.Position) []domain.GroupedPosition {
	var order []string
	byTicker := make(map[string][]domain.Position)
	for _, pos := range positions {
		if _, seen := byTicker[pos.Ticker]; !seen {
			order = append(order, pos.Ticker)
		}
		byTicker[pos.Ticker] = append(byTicker[pos.Ticker], pos)
	}

	groups := make([]domain.GroupedPosition, 0, len(order))
	for _, ticker := range order {
		members := byTicker[ticker]
		group := domain.GroupedPosition{
			Underlying: ticker,
			Positions:  members,
		}
		group.TotalGreeks = sumGreeks(members)
		group.TotalPnL = aggregatePnL(members, func(p domain.Position) *domain.PnLResult { return p.PnL })
		group.TotalTheoreticalPnL = aggregatePnL(members, func(p domain.Position) *domain.PnLResult { return p.TheoreticalPnL })
		group.UnderlyingPrice = firstUnderlyingPrice(members)
		groups = append(groups, group)
	}
	return groups
}

// sumGreeks returns the arithmetic sum of member Greeks, or nil when any
// member lacks them. Values are already sign/quantity-adjusted by the pricing
// service, so no re-scaling happens here.
func sumGreeks(members []domain.Position) *domain.Greeks {
	var total domain.Greeks
	for _, m := range members {
		if m.Greeks == nil {
			return nil
		}
		total = total.Add(*m.Greeks)
	}
	return &total
}

// aggregatePnL combines member results into a group result, or nil when any
// member lacks one. Amounts and values are plain sums; percent and implied
// volatility are value-weighted averages computed in a second pass so every
// weight uses the final total as denominator, never a running partial.
func aggregatePnL(members []domain.Position, pick func(domain.Position) *domain.PnLResult) *domain.PnLResult {
	results := make([]domain.PnLResult, 0, len(members))
	for _, m := range members {
		r := pick(m)
		if r == nil {
			return nil
		}
		results = append(results, *r)
	}
	if len(results) == 0 {
		return nil
	}

	// First pass: plain sums.
	total := domain.PnLResult{}
	var latest time.Time
	for _, r := range results {
		total.Amount += r.Amount
		total.InitialValue += r.InitialValue
		total.CurrentValue += r.CurrentValue
		if r.ClientCalculated {
			// A group is only as reliable as its weakest member.
			total.ClientCalculated = true
		}
		if r.UnderlyingPrice != nil && total.UnderlyingPrice == nil {
			v := *r.UnderlyingPrice
			total.UnderlyingPrice = &v
		}
		if r.CalculatedAt.After(latest) {
			latest = r.CalculatedAt
		}
	}
	total.CalculatedAt = latest

	// Second pass: weights against the final total.
	if total.InitialValue > 0 {
		for _, r := range results {
			total.Percent += r.Percent * (r.InitialValue / total.InitialValue)
		}
	}
	total.ImpliedVolatility = weightedImpliedVol(results)

	return &total
}

// weightedImpliedVol averages member implied volatility weighted by cost
// basis, over the members that report one. Nil when none do.
func weightedImpliedVol(results []domain.PnLResult) *float64 {
	var weightTotal float64
	for _, r := range results {
		if r.ImpliedVolatility != nil {
			weightTotal += r.InitialValue
		}
	}
	if weightTotal <= 0 {
		return nil
	}

	var iv float64
	var found bool
	for _, r := range results {
		if r.ImpliedVolatility == nil {
			continue
		}
		found = true
		iv += *r.ImpliedVolatility * (r.InitialValue / weightTotal)
	}
	if !found {
		return nil
	}
	return &iv
}

// firstUnderlyingPrice returns the first non-nil underlying price among
// member results; underlyings are assumed identical within a group.
func firstUnderlyingPrice(members []domain.Position) *float64 {
	for _, m := range members {
		for _, r := range []*domain.PnLResult{m.PnL, m.TheoreticalPnL} {
			if r != nil && r.UnderlyingPrice != nil {
				v := *r.UnderlyingPrice
				return &v
			}
		}
	}
	return nil
}
