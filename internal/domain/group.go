package domain

// GroupedPosition is the derived per-underlying view of the portfolio. It is
// recomputed from the position list on every read and never persisted, so a
// grouped view can never be stale independently of its members.
//
// TotalGreeks is set only when every member carries Greeks; TotalPnL and
// TotalTheoreticalPnL likewise require the corresponding result on every
// member. A nil total means "not yet computable", not zero.
type GroupedPosition struct {
	Underlying      string
	UnderlyingPrice *float64
	Positions       []Position

	TotalGreeks         *Greeks
	TotalPnL            *PnLResult
	TotalTheoreticalPnL *PnLResult
}
