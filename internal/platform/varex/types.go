package varex

import (
	"time"

	"github.com/optfolio/optfolio/internal/domain"
)

// Wire shapes for the Varex pricing API. Field names are the service's
// snake_case; translation to the internal camel-case types is 1:1 with no
// semantic transformation beyond naming.

type greeksResponse struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

func (g greeksResponse) toDomain() domain.Greeks {
	return domain.Greeks{
		Delta: g.Delta,
		Gamma: g.Gamma,
		Theta: g.Theta,
		Vega:  g.Vega,
		Rho:   g.Rho,
	}
}

type pnlResponse struct {
	PositionID        string   `json:"position_id"`
	PnLAmount         float64  `json:"pnl_amount"`
	PnLPercent        float64  `json:"pnl_percent"`
	InitialValue      float64  `json:"initial_value"`
	CurrentValue      float64  `json:"current_value"`
	ImpliedVolatility *float64 `json:"implied_volatility,omitempty"`
	UnderlyingPrice   *float64 `json:"underlying_price,omitempty"`
	CalculationTime   int64    `json:"calculation_timestamp"`
}

func (r pnlResponse) toDomain() domain.PnLResult {
	res := domain.PnLResult{
		PositionID:        r.PositionID,
		Amount:            r.PnLAmount,
		Percent:           r.PnLPercent,
		InitialValue:      r.InitialValue,
		CurrentValue:      r.CurrentValue,
		ImpliedVolatility: r.ImpliedVolatility,
		UnderlyingPrice:   r.UnderlyingPrice,
	}
	if r.CalculationTime > 0 {
		res.CalculatedAt = time.Unix(r.CalculationTime, 0).UTC()
	} else {
		res.CalculatedAt = time.Now().UTC()
	}
	return res
}

type theoreticalRequest struct {
	DaysForward        int     `json:"days_forward"`
	PriceChangePercent float64 `json:"price_change_percent"`
	ForceRecompute     bool    `json:"force_recompute"`
}

type bulkTheoreticalRequest struct {
	PositionIDs        []string `json:"position_ids"`
	DaysForward        int      `json:"days_forward"`
	PriceChangePercent float64  `json:"price_change_percent"`
	ForceRecompute     bool     `json:"force_recompute"`
}

type bulkTheoreticalResponse struct {
	Results map[string]pnlResponse `json:"results"`
}

type contractResponse struct {
	Symbol       string          `json:"symbol"`
	Strike       float64         `json:"strike_price"`
	Type         string          `json:"option_type"`
	BidPrice     *float64        `json:"bid_price,omitempty"`
	AskPrice     *float64        `json:"ask_price,omitempty"`
	LastPrice    *float64        `json:"last_price,omitempty"`
	Volume       int64           `json:"volume"`
	OpenInterest int64           `json:"open_interest"`
	Greeks       *greeksResponse `json:"greeks,omitempty"`
	ImpliedVol   *float64        `json:"implied_volatility,omitempty"`
	InTheMoney   bool            `json:"in_the_money"`
}

func (c contractResponse) toDomain(ticker string, expiration time.Time) domain.OptionContract {
	contract := domain.OptionContract{
		Symbol:       c.Symbol,
		Ticker:       ticker,
		Expiration:   expiration,
		Strike:       c.Strike,
		Type:         domain.OptionType(c.Type),
		Bid:          c.BidPrice,
		Ask:          c.AskPrice,
		Last:         c.LastPrice,
		Volume:       c.Volume,
		OpenInterest: c.OpenInterest,
		ImpliedVol:   c.ImpliedVol,
		InTheMoney:   c.InTheMoney,
	}
	if c.Greeks != nil {
		g := c.Greeks.toDomain()
		contract.Greeks = &g
	}
	return contract
}

type expirationResponse struct {
	Date             string `json:"date"`
	DaysToExpiration int    `json:"days_to_expiration"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// quoteTick is one message on the /stream/quotes websocket channel.
type quoteTick struct {
	Symbol string   `json:"symbol"`
	Bid    *float64 `json:"bid,omitempty"`
	Ask    *float64 `json:"ask,omitempty"`
}
