package domain

import (
	"fmt"
	"time"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// Action is the direction of a position leg.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Position represents a single option leg in the portfolio.
//
// Quantity is always a positive magnitude; Action is the sole authority on
// direction. Callers that accept signed quantities (e.g. the HTTP layer)
// normalize through NewPosition before the position enters the engine.
type Position struct {
	ID         string
	Ticker     string
	Expiration time.Time
	Strike     float64
	Type       OptionType
	Action     Action
	Quantity   int

	// Premium is the entry price per share, if known.
	Premium *float64

	// MarkPrice is the current reference price per share. While
	// MarkPriceOverride is true the engine never writes MarkPrice
	// automatically; only an explicit user edit (which sets the flag) or an
	// explicit clear touches it.
	MarkPrice         *float64
	MarkPriceOverride bool

	// Greeks come from the pricing service already adjusted for action and
	// quantity. The engine must never re-scale them.
	Greeks *Greeks

	PnL            *PnLResult
	TheoreticalPnL *PnLResult

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPosition builds a validated position from raw user input. A negative
// quantity is folded into Action (negative implies sell) so the stored
// quantity is always a magnitude.
func NewPosition(id, ticker string, expiration time.Time, strike float64, typ OptionType, action Action, quantity int) (Position, error) {
	if ticker == "" {
		return Position{}, fmt.Errorf("%w: ticker is required", ErrValidation)
	}
	if strike <= 0 {
		return Position{}, fmt.Errorf("%w: strike must be positive, got %v", ErrValidation, strike)
	}
	if typ != OptionTypeCall && typ != OptionTypePut {
		return Position{}, fmt.Errorf("%w: unknown option type %q", ErrValidation, typ)
	}
	if quantity == 0 {
		return Position{}, fmt.Errorf("%w: quantity must be non-zero", ErrValidation)
	}
	if quantity < 0 {
		quantity = -quantity
		action = ActionSell
	}
	if action != ActionBuy && action != ActionSell {
		return Position{}, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	now := time.Now().UTC()
	return Position{
		ID:         id,
		Ticker:     ticker,
		Expiration: expiration,
		Strike:     strike,
		Type:       typ,
		Action:     action,
		Quantity:   quantity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// SignedQuantity derives the signed exposure: positive for buys, negative for
// sells.
func (p Position) SignedQuantity() int {
	if p.Action == ActionSell {
		return -p.Quantity
	}
	return p.Quantity
}

// HasPricingInputs reports whether the position carries both values the local
// approximation calculator needs.
func (p Position) HasPricingInputs() bool {
	return p.Premium != nil && p.MarkPrice != nil
}

// OCCSymbol renders the standard 21-character option symbol used to key
// quotes, e.g. "AAPL  260116C00150000".
func (p Position) OCCSymbol() string {
	cp := "C"
	if p.Type == OptionTypePut {
		cp = "P"
	}
	return fmt.Sprintf("%-6s%s%s%08d", p.Ticker, p.Expiration.Format("060102"), cp, int(p.Strike*1000))
}
