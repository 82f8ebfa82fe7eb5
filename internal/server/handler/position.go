package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/optfolio/optfolio/internal/domain"
	"github.com/optfolio/optfolio/internal/service"
)

// PositionService defines the position management methods that the position
// handler requires from the service layer.
type PositionService interface {
	AddPosition(ctx context.Context, input service.PositionInput) (domain.Position, error)
	UpdatePosition(ctx context.Context, id string, input service.PositionInput) (domain.Position, error)
	DeletePosition(ctx context.Context, id string) error
	GetPosition(ctx context.Context, id string) (domain.Position, error)
	Positions(ctx context.Context) ([]domain.Position, error)
	SetMarkPrice(ctx context.Context, id string, price float64) error
	ClearMarkPriceOverride(ctx context.Context, id string) error
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	portfolio PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(portfolio PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		portfolio: portfolio,
		logger:    logger,
	}
}

// positionRequest is the JSON body for creating or editing a position. A
// negative quantity is accepted and normalized to a sell by the service.
type positionRequest struct {
	Ticker     string   `json:"ticker"`
	Expiration string   `json:"expiration"` // YYYY-MM-DD
	Strike     float64  `json:"strike"`
	Type       string   `json:"type"`   // "call" or "put"
	Action     string   `json:"action"` // "buy" or "sell"
	Quantity   int      `json:"quantity"`
	Premium    *float64 `json:"premium"`
	MarkPrice  *float64 `json:"mark_price"`
}

func (pr positionRequest) toInput() (service.PositionInput, error) {
	exp, err := time.Parse("2006-01-02", pr.Expiration)
	if err != nil {
		return service.PositionInput{}, errors.New("expiration must be formatted as YYYY-MM-DD")
	}
	return service.PositionInput{
		Ticker:     pr.Ticker,
		Expiration: exp,
		Strike:     pr.Strike,
		Type:       domain.OptionType(pr.Type),
		Action:     domain.Action(pr.Action),
		Quantity:   pr.Quantity,
		Premium:    pr.Premium,
		MarkPrice:  pr.MarkPrice,
	}, nil
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns every position in the portfolio.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.portfolio.Positions(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// CreatePosition adds a new position from a JSON body.
// POST /api/positions
func (h *PositionHandler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	input, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := h.portfolio.AddPosition(r.Context(), input)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create position failed",
			slog.String("ticker", input.Ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create position")
		return
	}

	writeJSON(w, http.StatusCreated, pos)
}

// GetPosition returns a single position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	pos, err := h.portfolio.GetPosition(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// UpdatePosition replaces the editable fields of an existing position.
// PUT /api/positions/{id}
func (h *PositionHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	input, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := h.portfolio.UpdatePosition(r.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "position not found")
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: update position failed",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to update position")
		}
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// DeletePosition removes a position.
// DELETE /api/positions/{id}
func (h *PositionHandler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if err := h.portfolio.DeletePosition(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: delete position failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete position")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// markPriceRequest is the JSON body for a manual mark-price override.
type markPriceRequest struct {
	MarkPrice float64 `json:"mark_price"`
}

// SetMarkPrice pins a manual mark price on a position. The engine stops
// writing automatic marks until the override is cleared.
// PUT /api/positions/{id}/mark
func (h *PositionHandler) SetMarkPrice(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req markPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MarkPrice < 0 {
		writeError(w, http.StatusBadRequest, "mark_price must be non-negative")
		return
	}

	if err := h.portfolio.SetMarkPrice(r.Context(), id, req.MarkPrice); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: set mark price failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to set mark price")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ClearMarkPrice removes a manual mark-price override so automatic refreshes
// resume for the position.
// DELETE /api/positions/{id}/mark
func (h *PositionHandler) ClearMarkPrice(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if err := h.portfolio.ClearMarkPriceOverride(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: clear mark price failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to clear mark price")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
