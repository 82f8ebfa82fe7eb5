package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/optfolio/optfolio/internal/domain"
)

// PortfolioService defines the aggregate-level portfolio methods that the
// portfolio handler requires.
type PortfolioService interface {
	Grouped(ctx context.Context) ([]domain.GroupedPosition, error)
	RefreshMarkPrices(ctx context.Context) error
	RecalculateGreeks(ctx context.Context) error
	RecalculatePnL(ctx context.Context) error
	RecalculateTheoreticalPnL(ctx context.Context) error
	SetTheoreticalSettings(settings domain.TheoreticalPnLSettings) error
	TheoreticalSettings() domain.TheoreticalPnLSettings
	Snapshot(ctx context.Context) (domain.PortfolioSnapshot, error)
}

// PortfolioHandler serves portfolio-level HTTP endpoints: the grouped view,
// recalculation triggers, mark refresh, and theoretical projection settings.
type PortfolioHandler struct {
	portfolio PortfolioService
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler with the given service and logger.
func NewPortfolioHandler(portfolio PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolio: portfolio,
		logger:    logger,
	}
}

// groupedResponse wraps the grouped portfolio view.
type groupedResponse struct {
	Groups []domain.GroupedPosition `json:"groups"`
}

// Grouped returns positions grouped by underlying with aggregate totals.
// GET /api/portfolio/grouped
func (h *PortfolioHandler) Grouped(w http.ResponseWriter, r *http.Request) {
	groups, err := h.portfolio.Grouped(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: grouped view failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build grouped view")
		return
	}

	if groups == nil {
		groups = []domain.GroupedPosition{}
	}

	writeJSON(w, http.StatusOK, groupedResponse{Groups: groups})
}

// RefreshMarks re-derives the mark price of every position that does not
// carry a manual override.
// POST /api/portfolio/refresh-marks
func (h *PortfolioHandler) RefreshMarks(w http.ResponseWriter, r *http.Request) {
	if err := h.portfolio.RefreshMarkPrices(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: mark refresh failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to refresh mark prices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Recalculate triggers a portfolio-wide recalculation for the metric named in
// the path: greeks, pnl, or theoretical.
// POST /api/portfolio/recalculate/{metric}
func (h *PortfolioHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	metric := pathParam(r, "metric")

	var err error
	switch metric {
	case "greeks":
		err = h.portfolio.RecalculateGreeks(r.Context())
	case "pnl":
		err = h.portfolio.RecalculatePnL(r.Context())
	case "theoretical":
		err = h.portfolio.RecalculateTheoreticalPnL(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "metric must be one of greeks, pnl, theoretical")
		return
	}

	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: recalculation failed",
			slog.String("metric", metric),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "recalculation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "metric": metric})
}

// theoreticalSettingsPayload is the JSON shape for projection settings.
type theoreticalSettingsPayload struct {
	DaysForward        int     `json:"days_forward"`
	PriceChangePercent float64 `json:"price_change_percent"`
}

// GetTheoreticalSettings returns the current theoretical projection settings.
// GET /api/portfolio/theoretical-settings
func (h *PortfolioHandler) GetTheoreticalSettings(w http.ResponseWriter, r *http.Request) {
	s := h.portfolio.TheoreticalSettings()
	writeJSON(w, http.StatusOK, theoreticalSettingsPayload{
		DaysForward:        s.DaysForward,
		PriceChangePercent: s.PriceChangePercent,
	})
}

// UpdateTheoreticalSettings replaces the theoretical projection settings.
// PUT /api/portfolio/theoretical-settings
func (h *PortfolioHandler) UpdateTheoreticalSettings(w http.ResponseWriter, r *http.Request) {
	var req theoreticalSettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	settings := domain.TheoreticalPnLSettings{
		DaysForward:        req.DaysForward,
		PriceChangePercent: req.PriceChangePercent,
	}
	if err := h.portfolio.SetTheoreticalSettings(settings); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: update settings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// Snapshot captures and returns a point-in-time snapshot of the portfolio.
// POST /api/portfolio/snapshot
func (h *PortfolioHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.portfolio.Snapshot(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to capture snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
