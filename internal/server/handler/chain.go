package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/optfolio/optfolio/internal/domain"
)

// ChainService defines the option-chain lookup methods that the chain handler
// requires.
type ChainService interface {
	GetChain(ctx context.Context, ticker string, expiration time.Time, filter domain.ChainFilter) ([]domain.OptionContract, error)
	GetExpirations(ctx context.Context, ticker string) ([]domain.Expiration, error)
	Invalidate(ticker string)
}

// ChainHandler serves option chain and expiration endpoints.
type ChainHandler struct {
	chains ChainService
	logger *slog.Logger
}

// NewChainHandler creates a ChainHandler with the given service and logger.
func NewChainHandler(chains ChainService, logger *slog.Logger) *ChainHandler {
	return &ChainHandler{
		chains: chains,
		logger: logger,
	}
}

// chainResponse wraps the option chain response.
type chainResponse struct {
	Ticker    string                  `json:"ticker"`
	Contracts []domain.OptionContract `json:"contracts"`
}

// GetChain returns the option chain for a ticker and expiration, optionally
// filtered by contract type and strike bounds.
// GET /api/chains/{ticker}?expiration=YYYY-MM-DD&type=call&min_strike=90&max_strike=110
func (h *ChainHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")
	q := r.URL.Query()

	expStr := q.Get("expiration")
	if expStr == "" {
		writeError(w, http.StatusBadRequest, "expiration query parameter required")
		return
	}
	expiration, err := time.Parse("2006-01-02", expStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expiration must be formatted as YYYY-MM-DD")
		return
	}

	var filter domain.ChainFilter
	if t := q.Get("type"); t != "" {
		typ := domain.OptionType(t)
		if typ != domain.OptionTypeCall && typ != domain.OptionTypePut {
			writeError(w, http.StatusBadRequest, "type must be call or put")
			return
		}
		filter.Type = typ
	}
	if v := q.Get("min_strike"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinStrike = f
		}
	}
	if v := q.Get("max_strike"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxStrike = f
		}
	}

	contracts, err := h.chains.GetChain(r.Context(), ticker, expiration, filter)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chain not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get chain failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch option chain")
		return
	}

	if contracts == nil {
		contracts = []domain.OptionContract{}
	}

	writeJSON(w, http.StatusOK, chainResponse{Ticker: ticker, Contracts: contracts})
}

// expirationsResponse wraps the expirations response.
type expirationsResponse struct {
	Ticker      string              `json:"ticker"`
	Expirations []domain.Expiration `json:"expirations"`
}

// GetExpirations returns the available expiration dates for a ticker.
// GET /api/chains/{ticker}/expirations
func (h *ChainHandler) GetExpirations(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")

	expirations, err := h.chains.GetExpirations(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticker not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get expirations failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch expirations")
		return
	}

	if expirations == nil {
		expirations = []domain.Expiration{}
	}

	writeJSON(w, http.StatusOK, expirationsResponse{Ticker: ticker, Expirations: expirations})
}

// InvalidateCache drops every cached chain and expiration entry for a ticker
// so the next lookup fetches fresh data.
// DELETE /api/chains/{ticker}/cache
func (h *ChainHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")
	h.chains.Invalidate(ticker)
	w.WriteHeader(http.StatusNoContent)
}
