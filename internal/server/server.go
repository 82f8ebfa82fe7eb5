package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/optfolio/optfolio/internal/server/handler"
	"github.com/optfolio/optfolio/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Positions *handler.PositionHandler
	Portfolio *handler.PortfolioHandler
	Chains    *handler.ChainHandler
}

// Server is the JSON HTTP API that fronts the portfolio engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth).
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Position endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("POST /api/positions", handlers.Positions.CreatePosition)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("PUT /api/positions/{id}", handlers.Positions.UpdatePosition)
	mux.HandleFunc("DELETE /api/positions/{id}", handlers.Positions.DeletePosition)
	mux.HandleFunc("PUT /api/positions/{id}/mark", handlers.Positions.SetMarkPrice)
	mux.HandleFunc("DELETE /api/positions/{id}/mark", handlers.Positions.ClearMarkPrice)

	// Portfolio-level endpoints.
	mux.HandleFunc("GET /api/portfolio/grouped", handlers.Portfolio.Grouped)
	mux.HandleFunc("POST /api/portfolio/refresh-marks", handlers.Portfolio.RefreshMarks)
	mux.HandleFunc("POST /api/portfolio/recalculate/{metric}", handlers.Portfolio.Recalculate)
	mux.HandleFunc("GET /api/portfolio/theoretical-settings", handlers.Portfolio.GetTheoreticalSettings)
	mux.HandleFunc("PUT /api/portfolio/theoretical-settings", handlers.Portfolio.UpdateTheoreticalSettings)
	mux.HandleFunc("POST /api/portfolio/snapshot", handlers.Portfolio.Snapshot)

	// Option chain endpoints.
	mux.HandleFunc("GET /api/chains/{ticker}", handlers.Chains.GetChain)
	mux.HandleFunc("GET /api/chains/{ticker}/expirations", handlers.Chains.GetExpirations)
	mux.HandleFunc("DELETE /api/chains/{ticker}/cache", handlers.Chains.InvalidateCache)

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
