// Package app provides the top-level application lifecycle management for the
// portfolio engine. It wires together all dependencies (pricing client, chain
// cache, stores, quote cache, archiver, and services) and runs the HTTP
// server, the snapshot archiver, and the quote stream under one errgroup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/optfolio/optfolio/internal/config"
	"github.com/optfolio/optfolio/internal/domain"
	"github.com/optfolio/optfolio/internal/server"
	"github.com/optfolio/optfolio/internal/server/handler"
)

// shutdownGrace is how long in-flight HTTP requests get to finish once the
// run context is cancelled.
const shutdownGrace = 10 * time.Second

// streamResubscribeInterval is how often the quote stream subscription is
// refreshed against the current position list.
const streamResubscribeInterval = time.Minute

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the server
// and background loops, and blocks until the context is cancelled or a
// component fails. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("postgres", a.cfg.Postgres.Enabled),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", a.cfg.S3.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)
	a.startSnapshotLoop(ctx, g, deps)
	a.startQuoteStream(ctx, g, deps)

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// startHTTPServer adds the API server goroutine plus a watcher that shuts it
// down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(),
			Positions: handler.NewPositionHandler(deps.Portfolio, a.logger),
			Portfolio: handler.NewPortfolioHandler(deps.Portfolio, a.logger),
			Chains:    handler.NewChainHandler(deps.Chains, a.logger),
		},
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startSnapshotLoop periodically captures a portfolio snapshot, persists it,
// and prunes old snapshots into the blob archive. It is a no-op when neither
// a snapshot store nor an archiver is wired.
func (a *App) startSnapshotLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.SnapshotStore == nil {
		return
	}

	interval := a.cfg.Archive.SnapshotInterval.Duration
	if interval <= 0 {
		return
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.takeSnapshot(ctx, deps)
			}
		}
	})
}

// takeSnapshot captures and persists one snapshot, then prunes snapshots past
// the retention window into the archive. Failures are logged, not fatal; the
// next tick retries.
func (a *App) takeSnapshot(ctx context.Context, deps *Dependencies) {
	snap, err := deps.Portfolio.Snapshot(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "snapshot capture failed",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := deps.SnapshotStore.Insert(ctx, snap); err != nil {
		a.logger.ErrorContext(ctx, "snapshot persist failed",
			slog.String("error", err.Error()),
		)
		return
	}

	a.logger.DebugContext(ctx, "snapshot captured",
		slog.String("id", snap.ID),
		slog.Int("positions", len(snap.Positions)),
	)

	retain := a.cfg.Archive.RetainFor.Duration
	if deps.Archiver == nil || retain <= 0 {
		return
	}

	cutoff := time.Now().UTC().Add(-retain)
	archived, err := deps.Archiver.ArchiveSnapshots(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "snapshot archive failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if archived > 0 {
		a.logger.InfoContext(ctx, "snapshots archived",
			slog.Int64("count", archived),
			slog.Time("cutoff", cutoff),
		)
	}
}

// startQuoteStream connects the live quote feed and routes ticks into the
// quote cache so mark refreshes can use fresh bid/ask without hitting the
// pricing service. It is a no-op when streaming or Redis are disabled.
func (a *App) startQuoteStream(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Stream == nil || deps.QuoteCache == nil {
		return
	}

	g.Go(func() error {
		// Register the handler before connecting so no tick between dial and
		// registration is lost.
		deps.Stream.OnQuote(func(q domain.Quote) {
			if err := deps.QuoteCache.SetQuote(ctx, q); err != nil {
				a.logger.WarnContext(ctx, "quote cache write failed",
					slog.String("symbol", q.Symbol),
					slog.String("error", err.Error()),
				)
			}
		})

		if err := deps.Stream.Connect(ctx); err != nil {
			// The stream is an optimization, not a dependency; without it
			// marks fall back to chain lookups.
			a.logger.WarnContext(ctx, "quote stream connect failed; continuing without stream",
				slog.String("error", err.Error()),
			)
			return nil
		}
		defer deps.Stream.Close()

		if err := a.resubscribe(ctx, deps); err != nil {
			a.logger.WarnContext(ctx, "quote stream subscribe failed",
				slog.String("error", err.Error()),
			)
		}

		ticker := time.NewTicker(streamResubscribeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := a.resubscribe(ctx, deps); err != nil {
					a.logger.WarnContext(ctx, "quote stream resubscribe failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// resubscribe aligns the stream subscription with the current position list.
func (a *App) resubscribe(ctx context.Context, deps *Dependencies) error {
	positions, err := deps.Portfolio.Positions(ctx)
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(positions))
	seen := make(map[string]bool, len(positions))
	for _, pos := range positions {
		sym := pos.OCCSymbol()
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	return deps.Stream.Subscribe(ctx, symbols)
}
