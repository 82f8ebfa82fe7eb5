package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/optfolio/optfolio/internal/blob/s3"
	"github.com/optfolio/optfolio/internal/cache/chain"
	"github.com/optfolio/optfolio/internal/cache/redis"
	"github.com/optfolio/optfolio/internal/config"
	"github.com/optfolio/optfolio/internal/domain"
	"github.com/optfolio/optfolio/internal/engine"
	"github.com/optfolio/optfolio/internal/platform/varex"
	"github.com/optfolio/optfolio/internal/service"
	"github.com/optfolio/optfolio/internal/store/memory"
	"github.com/optfolio/optfolio/internal/store/postgres"
)

// Dependencies bundles every constructed dependency the application needs.
// All instances are explicit: nothing here is a package-level singleton, so
// two App instances never share state.
type Dependencies struct {
	Pricing    *varex.Client
	Stream     *varex.WSClient // nil when the quote stream is disabled
	ChainCache *chain.Cache
	Calculator *engine.Calculator

	PositionStore domain.PositionStore
	SnapshotStore domain.SnapshotStore // nil without Postgres
	QuoteCache    domain.QuoteCache    // nil without Redis
	Archiver      domain.Archiver      // nil without S3 + Postgres

	Portfolio *service.PortfolioService
	Chains    *service.ChainService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Pricing service client ---
	deps.Pricing = varex.NewClient(cfg.Varex.BaseURL, cfg.Varex.ApiKey, cfg.Varex.RequestTimeout.Duration)

	if cfg.Varex.StreamEnabled && cfg.Varex.WsURL != "" {
		deps.Stream = varex.NewWSClient(cfg.Varex.WsURL)
	}

	// --- Chain cache with market-aware TTLs ---
	clock, err := chain.NewMarketClock(cfg.Market.Timezone)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: market clock: %w", err)
	}
	deps.ChainCache = chain.New(clock, chain.Config{
		OpenTTL:   cfg.Market.OpenTTL.Duration,
		ClosedTTL: cfg.Market.ClosedTTL.Duration,
	})

	// --- Calculation engine ---
	deps.Calculator = engine.NewCalculator(deps.Pricing, engine.CalculatorConfig{
		MaxRetries:   cfg.Engine.MaxRetries,
		RetryDelay:   cfg.Engine.RetryDelay.Duration,
		ProbeTimeout: cfg.Engine.ProbeTimeout.Duration,
	}, logger)

	// --- Position store: Postgres when enabled, in-memory otherwise ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.SnapshotStore = postgres.NewSnapshotStore(pool)
	} else {
		deps.PositionStore = memory.NewPositionStore()
	}

	// --- Redis quote cache ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient)
	}

	// --- S3 snapshot archiver ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3 bucket check: %w", err)
		}

		// Archiving reads snapshots from the store, so it needs Postgres.
		if deps.SnapshotStore != nil {
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), deps.SnapshotStore)
		} else {
			logger.Warn("wire: s3 enabled without postgres; snapshot archiving disabled")
		}
	}

	// --- Services ---
	deps.Chains = service.NewChainService(deps.Pricing, deps.ChainCache, logger)
	deps.Portfolio = service.NewPortfolioService(
		deps.PositionStore,
		deps.Calculator,
		deps.QuoteCache,
		deps.Chains,
		logger,
	)

	return deps, cleanup, nil
}
