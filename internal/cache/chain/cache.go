// Package chain provides the in-memory cache fronting option-chain and
// expiration lookups. Lookups are single-flight (concurrent callers for the
// same key share one producer invocation) and TTL-bounded, with the TTL
// shortened while the market is open because quotes move quickly, and
// lengthened when it is closed.
package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/optfolio/optfolio/internal/domain"
)

const (
	defaultOpenTTL   = time.Minute
	defaultClosedTTL = 15 * time.Minute
)

// Config tunes a Cache. Zero TTLs select the defaults (1m open, 15m closed).
type Config struct {
	OpenTTL   time.Duration
	ClosedTTL time.Duration

	// Now is the time source; nil means time.Now. Tests inject a fake to
	// exercise expiry without sleeping.
	Now func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is an explicitly constructed, injectable instance: one per session,
// never a package-level singleton, so concurrent tests cannot interfere
// through shared state.
type Cache struct {
	clock     *MarketClock
	openTTL   time.Duration
	closedTTL time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group
}

// New creates a Cache using the given market clock for TTL selection.
func New(clock *MarketClock, cfg Config) *Cache {
	if cfg.OpenTTL <= 0 {
		cfg.OpenTTL = defaultOpenTTL
	}
	if cfg.ClosedTTL <= 0 {
		cfg.ClosedTTL = defaultClosedTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		clock:     clock,
		openTTL:   cfg.OpenTTL,
		closedTTL: cfg.ClosedTTL,
		now:       cfg.Now,
		entries:   make(map[string]entry),
	}
}

// GetChain returns the cached option chain for the key, invoking producer on
// a miss. Failed producers cache nothing, so the next call retries.
func (c *Cache) GetChain(ctx context.Context, ticker string, expiration time.Time, filter domain.ChainFilter,
	producer func(ctx context.Context) ([]domain.OptionContract, error),
) ([]domain.OptionContract, error) {
	key := chainKey(ticker, expiration, filter)
	v, err := c.getOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return producer(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.OptionContract), nil
}

// GetExpirations returns the cached expiration list for a ticker.
func (c *Cache) GetExpirations(ctx context.Context, ticker string,
	producer func(ctx context.Context) ([]domain.Expiration, error),
) ([]domain.Expiration, error) {
	key := "expirations|" + ticker
	v, err := c.getOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return producer(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Expiration), nil
}

// Invalidate drops every cached entry for the ticker.
func (c *Cache) Invalidate(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := "chain|" + ticker + "|"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) || key == "expirations|"+ticker {
			delete(c.entries, key)
		}
	}
}

// getOrFetch implements the single-flight TTL lookup. The lock is only held
// for map access; the producer runs outside it under the singleflight group.
func (c *Cache) getOrFetch(ctx context.Context, key string, producer func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent flight may have populated the entry while this caller
		// was waiting on the group.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		v, err := producer(ctx)
		if err != nil {
			return nil, err
		}

		now := c.now()
		c.mu.Lock()
		c.entries[key] = entry{value: v, expiresAt: now.Add(c.ttl(now))}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// ttl picks the freshness bound for a value stored at now.
func (c *Cache) ttl(now time.Time) time.Duration {
	if c.clock != nil && c.clock.IsOpen(now) {
		return c.openTTL
	}
	return c.closedTTL
}

// chainKey composes the cache key from ticker, expiration, and the
// normalized filter set so distinct filters never collide.
func chainKey(ticker string, expiration time.Time, filter domain.ChainFilter) string {
	return fmt.Sprintf("chain|%s|%s|%s|%s|%s",
		ticker,
		expiration.Format("2006-01-02"),
		string(filter.Type),
		strconv.FormatFloat(filter.MinStrike, 'f', -1, 64),
		strconv.FormatFloat(filter.MaxStrike, 'f', -1, 64),
	)
}

// Compile-time interface check.
var _ domain.ChainCache = (*Cache)(nil)
