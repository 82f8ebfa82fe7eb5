package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/optfolio/optfolio/internal/domain"
)

const quoteTTL = 2 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes, so multiple
// engine instances share the latest quotes pushed by the stream consumer.
//
// Key schema:
//
//	quote:{symbol} - hash with fields "bid", "ask" (absent side omitted)
//	                 and "ts" (Unix nanosecond timestamp)
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(symbol string) string { return "quote:" + symbol }

// SetQuote stores the latest quote for a symbol with the quote TTL.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	fields := map[string]interface{}{
		"ts": strconv.FormatInt(q.At.UnixNano(), 10),
	}
	if q.Bid != nil {
		fields["bid"] = strconv.FormatFloat(*q.Bid, 'f', -1, 64)
	}
	if q.Ask != nil {
		fields["ask"] = strconv.FormatFloat(*q.Ask, 'f', -1, 64)
	}

	key := quoteKey(q.Symbol)
	pipe := qc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a symbol. It returns
// domain.ErrNotFound when the key does not exist.
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	return parseQuote(symbol, vals)
}

// GetQuotes retrieves quotes for multiple symbols using a pipeline. Symbols
// without a cached quote are silently omitted from the result map.
func (qc *QuoteCache) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, s := range symbols {
		cmds[s] = pipe.HGetAll(ctx, quoteKey(s))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.Quote, len(symbols))
	for s, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := parseQuote(s, vals)
		if err != nil {
			continue
		}
		result[s] = q
	}
	return result, nil
}

func parseQuote(symbol string, vals map[string]string) (domain.Quote, error) {
	q := domain.Quote{Symbol: symbol}

	if bidStr, ok := vals["bid"]; ok {
		bid, err := strconv.ParseFloat(bidStr, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("redis: parse bid %s: %w", symbol, err)
		}
		q.Bid = &bid
	}
	if askStr, ok := vals["ask"]; ok {
		ask, err := strconv.ParseFloat(askStr, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("redis: parse ask %s: %w", symbol, err)
		}
		q.Ask = &ask
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}
	q.At = time.Unix(0, tsNano)

	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
