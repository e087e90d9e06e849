package statements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

const bumpChannel = "ledger.statement.bump"

// Cache keeps rendered statements in Redis. Every (party, period) pair has its
// own version counter; writes bump it so stale entries are never read again
// and simply expire.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache instantiates the cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, logger: slog.Default()}
}

// WithLogger sets the logger for degraded reads and writes.
func (c *Cache) WithLogger(logger *slog.Logger) *Cache {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func versionKey(party shared.PartyRef, periodID int64) string {
	return fmt.Sprintf("statement:version:%s:%d", party, periodID)
}

// Version returns the current version of the pair, zero when never bumped.
func (c *Cache) Version(ctx context.Context, party shared.PartyRef, periodID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(party, periodID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// BuildKey composes the entry key for the pair at its current version.
func (c *Cache) BuildKey(ctx context.Context, party shared.PartyRef, periodID int64) (string, error) {
	ver, err := c.Version(ctx, party, periodID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("statement:%s:%d:%d", party, periodID, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. hit
// reports whether the value came from Redis. Redis failures are logged and
// treated as a miss; only loader and encoding errors are returned.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) (hit bool, err error) {
	if loader == nil {
		return false, errors.New("statements: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if err := json.Unmarshal(payload, dest); err == nil {
				return true, nil
			}
			c.logger.Warn("statement cache entry unreadable", slog.String("key", key))
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("statement cache read failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("statement cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return false, json.Unmarshal(raw, dest)
}

// Invalidate bumps the version of the pair and announces it.
func (c *Cache) Invalidate(ctx context.Context, party shared.PartyRef, periodID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := versionKey(party, periodID)
	ver, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, key+"="+strconv.FormatInt(ver, 10)).Err()
}
