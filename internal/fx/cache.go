package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisCache keeps exact-day rates in Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache instantiates the cache helper.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func generationKey(tenantID int64, from, to string) string {
	return fmt.Sprintf("fx:%d:%s:%s:gen", tenantID, from, to)
}

func rateKey(tenantID int64, from, to string, gen uint64, day time.Time) string {
	return fmt.Sprintf("fx:%d:%s:%s:%d:%s", tenantID, from, to, gen, day.Format(time.DateOnly))
}

// Generation reads the pair's generation counter. A missing counter is zero.
func (c *RedisCache) Generation(ctx context.Context, tenantID int64, from, to string) (uint64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	gen, err := c.client.Get(ctx, generationKey(tenantID, from, to)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.Warn("fx cache generation", slog.Any("error", err))
		return 0, false
	}
	return gen, true
}

// Get returns a cached rate. Redis failures degrade to a miss.
func (c *RedisCache) Get(ctx context.Context, tenantID int64, from, to string, gen uint64, day time.Time) (decimal.Decimal, bool) {
	if c == nil || c.client == nil {
		return decimal.Zero, false
	}
	raw, err := c.client.Get(ctx, rateKey(tenantID, from, to, gen, day)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false
	}
	if err != nil {
		c.logger.Warn("fx cache get", slog.Any("error", err))
		return decimal.Zero, false
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return rate, true
}

// Set stores rate under the pair, generation and day.
func (c *RedisCache) Set(ctx context.Context, tenantID int64, from, to string, gen uint64, day time.Time, rate decimal.Decimal) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, rateKey(tenantID, from, to, gen, day), rate.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("fx cache set", slog.Any("error", err))
	}
}

// Invalidate bumps the pair's generation. Entries of older generations are
// left to expire.
func (c *RedisCache) Invalidate(ctx context.Context, tenantID int64, from, to string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, generationKey(tenantID, from, to)).Err(); err != nil {
		c.logger.Warn("fx cache invalidate", slog.Any("error", err))
	}
}
