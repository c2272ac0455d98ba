// Package cache opens the Redis client shared by the rate cache and the job queue.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Options select the Redis endpoint.
type Options struct {
	Addr string
	DB   int
}

// New connects and pings. The caller owns the returned client.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, DB: opts.DB})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s/%d: %w", opts.Addr, opts.DB, err)
	}
	return client, nil
}
