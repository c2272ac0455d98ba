package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/postgres"
)

// Runtime holds the wired engine and the connections behind it.
type Runtime struct {
	Engine *engine.Engine
	Pool   *pgxpool.Pool
	Redis  *redis.Client

	closers []func()
}

// Bootstrap opens the configured store and rate cache and builds the engine.
// A Redis outage degrades to running without the cache.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}

	var store engine.Store
	switch cfg.Store {
	case StoreMemory:
		logger.Warn("using in-memory ledger store; data is lost on restart")
		store = memory.New()
	default:
		pool, err := db.New(ctx, db.PoolOptions{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.closers = append(rt.closers, pool.Close)
		pgStore := postgres.New(pool, cfg.TxMaxRetries, logger)
		if cfg.PGAutoMigrate {
			if err := pgStore.Migrate(ctx); err != nil {
				rt.Close()
				return nil, fmt.Errorf("app: migrate: %w", err)
			}
		}
		store = pgStore
	}

	var rateCache fx.Cache
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err != nil {
			logger.Warn("rate cache disabled", slog.Any("error", err))
		} else {
			rt.Redis = client
			rt.closers = append(rt.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			})
			rateCache = fx.NewRedisCache(client, cfg.FXCacheTTL, logger)
		}
	}

	rt.Engine = engine.New(store, engine.Config{BaseCurrency: cfg.BaseCurrency}, rateCache, logger)
	return rt, nil
}

// Ready pings the backing stores.
func (rt *Runtime) Ready(ctx context.Context) error {
	if rt.Pool != nil {
		if err := rt.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
