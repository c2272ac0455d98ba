package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags ledger sessions in pg_stat_activity.
const ApplicationName = "odyssey-ledger"

// PoolOptions tune the ledger connection pool. Zero values keep pgx defaults.
type PoolOptions struct {
	DSN      string
	MaxConns int32
}

// New opens a pool and pings it. Every ledger unit of work holds one
// connection, so MaxConns bounds concurrent postings per process.
func New(ctx context.Context, opts PoolOptions) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping %s: %w", config.ConnConfig.Host, err)
	}
	return pool, nil
}
