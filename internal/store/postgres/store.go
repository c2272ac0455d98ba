// Package postgres is the PostgreSQL engine.Store. Every query is scoped to
// the tenant carried on the context of the unit of work.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

//go:embed schema.sql
var schema string

// Store runs units of work as RepeatableRead transactions, retrying on
// serialization failures.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
	logger     *slog.Logger
}

// New constructs the store.
func New(pool *pgxpool.Pool, maxRetries int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, maxRetries: maxRetries, logger: logger}
}

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store/postgres: migrate: %w", err)
	}
	s.logger.Info("schema applied")
	return nil
}

// WithTx implements engine.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	tenantID := shared.TenantID(ctx)
	attempt := 0
	return db.WithRetry(ctx, s.pool, s.maxRetries, func(pgtx pgx.Tx) error {
		attempt++
		if attempt > 1 {
			s.logger.Debug("retrying unit of work", slog.Int("attempt", attempt), slog.Int64("tenant_id", tenantID))
		}
		return fn(ctx, &tx{tx: pgtx, tenant: tenantID})
	})
}

type tx struct {
	tx     pgx.Tx
	tenant int64
}

var _ engine.Tx = (*tx)(nil)

func (t *tx) ClaimIdempotencyKey(ctx context.Context, module, key string) error {
	cmd, err := t.tx.Exec(ctx, `INSERT INTO idempotency_keys (tenant_id, module, key) VALUES ($1,$2,$3)
ON CONFLICT (tenant_id, module, key) DO NOTHING`, t.tenant, module, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrIdempotencyConflict
	}
	return nil
}

func (t *tx) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := t.tx.QueryRow(ctx, `INSERT INTO document_sequences (tenant_id, name, value) VALUES ($1,$2,1)
ON CONFLICT (tenant_id, name) DO UPDATE SET value = document_sequences.value + 1
RETURNING value`, t.tenant, name).Scan(&value)
	return value, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error, kind string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(kind, id)
	}
	return err
}

func numeric(d decimal.Decimal) string {
	return d.String()
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func uuidOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func toJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store/postgres: encode json: %w", err)
	}
	return string(raw), nil
}

func fromJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("store/postgres: decode json: %w", err)
	}
	return nil
}

func textArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
