package shared

import (
	"context"
	"fmt"
	"strings"
)

// IdempotencyTx claims request keys inside the caller's unit of work so the key
// commits or rolls back together with the postings it guards.
type IdempotencyTx interface {
	ClaimIdempotencyKey(ctx context.Context, module, key string) error
}

// ClaimKey ensures key uniqueness per module. An empty key is a no-op.
func ClaimKey(ctx context.Context, tx IdempotencyTx, module, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if module == "" {
		return Invalid("module", "idempotency module required")
	}
	if err := tx.ClaimIdempotencyKey(ctx, module, key); err != nil {
		return fmt.Errorf("%s %s: %w", module, key, err)
	}
	return nil
}
