package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MethodWriter stores payment method configuration.
type MethodWriter interface {
	Tx
	CreatePaymentMethod(ctx context.Context, method Method) (int64, error)
}

// ConfigureMethod validates and stores a payment method. Deferred methods
// need a holding account in addition to the linked account.
func (a *Allocator) ConfigureMethod(ctx context.Context, tx MethodWriter, method Method) (Method, error) {
	method.Name = strings.TrimSpace(method.Name)
	if method.Name == "" {
		return Method{}, shared.Invalid("name", "required")
	}
	switch method.Type {
	case MethodCash, MethodCard, MethodBankTransfer, MethodCheque:
	default:
		return Method{}, shared.Invalid("type", fmt.Sprintf("unknown method type %q", method.Type))
	}
	if method.LinkedAccountID == 0 {
		return Method{}, shared.Invalid("linked_account_id", "required")
	}
	if _, err := tx.GetAccount(ctx, method.LinkedAccountID); err != nil {
		return Method{}, err
	}
	if method.Deferred() {
		if method.HoldingAccountID == 0 {
			return Method{}, shared.Invalid("holding_account_id", "required for deferred methods")
		}
		if _, err := tx.GetAccount(ctx, method.HoldingAccountID); err != nil {
			return Method{}, err
		}
	}
	id, err := tx.CreatePaymentMethod(ctx, method)
	if err != nil {
		return Method{}, fmt.Errorf("payments: create method: %w", err)
	}
	method.ID = id
	return method, nil
}
