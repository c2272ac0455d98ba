package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountWriter opens accounts in the chart of accounts.
type AccountWriter interface {
	Tx
	CreateAccount(ctx context.Context, account Account) (int64, error)
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// OpenAccount adds an account with empty balances. A system key may be held by
// one account per tenant.
func (e *Engine) OpenAccount(ctx context.Context, tx AccountWriter, account Account) (Account, error) {
	account.Code = strings.TrimSpace(account.Code)
	account.Name = strings.TrimSpace(account.Name)
	account.Type = AccountType(strings.ToUpper(string(account.Type)))
	if account.Code == "" || account.Name == "" {
		return Account{}, shared.Invalid("account", "code and name are required")
	}
	if !account.Type.Valid() {
		return Account{}, shared.Invalid("type", fmt.Sprintf("unknown account type %q", account.Type))
	}
	if account.SystemKey != "" {
		_, exists, err := tx.FindSystemAccount(ctx, account.SystemKey)
		if err != nil {
			return Account{}, fmt.Errorf("ledger: find system account: %w", err)
		}
		if exists {
			return Account{}, shared.Invalid("system_key", fmt.Sprintf("%s is already assigned", account.SystemKey))
		}
		account.IsSystem = true
	}
	account.ID = 0
	account.Balances = nil
	id, err := tx.CreateAccount(ctx, account)
	if err != nil {
		return Account{}, fmt.Errorf("ledger: create account: %w", err)
	}
	account.ID = id
	return account, nil
}
