// Package ledger posts balanced double-entry journal entries and owns every
// mutation of account balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// SystemAccount names a well-known account seeded per tenant.
type SystemAccount string

const (
	SystemInventoryAsset     SystemAccount = "INVENTORY_ASSET"
	SystemGRNI               SystemAccount = "GRNI"
	SystemAccountsPayable    SystemAccount = "ACCOUNTS_PAYABLE"
	SystemAccountsReceivable SystemAccount = "ACCOUNTS_RECEIVABLE"
	SystemPriceVariance      SystemAccount = "PURCHASE_PRICE_VARIANCE"
	SystemSalesReturns       SystemAccount = "SALES_RETURNS_ALLOWANCES"
	SystemSalesRevenue       SystemAccount = "SALES_REVENUE"
	SystemSalariesPayable    SystemAccount = "SALARIES_PAYABLE"
)

// Account models a chart of accounts node with per-currency running balances.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	SubType   string
	IsSystem  bool
	SystemKey SystemAccount
	Balances  map[string]decimal.Decimal
}

// Balance returns the running balance in currency.
func (a Account) Balance(currency string) decimal.Decimal {
	return a.Balances[strings.ToUpper(currency)]
}

// Line is one side of a journal entry. Exactly one of Debit or Credit is positive.
type Line struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Debit builds a debit line.
func Debit(accountID int64, amount decimal.Decimal) Line {
	return Line{AccountID: accountID, Debit: amount}
}

// Credit builds a credit line.
func Credit(accountID int64, amount decimal.Decimal) Line {
	return Line{AccountID: accountID, Credit: amount}
}

// Refs links ledger rows to the documents that caused them.
type Refs struct {
	PaymentID         int64
	PurchaseOrderID   int64
	GoodsReceiptID    int64
	SupplierInvoiceID int64
	SalesInvoiceID    int64
	RMAID             int64
	InstallmentPlanID int64
	ChequeID          int64
}

// JournalInput describes a journal entry in its transaction currency.
type JournalInput struct {
	Description string
	Currency    string
	Date        time.Time
	Lines       []Line
	Refs        Refs
	// FixedRate overrides the resolved rate, e.g. a rate frozen on a purchase order.
	FixedRate *decimal.Decimal
}

// Entry is an immutable ledger row pairing one debit and one credit account.
type Entry struct {
	ID               int64
	TransactionID    uuid.UUID
	Description      string
	Date             time.Time
	DebitAccountID   int64
	CreditAccountID  int64
	Amount           decimal.Decimal
	OriginalAmount   decimal.Decimal
	OriginalCurrency string
	ExchangeRate     decimal.Decimal
	Refs             Refs
	ReversalOf       uuid.UUID
	CreatedBy        int64
	CreatedAt        time.Time
}

// Posting is the result of one journal entry.
type Posting struct {
	TransactionID uuid.UUID
	BaseCurrency  string
	ExchangeRate  decimal.Decimal
	Entries       []Entry
}

// Total returns the base amount moved by the posting.
func (p Posting) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.Entries {
		total = total.Add(e.Amount)
	}
	return total
}

// BalanceDelta is a signed increment applied to one account balance bucket.
type BalanceDelta struct {
	AccountID int64
	Currency  string
	Amount    decimal.Decimal
}

// HistoryFilter narrows ledger history queries.
type HistoryFilter struct {
	AccountID     int64
	TransactionID uuid.UUID
	ReversalOf    uuid.UUID
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}

// Tx is the unit of work the ledger reads and writes through.
type Tx interface {
	fx.Store
	GetAccount(ctx context.Context, id int64) (Account, error)
	FindSystemAccount(ctx context.Context, key SystemAccount) (Account, bool, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	InsertEntries(ctx context.Context, entries []Entry) error
	ApplyBalanceDeltas(ctx context.Context, deltas []BalanceDelta) error
	ListEntries(ctx context.Context, filter HistoryFilter) ([]Entry, error)
}

var (
	// ErrNoMovement indicates an entry that produces no debit/credit pair.
	ErrNoMovement = fmt.Errorf("ledger: entry moves no money: %w", shared.ErrValidation)
	// ErrAlreadyReversed indicates a transaction that already has a reversal.
	ErrAlreadyReversed = fmt.Errorf("ledger: transaction already reversed: %w", shared.ErrInvalidState)
)

// UnbalancedEntryError carries the imbalance and the offending lines.
type UnbalancedEntryError struct {
	Currency  string
	Debits    decimal.Decimal
	Credits   decimal.Decimal
	Imbalance decimal.Decimal
	Lines     []Line
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("ledger: unbalanced entry: debits %s %s, credits %s %s, imbalance %s",
		e.Debits.String(), e.Currency, e.Credits.String(), e.Currency, e.Imbalance.String())
}

func (e *UnbalancedEntryError) Unwrap() error {
	return shared.ErrUnbalancedEntry
}

// IsUnbalanced reports whether err is an UnbalancedEntryError.
func IsUnbalanced(err error) bool {
	var target *UnbalancedEntryError
	return errors.As(err, &target)
}
