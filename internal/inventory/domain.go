package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementReceipt represents goods received against a purchase order.
	MovementReceipt MovementType = "RECEIPT"
	// MovementReturn represents customer returns put back on the shelf.
	MovementReturn MovementType = "RETURN"
)

// Balance summarises stock in a branch per product variant.
type Balance struct {
	BranchID  int64
	VariantID int64
	Qty       decimal.Decimal
	AvgCost   decimal.Decimal
	UpdatedAt time.Time
}

// Movement records one stock change with its cost basis in base currency.
type Movement struct {
	ID         int64
	Type       MovementType
	BranchID   int64
	VariantID  int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	BalanceQty decimal.Decimal
	AvgCost    decimal.Decimal
	Serials    []string
	RefModule  string
	RefID      int64
	Note       string
	PostedAt   time.Time
	CreatedBy  int64
}

// IncreaseInput describes an inbound stock movement.
type IncreaseInput struct {
	Type      MovementType
	BranchID  int64
	VariantID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Serials   []string
	RefModule string
	RefID     int64
	Note      string
}

// Tx is the unit of work for stock movements.
type Tx interface {
	// GetStockForUpdate locks and returns the balance row. ok is false when none exists.
	GetStockForUpdate(ctx context.Context, branchID, variantID int64) (Balance, bool, error)
	UpsertStock(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

var (
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = fmt.Errorf("inventory: unit cost must be >= 0: %w", shared.ErrValidation)
)
