// Package ap reconciles supplier invoices against purchase orders and goods
// receipts and recognizes the payable.
package ap

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// SupplierInvoice is the billing event that closes one or more goods receipts.
type SupplierInvoice struct {
	ID                int64
	Number            string
	SupplierReference string
	SupplierID        int64
	PurchaseOrderID   int64
	GoodsReceiptIDs   []int64
	Currency          string
	ExchangeRate      decimal.Decimal
	Items             []InvoiceItem
	SubTotal          decimal.Decimal
	TotalAmount       decimal.Decimal
	// OriginalValue is the same quantities valued at purchase order cost.
	OriginalValue decimal.Decimal
	// Variance is TotalAmount minus OriginalValue in invoice currency.
	Variance      decimal.Decimal
	VarianceBase  decimal.Decimal
	AmountPaid    decimal.Decimal
	PaymentStatus shared.PaymentStatus
	TransactionID uuid.UUID
	InvoiceDate   time.Time
	DueAt         time.Time
	CreatedBy     int64
}

// InvoiceItem is one billed variant.
type InvoiceItem struct {
	VariantID         int64
	QuantityBilled    decimal.Decimal
	FinalCostPrice    decimal.Decimal
	OriginalCostPrice decimal.Decimal
	LineTotal         decimal.Decimal
}

// Tx is the unit of work reconciliation runs in.
type Tx interface {
	procurement.Tx
	CreateSupplierInvoice(ctx context.Context, inv SupplierInvoice) (int64, error)
	GetSupplierInvoice(ctx context.Context, id int64) (SupplierInvoice, error)
	SetSupplierInvoiceTransaction(ctx context.Context, id int64, transactionID uuid.UUID) error
}
