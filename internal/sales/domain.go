// Package sales keeps the sales invoices that customer payments and returns
// settle against.
package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Invoice is a posted sales invoice.
type Invoice struct {
	ID            int64
	Number        string
	CustomerID    int64
	BranchID      int64
	Currency      string
	ExchangeRate  decimal.Decimal
	IssuedAt      time.Time
	Lines         []InvoiceLine
	Total         decimal.Decimal
	AmountPaid    decimal.Decimal
	PaymentStatus shared.PaymentStatus
	TransactionID uuid.UUID
	CreatedBy     int64
}

// InvoiceLine carries the sale price and the cost basis at the time of sale.
type InvoiceLine struct {
	VariantID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal
}

// LineTotal returns quantity times unit price.
func (l InvoiceLine) LineTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Line returns the invoice line for variantID.
func (inv Invoice) Line(variantID int64) (InvoiceLine, bool) {
	for _, line := range inv.Lines {
		if line.VariantID == variantID {
			return line, true
		}
	}
	return InvoiceLine{}, false
}

// Tx exposes sales invoice persistence within a unit of work.
type Tx interface {
	CreateSalesInvoice(ctx context.Context, inv Invoice) (int64, error)
	GetSalesInvoice(ctx context.Context, id int64) (Invoice, error)
	UpdateSalesInvoice(ctx context.Context, inv Invoice) error
	UpdateSalesInvoicePayment(ctx context.Context, id int64, paid decimal.Decimal, status shared.PaymentStatus) error
	NextSequence(ctx context.Context, name string) (int64, error)
}
