// Package returns reverses a prior sale's stock and ledger effects and settles
// the refund in cash or store credit.
package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Resolution selects how the customer is made whole.
type Resolution string

const (
	ResolutionRefund      Resolution = "refund"
	ResolutionStoreCredit Resolution = "store_credit"
)

// RMA is the immutable record of a processed return.
type RMA struct {
	ID             int64
	Number         string
	SalesInvoiceID int64
	CustomerID     int64
	BranchID       int64
	Currency       string
	ExchangeRate   decimal.Decimal
	Items          []Item
	TotalRefund    decimal.Decimal
	Resolution     Resolution
	Reason         string
	AmountPaid     decimal.Decimal
	PaymentStatus  shared.PaymentStatus
	TransactionID  uuid.UUID
	VoucherID      int64
	CreatedBy      int64
	CreatedAt      time.Time
}

// Item is one returned variant valued at its original sale.
type Item struct {
	VariantID int64           `json:"variant_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Serials   []string        `json:"serials,omitempty"`
}

// RefundVoucher is store credit issued for a return.
type RefundVoucher struct {
	ID             int64
	Code           string
	RMAID          int64
	CustomerID     int64
	Currency       string
	InitialAmount  decimal.Decimal
	CurrentBalance decimal.Decimal
	IssuedAt       time.Time
}

// Tx is the unit of work returns run in.
type Tx interface {
	payments.Tx
	sales.Tx
	inventory.Tx
	masterdata.Tx
	CreateRMA(ctx context.Context, rma RMA) (int64, error)
	GetRMA(ctx context.Context, id int64) (RMA, error)
	UpdateRMA(ctx context.Context, rma RMA) error
	ListRMAsByInvoice(ctx context.Context, salesInvoiceID int64) ([]RMA, error)
	CreateVoucher(ctx context.Context, voucher RefundVoucher) (int64, error)
	GetVoucherByCode(ctx context.Context, code string) (RefundVoucher, error)
	UpdateVoucherBalance(ctx context.Context, id int64, balance decimal.Decimal) error
}
