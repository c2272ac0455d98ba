// Package procurement turns purchase orders and goods receipts into inventory
// valuation postings through the goods-received-not-invoiced liability.
package procurement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft             POStatus = "draft"
	POStatusOrdered           POStatus = "ordered"
	POStatusPartiallyReceived POStatus = "partially_received"
	POStatusFullyReceived     POStatus = "fully_received"
	POStatusCancelled         POStatus = "cancelled"
)

// Goods receipt statuses.
type GRNStatus string

const (
	GRNStatusPendingInvoice GRNStatus = "pending_invoice"
	GRNStatusInvoiced       GRNStatus = "invoiced"
)

// PurchaseOrder carries the exchange rate frozen when it was created.
type PurchaseOrder struct {
	ID                 int64
	Number             string
	SupplierID         int64
	BranchID           int64
	Status             POStatus
	Currency           string
	ExchangeRateToBase decimal.Decimal
	ExpectedAt         time.Time
	Items              []POItem
	Total              decimal.Decimal
	CreatedBy          int64
	CreatedAt          time.Time
}

// POItem represents an ordered variant.
type POItem struct {
	VariantID        int64
	QuantityOrdered  decimal.Decimal
	QuantityReceived decimal.Decimal
	CostPrice        decimal.Decimal
	TotalCost        decimal.Decimal
}

// Item returns the order line for variantID.
func (po PurchaseOrder) Item(variantID int64) (POItem, int, bool) {
	for i, item := range po.Items {
		if item.VariantID == variantID {
			return item, i, true
		}
	}
	return POItem{}, -1, false
}

// FullyReceived reports whether every line received at least its ordered quantity.
func (po PurchaseOrder) FullyReceived() bool {
	for _, item := range po.Items {
		if item.QuantityReceived.LessThan(item.QuantityOrdered) {
			return false
		}
	}
	return len(po.Items) > 0
}

// GoodsReceipt is the immutable record of one physical receipt.
type GoodsReceipt struct {
	ID              int64
	Number          string
	PurchaseOrderID int64
	SupplierID      int64
	BranchID        int64
	Status          GRNStatus
	Currency        string
	ExchangeRate    decimal.Decimal
	Items           []GRNItem
	Total           decimal.Decimal
	TotalBase       decimal.Decimal
	TransactionID   uuid.UUID
	ReceivedAt      time.Time
	Note            string
	CreatedBy       int64
}

// GRNItem describes what arrived for one variant.
type GRNItem struct {
	VariantID        int64
	QuantityReceived decimal.Decimal
	UnitCost         decimal.Decimal
	Serials          []string
}

// Tx is the unit of work purchasing runs in.
type Tx interface {
	ledger.Tx
	inventory.Tx
	masterdata.Tx
	CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error
	CreateGoodsReceipt(ctx context.Context, grn GoodsReceipt) (int64, error)
	GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceipt, error)
	UpdateGoodsReceipt(ctx context.Context, grn GoodsReceipt) error
	ListGoodsReceipts(ctx context.Context, purchaseOrderID int64) ([]GoodsReceipt, error)
	NextSequence(ctx context.Context, name string) (int64, error)
}
