package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// LedgerPort exposes the posting engine.
type LedgerPort interface {
	CreateJournalEntry(ctx context.Context, tx ledger.Tx, input ledger.JournalInput) (ledger.Posting, error)
	FindSystemAccount(ctx context.Context, tx ledger.Tx, key ledger.SystemAccount) (ledger.Account, error)
	BaseCurrency(ctx context.Context) string
}

// InventoryPort exposes required inventory integration.
type InventoryPort interface {
	IncreaseStock(ctx context.Context, tx inventory.Tx, input inventory.IncreaseInput) (inventory.Movement, error)
}

// RatePort freezes the order rate.
type RatePort interface {
	GetRate(ctx context.Context, store fx.Store, from, to string, date time.Time) (decimal.Decimal, error)
}

// Service orchestrates purchasing and receiving.
type Service struct {
	ledger    LedgerPort
	inventory InventoryPort
	rates     RatePort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the procurement service.
func NewService(ledger LedgerPort, inventory InventoryPort, rates RatePort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, inventory: inventory, rates: rates, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreatePOInput describes a purchase order.
type CreatePOInput struct {
	SupplierID int64
	BranchID   int64
	Currency   string
	ExpectedAt time.Time
	Items      []POItemInput
	// ExchangeRate overrides the resolved rate when the buyer agreed one with the supplier.
	ExchangeRate *decimal.Decimal
}

// POItemInput describes an order line.
type POItemInput struct {
	VariantID int64
	Quantity  decimal.Decimal
	CostPrice decimal.Decimal
}

// ReceiveInput describes a physical receipt against a purchase order.
type ReceiveInput struct {
	PurchaseOrderID int64
	BranchID        int64
	ReceivedAt      time.Time
	Note            string
	Items           []ReceiveItem
}

// ReceiveItem is one received variant.
type ReceiveItem struct {
	VariantID int64
	Quantity  decimal.Decimal
	Serials   []string
}

// Receipt is the outcome of ReceiveGoods.
type Receipt struct {
	Order   PurchaseOrder
	GRN     GoodsReceipt
	Posting ledger.Posting
}

// CreatePurchaseOrder stores a draft order and freezes its rate to base currency.
func (s *Service) CreatePurchaseOrder(ctx context.Context, tx Tx, input CreatePOInput) (PurchaseOrder, error) {
	if len(input.Items) == 0 {
		return PurchaseOrder{}, shared.Invalid("items", "at least one item is required")
	}
	supplier, err := tx.GetSupplier(ctx, input.SupplierID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	seen := make(map[int64]struct{}, len(input.Items))
	items := make([]POItem, 0, len(input.Items))
	total := decimal.Zero
	for i, item := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.VariantID == 0 || !item.Quantity.IsPositive() {
			return PurchaseOrder{}, shared.Invalid(field, "variant and positive quantity required")
		}
		if item.CostPrice.IsNegative() {
			return PurchaseOrder{}, shared.Invalid(field+".cost_price", "must not be negative")
		}
		if _, dup := seen[item.VariantID]; dup {
			return PurchaseOrder{}, shared.Invalid(field, "variant listed twice")
		}
		seen[item.VariantID] = struct{}{}
		lineTotal := item.Quantity.Mul(item.CostPrice)
		items = append(items, POItem{
			VariantID:        item.VariantID,
			QuantityOrdered:  item.Quantity,
			QuantityReceived: decimal.Zero,
			CostPrice:        item.CostPrice,
			TotalCost:        lineTotal,
		})
		total = total.Add(lineTotal)
	}

	base := s.ledger.BaseCurrency(ctx)
	if base == "" {
		return PurchaseOrder{}, shared.MissingConfiguration(shared.TenantID(ctx), "base currency")
	}
	currency := shared.NormalizeCurrency(input.Currency)
	if currency == "" {
		currency = supplier.Currency
	}
	if currency == "" {
		currency = base
	}
	if currency, err = fx.ValidateCurrency(currency); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now()
	rate, err := s.freezeRate(ctx, tx, currency, base, now, input.ExchangeRate)
	if err != nil {
		return PurchaseOrder{}, err
	}
	seq, err := tx.NextSequence(ctx, "purchase_order")
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: next number: %w", err)
	}
	po := PurchaseOrder{
		Number:             fmt.Sprintf("PO-%06d", seq),
		SupplierID:         supplier.ID,
		BranchID:           input.BranchID,
		Status:             POStatusDraft,
		Currency:           currency,
		ExchangeRateToBase: rate,
		ExpectedAt:         input.ExpectedAt,
		Items:              items,
		Total:              total,
		CreatedBy:          shared.UserID(ctx),
		CreatedAt:          now,
	}
	id, err := tx.CreatePurchaseOrder(ctx, po)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: create purchase order: %w", err)
	}
	po.ID = id
	s.logger.Info("purchase order created",
		slog.String("number", po.Number),
		slog.String("currency", po.Currency),
		slog.String("rate", rate.String()))
	return po, nil
}

// PlaceOrder sends a draft order to the supplier.
func (s *Service) PlaceOrder(ctx context.Context, tx Tx, poID int64) (PurchaseOrder, error) {
	po, err := tx.GetPurchaseOrder(ctx, poID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Status != POStatusDraft {
		return PurchaseOrder{}, &shared.StateError{Document: "purchase order", ID: poID, Status: string(po.Status), Action: "place"}
	}
	po.Status = POStatusOrdered
	if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: update purchase order: %w", err)
	}
	return po, nil
}

// CancelOrder cancels an order that has not received anything yet.
func (s *Service) CancelOrder(ctx context.Context, tx Tx, poID int64) (PurchaseOrder, error) {
	po, err := tx.GetPurchaseOrder(ctx, poID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Status != POStatusDraft && po.Status != POStatusOrdered {
		return PurchaseOrder{}, &shared.StateError{Document: "purchase order", ID: poID, Status: string(po.Status), Action: "cancel"}
	}
	po.Status = POStatusCancelled
	if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: update purchase order: %w", err)
	}
	return po, nil
}

// ReceiveGoods records a goods receipt, increases stock at the frozen base
// cost and posts Dr Inventory Asset / Cr GRNI for the received value.
func (s *Service) ReceiveGoods(ctx context.Context, tx Tx, input ReceiveInput) (Receipt, error) {
	po, err := tx.GetPurchaseOrder(ctx, input.PurchaseOrderID)
	if err != nil {
		return Receipt{}, err
	}
	if po.Status != POStatusOrdered && po.Status != POStatusPartiallyReceived {
		return Receipt{}, &shared.StateError{Document: "purchase order", ID: po.ID, Status: string(po.Status), Action: "receive goods"}
	}
	if !po.ExchangeRateToBase.IsPositive() {
		return Receipt{}, shared.Invalid("exchange_rate_to_base", fmt.Sprintf("purchase order %s has no frozen rate", po.Number))
	}
	items, total, err := validateReceipt(po, input.Items)
	if err != nil {
		return Receipt{}, err
	}
	inventoryAccount, err := s.ledger.FindSystemAccount(ctx, tx, ledger.SystemInventoryAsset)
	if err != nil {
		return Receipt{}, err
	}
	grni, err := s.ledger.FindSystemAccount(ctx, tx, ledger.SystemGRNI)
	if err != nil {
		return Receipt{}, err
	}

	branchID := input.BranchID
	if branchID == 0 {
		branchID = po.BranchID
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	seq, err := tx.NextSequence(ctx, "goods_receipt")
	if err != nil {
		return Receipt{}, fmt.Errorf("procurement: next number: %w", err)
	}
	grn := GoodsReceipt{
		Number:          fmt.Sprintf("GRN-%06d", seq),
		PurchaseOrderID: po.ID,
		SupplierID:      po.SupplierID,
		BranchID:        branchID,
		Status:          GRNStatusPendingInvoice,
		Currency:        po.Currency,
		ExchangeRate:    po.ExchangeRateToBase,
		Items:           items,
		Total:           total,
		TotalBase:       total.Mul(po.ExchangeRateToBase),
		ReceivedAt:      receivedAt,
		Note:            input.Note,
		CreatedBy:       shared.UserID(ctx),
	}
	grnID, err := tx.CreateGoodsReceipt(ctx, grn)
	if err != nil {
		return Receipt{}, fmt.Errorf("procurement: create goods receipt: %w", err)
	}
	grn.ID = grnID

	for _, item := range items {
		if _, err := s.inventory.IncreaseStock(ctx, tx, inventory.IncreaseInput{
			Type:      inventory.MovementReceipt,
			BranchID:  branchID,
			VariantID: item.VariantID,
			Qty:       item.QuantityReceived,
			UnitCost:  item.UnitCost.Mul(po.ExchangeRateToBase),
			Serials:   item.Serials,
			RefModule: "grn",
			RefID:     grnID,
			Note:      grn.Number,
		}); err != nil {
			return Receipt{}, err
		}
	}

	rate := po.ExchangeRateToBase
	posting, err := s.ledger.CreateJournalEntry(ctx, tx, ledger.JournalInput{
		Description: fmt.Sprintf("Goods received %s for %s", grn.Number, po.Number),
		Currency:    po.Currency,
		Date:        receivedAt,
		Lines: []ledger.Line{
			ledger.Debit(inventoryAccount.ID, total),
			ledger.Credit(grni.ID, total),
		},
		Refs:      ledger.Refs{PurchaseOrderID: po.ID, GoodsReceiptID: grnID},
		FixedRate: &rate,
	})
	if err != nil {
		return Receipt{}, err
	}
	grn.TransactionID = posting.TransactionID
	if err := tx.UpdateGoodsReceipt(ctx, grn); err != nil {
		return Receipt{}, fmt.Errorf("procurement: update goods receipt: %w", err)
	}

	for _, item := range items {
		_, idx, _ := po.Item(item.VariantID)
		po.Items[idx].QuantityReceived = po.Items[idx].QuantityReceived.Add(item.QuantityReceived)
	}
	po.Status = POStatusPartiallyReceived
	if po.FullyReceived() {
		po.Status = POStatusFullyReceived
	}
	if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
		return Receipt{}, fmt.Errorf("procurement: update purchase order: %w", err)
	}
	s.logger.Info("goods received",
		slog.String("grn", grn.Number),
		slog.String("po", po.Number),
		slog.String("status", string(po.Status)),
		slog.String("base_value", posting.Total().String()))
	return Receipt{Order: po, GRN: grn, Posting: posting}, nil
}

// Receipts lists the goods receipts of a purchase order.
func (s *Service) Receipts(ctx context.Context, tx Tx, poID int64) ([]GoodsReceipt, error) {
	if _, err := tx.GetPurchaseOrder(ctx, poID); err != nil {
		return nil, err
	}
	return tx.ListGoodsReceipts(ctx, poID)
}

func (s *Service) freezeRate(ctx context.Context, tx Tx, currency, base string, at time.Time, override *decimal.Decimal) (decimal.Decimal, error) {
	if currency == base {
		return decimal.NewFromInt(1), nil
	}
	if override != nil {
		if !override.IsPositive() {
			return decimal.Zero, shared.Invalid("exchange_rate", "must be positive")
		}
		return *override, nil
	}
	if s.rates == nil {
		return decimal.Zero, shared.MissingConfiguration(shared.TenantID(ctx), "exchange rate resolver")
	}
	return s.rates.GetRate(ctx, tx, currency, base, at)
}

func validateReceipt(po PurchaseOrder, received []ReceiveItem) ([]GRNItem, decimal.Decimal, error) {
	if len(received) == 0 {
		return nil, decimal.Zero, shared.Invalid("items", "at least one received item is required")
	}
	seen := make(map[int64]struct{}, len(received))
	items := make([]GRNItem, 0, len(received))
	total := decimal.Zero
	for i, item := range received {
		field := fmt.Sprintf("items[%d]", i)
		if !item.Quantity.IsPositive() {
			return nil, decimal.Zero, shared.Invalid(field+".quantity", "must be positive")
		}
		if _, dup := seen[item.VariantID]; dup {
			return nil, decimal.Zero, shared.Invalid(field, "variant listed twice")
		}
		seen[item.VariantID] = struct{}{}
		line, _, ok := po.Item(item.VariantID)
		if !ok {
			return nil, decimal.Zero, shared.NotFound("purchase order line", fmt.Sprintf("%s/variant %d", po.Number, item.VariantID))
		}
		if open := line.QuantityOrdered.Sub(line.QuantityReceived); item.Quantity.GreaterThan(open) {
			return nil, decimal.Zero, shared.Invalid(field+".quantity", fmt.Sprintf("received %s but only %s open", item.Quantity, open))
		}
		if len(item.Serials) > 0 && !item.Quantity.Equal(decimal.NewFromInt(int64(len(item.Serials)))) {
			return nil, decimal.Zero, shared.Invalid(field+".serials", fmt.Sprintf("%d serials for quantity %s", len(item.Serials), item.Quantity))
		}
		items = append(items, GRNItem{
			VariantID:        item.VariantID,
			QuantityReceived: item.Quantity,
			UnitCost:         line.CostPrice,
			Serials:          append([]string(nil), item.Serials...),
		})
		total = total.Add(item.Quantity.Mul(line.CostPrice))
	}
	if !total.IsPositive() {
		return nil, decimal.Zero, shared.Invalid("items", "received value must be positive")
	}
	return items, total, nil
}
