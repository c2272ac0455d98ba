package ap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// LedgerPort exposes the posting engine.
type LedgerPort interface {
	CreateJournalEntry(ctx context.Context, tx ledger.Tx, input ledger.JournalInput) (ledger.Posting, error)
	FindSystemAccount(ctx context.Context, tx ledger.Tx, key ledger.SystemAccount) (ledger.Account, error)
}

// Service performs the three-way match.
type Service struct {
	ledger LedgerPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the reconciliation service.
func NewService(ledger LedgerPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// PostInvoiceInput describes a supplier bill.
type PostInvoiceInput struct {
	SupplierID        int64
	GoodsReceiptIDs   []int64
	Items             []BilledItem
	SupplierReference string
	InvoiceDate       time.Time
	DueAt             time.Time
}

// BilledItem is one billed variant at the supplier's final price.
type BilledItem struct {
	VariantID      int64
	QuantityBilled decimal.Decimal
	FinalCostPrice decimal.Decimal
}

// PostSupplierInvoice matches the bill against its purchase order and goods
// receipts. GRNI is cleared at the original order value, Accounts Payable is
// credited at the billed value and the difference goes to purchase price variance.
func (s *Service) PostSupplierInvoice(ctx context.Context, tx Tx, input PostInvoiceInput) (SupplierInvoice, error) {
	if len(input.GoodsReceiptIDs) == 0 {
		return SupplierInvoice{}, shared.Invalid("goods_receipt_ids", "at least one goods receipt is required")
	}
	if len(input.Items) == 0 {
		return SupplierInvoice{}, shared.Invalid("items", "at least one billed item is required")
	}
	supplier, err := tx.GetSupplier(ctx, input.SupplierID)
	if err != nil {
		return SupplierInvoice{}, err
	}
	grns, err := loadReceipts(ctx, tx, supplier.ID, input.GoodsReceiptIDs)
	if err != nil {
		return SupplierInvoice{}, err
	}
	po, err := tx.GetPurchaseOrder(ctx, grns[0].PurchaseOrderID)
	if err != nil {
		return SupplierInvoice{}, err
	}
	items, billed, original, err := matchItems(po, grns, input.Items)
	if err != nil {
		return SupplierInvoice{}, err
	}

	grni, err := s.ledger.FindSystemAccount(ctx, tx, ledger.SystemGRNI)
	if err != nil {
		return SupplierInvoice{}, err
	}
	payable, err := s.payableAccount(ctx, tx, supplier)
	if err != nil {
		return SupplierInvoice{}, err
	}
	ppv, err := s.ledger.FindSystemAccount(ctx, tx, ledger.SystemPriceVariance)
	if err != nil {
		return SupplierInvoice{}, err
	}

	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = s.now()
	}
	seq, err := tx.NextSequence(ctx, "supplier_invoice")
	if err != nil {
		return SupplierInvoice{}, fmt.Errorf("ap: next number: %w", err)
	}
	variance := billed.Sub(original)
	inv := SupplierInvoice{
		Number:            fmt.Sprintf("SI-%06d", seq),
		SupplierReference: input.SupplierReference,
		SupplierID:        supplier.ID,
		PurchaseOrderID:   po.ID,
		GoodsReceiptIDs:   append([]int64(nil), input.GoodsReceiptIDs...),
		Currency:          po.Currency,
		ExchangeRate:      po.ExchangeRateToBase,
		Items:             items,
		SubTotal:          billed,
		TotalAmount:       billed,
		OriginalValue:     original,
		Variance:          variance,
		VarianceBase:      variance.Mul(po.ExchangeRateToBase),
		AmountPaid:        decimal.Zero,
		PaymentStatus:     shared.PaymentPending,
		InvoiceDate:       invoiceDate,
		DueAt:             input.DueAt,
		CreatedBy:         shared.UserID(ctx),
	}
	id, err := tx.CreateSupplierInvoice(ctx, inv)
	if err != nil {
		return SupplierInvoice{}, fmt.Errorf("ap: create supplier invoice: %w", err)
	}
	inv.ID = id

	rate := po.ExchangeRateToBase
	posting, err := s.ledger.CreateJournalEntry(ctx, tx, ledger.JournalInput{
		Description: fmt.Sprintf("Supplier invoice %s for %s", inv.Number, po.Number),
		Currency:    po.Currency,
		Date:        invoiceDate,
		Lines:       varianceLines(grni.ID, payable.ID, ppv.ID, original, billed),
		Refs:        ledger.Refs{SupplierInvoiceID: id, PurchaseOrderID: po.ID},
		FixedRate:   &rate,
	})
	if err != nil {
		return SupplierInvoice{}, err
	}
	inv.TransactionID = posting.TransactionID
	if err := tx.SetSupplierInvoiceTransaction(ctx, id, posting.TransactionID); err != nil {
		return SupplierInvoice{}, fmt.Errorf("ap: link supplier invoice posting: %w", err)
	}

	for _, grn := range grns {
		grn.Status = procurement.GRNStatusInvoiced
		if err := tx.UpdateGoodsReceipt(ctx, grn); err != nil {
			return SupplierInvoice{}, fmt.Errorf("ap: mark goods receipt invoiced: %w", err)
		}
	}
	s.logger.Info("supplier invoice posted",
		slog.String("number", inv.Number),
		slog.String("po", po.Number),
		slog.String("billed", billed.String()),
		slog.String("variance_base", inv.VarianceBase.String()))
	return inv, nil
}

func (s *Service) payableAccount(ctx context.Context, tx Tx, supplier masterdata.Supplier) (ledger.Account, error) {
	if supplier.PayableAccountID != 0 {
		return tx.GetAccount(ctx, supplier.PayableAccountID)
	}
	return s.ledger.FindSystemAccount(ctx, tx, ledger.SystemAccountsPayable)
}

// varianceLines debits GRNI at original value, credits AP at billed value and
// plugs the variance to PPV on whichever side keeps the entry balanced.
func varianceLines(grni, payable, ppv int64, original, billed decimal.Decimal) []ledger.Line {
	lines := []ledger.Line{
		ledger.Debit(grni, original),
		ledger.Credit(payable, billed),
	}
	variance := billed.Sub(original)
	switch {
	case variance.IsPositive():
		lines = append(lines, ledger.Debit(ppv, variance))
	case variance.IsNegative():
		lines = append(lines, ledger.Credit(ppv, variance.Neg()))
	}
	return lines
}

func loadReceipts(ctx context.Context, tx Tx, supplierID int64, ids []int64) ([]procurement.GoodsReceipt, error) {
	seen := make(map[int64]struct{}, len(ids))
	grns := make([]procurement.GoodsReceipt, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, shared.Invalid("goods_receipt_ids", fmt.Sprintf("goods receipt %d listed twice", id))
		}
		seen[id] = struct{}{}
		grn, err := tx.GetGoodsReceipt(ctx, id)
		if err != nil {
			return nil, err
		}
		if grn.SupplierID != supplierID {
			return nil, shared.NotFound("goods receipt", fmt.Sprintf("%d for supplier %d", id, supplierID))
		}
		if grn.Status == procurement.GRNStatusInvoiced {
			return nil, &shared.StateError{Document: "goods receipt", ID: grn.Number, Status: string(grn.Status), Action: "invoice"}
		}
		if len(grns) > 0 && grn.PurchaseOrderID != grns[0].PurchaseOrderID {
			return nil, shared.Invalid("goods_receipt_ids", "goods receipts belong to different purchase orders")
		}
		grns = append(grns, grn)
	}
	return grns, nil
}

// matchItems values each billed line at both the billed and the original order
// cost. Each received variant must be billed in full: invoicing closes the
// referenced receipts, so any unbilled quantity would stay in GRNI for good.
func matchItems(po procurement.PurchaseOrder, grns []procurement.GoodsReceipt, billed []BilledItem) ([]InvoiceItem, decimal.Decimal, decimal.Decimal, error) {
	received := make(map[int64]decimal.Decimal)
	for _, grn := range grns {
		for _, item := range grn.Items {
			received[item.VariantID] = received[item.VariantID].Add(item.QuantityReceived)
		}
	}
	seen := make(map[int64]decimal.Decimal, len(billed))
	items := make([]InvoiceItem, 0, len(billed))
	billedTotal, originalTotal := decimal.Zero, decimal.Zero
	for i, item := range billed {
		field := fmt.Sprintf("items[%d]", i)
		if !item.QuantityBilled.IsPositive() {
			return nil, decimal.Zero, decimal.Zero, shared.Invalid(field+".quantity_billed", "must be positive")
		}
		if item.FinalCostPrice.IsNegative() {
			return nil, decimal.Zero, decimal.Zero, shared.Invalid(field+".final_cost_price", "must not be negative")
		}
		if _, dup := seen[item.VariantID]; dup {
			return nil, decimal.Zero, decimal.Zero, shared.Invalid(field, "variant billed twice")
		}
		seen[item.VariantID] = item.QuantityBilled
		line, _, ok := po.Item(item.VariantID)
		if !ok {
			return nil, decimal.Zero, decimal.Zero, shared.NotFound("purchase order line", fmt.Sprintf("%s/variant %d", po.Number, item.VariantID))
		}
		if item.QuantityBilled.GreaterThan(received[item.VariantID]) {
			return nil, decimal.Zero, decimal.Zero, shared.Invalid(field+".quantity_billed",
				fmt.Sprintf("billed %s but received %s", item.QuantityBilled, received[item.VariantID]))
		}
		lineTotal := item.QuantityBilled.Mul(item.FinalCostPrice)
		items = append(items, InvoiceItem{
			VariantID:         item.VariantID,
			QuantityBilled:    item.QuantityBilled,
			FinalCostPrice:    item.FinalCostPrice,
			OriginalCostPrice: line.CostPrice,
			LineTotal:         lineTotal,
		})
		billedTotal = billedTotal.Add(lineTotal)
		originalTotal = originalTotal.Add(item.QuantityBilled.Mul(line.CostPrice))
	}
	for _, grn := range grns {
		for _, item := range grn.Items {
			if qty := seen[item.VariantID]; qty.LessThan(received[item.VariantID]) {
				return nil, decimal.Zero, decimal.Zero, shared.Invalid("items",
					fmt.Sprintf("variant %d billed %s but received %s", item.VariantID, qty, received[item.VariantID]))
			}
		}
	}
	if !billedTotal.IsPositive() && !originalTotal.IsPositive() {
		return nil, decimal.Zero, decimal.Zero, shared.Invalid("items", "invoice moves no value")
	}
	return items, billedTotal, originalTotal, nil
}
