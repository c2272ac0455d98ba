package returns

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// LedgerPort exposes the posting engine.
type LedgerPort interface {
	CreateJournalEntry(ctx context.Context, tx ledger.Tx, input ledger.JournalInput) (ledger.Posting, error)
	FindSystemAccount(ctx context.Context, tx ledger.Tx, key ledger.SystemAccount) (ledger.Account, error)
}

// InventoryPort restocks returned goods.
type InventoryPort interface {
	IncreaseStock(ctx context.Context, tx inventory.Tx, input inventory.IncreaseInput) (inventory.Movement, error)
}

// PaymentPort settles cash refunds.
type PaymentPort interface {
	RecordPayment(ctx context.Context, tx payments.Tx, input payments.Input) (payments.Payment, error)
}

// Service coordinates returns and refunds.
type Service struct {
	ledger    LedgerPort
	inventory InventoryPort
	payments  PaymentPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the returns coordinator.
func NewService(ledger LedgerPort, inventory InventoryPort, payments PaymentPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, inventory: inventory, payments: payments, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ReturnInput describes a customer return.
type ReturnInput struct {
	SalesInvoiceID int64
	BranchID       int64
	Items          []ReturnItem
	Resolution     Resolution
	// RefundLines pay out a cash refund; they must add up to the refund total.
	RefundLines []payments.LineInput
	Reason      string
	Date        time.Time
}

// ReturnItem is one returned variant.
type ReturnItem struct {
	VariantID int64
	Quantity  decimal.Decimal
	Serials   []string
}

// Result is the outcome of ProcessReturn.
type Result struct {
	RMA     RMA
	Posting ledger.Posting
	Payment *payments.Payment
	Voucher *RefundVoucher
}

// ProcessReturn restocks returned goods at their original cost, posts
// Dr Sales Returns / Cr Accounts Receivable and settles the refund.
func (s *Service) ProcessReturn(ctx context.Context, tx Tx, input ReturnInput) (Result, error) {
	if input.Resolution != ResolutionRefund && input.Resolution != ResolutionStoreCredit {
		return Result{}, shared.Invalid("resolution", fmt.Sprintf("unsupported resolution %q", input.Resolution))
	}
	if len(input.Items) == 0 {
		return Result{}, shared.Invalid("items", "at least one returned item is required")
	}
	invoice, err := tx.GetSalesInvoice(ctx, input.SalesInvoiceID)
	if err != nil {
		return Result{}, err
	}
	items, refund, err := s.valueItems(ctx, tx, invoice, input.Items)
	if err != nil {
		return Result{}, err
	}
	if input.Resolution == ResolutionRefund {
		paid := decimal.Zero
		for _, line := range input.RefundLines {
			paid = paid.Add(line.Amount)
		}
		if len(input.RefundLines) == 0 || !shared.NearlyEqual(paid, refund) {
			return Result{}, shared.Invalid("refund_lines", fmt.Sprintf("refund lines total %s, refund due %s", paid, refund))
		}
	}
	customer, err := tx.GetCustomer(ctx, invoice.CustomerID)
	if err != nil {
		return Result{}, err
	}
	receivable, err := sales.ReceivableAccount(ctx, tx, s.ledger, customer)
	if err != nil {
		return Result{}, err
	}
	allowances, err := s.ledger.FindSystemAccount(ctx, tx, ledger.SystemSalesReturns)
	if err != nil {
		return Result{}, err
	}

	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	branchID := input.BranchID
	if branchID == 0 {
		branchID = invoice.BranchID
	}
	seq, err := tx.NextSequence(ctx, "rma")
	if err != nil {
		return Result{}, fmt.Errorf("returns: next number: %w", err)
	}
	rma := RMA{
		Number:         fmt.Sprintf("RMA-%06d", seq),
		SalesInvoiceID: invoice.ID,
		CustomerID:     invoice.CustomerID,
		BranchID:       branchID,
		Currency:       invoice.Currency,
		ExchangeRate:   invoice.ExchangeRate,
		Items:          items,
		TotalRefund:    refund,
		Resolution:     input.Resolution,
		Reason:         strings.TrimSpace(input.Reason),
		AmountPaid:     decimal.Zero,
		PaymentStatus:  shared.PaymentPending,
		CreatedBy:      shared.UserID(ctx),
		CreatedAt:      date,
	}
	rmaID, err := tx.CreateRMA(ctx, rma)
	if err != nil {
		return Result{}, fmt.Errorf("returns: create rma: %w", err)
	}
	rma.ID = rmaID

	for _, item := range items {
		if _, err := s.inventory.IncreaseStock(ctx, tx, inventory.IncreaseInput{
			Type:      inventory.MovementReturn,
			BranchID:  branchID,
			VariantID: item.VariantID,
			Qty:       item.Quantity,
			UnitCost:  item.UnitCost,
			Serials:   item.Serials,
			RefModule: "rma",
			RefID:     rmaID,
			Note:      rma.Number,
		}); err != nil {
			return Result{}, err
		}
	}

	var fixed *decimal.Decimal
	if invoice.ExchangeRate.IsPositive() {
		rate := invoice.ExchangeRate
		fixed = &rate
	}
	posting, err := s.ledger.CreateJournalEntry(ctx, tx, ledger.JournalInput{
		Description: fmt.Sprintf("Return %s of %s", rma.Number, invoice.Number),
		Currency:    invoice.Currency,
		Date:        date,
		Lines: []ledger.Line{
			ledger.Debit(allowances.ID, refund),
			ledger.Credit(receivable.ID, refund),
		},
		Refs:      ledger.Refs{RMAID: rmaID, SalesInvoiceID: invoice.ID},
		FixedRate: fixed,
	})
	if err != nil {
		return Result{}, err
	}
	rma.TransactionID = posting.TransactionID
	result := Result{Posting: posting}

	switch input.Resolution {
	case ResolutionStoreCredit:
		voucher, err := s.issueVoucher(ctx, tx, rma, date)
		if err != nil {
			return Result{}, err
		}
		rma.VoucherID = voucher.ID
		result.Voucher = &voucher
	default:
		if err := tx.UpdateRMA(ctx, rma); err != nil {
			return Result{}, fmt.Errorf("returns: update rma: %w", err)
		}
		payment, err := s.payments.RecordPayment(ctx, tx, payments.Input{
			Source:      payments.SourceRef{Kind: payments.SourceSalesReturn, ID: rmaID},
			Direction:   payments.DirectionOutflow,
			Lines:       input.RefundLines,
			Date:        date,
			Description: "Refund for " + rma.Number,
		})
		if err != nil {
			return Result{}, err
		}
		result.Payment = &payment
		// the allocator settled the rma's paid status; reload to pick it up
		if rma, err = tx.GetRMA(ctx, rmaID); err != nil {
			return Result{}, err
		}
	}
	if err := tx.UpdateRMA(ctx, rma); err != nil {
		return Result{}, fmt.Errorf("returns: update rma: %w", err)
	}
	result.RMA = rma
	s.logger.Info("return processed",
		slog.String("rma", rma.Number),
		slog.String("invoice", invoice.Number),
		slog.String("resolution", string(rma.Resolution)),
		slog.String("refund", refund.String()))
	return result, nil
}

// RedeemVoucher draws amount from a refund voucher. The balance never goes below zero.
func (s *Service) RedeemVoucher(ctx context.Context, tx Tx, code string, amount decimal.Decimal) (RefundVoucher, error) {
	if !amount.IsPositive() {
		return RefundVoucher{}, shared.Invalid("amount", "must be positive")
	}
	voucher, err := tx.GetVoucherByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return RefundVoucher{}, err
	}
	if amount.GreaterThan(voucher.CurrentBalance.Add(shared.Tolerance)) {
		return RefundVoucher{}, shared.Invalid("amount", fmt.Sprintf("voucher %s has %s left", voucher.Code, voucher.CurrentBalance))
	}
	balance := voucher.CurrentBalance.Sub(amount)
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	if err := tx.UpdateVoucherBalance(ctx, voucher.ID, balance); err != nil {
		return RefundVoucher{}, fmt.Errorf("returns: update voucher: %w", err)
	}
	voucher.CurrentBalance = balance
	return voucher, nil
}

func (s *Service) issueVoucher(ctx context.Context, tx Tx, rma RMA, at time.Time) (RefundVoucher, error) {
	seq, err := tx.NextSequence(ctx, "refund_voucher")
	if err != nil {
		return RefundVoucher{}, fmt.Errorf("returns: next voucher: %w", err)
	}
	voucher := RefundVoucher{
		Code:           fmt.Sprintf("RV-%06d", seq),
		RMAID:          rma.ID,
		CustomerID:     rma.CustomerID,
		Currency:       rma.Currency,
		InitialAmount:  rma.TotalRefund,
		CurrentBalance: rma.TotalRefund,
		IssuedAt:       at,
	}
	id, err := tx.CreateVoucher(ctx, voucher)
	if err != nil {
		return RefundVoucher{}, fmt.Errorf("returns: create voucher: %w", err)
	}
	voucher.ID = id
	return voucher, nil
}

// valueItems prices each returned variant from the original sale line and
// rejects quantities beyond what was sold and not yet returned.
func (s *Service) valueItems(ctx context.Context, tx Tx, invoice sales.Invoice, requested []ReturnItem) ([]Item, decimal.Decimal, error) {
	previous, err := tx.ListRMAsByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("returns: list rmas: %w", err)
	}
	returned := make(map[int64]decimal.Decimal)
	for _, rma := range previous {
		for _, item := range rma.Items {
			returned[item.VariantID] = returned[item.VariantID].Add(item.Quantity)
		}
	}
	seen := make(map[int64]struct{}, len(requested))
	items := make([]Item, 0, len(requested))
	refund := decimal.Zero
	for i, req := range requested {
		field := fmt.Sprintf("items[%d]", i)
		if !req.Quantity.IsPositive() {
			return nil, decimal.Zero, shared.Invalid(field+".quantity", "must be positive")
		}
		if _, dup := seen[req.VariantID]; dup {
			return nil, decimal.Zero, shared.Invalid(field, "variant listed twice")
		}
		seen[req.VariantID] = struct{}{}
		line, ok := invoice.Line(req.VariantID)
		if !ok {
			return nil, decimal.Zero, shared.NotFound("sales invoice line", fmt.Sprintf("%s/variant %d", invoice.Number, req.VariantID))
		}
		returnable := line.Quantity.Sub(returned[req.VariantID])
		if req.Quantity.GreaterThan(returnable) {
			return nil, decimal.Zero, shared.Invalid(field+".quantity", fmt.Sprintf("only %s returnable", returnable))
		}
		items = append(items, Item{
			VariantID: req.VariantID,
			Quantity:  req.Quantity,
			UnitPrice: line.UnitPrice,
			UnitCost:  line.UnitCost,
			Serials:   append([]string(nil), req.Serials...),
		})
		refund = refund.Add(req.Quantity.Mul(line.UnitPrice))
	}
	if !refund.IsPositive() {
		return nil, decimal.Zero, shared.Invalid("items", "refund must be positive")
	}
	return items, refund, nil
}
