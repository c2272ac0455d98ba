package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PostingTx is the unit of work for posting invoices.
type PostingTx interface {
	Tx
	masterdata.Tx
	ledger.Tx
}

// LedgerPort exposes the posting engine.
type LedgerPort interface {
	CreateJournalEntry(ctx context.Context, tx ledger.Tx, input ledger.JournalInput) (ledger.Posting, error)
	FindSystemAccount(ctx context.Context, tx ledger.Tx, key ledger.SystemAccount) (ledger.Account, error)
}

// Service posts sales invoices to the ledger.
type Service struct {
	ledger LedgerPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the sales service.
func NewService(ledger LedgerPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// PostInvoiceInput describes a sale to record.
type PostInvoiceInput struct {
	CustomerID int64
	BranchID   int64
	Currency   string
	IssuedAt   time.Time
	Lines      []InvoiceLine
}

// PostInvoice records the invoice and posts Dr Accounts Receivable / Cr Sales Revenue.
func (s *Service) PostInvoice(ctx context.Context, tx PostingTx, input PostInvoiceInput) (Invoice, error) {
	if len(input.Lines) == 0 {
		return Invoice{}, shared.Invalid("lines", "at least one line is required")
	}
	total := decimal.Zero
	for i, line := range input.Lines {
		if line.VariantID == 0 || !line.Quantity.IsPositive() {
			return Invoice{}, shared.Invalid(fmt.Sprintf("lines[%d]", i), "variant and positive quantity required")
		}
		if line.UnitPrice.IsNegative() || line.UnitCost.IsNegative() {
			return Invoice{}, shared.Invalid(fmt.Sprintf("lines[%d]", i), "price and cost must not be negative")
		}
		total = total.Add(line.LineTotal())
	}
	if !total.IsPositive() {
		return Invoice{}, shared.Invalid("lines", "invoice total must be positive")
	}
	customer, err := tx.GetCustomer(ctx, input.CustomerID)
	if err != nil {
		return Invoice{}, err
	}
	receivable, err := ReceivableAccount(ctx, tx, s.ledger, customer)
	if err != nil {
		return Invoice{}, err
	}
	revenue, err := s.ledger.FindSystemAccount(ctx, tx, ledger.SystemSalesRevenue)
	if err != nil {
		return Invoice{}, err
	}
	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}
	seq, err := tx.NextSequence(ctx, "sales_invoice")
	if err != nil {
		return Invoice{}, fmt.Errorf("sales: next number: %w", err)
	}
	inv := Invoice{
		Number:        fmt.Sprintf("INV-%06d", seq),
		CustomerID:    customer.ID,
		BranchID:      input.BranchID,
		Currency:      shared.NormalizeCurrency(input.Currency),
		IssuedAt:      issuedAt,
		Lines:         append([]InvoiceLine(nil), input.Lines...),
		Total:         total,
		AmountPaid:    decimal.Zero,
		PaymentStatus: shared.PaymentPending,
		CreatedBy:     shared.UserID(ctx),
	}
	id, err := tx.CreateSalesInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, fmt.Errorf("sales: create invoice: %w", err)
	}
	inv.ID = id

	posting, err := s.ledger.CreateJournalEntry(ctx, tx, ledger.JournalInput{
		Description: "Sales invoice " + inv.Number,
		Currency:    inv.Currency,
		Date:        issuedAt,
		Lines: []ledger.Line{
			ledger.Debit(receivable.ID, total),
			ledger.Credit(revenue.ID, total),
		},
		Refs: ledger.Refs{SalesInvoiceID: id},
	})
	if err != nil {
		return Invoice{}, err
	}
	inv.TransactionID = posting.TransactionID
	inv.ExchangeRate = posting.ExchangeRate
	if inv.Currency == "" {
		inv.Currency = posting.BaseCurrency
	}
	if err := tx.UpdateSalesInvoice(ctx, inv); err != nil {
		return Invoice{}, fmt.Errorf("sales: update invoice: %w", err)
	}
	s.logger.Info("sales invoice posted", slog.String("number", inv.Number), slog.String("total", total.String()))
	return inv, nil
}

// ReceivableAccount returns the customer's receivable account, falling back to
// the tenant's Accounts Receivable control account.
func ReceivableAccount(ctx context.Context, tx ledger.Tx, ledgerPort LedgerPort, customer masterdata.Customer) (ledger.Account, error) {
	if customer.ReceivableAccountID != 0 {
		return tx.GetAccount(ctx, customer.ReceivableAccountID)
	}
	return ledgerPort.FindSystemAccount(ctx, tx, ledger.SystemAccountsReceivable)
}
