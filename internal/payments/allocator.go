package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// LedgerPort exposes the posting engine.
type LedgerPort interface {
	CreateJournalEntry(ctx context.Context, tx ledger.Tx, input ledger.JournalInput) (ledger.Posting, error)
	FindSystemAccount(ctx context.Context, tx ledger.Tx, key ledger.SystemAccount) (ledger.Account, error)
	Reverse(ctx context.Context, tx ledger.Tx, transactionID uuid.UUID, reason string) (ledger.Posting, error)
}

// Allocator records payments and keeps source documents' paid status current.
type Allocator struct {
	ledger  LedgerPort
	sources map[SourceKind]SourceResolver
	logger  *slog.Logger
	now     func() time.Time
}

// NewAllocator constructs an allocator with the built-in source resolvers.
func NewAllocator(ledger LedgerPort, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		ledger:  ledger,
		sources: defaultResolvers(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type plannedLine struct {
	input   LineInput
	method  Method
	account int64
}

// RecordPayment validates the split payment, posts one compound journal entry
// and recalculates the source document's paid status.
func (a *Allocator) RecordPayment(ctx context.Context, tx Tx, input Input) (Payment, error) {
	if len(input.Lines) == 0 {
		return Payment{}, shared.Invalid("lines", "at least one payment line is required")
	}
	resolver, err := a.resolver(input.Source.Kind)
	if err != nil {
		return Payment{}, err
	}
	direction := resolver.Direction
	if input.Direction != "" && input.Direction != direction {
		return Payment{}, shared.Invalid("direction",
			fmt.Sprintf("%s payments are %s", input.Source.Kind, direction))
	}
	source, err := resolver.Load(ctx, tx, input.Source.ID)
	if err != nil {
		return Payment{}, err
	}
	party, err := a.partyAccount(ctx, tx, source, resolver)
	if err != nil {
		return Payment{}, err
	}

	planned, total, err := a.planLines(ctx, tx, input.Lines)
	if err != nil {
		return Payment{}, err
	}
	outstanding, err := a.outstanding(ctx, tx, source)
	if err != nil {
		return Payment{}, err
	}
	if total.GreaterThan(outstanding.Add(shared.Tolerance)) {
		return Payment{}, &OverpaymentError{Source: source.Ref, Amount: total, Outstanding: outstanding}
	}

	paidAt := input.Date
	if paidAt.IsZero() {
		paidAt = a.now()
	}
	seq, err := tx.NextSequence(ctx, "payment")
	if err != nil {
		return Payment{}, fmt.Errorf("payments: next number: %w", err)
	}
	payment := Payment{
		Number:      fmt.Sprintf("PAY-%06d", seq),
		Source:      source.Ref,
		Direction:   direction,
		Currency:    source.Currency,
		Total:       total,
		ProcessedBy: shared.UserID(ctx),
		PaidAt:      paidAt,
	}
	for _, p := range planned {
		status := LineCleared
		if p.method.Deferred() {
			status = LinePending
		}
		payment.Lines = append(payment.Lines, Line{
			MethodID:        p.method.ID,
			Amount:          p.input.Amount,
			ReferenceNumber: p.input.ReferenceNumber,
			Status:          status,
		})
	}
	payment.Status = headerStatus(payment.Lines)
	id, err := tx.CreatePayment(ctx, payment)
	if err != nil {
		return Payment{}, fmt.Errorf("payments: create payment: %w", err)
	}
	payment.ID = id

	description := input.Description
	if description == "" {
		description = fmt.Sprintf("Payment %s for %s", payment.Number, sourceLabel(source))
	}
	posting, err := a.ledger.CreateJournalEntry(ctx, tx, ledger.JournalInput{
		Description: description,
		Currency:    source.Currency,
		Date:        paidAt,
		Lines:       compoundLines(direction, party.ID, total, planned),
		Refs:        refsFor(source.Ref, id, 0),
		FixedRate:   bookedRate(source),
	})
	if err != nil {
		return Payment{}, err
	}
	payment.TransactionID = posting.TransactionID
	if payment.Currency == "" {
		payment.Currency = posting.BaseCurrency
	}

	for i, p := range planned {
		if !p.method.Deferred() {
			continue
		}
		cheque := chequeFor(p.input, payment, i)
		chequeID, err := tx.CreateCheque(ctx, cheque)
		if err != nil {
			return Payment{}, fmt.Errorf("payments: create cheque: %w", err)
		}
		payment.Lines[i].ChequeID = chequeID
	}
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return Payment{}, fmt.Errorf("payments: update payment: %w", err)
	}
	if _, err := a.Recalculate(ctx, tx, source.Ref); err != nil {
		return Payment{}, err
	}
	a.logger.Info("payment recorded",
		slog.String("number", payment.Number),
		slog.String("source", source.Ref.String()),
		slog.String("direction", string(direction)),
		slog.String("total", total.String()),
		slog.String("status", string(payment.Status)))
	return payment, nil
}

// Recalculate recomputes the amount paid on ref from cleared lines of every
// non-voided payment and stores the derived status on the source document.
func (a *Allocator) Recalculate(ctx context.Context, tx Tx, ref SourceRef) (shared.PaymentStatus, error) {
	resolver, err := a.resolver(ref.Kind)
	if err != nil {
		return "", err
	}
	source, err := resolver.Load(ctx, tx, ref.ID)
	if err != nil {
		return "", err
	}
	payments, err := tx.ListPaymentsBySource(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("payments: list by source: %w", err)
	}
	paid := decimal.Zero
	for _, p := range payments {
		if p.Status == StatusVoided {
			continue
		}
		for _, line := range p.Lines {
			if line.Status == LineCleared {
				paid = paid.Add(line.Amount)
			}
		}
	}
	status := shared.PaymentStatusFor(source.Total, paid)
	if resolver.Settle != nil {
		if err := resolver.Settle(ctx, tx, ref.ID, paid, status); err != nil {
			return "", fmt.Errorf("payments: settle %s: %w", ref, err)
		}
	}
	return status, nil
}

// Outstanding returns the part of ref not yet covered by live payment lines.
func (a *Allocator) Outstanding(ctx context.Context, tx Tx, ref SourceRef) (decimal.Decimal, error) {
	resolver, err := a.resolver(ref.Kind)
	if err != nil {
		return decimal.Zero, err
	}
	source, err := resolver.Load(ctx, tx, ref.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return a.outstanding(ctx, tx, source)
}

func (a *Allocator) outstanding(ctx context.Context, tx Tx, source Source) (decimal.Decimal, error) {
	payments, err := tx.ListPaymentsBySource(ctx, source.Ref)
	if err != nil {
		return decimal.Zero, fmt.Errorf("payments: list by source: %w", err)
	}
	committed := decimal.Zero
	for _, p := range payments {
		if p.Status == StatusVoided {
			continue
		}
		for _, line := range p.Lines {
			if line.Status != LineBounced {
				committed = committed.Add(line.Amount)
			}
		}
	}
	return source.Total.Sub(committed), nil
}

func (a *Allocator) planLines(ctx context.Context, tx Tx, lines []LineInput) ([]plannedLine, decimal.Decimal, error) {
	seen := make(map[int64]struct{}, len(lines))
	planned := make([]plannedLine, 0, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		if line.MethodID == 0 {
			return nil, decimal.Zero, shared.Invalid(fmt.Sprintf("lines[%d].method_id", i), "required")
		}
		if _, dup := seen[line.MethodID]; dup {
			return nil, decimal.Zero, &DuplicateInstrumentError{MethodID: line.MethodID}
		}
		seen[line.MethodID] = struct{}{}
		if !line.Amount.IsPositive() {
			return nil, decimal.Zero, shared.Invalid(fmt.Sprintf("lines[%d].amount", i), "must be positive")
		}
		method, err := tx.GetPaymentMethod(ctx, line.MethodID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		account := method.PostingAccount()
		if account == 0 {
			return nil, decimal.Zero, shared.MissingConfiguration(shared.TenantID(ctx), fmt.Sprintf("account for payment method %q", method.Name))
		}
		if method.Deferred() && chequeNumber(line) == "" {
			return nil, decimal.Zero, shared.Invalid(fmt.Sprintf("lines[%d].cheque.number", i), "required for cheque payments")
		}
		planned = append(planned, plannedLine{input: line, method: method, account: account})
		total = total.Add(line.Amount)
	}
	return planned, total, nil
}

func (a *Allocator) partyAccount(ctx context.Context, tx Tx, source Source, resolver SourceResolver) (ledger.Account, error) {
	if source.PartyAccountID != 0 {
		return tx.GetAccount(ctx, source.PartyAccountID)
	}
	return a.ledger.FindSystemAccount(ctx, tx, resolver.Control)
}

// compoundLines debits the party once for outflows and credits it once for
// inflows, with one opposite line per instrument.
func compoundLines(direction Direction, partyAccount int64, total decimal.Decimal, planned []plannedLine) []ledger.Line {
	lines := make([]ledger.Line, 0, len(planned)+1)
	if direction == DirectionOutflow {
		lines = append(lines, ledger.Debit(partyAccount, total))
		for _, p := range planned {
			lines = append(lines, ledger.Credit(p.account, p.input.Amount))
		}
		return lines
	}
	for _, p := range planned {
		lines = append(lines, ledger.Debit(p.account, p.input.Amount))
	}
	return append(lines, ledger.Credit(partyAccount, total))
}

// headerStatus derives the payment status from its lines. A payment with no
// collected line left after clearance is bounced, not completed.
func headerStatus(lines []Line) Status {
	collected := false
	for _, line := range lines {
		switch line.Status {
		case LinePending:
			return StatusPendingClearance
		case LineCleared:
			collected = true
		}
	}
	if !collected {
		return StatusBounced
	}
	return StatusCompleted
}

func refsFor(ref SourceRef, paymentID, chequeID int64) ledger.Refs {
	refs := ledger.Refs{PaymentID: paymentID, ChequeID: chequeID}
	switch ref.Kind {
	case SourcePurchaseInvoice:
		refs.SupplierInvoiceID = ref.ID
	case SourceSalesInvoice:
		refs.SalesInvoiceID = ref.ID
	case SourceSalesReturn:
		refs.RMAID = ref.ID
	}
	return refs
}

func bookedRate(source Source) *decimal.Decimal {
	if !source.ExchangeRate.IsPositive() {
		return nil
	}
	rate := source.ExchangeRate
	return &rate
}

func sourceLabel(source Source) string {
	if source.Number != "" {
		return source.Number
	}
	return source.Ref.String()
}

func chequeNumber(line LineInput) string {
	if line.Cheque != nil && line.Cheque.Number != "" {
		return line.Cheque.Number
	}
	return line.ReferenceNumber
}

func chequeFor(line LineInput, payment Payment, index int) Cheque {
	cheque := Cheque{
		PaymentID:  payment.ID,
		LineIndex:  index,
		Number:     chequeNumber(line),
		ChequeDate: payment.PaidAt,
		Amount:     line.Amount,
		Status:     ChequePendingClearance,
		Direction:  payment.Direction,
	}
	if line.Cheque != nil {
		cheque.BankName = line.Cheque.BankName
		if !line.Cheque.Date.IsZero() {
			cheque.ChequeDate = line.Cheque.Date
		}
	}
	return cheque
}
