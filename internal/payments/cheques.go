package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ClearCheque moves a pending cheque from its holding account into the
// method's linked account and counts the line as paid.
func (a *Allocator) ClearCheque(ctx context.Context, tx Tx, chequeID int64, clearedAt time.Time) (Cheque, error) {
	cheque, payment, method, source, err := a.loadPendingCheque(ctx, tx, chequeID, "clear")
	if err != nil {
		return Cheque{}, err
	}
	if method.LinkedAccountID == 0 {
		return Cheque{}, shared.MissingConfiguration(shared.TenantID(ctx), fmt.Sprintf("linked account for payment method %q", method.Name))
	}
	if clearedAt.IsZero() {
		clearedAt = a.now()
	}
	lines := []ledger.Line{
		ledger.Debit(method.LinkedAccountID, cheque.Amount),
		ledger.Credit(method.HoldingAccountID, cheque.Amount),
	}
	if payment.Direction == DirectionOutflow {
		lines = []ledger.Line{
			ledger.Debit(method.HoldingAccountID, cheque.Amount),
			ledger.Credit(method.LinkedAccountID, cheque.Amount),
		}
	}
	if _, err := a.ledger.CreateJournalEntry(ctx, tx, ledger.JournalInput{
		Description: fmt.Sprintf("Cheque %s cleared (%s)", cheque.Number, payment.Number),
		Currency:    payment.Currency,
		Date:        clearedAt,
		Lines:       lines,
		Refs:        refsFor(payment.Source, payment.ID, cheque.ID),
		FixedRate:   bookedRate(source),
	}); err != nil {
		return Cheque{}, err
	}
	return a.settleCheque(ctx, tx, cheque, payment, ChequeCleared, LineCleared, clearedAt)
}

// BounceCheque reverses a pending cheque against the party account. The
// source document's outstanding balance is restored.
func (a *Allocator) BounceCheque(ctx context.Context, tx Tx, chequeID int64, bouncedAt time.Time) (Cheque, error) {
	cheque, payment, method, source, err := a.loadPendingCheque(ctx, tx, chequeID, "bounce")
	if err != nil {
		return Cheque{}, err
	}
	resolver, err := a.resolver(payment.Source.Kind)
	if err != nil {
		return Cheque{}, err
	}
	party, err := a.partyAccount(ctx, tx, source, resolver)
	if err != nil {
		return Cheque{}, err
	}
	if bouncedAt.IsZero() {
		bouncedAt = a.now()
	}
	lines := []ledger.Line{
		ledger.Debit(party.ID, cheque.Amount),
		ledger.Credit(method.HoldingAccountID, cheque.Amount),
	}
	if payment.Direction == DirectionOutflow {
		lines = []ledger.Line{
			ledger.Debit(method.HoldingAccountID, cheque.Amount),
			ledger.Credit(party.ID, cheque.Amount),
		}
	}
	if _, err := a.ledger.CreateJournalEntry(ctx, tx, ledger.JournalInput{
		Description: fmt.Sprintf("Cheque %s bounced (%s)", cheque.Number, payment.Number),
		Currency:    payment.Currency,
		Date:        bouncedAt,
		Lines:       lines,
		Refs:        refsFor(payment.Source, payment.ID, cheque.ID),
		FixedRate:   bookedRate(source),
	}); err != nil {
		return Cheque{}, err
	}
	return a.settleCheque(ctx, tx, cheque, payment, ChequeBounced, LineBounced, bouncedAt)
}

// VoidPayment reverses the payment's journal entry and cancels its pending
// cheques. Payments with a cheque that already cleared or bounced cannot be voided.
func (a *Allocator) VoidPayment(ctx context.Context, tx Tx, paymentID int64, reason string) (Payment, error) {
	payment, err := tx.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if payment.Status == StatusVoided {
		return Payment{}, &shared.StateError{Document: "payment", ID: paymentID, Status: string(payment.Status), Action: "void"}
	}
	for _, line := range payment.Lines {
		if line.ChequeID != 0 && line.Status != LinePending {
			return Payment{}, &shared.StateError{Document: "payment", ID: paymentID, Status: "cheque " + string(line.Status), Action: "void"}
		}
	}
	if reason == "" {
		reason = "Void payment " + payment.Number
	}
	if _, err := a.ledger.Reverse(ctx, tx, payment.TransactionID, reason); err != nil {
		return Payment{}, err
	}
	now := a.now()
	for _, line := range payment.Lines {
		if line.ChequeID == 0 {
			continue
		}
		if err := tx.UpdateChequeStatus(ctx, line.ChequeID, ChequeCancelled, now); err != nil {
			return Payment{}, fmt.Errorf("payments: cancel cheque: %w", err)
		}
	}
	payment.Status = StatusVoided
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return Payment{}, fmt.Errorf("payments: update payment: %w", err)
	}
	if _, err := a.Recalculate(ctx, tx, payment.Source); err != nil {
		return Payment{}, err
	}
	a.logger.Info("payment voided", slog.String("number", payment.Number), slog.String("source", payment.Source.String()))
	return payment, nil
}

// PendingCheques lists cheques still awaiting clearance dated on or before dueBy.
func (a *Allocator) PendingCheques(ctx context.Context, tx Tx, dueBy time.Time) ([]Cheque, error) {
	if dueBy.IsZero() {
		dueBy = a.now()
	}
	cheques, err := tx.ListPendingCheques(ctx, dueBy)
	if err != nil {
		return nil, fmt.Errorf("payments: list pending cheques: %w", err)
	}
	return cheques, nil
}

func (a *Allocator) loadPendingCheque(ctx context.Context, tx Tx, chequeID int64, action string) (Cheque, Payment, Method, Source, error) {
	cheque, err := tx.GetCheque(ctx, chequeID)
	if err != nil {
		return Cheque{}, Payment{}, Method{}, Source{}, err
	}
	if cheque.Status != ChequePendingClearance {
		return Cheque{}, Payment{}, Method{}, Source{}, &shared.StateError{Document: "cheque", ID: chequeID, Status: string(cheque.Status), Action: action}
	}
	payment, err := tx.GetPayment(ctx, cheque.PaymentID)
	if err != nil {
		return Cheque{}, Payment{}, Method{}, Source{}, err
	}
	if payment.Status == StatusVoided {
		return Cheque{}, Payment{}, Method{}, Source{}, &shared.StateError{Document: "payment", ID: payment.ID, Status: string(payment.Status), Action: action + " cheque"}
	}
	if cheque.LineIndex < 0 || cheque.LineIndex >= len(payment.Lines) {
		return Cheque{}, Payment{}, Method{}, Source{}, fmt.Errorf("payments: cheque %d points at missing line %d", chequeID, cheque.LineIndex)
	}
	method, err := tx.GetPaymentMethod(ctx, payment.Lines[cheque.LineIndex].MethodID)
	if err != nil {
		return Cheque{}, Payment{}, Method{}, Source{}, err
	}
	if method.HoldingAccountID == 0 {
		return Cheque{}, Payment{}, Method{}, Source{}, shared.MissingConfiguration(shared.TenantID(ctx), fmt.Sprintf("holding account for payment method %q", method.Name))
	}
	resolver, err := a.resolver(payment.Source.Kind)
	if err != nil {
		return Cheque{}, Payment{}, Method{}, Source{}, err
	}
	source, err := resolver.Load(ctx, tx, payment.Source.ID)
	if err != nil {
		return Cheque{}, Payment{}, Method{}, Source{}, err
	}
	return cheque, payment, method, source, nil
}

func (a *Allocator) settleCheque(ctx context.Context, tx Tx, cheque Cheque, payment Payment, status ChequeStatus, lineStatus LineStatus, at time.Time) (Cheque, error) {
	if err := tx.UpdateChequeStatus(ctx, cheque.ID, status, at); err != nil {
		return Cheque{}, fmt.Errorf("payments: update cheque: %w", err)
	}
	payment.Lines[cheque.LineIndex].Status = lineStatus
	payment.Status = headerStatus(payment.Lines)
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return Cheque{}, fmt.Errorf("payments: update payment: %w", err)
	}
	if _, err := a.Recalculate(ctx, tx, payment.Source); err != nil {
		return Cheque{}, err
	}
	cheque.Status = status
	cheque.ClearedAt = at
	a.logger.Info("cheque settled",
		slog.Int64("cheque_id", cheque.ID),
		slog.String("status", string(status)),
		slog.String("payment", payment.Number))
	return cheque, nil
}
