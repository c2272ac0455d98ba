package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/installments"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func cash(f *fixture, amount string) []payments.LineInput {
	return []payments.LineInput{{MethodID: f.cashMethod.ID, Amount: dec(amount)}}
}

func TestInstallmentPlanLifecycle(t *testing.T) {
	f := newFixture(t)
	inv := f.hundredInvoice(t)

	plan, err := f.engine.CreatePlan(f.ctx, "plan-1", installments.CreatePlanInput{
		Source:       invoiceRef(inv),
		TotalAmount:  dec("100"),
		Installments: 3,
		StartDate:    rateDay,
	})
	require.NoError(t, err)
	require.Equal(t, installments.PlanActive, plan.Status)
	require.Len(t, plan.Installments, 3)
	requireAmount(t, "33.33", plan.Installments[0].AmountDue)
	requireAmount(t, "33.33", plan.Installments[1].AmountDue)
	requireAmount(t, "33.34", plan.Installments[2].AmountDue)
	require.Equal(t, rateDay.AddDate(0, 2, 0), plan.Installments[2].DueDate)

	due, err := f.engine.DueInstallments(f.ctx, rateDay.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, due, 2)

	_, err = f.engine.ApplyPaymentToInstallment(f.ctx, "", plan.ID, 0, cash(f, "30"), rateDay)
	require.ErrorIs(t, err, shared.ErrValidation)

	paid, err := f.engine.ApplyPaymentToInstallment(f.ctx, "inst-0", plan.ID, 0, cash(f, "33.33"), rateDay)
	require.NoError(t, err)
	require.Equal(t, installments.LinePaid, paid.Plan.Installments[0].Status)
	require.Equal(t, paid.Payment.ID, paid.Plan.Installments[0].PaymentID)
	require.Equal(t, shared.PaymentPartiallyPaid, f.loadSalesInvoice(t, inv.ID).PaymentStatus)

	_, err = f.engine.ApplyPaymentToInstallment(f.ctx, "", plan.ID, 0, cash(f, "33.33"), rateDay)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = f.engine.ApplyPaymentToInstallment(f.ctx, "", plan.ID, 5, cash(f, "33.33"), rateDay)
	require.ErrorIs(t, err, shared.ErrReferenceNotFound)

	_, err = f.engine.ApplyPaymentToInstallment(f.ctx, "", plan.ID, 1, cash(f, "33.33"), rateDay)
	require.NoError(t, err)
	last, err := f.engine.ApplyPaymentToInstallment(f.ctx, "", plan.ID, 2, cash(f, "33.34"), rateDay)
	require.NoError(t, err)
	require.Equal(t, installments.PlanCompleted, last.Plan.Status)

	stored := f.loadSalesInvoice(t, inv.ID)
	require.Equal(t, shared.PaymentFullyPaid, stored.PaymentStatus)
	requireAmount(t, "100", stored.AmountPaid)
	requireAmount(t, "100", f.balance(t, f.cash))

	due, err = f.engine.DueInstallments(f.ctx, rateDay.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Empty(t, due)
	f.requireIntegrity(t)
}

func TestInstallmentPlanCannotExceedOutstanding(t *testing.T) {
	f := newFixture(t)
	inv := f.hundredInvoice(t)
	_, err := f.engine.RecordPayment(f.ctx, "", payments.Input{Source: invoiceRef(inv), Lines: cash(f, "40")})
	require.NoError(t, err)

	_, err = f.engine.CreatePlan(f.ctx, "", installments.CreatePlanInput{
		Source:       invoiceRef(inv),
		TotalAmount:  dec("100"),
		Installments: 2,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	plan, err := f.engine.CreatePlan(f.ctx, "", installments.CreatePlanInput{
		Source:       invoiceRef(inv),
		TotalAmount:  dec("60"),
		Installments: 2,
	})
	require.NoError(t, err)
	requireAmount(t, "30", plan.Installments[1].AmountDue)
}

func TestInstallmentPlanRejectsZeroInstallments(t *testing.T) {
	f := newFixture(t)
	inv := f.hundredInvoice(t)

	_, err := f.engine.CreatePlan(f.ctx, "", installments.CreatePlanInput{
		Source:       invoiceRef(inv),
		TotalAmount:  dec("0.01"),
		Installments: 3,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	plan, err := f.engine.CreatePlan(f.ctx, "", installments.CreatePlanInput{
		Source:       invoiceRef(inv),
		TotalAmount:  dec("0.03"),
		Installments: 3,
	})
	require.NoError(t, err)
	for _, inst := range plan.Installments {
		requireAmount(t, "0.01", inst.AmountDue)
	}
}

func TestSplitKeepsRemainderOnLastInstallment(t *testing.T) {
	cases := []struct {
		total string
		n     int
		want  []string
	}{
		{total: "100", n: 3, want: []string{"33.33", "33.33", "33.34"}},
		{total: "10", n: 4, want: []string{"2.5", "2.5", "2.5", "2.5"}},
		{total: "0.05", n: 2, want: []string{"0.02", "0.03"}},
		{total: "7", n: 1, want: []string{"7"}},
	}
	for _, tc := range cases {
		parts := installments.Split(dec(tc.total), tc.n)
		require.Len(t, parts, len(tc.want))
		sum := dec("0")
		for i, want := range tc.want {
			requireAmount(t, want, parts[i])
			sum = sum.Add(parts[i])
		}
		requireAmount(t, tc.total, sum)
	}
}
