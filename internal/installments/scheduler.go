package installments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PaymentPort is the subset of the allocator plans use.
type PaymentPort interface {
	RecordPayment(ctx context.Context, tx payments.Tx, input payments.Input) (payments.Payment, error)
	Outstanding(ctx context.Context, tx payments.Tx, ref payments.SourceRef) (decimal.Decimal, error)
}

// Scheduler creates plans and applies payments to their lines.
type Scheduler struct {
	payments PaymentPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler constructs a scheduler.
func NewScheduler(payments PaymentPort, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{payments: payments, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreatePlanInput describes a plan.
type CreatePlanInput struct {
	Source       payments.SourceRef
	TotalAmount  decimal.Decimal
	Installments int
	StartDate    time.Time
	Frequency    Frequency
}

// Split divides total into n parts truncated to cents, adding the rounding
// remainder to the last part so the parts sum exactly to total.
func Split(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	each := total.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	parts := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		parts[i] = each
	}
	parts[n-1] = total.Sub(each.Mul(decimal.NewFromInt(int64(n - 1))))
	return parts
}

// Schedule returns n due dates starting at start.
func Schedule(start time.Time, n int, frequency Frequency) ([]time.Time, error) {
	switch frequency {
	case FrequencyMonthly, "":
		dates := make([]time.Time, n)
		for i := range dates {
			dates[i] = start.AddDate(0, i, 0)
		}
		return dates, nil
	default:
		return nil, shared.Invalid("frequency", fmt.Sprintf("unsupported frequency %q", frequency))
	}
}

// CreatePlan amortizes TotalAmount over the requested number of installments.
func (s *Scheduler) CreatePlan(ctx context.Context, tx Tx, input CreatePlanInput) (Plan, error) {
	if input.Installments < 1 {
		return Plan{}, shared.Invalid("installments", "must be at least 1")
	}
	if !input.TotalAmount.IsPositive() {
		return Plan{}, shared.Invalid("total_amount", "must be positive")
	}
	// every installment must be payable, and payment lines are positive
	if parts := Split(input.TotalAmount, input.Installments); !parts[0].IsPositive() {
		return Plan{}, shared.Invalid("installments",
			fmt.Sprintf("%s cannot be split into %d installments of at least 0.01", input.TotalAmount, input.Installments))
	}
	start := input.StartDate
	if start.IsZero() {
		start = s.now()
	}
	frequency := input.Frequency
	if frequency == "" {
		frequency = FrequencyMonthly
	}
	dates, err := Schedule(start, input.Installments, frequency)
	if err != nil {
		return Plan{}, err
	}
	outstanding, err := s.payments.Outstanding(ctx, tx, input.Source)
	if err != nil {
		return Plan{}, err
	}
	if input.TotalAmount.GreaterThan(outstanding.Add(shared.Tolerance)) {
		return Plan{}, shared.Invalid("total_amount", fmt.Sprintf("%s exceeds outstanding %s", input.TotalAmount, outstanding))
	}
	parts := Split(input.TotalAmount, input.Installments)
	plan := Plan{
		Source:      input.Source,
		TotalAmount: input.TotalAmount,
		Frequency:   frequency,
		StartDate:   start,
		Status:      PlanActive,
		CreatedBy:   shared.UserID(ctx),
		CreatedAt:   s.now(),
	}
	for i, amount := range parts {
		plan.Installments = append(plan.Installments, Installment{DueDate: dates[i], AmountDue: amount, Status: LinePending})
	}
	id, err := tx.CreatePlan(ctx, plan)
	if err != nil {
		return Plan{}, fmt.Errorf("installments: create plan: %w", err)
	}
	plan.ID = id
	return plan, nil
}

// ApplyPaymentToInstallment pays one installment through the allocator and
// completes the plan once every line is paid.
func (s *Scheduler) ApplyPaymentToInstallment(ctx context.Context, tx Tx, planID int64, index int, lines []payments.LineInput, paidAt time.Time) (Plan, payments.Payment, error) {
	plan, err := tx.GetPlan(ctx, planID)
	if err != nil {
		return Plan{}, payments.Payment{}, err
	}
	if plan.Status == PlanCompleted {
		return Plan{}, payments.Payment{}, &shared.StateError{Document: "payment plan", ID: planID, Status: string(plan.Status), Action: "apply payment"}
	}
	if index < 0 || index >= len(plan.Installments) {
		return Plan{}, payments.Payment{}, shared.NotFound("installment", fmt.Sprintf("%d/%d", planID, index))
	}
	line := plan.Installments[index]
	if line.Status == LinePaid {
		return Plan{}, payments.Payment{}, &shared.StateError{Document: "installment", ID: fmt.Sprintf("%d/%d", planID, index), Status: string(line.Status), Action: "pay"}
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	if !shared.NearlyEqual(total, line.AmountDue) {
		return Plan{}, payments.Payment{}, shared.Invalid("lines", fmt.Sprintf("payment %s does not match amount due %s", total, line.AmountDue))
	}
	payment, err := s.payments.RecordPayment(ctx, tx, payments.Input{
		Source:      plan.Source,
		Direction:   payments.DefaultDirection(plan.Source.Kind),
		Lines:       lines,
		Date:        paidAt,
		Description: fmt.Sprintf("Installment %d of %d for %s", index+1, len(plan.Installments), plan.Source),
	})
	if err != nil {
		return Plan{}, payments.Payment{}, err
	}
	plan.Installments[index].Status = LinePaid
	plan.Installments[index].PaymentID = payment.ID
	if allPaid(plan.Installments) {
		plan.Status = PlanCompleted
	}
	if err := tx.UpdatePlan(ctx, plan); err != nil {
		return Plan{}, payments.Payment{}, fmt.Errorf("installments: update plan: %w", err)
	}
	s.logger.Info("installment paid",
		slog.Int64("plan_id", planID),
		slog.Int("index", index),
		slog.String("status", string(plan.Status)))
	return plan, payment, nil
}

// DueOn lists pending installments due on or before asOf across active plans.
func (s *Scheduler) DueOn(ctx context.Context, tx Tx, asOf time.Time) ([]Due, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	plans, err := tx.ListActivePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("installments: list plans: %w", err)
	}
	var due []Due
	for _, plan := range plans {
		for i, line := range plan.Installments {
			if line.Status == LinePending && !line.DueDate.After(asOf) {
				due = append(due, Due{PlanID: plan.ID, Source: plan.Source, Index: i, DueDate: line.DueDate, AmountDue: line.AmountDue})
			}
		}
	}
	return due, nil
}

func allPaid(lines []Installment) bool {
	for _, line := range lines {
		if line.Status != LinePaid {
			return false
		}
	}
	return true
}
