package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/installments"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
)

// FollowUpSource lists open instruments for the tenant in context.
type FollowUpSource interface {
	PendingCheques(ctx context.Context, dueBy time.Time) ([]payments.Cheque, error)
	DueInstallments(ctx context.Context, asOf time.Time) ([]installments.Due, error)
}

// FollowUpSummary reports what a follow-up scan found for one tenant.
type FollowUpSummary struct {
	TenantID            int64
	PendingCheques      int
	OverdueInstallments int
}

// PaymentFollowUpJob flags cheques past their date that are still pending and
// installments whose due date has passed.
type PaymentFollowUpJob struct {
	Source  FollowUpSource
	Tenants Tenants
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPaymentFollowUpJob constructs the job handler.
func NewPaymentFollowUpJob(source FollowUpSource, tenants Tenants, logger *slog.Logger, metrics *jobmetrics.Metrics) *PaymentFollowUpJob {
	return &PaymentFollowUpJob{
		Source:  source,
		Tenants: tenants,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan for the payload's tenants.
func (j *PaymentFollowUpJob) Handle(ctx context.Context, task *asynq.Task) error {
	payload, err := decodeTenantPayload(task)
	if err != nil {
		return err
	}
	_, err = j.Run(ctx, j.Tenants.resolve(payload))
	return err
}

// Run scans the tenants sequentially and returns one summary per tenant.
func (j *PaymentFollowUpJob) Run(ctx context.Context, tenantIDs []int64) (summaries []FollowUpSummary, resultErr error) {
	if j == nil || j.Source == nil {
		return nil, errors.New("payment follow-up: dependencies not configured")
	}
	tracker := j.Metrics.Track(TaskPaymentFollowUp)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	for _, tenantID := range tenantIDs {
		tctx := j.Tenants.context(ctx, tenantID)
		cheques, err := j.Source.PendingCheques(tctx, now)
		if err != nil {
			return summaries, fmt.Errorf("tenant %d: pending cheques: %w", tenantID, err)
		}
		due, err := j.Source.DueInstallments(tctx, now)
		if err != nil {
			return summaries, fmt.Errorf("tenant %d: due installments: %w", tenantID, err)
		}
		summary := FollowUpSummary{TenantID: tenantID, PendingCheques: len(cheques), OverdueInstallments: len(due)}
		summaries = append(summaries, summary)

		j.Metrics.AddFindings(TaskPaymentFollowUp, "pending_cheque", tenantID, summary.PendingCheques)
		j.Metrics.AddFindings(TaskPaymentFollowUp, "overdue_installment", tenantID, summary.OverdueInstallments)
		for _, cheque := range cheques {
			j.log().Info("cheque awaiting clearance",
				slog.Int64("tenant_id", tenantID),
				slog.Int64("cheque_id", cheque.ID),
				slog.String("number", cheque.Number),
				slog.Time("cheque_date", cheque.ChequeDate))
		}
		for _, line := range due {
			j.log().Info("installment overdue",
				slog.Int64("tenant_id", tenantID),
				slog.Int64("plan_id", line.PlanID),
				slog.Int("index", line.Index),
				slog.String("amount_due", line.AmountDue.String()))
		}
	}
	return summaries, nil
}

func (j *PaymentFollowUpJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *PaymentFollowUpJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPaymentFollowUp))
	}
	return slog.Default().With(slog.String("job", TaskPaymentFollowUp))
}
