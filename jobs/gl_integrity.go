package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrIntegrityViolation marks an audit that found unbalanced rows or balance drift.
var ErrIntegrityViolation = errors.New("ledger integrity violation")

// IntegrityAuditor runs the ledger audit for the tenant in context.
type IntegrityAuditor interface {
	VerifyIntegrity(ctx context.Context) (ledger.IntegrityReport, error)
}

// Tenants provides the tenants a job covers when the payload names none.
type Tenants struct {
	IDs          []int64
	BaseCurrency string
}

func (t Tenants) resolve(payload TenantPayload) []int64 {
	if len(payload.TenantIDs) > 0 {
		return payload.TenantIDs
	}
	return t.IDs
}

func (t Tenants) context(ctx context.Context, tenantID int64) context.Context {
	return shared.ContextWithActor(ctx, shared.Actor{TenantID: tenantID, BaseCurrency: t.BaseCurrency})
}

// GLIntegrityJob audits every tenant ledger.
type GLIntegrityJob struct {
	Auditor     IntegrityAuditor
	Tenants     Tenants
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Parallelism int
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(auditor IntegrityAuditor, tenants Tenants, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Auditor: auditor, Tenants: tenants, Logger: logger, Metrics: metrics, Parallelism: 4}
}

// Handle executes the audit for the payload's tenants.
func (j *GLIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	payload, err := decodeTenantPayload(task)
	if err != nil {
		return err
	}
	return j.Run(ctx, j.Tenants.resolve(payload))
}

// Run audits the given tenants concurrently. Violations are logged per tenant
// and reported as ErrIntegrityViolation once every tenant has been checked.
func (j *GLIntegrityJob) Run(ctx context.Context, tenantIDs []int64) (resultErr error) {
	if j == nil || j.Auditor == nil {
		return errors.New("gl integrity: dependencies not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	reports := make([]ledger.IntegrityReport, len(tenantIDs))
	g, gctx := errgroup.WithContext(ctx)
	if j.Parallelism > 0 {
		g.SetLimit(j.Parallelism)
	}
	for i, tenantID := range tenantIDs {
		g.Go(func() error {
			report, err := j.Auditor.VerifyIntegrity(j.Tenants.context(gctx, tenantID))
			if err != nil {
				return fmt.Errorf("tenant %d: %w", tenantID, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.log().Error("gl integrity check", slog.Any("error", err))
		return err
	}

	violations := 0
	for i, report := range reports {
		tenantID := tenantIDs[i]
		j.Metrics.AddFindings(TaskLedgerIntegrity, "anomaly", tenantID, len(report.Anomalies))
		j.Metrics.AddFindings(TaskLedgerIntegrity, "drift", tenantID, len(report.Drift))
		if report.OK() {
			j.log().Info("gl integrity check passed",
				slog.Int64("tenant_id", tenantID),
				slog.Int("transactions", report.Transactions),
				slog.Int("rows", report.Rows))
			continue
		}
		violations += report.Violations()
		j.log().Warn("gl integrity violations",
			slog.Int64("tenant_id", tenantID),
			slog.Int("anomalies", len(report.Anomalies)),
			slog.Int("drift", len(report.Drift)))
	}
	if violations > 0 {
		return fmt.Errorf("%w: %d findings", ErrIntegrityViolation, violations)
	}
	return nil
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}
