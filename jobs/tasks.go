package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity audits ledger rows against stored balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskPaymentFollowUp scans for cheques and installments that need attention.
	TaskPaymentFollowUp = "ledger:followup"
)

// TenantPayload scopes a job to a set of tenants. An empty list means every
// configured tenant.
type TenantPayload struct {
	TenantIDs []int64 `json:"tenant_ids,omitempty"`
}

func newTenantTask(taskType string, tenantIDs []int64) (*asynq.Task, error) {
	body, err := json.Marshal(TenantPayload{TenantIDs: tenantIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

func decodeTenantPayload(task *asynq.Task) (TenantPayload, error) {
	var payload TenantPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, asynq.SkipRetry
	}
	return payload, nil
}

// NewLedgerIntegrityTask constructs an integrity audit task.
func NewLedgerIntegrityTask(tenantIDs ...int64) (*asynq.Task, error) {
	return newTenantTask(TaskLedgerIntegrity, tenantIDs)
}

// NewPaymentFollowUpTask constructs a cheque and installment follow-up task.
func NewPaymentFollowUpTask(tenantIDs ...int64) (*asynq.Task, error) {
	return newTenantTask(TaskPaymentFollowUp, tenantIDs)
}
