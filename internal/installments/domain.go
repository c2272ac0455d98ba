// Package installments amortizes a source document's total into a schedule of
// due lines and settles them through the payment allocator.
package installments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
)

// Frequency spaces installment due dates.
type Frequency string

const (
	FrequencyMonthly Frequency = "monthly"
)

// PlanStatus is the plan lifecycle.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
)

// LineStatus tracks one installment.
type LineStatus string

const (
	LinePending LineStatus = "pending"
	LinePaid    LineStatus = "paid"
)

// Plan is a payment plan over a source document.
type Plan struct {
	ID           int64
	Source       payments.SourceRef
	TotalAmount  decimal.Decimal
	Frequency    Frequency
	StartDate    time.Time
	Installments []Installment
	Status       PlanStatus
	CreatedBy    int64
	CreatedAt    time.Time
}

// Installment is one scheduled line.
type Installment struct {
	DueDate   time.Time       `json:"due_date"`
	AmountDue decimal.Decimal `json:"amount_due"`
	Status    LineStatus      `json:"status"`
	PaymentID int64           `json:"payment_id,omitempty"`
}

// Due is an unpaid installment on or before a date.
type Due struct {
	PlanID    int64
	Source    payments.SourceRef
	Index     int
	DueDate   time.Time
	AmountDue decimal.Decimal
}

// Tx is the unit of work plans run in.
type Tx interface {
	payments.Tx
	CreatePlan(ctx context.Context, plan Plan) (int64, error)
	GetPlan(ctx context.Context, id int64) (Plan, error)
	UpdatePlan(ctx context.Context, plan Plan) error
	ListActivePlans(ctx context.Context) ([]Plan, error)
}
