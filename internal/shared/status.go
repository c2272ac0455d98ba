package shared

import "github.com/shopspring/decimal"

// PaymentStatus tracks how much of a payable or receivable document is settled.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending_payment"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentFullyPaid     PaymentStatus = "fully_paid"
)

// PaymentStatusFor derives the status of a document of total with paid settled.
func PaymentStatusFor(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case !paid.IsPositive():
		return PaymentPending
	case paid.Add(Tolerance).GreaterThanOrEqual(total):
		return PaymentFullyPaid
	default:
		return PaymentPartiallyPaid
	}
}
