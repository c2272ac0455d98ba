// Package fx resolves exchange rates between a transaction currency and the
// tenant base currency.
package fx

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Rate converts one unit of From into To on Date.
type Rate struct {
	From string
	To   string
	Date time.Time
	Rate decimal.Decimal
}

// Store exposes rate lookups scoped to the caller's unit of work.
type Store interface {
	// RateOn returns the rate recorded exactly on day.
	RateOn(ctx context.Context, from, to string, day time.Time) (Rate, bool, error)
	// LatestRateOnOrBefore returns the most recent rate dated on or before day.
	LatestRateOnOrBefore(ctx context.Context, from, to string, day time.Time) (Rate, bool, error)
}

// WriteStore persists rates.
type WriteStore interface {
	Store
	UpsertRate(ctx context.Context, rate Rate) error
}

// RateNotFoundError reports a pair with no rate on or before Date.
type RateNotFoundError struct {
	From string
	To   string
	Date time.Time
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("fx: no %s/%s rate on or before %s", e.From, e.To, e.Date.Format(time.DateOnly))
}

func (e *RateNotFoundError) Unwrap() error {
	return shared.ErrRateNotFound
}

// NormalizeDay truncates t to UTC midnight.
func NormalizeDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidateCurrency checks code against ISO 4217 and returns it upper-cased.
func ValidateCurrency(code string) (string, error) {
	code = shared.NormalizeCurrency(code)
	if code == "" {
		return "", shared.Invalid("currency", "required")
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", shared.Invalid("currency", fmt.Sprintf("%q is not an ISO 4217 code", code))
	}
	return unit.String(), nil
}
