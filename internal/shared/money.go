package shared

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tolerance is the numeric slack allowed when comparing money totals.
var Tolerance = decimal.New(1, -6)

// NearlyEqual reports whether a and b differ by no more than Tolerance.
func NearlyEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Sum adds up amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
