package domain

import "github.com/shopspring/decimal"

// FormatAmount renders a monetary value with two decimal places. Rounding
// happens here only; ledger totals keep full precision.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
