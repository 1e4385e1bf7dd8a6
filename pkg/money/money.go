// Package money renders minor currency units for human-readable text.
package money

import (
	"github.com/shopspring/decimal"
)

// FormatCents renders cents as dollars, e.g. 1250 -> "$12.50".
func FormatCents(cents int64) string {
	d := decimal.New(cents, -2)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// CentsFromDollars converts a decimal dollar string ("12.5") to cents,
// rounding half away from zero.
func CentsFromDollars(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Round(0).IntPart(), nil
}
