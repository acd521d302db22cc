package webintel

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseUSD converts a decimal USD string into integer cents. Amounts with
// more than two decimal places or non-positive values are rejected;
// balances are tracked in integer minor units to avoid rounding drift.
func ParseUSD(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse usd amount %q: %w", s, err)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("usd amount %q has sub-cent precision", s)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("usd amount %q must be positive", s)
	}
	return cents.IntPart(), nil
}

// FormatUSD renders cents as a two-decimal USD string.
func FormatUSD(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
