// Package money converts between integer minor units and decimal amounts.
// Amounts are stored as int64 cents; decimal is used only for rates and
// for wire formats that carry major units.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToDecimal converts cents to a major-unit decimal (1250 -> 12.50).
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FromDecimal rounds a major-unit amount half-up to cents.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// Parse reads a major-unit string such as "12.50".
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// Percent returns pct percent of cents, rounded half-up.
func Percent(cents int64, pct decimal.Decimal) int64 {
	return FromDecimal(ToDecimal(cents).Mul(pct).Div(hundred))
}

// Mul returns cents scaled by rate, rounded half-up.
func Mul(cents int64, rate decimal.Decimal) int64 {
	return FromDecimal(ToDecimal(cents).Mul(rate))
}

// Format renders cents with two decimals.
func Format(cents int64) string {
	return ToDecimal(cents).StringFixed(2)
}
