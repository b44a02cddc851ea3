/*
Package finance provides the shared primitives of the pricing and
allocation core.

PURPOSE:
  This package contains the money math, identifiers, and error taxonomy
  shared by every engine in the core (pricing, billing, costing,
  allocation, receivables). It has no dependencies on any other package
  in this repository.

KEY CONCEPTS IN THIS FILE (money.go):
  - Round2: the single rounding rule for stored monetary values
  - Percent/ApplyDiscount: percentage helpers used by every calculator
  - Full-precision policy: engines compute without intermediate rounding;
    Round2 is applied only at the storage/DTO boundary and where a
    business formula itself rounds (AVCO cost, proportional shares)

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64 for money
  2. One rounding rule: two decimals, half away from zero
  3. No state: every function here is pure

SEE ALSO:
  - errors.go: Error taxonomy (NotFound, InvalidInput, PolicyViolation)
  - types.go:  Identifiers and shared invoice views
*/
package finance

import (
	"github.com/shopspring/decimal"
)

// Hundred is the divisor for percentage math.
var Hundred = decimal.NewFromInt(100)

// Round2 rounds a monetary value to 2 decimals, half away from zero.
// This is the only rounding applied to stored amounts.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns amount * pct/100 at full precision.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(Hundred)
}

// ApplyDiscount returns amount * (1 - pct/100) at full precision.
func ApplyDiscount(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Sub(Percent(amount, pct))
}

// ValidPercent reports whether pct is inside [0, 100].
func ValidPercent(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(Hundred)
}

// MustDecimal parses a decimal literal. Panics on malformed input; use
// only for constants and test fixtures.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("finance: bad decimal literal " + s)
	}
	return d
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
