/*
line.go - The line calculator

PURPOSE:
  One pure function turning (quantity, unit price, discount%, tax%)
  into line totals. Used identically by quotes, orders, invoices, and
  purchase orders.

FORMULA:
  subtotal        = quantity * unit_price
  discount_amount = subtotal * discount_percent / 100
  line_total_ht   = subtotal - discount_amount
  line_total_ttc  = line_total_ht * (1 + tax_rate / 100)

  No intermediate rounding. Monetary values are rounded to 2 decimals
  at the storage boundary only (LineTotals.Rounded).

EDGE CASES:
  quantity = 0 or unit_price = 0 yields all-zero totals, not an error.
  Negative quantity/price/tax or a discount outside [0,100] is rejected
  as InvalidInput - never silently clamped. (quantity <= 0 is also
  rejected earlier by line creation; the calculator itself only forbids
  negatives so zero-priced lines stay legal.)
*/
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// ComputeLine computes the totals for one line at full precision.
func ComputeLine(quantity, unitPrice, discountPercent, taxRate decimal.Decimal) (LineTotals, error) {
	if quantity.IsNegative() {
		return LineTotals{}, finance.Invalidf("quantity", "must not be negative, got %s", quantity)
	}
	if unitPrice.IsNegative() {
		return LineTotals{}, finance.Invalidf("unit_price", "must not be negative, got %s", unitPrice)
	}
	if !finance.ValidPercent(discountPercent) {
		return LineTotals{}, finance.Invalidf("discount_percent", "must be within [0,100], got %s", discountPercent)
	}
	if taxRate.IsNegative() {
		return LineTotals{}, finance.Invalidf("tax_rate", "must not be negative, got %s", taxRate)
	}

	subtotal := quantity.Mul(unitPrice)
	discountAmount := finance.Percent(subtotal, discountPercent)
	totalHT := subtotal.Sub(discountAmount)
	totalTTC := totalHT.Mul(decimal.NewFromInt(1).Add(taxRate.Div(finance.Hundred)))

	return LineTotals{
		DiscountAmount: discountAmount,
		TotalHT:        totalHT,
		TotalTTC:       totalTTC,
	}, nil
}
