/*
totals.go - Document-level aggregation

PURPOSE:
  Aggregates line totals into a document subtotal, document discount,
  tax amount, and total. Recomputed in full whenever any line or the
  document discount changes; never incrementally patched.

TAX POLICY:
  tax_amount = Σ (line TTC - line HT), i.e. tax computed per line on the
  PRE-document-discount HT. The document discount does NOT reduce tax
  proportionally. This mirrors observed production behavior and is a
  documented policy awaiting fiscal sign-off, not an accident.
*/
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// RecomputeTotals aggregates line totals under an optional
// document-level discount, at full precision.
//
//	subtotal                = Σ line_total_ht
//	document_discount       = subtotal * pct / 100
//	subtotal_after_discount = subtotal - document_discount
//	tax_amount              = Σ (line_total_ttc - line_total_ht)
//	total                   = subtotal_after_discount + tax_amount
func RecomputeTotals(lines []LineTotals, documentDiscountPercent decimal.Decimal) (DocumentTotals, error) {
	if !finance.ValidPercent(documentDiscountPercent) {
		return DocumentTotals{}, finance.Invalidf("discount_percent",
			"must be within [0,100], got %s", documentDiscountPercent)
	}

	subtotal := decimal.Zero
	taxAmount := decimal.Zero
	for _, lt := range lines {
		subtotal = subtotal.Add(lt.TotalHT)
		taxAmount = taxAmount.Add(lt.TotalTTC.Sub(lt.TotalHT))
	}

	discountAmount := finance.Percent(subtotal, documentDiscountPercent)
	afterDiscount := subtotal.Sub(discountAmount)

	return DocumentTotals{
		Subtotal:              subtotal,
		DiscountAmount:        discountAmount,
		SubtotalAfterDiscount: afterDiscount,
		TaxAmount:             taxAmount,
		Total:                 afterDiscount.Add(taxAmount),
	}, nil
}

// Recompute rebuilds every derived field of the document from its
// current line set: per-line totals, then document totals, then the
// invoice remaining amount. This is the only way totals change.
func (d *Document) Recompute() error {
	lineTotals := make([]LineTotals, 0, len(d.Lines))
	for i := range d.Lines {
		l := &d.Lines[i]
		lt, err := ComputeLine(l.Quantity, l.UnitPrice, l.DiscountPercent, l.TaxRate)
		if err != nil {
			return err
		}
		rounded := lt.Rounded()
		l.DiscountAmount = rounded.DiscountAmount
		l.TotalHT = rounded.TotalHT
		l.TotalTTC = rounded.TotalTTC
		lineTotals = append(lineTotals, lt)
	}

	totals, err := RecomputeTotals(lineTotals, d.DiscountPercent)
	if err != nil {
		return err
	}
	rounded := totals.Rounded()
	d.Subtotal = rounded.Subtotal
	d.DiscountAmount = rounded.DiscountAmount
	d.TaxAmount = rounded.TaxAmount
	d.Total = rounded.Total

	if d.Type == DocInvoice {
		d.RemainingAmount = d.Total.Sub(d.PaidAmount)
	}
	return nil
}
