/*
invoice.go - Invoice balance operations and status transitions

PURPOSE:
  The invoice invariant remaining_amount = total - paid_amount >= 0 is
  mutated ONLY here. Payment allocation calls ApplyAllocation; nothing
  else writes paid_amount.

TRANSITIONS:
  validated/sent/overdue --allocation--> partially_paid (remainder > 0)
  any open status        --allocation--> paid            (remainder = 0)
  validated/sent/partially_paid --past due date--> overdue (sweeper)

POLICY:
  Allocating to a draft or canceled invoice is a PolicyViolation.
  Over-allocating past the remaining amount is InvalidInput, never
  silently capped here - capping is the allocation engine's job.
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// IsOpenInvoice reports whether the invoice can still receive payment
// allocations: open status and a positive remaining amount.
func (d *Document) IsOpenInvoice() bool {
	return d.Type == DocInvoice &&
		openInvoiceStatuses[d.Status] &&
		d.RemainingAmount.IsPositive()
}

// ApplyAllocation records an allocated payment amount on the invoice.
// This is the sole writer of PaidAmount.
func (d *Document) ApplyAllocation(amount decimal.Decimal) error {
	if d.Type != DocInvoice {
		return &finance.PolicyViolationError{Op: "allocate",
			Reason: "document " + string(d.ID) + " is not an invoice"}
	}
	if !openInvoiceStatuses[d.Status] {
		return &finance.PolicyViolationError{Op: "allocate",
			Reason: "invoice " + string(d.ID) + " is " + string(d.Status)}
	}
	if !amount.IsPositive() {
		return finance.Invalidf("amount", "must be positive, got %s", amount)
	}
	if amount.GreaterThan(d.RemainingAmount) {
		return finance.Invalidf("amount", "allocation %s exceeds remaining %s on invoice %s",
			amount, d.RemainingAmount, d.ID)
	}

	d.PaidAmount = d.PaidAmount.Add(amount)
	d.RemainingAmount = d.Total.Sub(d.PaidAmount)
	if d.RemainingAmount.IsZero() {
		d.Status = StatusPaid
	} else {
		d.Status = StatusPartiallyPaid
	}
	return nil
}

// MarkPaid settles the invoice in full (e.g. manual write-off of the
// remainder). Same status rules as ApplyAllocation.
func (d *Document) MarkPaid() error {
	if d.Type != DocInvoice {
		return &finance.PolicyViolationError{Op: "mark_paid",
			Reason: "document " + string(d.ID) + " is not an invoice"}
	}
	if !openInvoiceStatuses[d.Status] {
		return &finance.PolicyViolationError{Op: "mark_paid",
			Reason: "invoice " + string(d.ID) + " is " + string(d.Status)}
	}
	d.PaidAmount = d.Total
	d.RemainingAmount = decimal.Zero
	d.Status = StatusPaid
	return nil
}

// MarkOverdueIfPast flips an open, unpaid invoice to overdue when its
// due date has passed. Returns true when the status changed. Used by
// the background sweeper; idempotent.
func (d *Document) MarkOverdueIfPast(asOf time.Time) bool {
	if d.Type != DocInvoice || d.Status == StatusOverdue {
		return false
	}
	if !openInvoiceStatuses[d.Status] || !d.RemainingAmount.IsPositive() {
		return false
	}
	if !d.DueDate.Before(asOf) {
		return false
	}
	d.Status = StatusOverdue
	return true
}
