/*
Package allocation distributes an incoming payment across a customer's
open invoices.

PURPOSE:
  Two strategies, both iterating invoices oldest due date first:

  FIFO: pay each invoice off fully (up to its remaining amount) before
  moving to the next; stop when the payment is exhausted.

  PROPORTIONAL: give each invoice round2(payment * remaining / total
  remaining), capped at its remaining amount; the LAST invoice receives
  the exact amount left instead of its rounded share, so the sum equals
  the payment to the cent. This remainder absorption is a mandatory
  rule, not an approximation.

INVARIANTS:
  - No allocation is negative.
  - No allocation exceeds its invoice's remaining amount.
  - Σ allocations <= payment amount, with equality for proportional
    whenever the payment does not exceed the total remaining.
  - Zero open invoices is not an error; it yields an empty list.

The engine is pure: it proposes allocations. Applying them to invoice
balances (billing.ApplyAllocation) and persisting them happens in the
caller's transaction.
*/
package allocation

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// Strategy selects the distribution rule.
type Strategy string

const (
	StrategyFIFO         Strategy = "fifo"
	StrategyProportional Strategy = "proportional"
)

// OpenInvoice is the allocation engine's view of an invoice: just the
// identity, ordering key, and outstanding balance.
type OpenInvoice struct {
	ID        finance.InvoiceID
	DueDate   time.Time
	Remaining decimal.Decimal // > 0
}

// Allocation assigns part of the payment to one invoice.
type Allocation struct {
	InvoiceID finance.InvoiceID
	Amount    decimal.Decimal
}

// Allocate distributes paymentAmount across the open invoices under the
// given strategy. The returned list follows due-date order.
func Allocate(invoices []OpenInvoice, paymentAmount decimal.Decimal, strategy Strategy) ([]Allocation, error) {
	if !paymentAmount.IsPositive() {
		return nil, finance.Invalidf("payment_amount", "must be positive, got %s", paymentAmount)
	}
	for _, inv := range invoices {
		if !inv.Remaining.IsPositive() {
			return nil, finance.Invalidf("open_invoices",
				"invoice %s has non-positive remaining amount %s", inv.ID, inv.Remaining)
		}
	}
	if len(invoices) == 0 {
		return []Allocation{}, nil
	}

	// Oldest due date first. Stable so equal due dates keep input order.
	ordered := make([]OpenInvoice, len(invoices))
	copy(ordered, invoices)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DueDate.Before(ordered[j].DueDate)
	})

	switch strategy {
	case StrategyFIFO:
		return allocateFIFO(ordered, paymentAmount), nil
	case StrategyProportional:
		return allocateProportional(ordered, paymentAmount), nil
	default:
		return nil, fmt.Errorf("%w: %q", finance.ErrUnknownStrategy, strategy)
	}
}

func allocateFIFO(invoices []OpenInvoice, amount decimal.Decimal) []Allocation {
	var result []Allocation
	left := amount
	for _, inv := range invoices {
		if !left.IsPositive() {
			break
		}
		a := finance.Min(inv.Remaining, left)
		result = append(result, Allocation{InvoiceID: inv.ID, Amount: a})
		left = left.Sub(a)
	}
	return result
}

func allocateProportional(invoices []OpenInvoice, amount decimal.Decimal) []Allocation {
	totalRemaining := decimal.Zero
	for _, inv := range invoices {
		totalRemaining = totalRemaining.Add(inv.Remaining)
	}

	// Payment covers everything: each invoice gets its full remaining
	// amount and the excess stays unallocated. The per-invoice cap
	// outranks exact exhaustion.
	if amount.GreaterThanOrEqual(totalRemaining) {
		result := make([]Allocation, len(invoices))
		for i, inv := range invoices {
			result[i] = Allocation{InvoiceID: inv.ID, Amount: inv.Remaining}
		}
		return result
	}

	result := make([]Allocation, 0, len(invoices))
	left := amount
	for i, inv := range invoices {
		var share decimal.Decimal
		if i == len(invoices)-1 {
			// Remainder absorption: the last invoice takes exactly what
			// is left so the sum matches the payment despite rounding.
			share = finance.Min(left, inv.Remaining)
		} else {
			share = finance.Round2(amount.Mul(inv.Remaining).Div(totalRemaining))
			share = finance.Min(share, inv.Remaining)
			share = finance.Min(share, left)
		}
		if !share.IsPositive() {
			// A share can round down to zero; emit no empty allocations.
			continue
		}
		result = append(result, Allocation{InvoiceID: inv.ID, Amount: share})
		left = left.Sub(share)
	}
	return result
}
