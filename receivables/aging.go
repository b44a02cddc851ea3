/*
Package receivables reports on outstanding customer balances: the aging
report and the credit-limit check.

PURPOSE (aging.go):
  Bucket every outstanding invoice balance by how many days overdue it
  is at a reference date, then summarize per customer.

BUCKETS:
  days_overdue <= 30  ->  "0-30"   (absorbs negative/zero: not yet due)
  31..60              ->  "31-60"
  61..90              ->  "61-90"
  > 90                ->  "90+"

  Day counting is date-based: an invoice due yesterday is 1 day overdue
  regardless of the time of day.

OUTPUT:
  One summary per customer: bucket totals with invoice counts (only
  non-empty buckets appear), and a grand total. Customers are sorted by
  total outstanding, highest first.
*/
package receivables

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// Bucket is a days-overdue range.
type Bucket string

const (
	Bucket0To30  Bucket = "0-30"
	Bucket31To60 Bucket = "31-60"
	Bucket61To90 Bucket = "61-90"
	Bucket90Plus Bucket = "90+"
)

// Buckets lists all buckets in ascending age order.
var Buckets = []Bucket{Bucket0To30, Bucket31To60, Bucket61To90, Bucket90Plus}

// OutstandingInvoice is the aging engine's view of an unpaid invoice.
type OutstandingInvoice struct {
	InvoiceID    finance.InvoiceID
	CustomerID   finance.CustomerID
	CustomerName string
	DueDate      time.Time
	Remaining    decimal.Decimal
}

// BucketTotal accumulates one bucket of one customer.
type BucketTotal struct {
	Amount decimal.Decimal
	Count  int
}

// CustomerAgingSummary is one customer's aged receivables.
type CustomerAgingSummary struct {
	CustomerID       finance.CustomerID
	CustomerName     string
	Buckets          map[Bucket]BucketTotal // non-empty buckets only
	TotalOutstanding decimal.Decimal
}

// DaysOverdue counts whole days between the due date and the reference
// date, by calendar date. Negative when the invoice is not yet due.
func DaysOverdue(dueDate, asOf time.Time) int {
	day := func(t time.Time) time.Time {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return int(day(asOf).Sub(day(dueDate)).Hours() / 24)
}

// BucketFor assigns a days-overdue value to its bucket.
func BucketFor(daysOverdue int) Bucket {
	switch {
	case daysOverdue <= 30:
		return Bucket0To30
	case daysOverdue <= 60:
		return Bucket31To60
	case daysOverdue <= 90:
		return Bucket61To90
	default:
		return Bucket90Plus
	}
}

// BuildAging buckets outstanding invoice balances per customer as of
// the given date. Customers come back sorted by total outstanding,
// highest first (ties broken by customer id for determinism).
func BuildAging(invoices []OutstandingInvoice, asOf time.Time) []CustomerAgingSummary {
	byCustomer := make(map[finance.CustomerID]*CustomerAgingSummary)

	for _, inv := range invoices {
		summary, ok := byCustomer[inv.CustomerID]
		if !ok {
			summary = &CustomerAgingSummary{
				CustomerID:       inv.CustomerID,
				CustomerName:     inv.CustomerName,
				Buckets:          make(map[Bucket]BucketTotal),
				TotalOutstanding: decimal.Zero,
			}
			byCustomer[inv.CustomerID] = summary
		}

		bucket := BucketFor(DaysOverdue(inv.DueDate, asOf))
		bt := summary.Buckets[bucket]
		bt.Amount = bt.Amount.Add(inv.Remaining)
		bt.Count++
		summary.Buckets[bucket] = bt
		summary.TotalOutstanding = summary.TotalOutstanding.Add(inv.Remaining)
	}

	result := make([]CustomerAgingSummary, 0, len(byCustomer))
	for _, s := range byCustomer {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].TotalOutstanding.Equal(result[j].TotalOutstanding) {
			return result[i].TotalOutstanding.GreaterThan(result[j].TotalOutstanding)
		}
		return result[i].CustomerID < result[j].CustomerID
	})
	return result
}
