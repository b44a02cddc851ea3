package receivables_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian/erp-core/finance"
	"github.com/meridian/erp-core/receivables"
)

func d(s string) decimal.Decimal { return finance.MustDecimal(s) }

var asOf = time.Date(2026, time.July, 1, 10, 30, 0, 0, time.UTC)

func dueDaysAgo(n int) time.Time { return asOf.AddDate(0, 0, -n) }

func TestBucketFor_Boundaries(t *testing.T) {
	cases := []struct {
		days int
		want receivables.Bucket
	}{
		{-15, receivables.Bucket0To30}, // not yet due
		{0, receivables.Bucket0To30},
		{30, receivables.Bucket0To30}, // boundary: 30 stays in 0-30
		{31, receivables.Bucket31To60},
		{60, receivables.Bucket31To60},
		{61, receivables.Bucket61To90},
		{90, receivables.Bucket61To90},
		{91, receivables.Bucket90Plus},
		{500, receivables.Bucket90Plus},
	}
	for _, c := range cases {
		if got := receivables.BucketFor(c.days); got != c.want {
			t.Errorf("BucketFor(%d) = %s, want %s", c.days, got, c.want)
		}
	}
}

func TestDaysOverdue_DateBased(t *testing.T) {
	// Due yesterday at 23:59 is still 1 day overdue at 00:01 today.
	due := time.Date(2026, time.June, 30, 23, 59, 0, 0, time.UTC)
	at := time.Date(2026, time.July, 1, 0, 1, 0, 0, time.UTC)
	if got := receivables.DaysOverdue(due, at); got != 1 {
		t.Errorf("DaysOverdue = %d, want 1", got)
	}
	// Not yet due: negative.
	if got := receivables.DaysOverdue(at.AddDate(0, 0, 10), at); got != -10 {
		t.Errorf("DaysOverdue = %d, want -10", got)
	}
}

func TestBuildAging_BucketsPerCustomer(t *testing.T) {
	invoices := []receivables.OutstandingInvoice{
		{InvoiceID: "i1", CustomerID: "acme", CustomerName: "Acme", DueDate: dueDaysAgo(5), Remaining: d("100")},
		{InvoiceID: "i2", CustomerID: "acme", CustomerName: "Acme", DueDate: dueDaysAgo(45), Remaining: d("200")},
		{InvoiceID: "i3", CustomerID: "acme", CustomerName: "Acme", DueDate: dueDaysAgo(120), Remaining: d("50")},
		{InvoiceID: "i4", CustomerID: "globex", CustomerName: "Globex", DueDate: dueDaysAgo(-10), Remaining: d("900")},
	}

	summaries := receivables.BuildAging(invoices, asOf)
	require.Len(t, summaries, 2)

	// Sorted by total outstanding descending: Globex 900 > Acme 350.
	require.Equal(t, finance.CustomerID("globex"), summaries[0].CustomerID)
	require.True(t, summaries[0].TotalOutstanding.Equal(d("900")))

	acme := summaries[1]
	require.True(t, acme.TotalOutstanding.Equal(d("350")))
	require.Len(t, acme.Buckets, 3, "only non-empty buckets appear")
	require.True(t, acme.Buckets[receivables.Bucket0To30].Amount.Equal(d("100")))
	require.Equal(t, 1, acme.Buckets[receivables.Bucket0To30].Count)
	require.True(t, acme.Buckets[receivables.Bucket31To60].Amount.Equal(d("200")))
	require.True(t, acme.Buckets[receivables.Bucket90Plus].Amount.Equal(d("50")))

	// Not-yet-due lands in 0-30.
	globex := summaries[0]
	require.Equal(t, 1, globex.Buckets[receivables.Bucket0To30].Count)
}

func TestBuildAging_Empty(t *testing.T) {
	require.Empty(t, receivables.BuildAging(nil, asOf))
}
