package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian/erp-core/billing"
	"github.com/meridian/erp-core/costing"
	"github.com/meridian/erp-core/finance"
	"github.com/meridian/erp-core/pricing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) decimal.Decimal { return finance.MustDecimal(s) }

func seedProduct(t *testing.T, store *Store, id string, price string) {
	t.Helper()
	err := store.CreateProduct(context.Background(), pricing.Product{
		ID:             finance.ProductID(id),
		Name:           "Product " + id,
		Price:          d(price),
		Stock:          d("10"),
		DefaultTaxRate: d("20"),
	})
	require.NoError(t, err)
}

func seedCustomer(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.CreateCustomer(context.Background(), pricing.Customer{
		ID:   finance.CustomerID(id),
		Name: "Customer " + id,
	})
	require.NoError(t, err)
}

// seedInvoice creates a recomputed invoice in the given status.
func seedInvoice(t *testing.T, store *Store, id, customer string, status billing.DocumentStatus, due time.Time, qty string) *billing.Document {
	t.Helper()
	doc := &billing.Document{
		ID:         finance.DocumentID(id),
		Type:       billing.DocInvoice,
		CustomerID: finance.CustomerID(customer),
		Status:     status,
		IssueDate:  due.AddDate(0, 0, -30),
		DueDate:    due,
		Lines: []billing.Line{{
			ID:        id + "-l1",
			ProductID: "prod-1",
			Quantity:  d(qty),
			UnitPrice: d("100"),
			TaxRate:   d("20"),
		}},
	}
	require.NoError(t, doc.Recompute())
	require.NoError(t, store.SaveDocument(context.Background(), doc))
	return doc
}

// =============================================================================
// PRODUCTS AND CATALOG
// =============================================================================

func TestProductRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: a product with a cost and fractional price
	cost := d("11.37")
	err := store.CreateProduct(ctx, pricing.Product{
		ID:             "prod-1",
		Name:           "Widget",
		Price:          d("19.99"),
		Cost:           &cost,
		Stock:          d("42.5"),
		MinStock:       d("5"),
		MaxStock:       d("100"),
		DefaultTaxRate: d("20"),
	})
	require.NoError(t, err)

	// WHEN: loading it back
	p, err := store.Product(ctx, "prod-1")
	require.NoError(t, err)

	// THEN: every decimal survives exactly
	require.True(t, p.Price.Equal(d("19.99")))
	require.NotNil(t, p.Cost)
	require.True(t, p.Cost.Equal(d("11.37")))
	require.True(t, p.Stock.Equal(d("42.5")))
	require.True(t, p.DefaultTaxRate.Equal(d("20")))

	// Unknown ids map to the domain sentinel.
	_, err = store.Product(ctx, "missing")
	if !errors.Is(err, finance.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestConditionsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCustomer(t, store, "cust-1")

	// No conditions yet: (nil, nil), not an error.
	c, err := store.Conditions(ctx, "cust-1")
	require.NoError(t, err)
	require.Nil(t, c)

	listID := finance.PriceListID("vip")
	require.NoError(t, store.CreatePriceList(ctx, pricing.PriceList{ID: "vip", Name: "VIP"}))
	require.NoError(t, store.PutConditions(ctx, pricing.CommercialConditions{
		CustomerID:             "cust-1",
		DefaultDiscountPercent: d("5"),
		CreditLimit:            d("10000"),
		BlockOnCreditExceeded:  true,
		PriceListID:            &listID,
	}))

	c, err = store.Conditions(ctx, "cust-1")
	require.NoError(t, err)
	require.NotNil(t, c)
	require.True(t, c.DefaultDiscountPercent.Equal(d("5")))
	require.True(t, c.BlockOnCreditExceeded)
	require.NotNil(t, c.PriceListID)
	require.Equal(t, finance.PriceListID("vip"), *c.PriceListID)

	// Upsert replaces in place.
	require.NoError(t, store.PutConditions(ctx, pricing.CommercialConditions{
		CustomerID:             "cust-1",
		DefaultDiscountPercent: d("8"),
		CreditLimit:            d("10000"),
	}))
	c, err = store.Conditions(ctx, "cust-1")
	require.NoError(t, err)
	require.True(t, c.DefaultDiscountPercent.Equal(d("8")))
	require.False(t, c.BlockOnCreditExceeded)
	require.Nil(t, c.PriceListID)
}

func TestCatalogPricingInputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "prod-1", "100")

	// Volume tiers come back ordered by min quantity.
	max := d("49")
	require.NoError(t, store.AddVolumeTier(ctx, pricing.VolumeTier{
		ProductID: "prod-1", MinQuantity: d("50"), Price: d("80")}))
	require.NoError(t, store.AddVolumeTier(ctx, pricing.VolumeTier{
		ProductID: "prod-1", MinQuantity: d("10"), MaxQuantity: &max, Price: d("90")}))

	tiers, err := store.VolumeTiers(ctx, "prod-1")
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	require.True(t, tiers[0].MinQuantity.Equal(d("10")))
	require.NotNil(t, tiers[0].MaxQuantity)
	require.Nil(t, tiers[1].MaxQuantity)

	// Promotions round-trip their window.
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AddPromotion(ctx, pricing.Promotion{
		ProductID: "prod-1", Price: d("75"), Start: start, End: start.AddDate(0, 1, 0), Active: true}))
	promos, err := store.Promotions(ctx, "prod-1")
	require.NoError(t, err)
	require.Len(t, promos, 1)
	require.True(t, promos[0].Start.Equal(start))
	require.True(t, promos[0].Active)

	// Price list entry: nil when absent, value when present.
	require.NoError(t, store.CreatePriceList(ctx, pricing.PriceList{ID: "pl-1", Name: "List"}))
	entry, err := store.PriceListEntry(ctx, "pl-1", "prod-1")
	require.NoError(t, err)
	require.Nil(t, entry)

	require.NoError(t, store.PutPriceListEntry(ctx, pricing.PriceListEntry{
		PriceListID: "pl-1", ProductID: "prod-1", Price: d("85")}))
	entry, err = store.PriceListEntry(ctx, "pl-1", "prod-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.True(t, entry.Price.Equal(d("85")))

	// Entry into an unknown list is rejected.
	err = store.PutPriceListEntry(ctx, pricing.PriceListEntry{
		PriceListID: "nope", ProductID: "prod-1", Price: d("85")})
	if !errors.Is(err, finance.ErrPriceListNotFound) {
		t.Errorf("expected ErrPriceListNotFound, got %v", err)
	}
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestDocumentSaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "prod-1", "100")
	seedCustomer(t, store, "cust-1")

	due := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	doc := seedInvoice(t, store, "inv-1", "cust-1", billing.StatusDraft, due, "2")

	loaded, err := store.GetDocument(ctx, "inv-1")
	require.NoError(t, err)
	require.Equal(t, billing.DocInvoice, loaded.Type)
	require.Equal(t, "Customer cust-1", loaded.CustomerName)
	require.True(t, loaded.Total.Equal(doc.Total), "total %s != %s", loaded.Total, doc.Total)
	require.True(t, loaded.Total.Equal(d("240")))
	require.Len(t, loaded.Lines, 1)
	require.True(t, loaded.Lines[0].TotalTTC.Equal(d("240")))
	require.True(t, loaded.DueDate.Equal(due))

	// Re-saving replaces the line set, not appends.
	loaded.Lines = append(loaded.Lines, billing.Line{
		ID: "inv-1-l2", ProductID: "prod-1", Quantity: d("1"), UnitPrice: d("100"), TaxRate: d("20"),
	})
	require.NoError(t, loaded.Recompute())
	require.NoError(t, store.SaveDocument(ctx, loaded))

	again, err := store.GetDocument(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, again.Lines, 2)
	require.True(t, again.Total.Equal(d("360")))

	_, err = store.GetDocument(ctx, "missing")
	if !errors.Is(err, finance.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestOpenInvoices_FilterAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "prod-1", "100")
	seedCustomer(t, store, "cust-1")
	seedCustomer(t, store, "cust-2")

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	seedInvoice(t, store, "inv-late", "cust-1", billing.StatusOverdue, base, "1")
	seedInvoice(t, store, "inv-mid", "cust-1", billing.StatusSent, base.AddDate(0, 0, 15), "1")
	seedInvoice(t, store, "inv-early", "cust-1", billing.StatusValidated, base.AddDate(0, 0, -15), "1")
	seedInvoice(t, store, "inv-draft", "cust-1", billing.StatusDraft, base, "1")
	seedInvoice(t, store, "inv-other", "cust-2", billing.StatusValidated, base, "1")

	// A fully paid invoice must not appear even in an open status.
	paid := seedInvoice(t, store, "inv-settled", "cust-1", billing.StatusValidated, base, "1")
	require.NoError(t, paid.MarkPaid())
	require.NoError(t, store.SaveDocument(ctx, paid))

	open, err := store.OpenInvoices(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, open, 3)
	require.Equal(t, finance.DocumentID("inv-early"), open[0].ID)
	require.Equal(t, finance.DocumentID("inv-late"), open[1].ID)
	require.Equal(t, finance.DocumentID("inv-mid"), open[2].ID)
}

func TestCommittedOrderTotal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "prod-1", "100")
	seedCustomer(t, store, "cust-1")

	mkOrder := func(id string, status billing.DocumentStatus) {
		doc := &billing.Document{
			ID: finance.DocumentID(id), Type: billing.DocOrder,
			CustomerID: "cust-1", Status: status,
			IssueDate: time.Now(), DueDate: time.Now().AddDate(0, 0, 30),
			Lines: []billing.Line{{
				ID: id + "-l1", ProductID: "prod-1",
				Quantity: d("1"), UnitPrice: d("100"), TaxRate: d("20"),
			}},
		}
		require.NoError(t, doc.Recompute())
		require.NoError(t, store.SaveDocument(ctx, doc))
	}
	mkOrder("ord-1", billing.StatusConfirmed)
	mkOrder("ord-2", billing.StatusValidated)
	mkOrder("ord-3", billing.StatusDraft)    // not committed
	mkOrder("ord-4", billing.StatusCanceled) // not committed

	total, err := store.CommittedOrderTotal(ctx, "cust-1", nil)
	require.NoError(t, err)
	require.True(t, total.Equal(d("480")), "got %s", total)

	// Excluding the order being re-validated.
	exclude := finance.DocumentID("ord-1")
	total, err = store.CommittedOrderTotal(ctx, "cust-1", &exclude)
	require.NoError(t, err)
	require.True(t, total.Equal(d("240")))
}

func TestSweepOverdue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "prod-1", "100")
	seedCustomer(t, store, "cust-1")

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedInvoice(t, store, "inv-past", "cust-1", billing.StatusValidated, now.AddDate(0, 0, -10), "1")
	seedInvoice(t, store, "inv-future", "cust-1", billing.StatusValidated, now.AddDate(0, 0, 10), "1")
	seedInvoice(t, store, "inv-draft", "cust-1", billing.StatusDraft, now.AddDate(0, 0, -10), "1")

	count, err := store.SweepOverdue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	past, err := store.GetDocument(ctx, "inv-past")
	require.NoError(t, err)
	require.Equal(t, billing.StatusOverdue, past.Status)

	future, err := store.GetDocument(ctx, "inv-future")
	require.NoError(t, err)
	require.Equal(t, billing.StatusValidated, future.Status)

	// Idempotent: the second sweep finds nothing.
	count, err = store.SweepOverdue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestSavePaymentWithAllocations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "prod-1", "100")
	seedCustomer(t, store, "cust-1")

	due := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	inv := seedInvoice(t, store, "inv-1", "cust-1", billing.StatusValidated, due, "2") // total 240

	// GIVEN: a payment allocated against the invoice in memory
	require.NoError(t, inv.ApplyAllocation(d("150")))
	payment := &billing.Payment{
		ID:         "pay-1",
		CustomerID: "cust-1",
		Amount:     d("150"),
		Reference:  "CHQ-99",
		ReceivedAt: due.AddDate(0, 0, 5),
		Allocations: []billing.PaymentAllocation{{
			ID: "alloc-1", PaymentID: "pay-1", InvoiceID: "inv-1", Amount: d("150"),
		}},
	}
	require.NoError(t, payment.Confirm())

	// WHEN: persisting payment, allocations, and invoice balance together
	require.NoError(t, store.SavePaymentWithAllocations(ctx, payment, []*billing.Document{inv}))

	// THEN: the invoice balance reflects the allocation
	loaded, err := store.GetDocument(ctx, "inv-1")
	require.NoError(t, err)
	require.Equal(t, billing.StatusPartiallyPaid, loaded.Status)
	require.True(t, loaded.PaidAmount.Equal(d("150")))
	require.True(t, loaded.RemainingAmount.Equal(d("90")))

	// AND: the payment round-trips with its allocations
	p, err := store.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	require.True(t, p.Confirmed)
	require.True(t, p.Amount.Equal(d("150")))
	require.Len(t, p.Allocations, 1)
	require.Equal(t, finance.InvoiceID("inv-1"), p.Allocations[0].InvoiceID)

	_, err = store.GetPayment(ctx, "missing")
	if !errors.Is(err, finance.ErrPaymentNotFound) {
		t.Errorf("expected ErrPaymentNotFound, got %v", err)
	}
}

// =============================================================================
// COST LEDGER
// =============================================================================

func TestApplyCostUpdateAndHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cost := d("4")
	require.NoError(t, store.CreateProduct(ctx, pricing.Product{
		ID: "prod-1", Name: "Widget", Price: d("10"), Cost: &cost, Stock: d("10"),
	}))

	var engine costing.Engine
	p, err := store.Product(ctx, "prod-1")
	require.NoError(t, err)

	// 10 @ 4 in stock, receive 10 @ 6: average moves to 5.00.
	result, err := engine.ApplyReceipt(costing.ReceiptInput{
		ProductID:        "prod-1",
		PurchasePrice:    d("6"),
		QuantityReceived: d("10"),
		CurrentCost:      p.Cost,
		CurrentStock:     p.Stock,
	})
	require.NoError(t, err)
	require.NoError(t, store.ApplyCostUpdate(ctx, result))

	p, err = store.Product(ctx, "prod-1")
	require.NoError(t, err)
	require.NotNil(t, p.Cost)
	require.True(t, p.Cost.Equal(d("5")), "got %s", p.Cost)
	require.True(t, p.Stock.Equal(d("20")))

	history, err := store.CostHistory(ctx, "prod-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].NewCost.Equal(d("5")))
	require.True(t, history[0].PurchasePrice.Equal(d("6")))
	require.NotNil(t, history[0].OldCost)
	require.True(t, history[0].OldCost.Equal(d("4")))

	// Unknown product on cost update is a not-found.
	bad := result
	bad.ProductID = "missing"
	err = store.ApplyCostUpdate(ctx, bad)
	if !errors.Is(err, finance.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "prod-1", "100")
	seedCustomer(t, store, "cust-1")

	require.NoError(t, store.Reset(ctx))

	products, err := store.ListProducts(ctx)
	require.NoError(t, err)
	require.Empty(t, products)

	customers, err := store.ListCustomers(ctx)
	require.NoError(t, err)
	require.Empty(t, customers)
}
