/*
handlers_test.go - End-to-end tests through the HTTP router

Tests exercise the full request flow: JSON in, router, handler, engines,
SQLite (in-memory), JSON out. Covers:
- Price resolution with provenance
- Document creation with resolved lines and totals
- Payment allocation across invoices (FIFO)
- Stock receipts and the cost ledger
- The credit gate on order confirmation
- Aging report and scenario loading
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian/erp-core/finance"
	"github.com/meridian/erp-core/store/sqlite"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRouter(NewHandler(store, nil))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func d(s string) decimal.Decimal { return finance.MustDecimal(s) }

// seedCatalog creates a product (price 100, tax 20) and a customer.
func seedCatalog(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/products", CreateProductRequest{
		ID: "prod-1", Name: "Widget", Price: d("100"), Stock: d("50"), DefaultTaxRate: d("20"),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "POST", "/api/customers", CreateCustomerRequest{ID: "cust-1", Name: "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// createInvoice creates and validates an invoice for qty units of prod-1.
func createInvoice(t *testing.T, router http.Handler, qty, dueDate string) DocumentDTO {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/documents", CreateDocumentRequest{
		Type:       "invoice",
		CustomerID: "cust-1",
		IssueDate:  "2026-06-01",
		DueDate:    dueDate,
		Lines:      []LineRequest{{ProductID: "prod-1", Quantity: d(qty)}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[DocumentDTO](t, rec)

	rec = doJSON(t, router, "POST", "/api/documents/"+doc.ID+"/status", SetStatusRequest{Status: "validated"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[DocumentDTO](t, rec)
}

// =============================================================================
// PRICING
// =============================================================================

func TestResolvePrice_CustomerDiscount(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	rec := doJSON(t, router, "PUT", "/api/customers/cust-1/conditions", ConditionsDTO{
		DefaultDiscountPercent: d("10"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "POST", "/api/pricing/resolve", ResolvePriceRequest{
		ProductID: "prod-1", CustomerID: "cust-1", Quantity: d("1"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[PriceResultDTO](t, rec)
	require.Equal(t, "customer_discount", result.Source)
	require.True(t, result.FinalPrice.Equal(d("90")))
	require.True(t, result.AppliedDiscountPercent.Equal(d("10")))
}

func TestResolvePrice_PromotionWins(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	now := time.Now()
	rec := doJSON(t, router, "POST", "/api/products/prod-1/promotions", PromotionRequest{
		Price:  d("75"),
		Start:  now.AddDate(0, 0, -1).Format(time.RFC3339),
		End:    now.AddDate(0, 0, 1).Format(time.RFC3339),
		Active: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "POST", "/api/pricing/resolve", ResolvePriceRequest{
		ProductID: "prod-1", CustomerID: "cust-1", Quantity: d("1"),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[PriceResultDTO](t, rec)
	require.Equal(t, "promotional_price", result.Source)
	require.True(t, result.FinalPrice.Equal(d("75")))
	// Substitution, not a discount.
	require.True(t, result.DiscountAmount.IsZero())
}

func TestResolvePrice_UnknownProduct404(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	rec := doJSON(t, router, "POST", "/api/pricing/resolve", ResolvePriceRequest{
		ProductID: "missing", CustomerID: "cust-1", Quantity: d("1"), FallbackToBase: true,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestCreateInvoice_TotalsAndLifecycle(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	// 2 x 100 HT at 20% tax: subtotal 200, tax 40, total 240.
	doc := createInvoice(t, router, "2", "2026-07-01")
	require.Equal(t, "validated", doc.Status)
	require.True(t, doc.Subtotal.Equal(d("200")))
	require.True(t, doc.TaxAmount.Equal(d("40")))
	require.True(t, doc.Total.Equal(d("240")))
	require.True(t, doc.RemainingAmount.Equal(d("240")))
	require.Len(t, doc.Lines, 1)
	require.True(t, doc.Lines[0].TotalTTC.Equal(d("240")))

	// Validated documents cannot take new lines.
	rec := doJSON(t, router, "POST", "/api/documents/"+doc.ID+"/lines", LineRequest{
		ProductID: "prod-1", Quantity: d("1"),
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestDocumentDiscount_Recompute(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	rec := doJSON(t, router, "POST", "/api/documents", CreateDocumentRequest{
		Type:       "quote",
		CustomerID: "cust-1",
		Lines:      []LineRequest{{ProductID: "prod-1", Quantity: d("10")}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[DocumentDTO](t, rec)
	require.True(t, doc.Total.Equal(d("1200")))

	// 10% document discount: subtotal 1000, discount 100, tax still 200
	// (computed on pre-discount HT), total 1100.
	rec = doJSON(t, router, "PUT", "/api/documents/"+doc.ID+"/discount", SetDiscountRequest{
		DiscountPercent: d("10"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc = decode[DocumentDTO](t, rec)
	require.True(t, doc.DiscountAmount.Equal(d("100")))
	require.True(t, doc.TaxAmount.Equal(d("200")))
	require.True(t, doc.Total.Equal(d("1100")), "got %s", doc.Total)
}

func TestCreateDocument_ResolvedLinePricing(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	// Customer discount keeps base price + percent on the line.
	rec := doJSON(t, router, "PUT", "/api/customers/cust-1/conditions", ConditionsDTO{
		DefaultDiscountPercent: d("10"),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", "/api/documents", CreateDocumentRequest{
		Type:       "order",
		CustomerID: "cust-1",
		Lines:      []LineRequest{{ProductID: "prod-1", Quantity: d("1")}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[DocumentDTO](t, rec)
	require.True(t, doc.Lines[0].UnitPrice.Equal(d("100")))
	require.True(t, doc.Lines[0].DiscountPercent.Equal(d("10")))
	// 100 - 10% = 90 HT, 108 TTC.
	require.True(t, doc.Lines[0].TotalHT.Equal(d("90")))
	require.True(t, doc.Total.Equal(d("108")))
}

func TestCreateDocument_ZeroQuantityLineRejected(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	// An explicit unit price must not bypass the quantity gate.
	price := d("50")
	rec := doJSON(t, router, "POST", "/api/documents", CreateDocumentRequest{
		Type:       "quote",
		CustomerID: "cust-1",
		Lines:      []LineRequest{{ProductID: "prod-1", Quantity: d("0"), UnitPrice: &price}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// Same gate on the resolved-price path.
	rec = doJSON(t, router, "POST", "/api/documents", CreateDocumentRequest{
		Type:       "quote",
		CustomerID: "cust-1",
		Lines:      []LineRequest{{ProductID: "prod-1", Quantity: d("-2")}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// And when adding a line to an existing draft.
	rec = doJSON(t, router, "POST", "/api/documents", CreateDocumentRequest{
		Type:       "quote",
		CustomerID: "cust-1",
		Lines:      []LineRequest{{ProductID: "prod-1", Quantity: d("1")}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[DocumentDTO](t, rec)

	rec = doJSON(t, router, "POST", "/api/documents/"+doc.ID+"/lines", LineRequest{
		ProductID: "prod-1", Quantity: d("0"), UnitPrice: &price,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestSetStatus_TargetsDependOnDocumentType(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	mkDoc := func(docType string) string {
		rec := doJSON(t, router, "POST", "/api/documents", CreateDocumentRequest{
			Type:       docType,
			CustomerID: "cust-1",
			Lines:      []LineRequest{{ProductID: "prod-1", Quantity: d("1")}},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[DocumentDTO](t, rec).ID
	}

	// Order lifecycle statuses are not reachable from an invoice.
	invoice := mkDoc("invoice")
	for _, status := range []string{"confirmed", "invoiced"} {
		rec := doJSON(t, router, "POST", "/api/documents/"+invoice+"/status", SetStatusRequest{Status: status})
		require.Equal(t, http.StatusBadRequest, rec.Code, "invoice -> %s: %s", status, rec.Body.String())
	}

	// And an order never becomes sent or overdue.
	order := mkDoc("order")
	for _, status := range []string{"sent", "overdue"} {
		rec := doJSON(t, router, "POST", "/api/documents/"+order+"/status", SetStatusRequest{Status: status})
		require.Equal(t, http.StatusBadRequest, rec.Code, "order -> %s: %s", status, rec.Body.String())
	}

	// The legitimate transitions still work.
	rec := doJSON(t, router, "POST", "/api/documents/"+invoice+"/status", SetStatusRequest{Status: "sent"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doJSON(t, router, "POST", "/api/documents/"+order+"/status", SetStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Unknown statuses stay rejected.
	rec = doJSON(t, router, "POST", "/api/documents/"+invoice+"/status", SetStatusRequest{Status: "archived"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPaymentFIFO_AcrossInvoices(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	early := createInvoice(t, router, "2", "2026-06-15") // 240, due first
	late := createInvoice(t, router, "1", "2026-07-15")  // 120

	// 300 FIFO: early gets 240 (paid), late gets 60 (partial).
	rec := doJSON(t, router, "POST", "/api/payments", CreatePaymentRequest{
		CustomerID: "cust-1", Amount: d("300"), Strategy: "fifo", Reference: "WIRE-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decode[PaymentDTO](t, rec)
	require.True(t, payment.Confirmed)
	require.Len(t, payment.Allocations, 2)
	require.Equal(t, early.ID, payment.Allocations[0].InvoiceID)
	require.True(t, payment.Allocations[0].Amount.Equal(d("240")))
	require.True(t, payment.Allocations[1].Amount.Equal(d("60")))
	require.True(t, payment.Unallocated.IsZero())

	rec = doJSON(t, router, "GET", "/api/documents/"+early.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "paid", decode[DocumentDTO](t, rec).Status)

	rec = doJSON(t, router, "GET", "/api/documents/"+late.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lateDoc := decode[DocumentDTO](t, rec)
	require.Equal(t, "partially_paid", lateDoc.Status)
	require.True(t, lateDoc.RemainingAmount.Equal(d("60")))

	// Payment round-trips from storage.
	rec = doJSON(t, router, "GET", "/api/payments/"+payment.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[PaymentDTO](t, rec)
	require.Len(t, stored.Allocations, 2)
}

func TestPayment_NoOpenInvoices(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	// Nothing to allocate against: the payment is recorded unallocated.
	rec := doJSON(t, router, "POST", "/api/payments", CreatePaymentRequest{
		CustomerID: "cust-1", Amount: d("500"), Strategy: "proportional",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decode[PaymentDTO](t, rec)
	require.Empty(t, payment.Allocations)
	require.True(t, payment.Unallocated.Equal(d("500")))
}

func TestPayment_UnknownStrategy400(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)
	createInvoice(t, router, "1", "2026-07-01")

	rec := doJSON(t, router, "POST", "/api/payments", CreatePaymentRequest{
		CustomerID: "cust-1", Amount: d("100"), Strategy: "newest_first",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// COSTING
// =============================================================================

func TestStockReceipt_MovesAverageCost(t *testing.T) {
	router := newTestAPI(t)

	cost := d("4")
	rec := doJSON(t, router, "POST", "/api/products", CreateProductRequest{
		ID: "prod-c", Name: "Costed", Price: d("10"), Cost: &cost, Stock: d("10"),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// 10 @ 4 + 10 @ 6 = 20 @ 5.00.
	rec = doJSON(t, router, "POST", "/api/products/prod-c/receipts", ReceiptRequest{
		PurchasePrice: d("6"), QuantityReceived: d("10"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	update := decode[CostUpdateDTO](t, rec)
	require.True(t, update.Changed)
	require.True(t, update.NewCost.Equal(d("5")))
	require.True(t, update.NewStock.Equal(d("20")))

	// Same-price receipt leaves the cost and the ledger untouched.
	rec = doJSON(t, router, "POST", "/api/products/prod-c/receipts", ReceiptRequest{
		PurchasePrice: d("5"), QuantityReceived: d("5"),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[CostUpdateDTO](t, rec).Changed)

	rec = doJSON(t, router, "GET", "/api/products/prod-c/cost-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]CostHistoryDTO](t, rec)
	require.Len(t, history, 1)
	require.True(t, history[0].NewCost.Equal(d("5")))

	// Invalid receipt is rejected before anything persists.
	rec = doJSON(t, router, "POST", "/api/products/prod-c/receipts", ReceiptRequest{
		PurchasePrice: d("6"), QuantityReceived: d("0"),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CREDIT GATE
// =============================================================================

func TestOrderConfirmation_CreditGate(t *testing.T) {
	router := newTestAPI(t)

	rec := doJSON(t, router, "POST", "/api/products", CreateProductRequest{
		ID: "press", Name: "Press", Price: d("4500"), Stock: d("5"), DefaultTaxRate: d("20"),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, "POST", "/api/customers", CreateCustomerRequest{ID: "stark", Name: "Stark"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, "PUT", "/api/customers/stark/conditions", ConditionsDTO{
		CreditLimit: d("10000"), BlockOnCreditExceeded: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	mkOrder := func() string {
		rec := doJSON(t, router, "POST", "/api/documents", CreateDocumentRequest{
			Type:       "order",
			CustomerID: "stark",
			Lines:      []LineRequest{{ProductID: "press", Quantity: d("1")}},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[DocumentDTO](t, rec).ID
	}

	// First order (5400 TTC) fits under the 10000 limit.
	first := mkOrder()
	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/documents/%s/status", first), SetStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Second order would take debt to 10800: blocked.
	second := mkOrder()
	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/documents/%s/status", second), SetStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	// The advisory endpoint reports the same verdict.
	rec = doJSON(t, router, "POST", "/api/customers/stark/credit-check", CreditCheckRequest{
		OrderTotal: d("5400"),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	check := decode[CreditCheckDTO](t, rec)
	require.False(t, check.Valid)
	require.True(t, check.CurrentDebt.Equal(d("5400")))
}

// =============================================================================
// REPORTS AND SCENARIOS
// =============================================================================

func TestAgingReport_Buckets(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	createInvoice(t, router, "1", "2026-06-10") // 45 days overdue as of 2026-07-25
	createInvoice(t, router, "2", "2026-07-20") // 5 days overdue

	rec := doJSON(t, router, "GET", "/api/reports/aging?as_of=2026-07-25", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[AgingReportDTO](t, rec)
	require.Len(t, report.Customers, 1)

	acme := report.Customers[0]
	require.True(t, acme.TotalOutstanding.Equal(d("360")))
	require.True(t, acme.Buckets["31-60"].Amount.Equal(d("120")))
	require.True(t, acme.Buckets["0-30"].Amount.Equal(d("240")))
}

func TestScenarios_LoadAll(t *testing.T) {
	router := newTestAPI(t)

	rec := doJSON(t, router, "GET", "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, 3)

	for _, s := range list {
		rec := doJSON(t, router, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.ID})
		require.Equal(t, http.StatusOK, rec.Code, "scenario %s: %s", s.ID, rec.Body.String())
	}

	// The showcase resolves a volume price for bulk quantities.
	rec = doJSON(t, router, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "pricing-showcase"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, "POST", "/api/pricing/resolve", ResolvePriceRequest{
		ProductID: "widget-volume", CustomerID: "retail-walkin", Quantity: d("60"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[PriceResultDTO](t, rec)
	require.Equal(t, "volume_pricing", result.Source)
	require.True(t, result.FinalPrice.Equal(d("19.00")))

	rec = doJSON(t, router, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "missing"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSweepOverdueEndpoint(t *testing.T) {
	router := newTestAPI(t)
	seedCatalog(t, router)

	createInvoice(t, router, "1", "2020-01-01") // long past due
	createInvoice(t, router, "1", "2099-01-01") // far future

	rec := doJSON(t, router, "POST", "/api/admin/sweep-overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[map[string]int](t, rec)
	require.Equal(t, 1, result["marked_overdue"])
}
