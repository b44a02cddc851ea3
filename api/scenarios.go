/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the database with self-contained demo datasets so every part of
  the pricing and receivables flow can be exercised from a fresh start:
  price resolution priorities, document totals, payment allocation,
  aging buckets, and the credit gate.

SCENARIOS:
  pricing-showcase   One product per pricing mechanism: base price,
                     customer discount, price list, volume tiers, and
                     an active promotion.
  receivables-aging  Invoices spread across all four aging buckets for
                     two customers, one partially paid.
  credit-hold        A customer with committed orders close to a
                     blocking credit limit.

DESIGN:
  Loading a scenario resets the database first. Scenario data is
  deterministic (fixed ids, dates relative to load time) so demo
  walkthroughs are repeatable.

SEE ALSO:
  - handlers.go: uses writeJSON/writeError
  - server.go: /api/scenarios routes
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridian/erp-core/allocation"
	"github.com/meridian/erp-core/billing"
	"github.com/meridian/erp-core/finance"
	"github.com/meridian/erp-core/pricing"
)

// scenarios is the registry of loadable demo datasets.
var scenarios = []ScenarioDTO{
	{
		ID:          "pricing-showcase",
		Name:        "Pricing Showcase",
		Description: "One product per pricing mechanism: base, customer discount, price list, volume tiers, promotion.",
	},
	{
		ID:          "receivables-aging",
		Name:        "Receivables Aging",
		Description: "Open invoices across all four aging buckets, one partially paid.",
	},
	{
		ID:          "credit-hold",
		Name:        "Credit Hold",
		Description: "A customer with committed orders close to a blocking credit limit.",
	},
}

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// ResetDatabase wipes all data. Dev/demo only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	h.Log.Info("database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenario resets the database and seeds the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "pricing-showcase":
		err = h.loadPricingShowcase(ctx)
	case "receivables-aging":
		err = h.loadReceivablesAging(ctx)
	case "credit-hold":
		err = h.loadCreditHold(ctx)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown scenario %q", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Log.Info("scenario loaded", zap.String("scenario_id", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO: pricing-showcase
// =============================================================================

func (h *Handler) loadPricingShowcase(ctx context.Context) error {
	now := time.Now()
	cost := dec("11.40")

	products := []pricing.Product{
		{ID: "widget-base", Name: "Widget (base price)", Price: dec("25.00"),
			Stock: dec("100"), MaxStock: dec("500"), DefaultTaxRate: dec("20")},
		{ID: "widget-promo", Name: "Widget (on promotion)", Price: dec("25.00"), Cost: &cost,
			Stock: dec("80"), MaxStock: dec("500"), DefaultTaxRate: dec("20")},
		{ID: "widget-volume", Name: "Widget (volume tiers)", Price: dec("25.00"),
			Stock: dec("1000"), MaxStock: dec("5000"), DefaultTaxRate: dec("20")},
		{ID: "widget-listed", Name: "Widget (price listed)", Price: dec("25.00"),
			Stock: dec("60"), MaxStock: dec("500"), DefaultTaxRate: dec("20")},
	}
	for _, p := range products {
		if err := h.Store.CreateProduct(ctx, p); err != nil {
			return err
		}
	}

	customers := []pricing.Customer{
		{ID: "retail-walkin", Name: "Walk-in Retail"},
		{ID: "partner-gold", Name: "Gold Partner SARL"},
	}
	for _, c := range customers {
		if err := h.Store.CreateCustomer(ctx, c); err != nil {
			return err
		}
	}

	if err := h.Store.CreatePriceList(ctx, pricing.PriceList{ID: "partner-2026", Name: "Partner Prices 2026"}); err != nil {
		return err
	}
	if err := h.Store.PutPriceListEntry(ctx, pricing.PriceListEntry{
		PriceListID: "partner-2026", ProductID: "widget-listed", Price: dec("19.50"),
	}); err != nil {
		return err
	}

	// Gold partner: 8% default discount plus the partner price list.
	listID := finance.PriceListID("partner-2026")
	if err := h.Store.PutConditions(ctx, pricing.CommercialConditions{
		CustomerID:             "partner-gold",
		DefaultDiscountPercent: dec("8"),
		CreditLimit:            dec("50000"),
		PriceListID:            &listID,
	}); err != nil {
		return err
	}

	tierMax := dec("49")
	tiers := []pricing.VolumeTier{
		{ProductID: "widget-volume", MinQuantity: dec("10"), MaxQuantity: &tierMax, Price: dec("22.00")},
		{ProductID: "widget-volume", MinQuantity: dec("50"), Price: dec("19.00")},
	}
	for _, t := range tiers {
		if err := h.Store.AddVolumeTier(ctx, t); err != nil {
			return err
		}
	}

	return h.Store.AddPromotion(ctx, pricing.Promotion{
		ProductID: "widget-promo",
		Price:     dec("17.90"),
		Start:     now.AddDate(0, 0, -3),
		End:       now.AddDate(0, 0, 11),
		Active:    true,
	})
}

// =============================================================================
// SCENARIO: receivables-aging
// =============================================================================

func (h *Handler) loadReceivablesAging(ctx context.Context) error {
	if err := h.Store.CreateProduct(ctx, pricing.Product{
		ID: "svc-consulting", Name: "Consulting Day", Price: dec("800.00"),
		Stock: dec("0"), DefaultTaxRate: dec("20"),
	}); err != nil {
		return err
	}

	customers := []pricing.Customer{
		{ID: "acme", Name: "Acme Industries"},
		{ID: "globex", Name: "Globex Corp"},
	}
	for _, c := range customers {
		if err := h.Store.CreateCustomer(ctx, c); err != nil {
			return err
		}
	}

	now := time.Now().UTC().Truncate(24 * time.Hour)

	// One invoice per aging bucket for Acme, one recent for Globex.
	invoices := []struct {
		id         string
		customer   string
		name       string
		days       decimal.Decimal
		dueDaysAgo int
	}{
		{"inv-acme-current", "acme", "Acme Industries", dec("1"), 10},
		{"inv-acme-31-60", "acme", "Acme Industries", dec("2"), 45},
		{"inv-acme-61-90", "acme", "Acme Industries", dec("1"), 75},
		{"inv-acme-90plus", "acme", "Acme Industries", dec("3"), 120},
		{"inv-globex-current", "globex", "Globex Corp", dec("5"), 5},
	}

	for _, fx := range invoices {
		doc := &billing.Document{
			ID:           finance.DocumentID(fx.id),
			Type:         billing.DocInvoice,
			CustomerID:   finance.CustomerID(fx.customer),
			CustomerName: fx.name,
			Status:       billing.StatusValidated,
			IssueDate:    now.AddDate(0, 0, -fx.dueDaysAgo-30),
			DueDate:      now.AddDate(0, 0, -fx.dueDaysAgo),
			Lines: []billing.Line{{
				ID:        fx.id + "-l1",
				ProductID: "svc-consulting",
				Label:     "Consulting Day",
				Quantity:  fx.days,
				UnitPrice: dec("800.00"),
				TaxRate:   dec("20"),
			}},
		}
		if err := doc.Recompute(); err != nil {
			return err
		}
		if err := h.Store.SaveDocument(ctx, doc); err != nil {
			return err
		}
	}

	// Partially pay the oldest Acme invoice so the demo shows a
	// partially_paid row inside the 90+ bucket.
	oldest, err := h.Store.GetDocument(ctx, "inv-acme-90plus")
	if err != nil {
		return err
	}
	allocs, err := allocation.Allocate([]allocation.OpenInvoice{{
		ID: "inv-acme-90plus", DueDate: oldest.DueDate, Remaining: oldest.RemainingAmount,
	}}, dec("1000.00"), allocation.StrategyFIFO)
	if err != nil {
		return err
	}

	payment := &billing.Payment{
		ID:         "pay-acme-partial",
		CustomerID: "acme",
		Amount:     dec("1000.00"),
		Reference:  "WIRE-4471",
		ReceivedAt: now.AddDate(0, 0, -15),
	}
	for _, a := range allocs {
		if err := oldest.ApplyAllocation(a.Amount); err != nil {
			return err
		}
		payment.Allocations = append(payment.Allocations, billing.PaymentAllocation{
			ID: "pay-acme-partial-a1", PaymentID: payment.ID, InvoiceID: a.InvoiceID, Amount: a.Amount,
		})
	}
	if err := payment.Confirm(); err != nil {
		return err
	}
	return h.Store.SavePaymentWithAllocations(ctx, payment, []*billing.Document{oldest})
}

// =============================================================================
// SCENARIO: credit-hold
// =============================================================================

func (h *Handler) loadCreditHold(ctx context.Context) error {
	if err := h.Store.CreateProduct(ctx, pricing.Product{
		ID: "machine-press", Name: "Hydraulic Press", Price: dec("4500.00"),
		Stock: dec("6"), MaxStock: dec("10"), DefaultTaxRate: dec("20")},
	); err != nil {
		return err
	}

	if err := h.Store.CreateCustomer(ctx, pricing.Customer{ID: "stark-metal", Name: "Stark Metalworks"}); err != nil {
		return err
	}
	if err := h.Store.PutConditions(ctx, pricing.CommercialConditions{
		CustomerID:            "stark-metal",
		CreditLimit:           dec("15000"),
		BlockOnCreditExceeded: true,
	}); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(24 * time.Hour)

	// Two committed orders totalling 10800 TTC: confirming another press
	// order trips the credit gate.
	for _, id := range []string{"ord-stark-1", "ord-stark-2"} {
		doc := &billing.Document{
			ID:           finance.DocumentID(id),
			Type:         billing.DocOrder,
			CustomerID:   "stark-metal",
			CustomerName: "Stark Metalworks",
			Status:       billing.StatusConfirmed,
			IssueDate:    now.AddDate(0, 0, -7),
			DueDate:      now.AddDate(0, 0, 23),
			Lines: []billing.Line{{
				ID:        id + "-l1",
				ProductID: "machine-press",
				Label:     "Hydraulic Press",
				Quantity:  dec("1"),
				UnitPrice: dec("4500.00"),
				TaxRate:   dec("20"),
			}},
		}
		if err := doc.Recompute(); err != nil {
			return err
		}
		if err := h.Store.SaveDocument(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// dec parses a decimal literal; scenario data is hand-written and panics
// on typos at load time rather than silently corrupting the demo.
func dec(s string) decimal.Decimal { return finance.MustDecimal(s) }
