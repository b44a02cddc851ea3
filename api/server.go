/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/products/*       Catalog, receipts, cost history, tiers, promotions
  /api/customers/*      Customers, conditions, credit checks
  /api/price-lists/*    Price lists and entries
  /api/pricing/*        Price resolution
  /api/documents/*      Quotes, orders, invoices, purchase orders
  /api/payments/*       Payments and allocations
  /api/reports/*        Aging report
  /api/admin/*          Overdue sweep
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Post("/{id}/receipts", h.ReceiveStock)
			r.Get("/{id}/cost-history", h.GetCostHistory)
			r.Get("/{id}/volume-tiers", h.ListVolumeTiers)
			r.Post("/{id}/volume-tiers", h.AddVolumeTier)
			r.Get("/{id}/promotions", h.ListPromotions)
			r.Post("/{id}/promotions", h.AddPromotion)
		})

		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
			r.Get("/{id}/conditions", h.GetConditions)
			r.Put("/{id}/conditions", h.PutConditions)
			r.Post("/{id}/credit-check", h.CheckCredit)
		})

		// Price list routes
		r.Route("/price-lists", func(r chi.Router) {
			r.Get("/", h.ListPriceLists)
			r.Post("/", h.CreatePriceList)
			r.Put("/{id}/entries", h.PutPriceListEntry)
		})

		// Price resolution
		r.Post("/pricing/resolve", h.ResolvePrice)

		// Document routes
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.ListDocuments)
			r.Post("/", h.CreateDocument)
			r.Get("/{id}", h.GetDocument)
			r.Post("/{id}/lines", h.AddLine)
			r.Delete("/{id}/lines/{lineID}", h.RemoveLine)
			r.Put("/{id}/discount", h.SetDiscount)
			r.Post("/{id}/status", h.SetStatus)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.CreatePayment)
			r.Get("/{id}", h.GetPayment)
		})

		// Report routes
		r.Get("/reports/aging", h.AgingReport)

		// Admin routes
		r.Post("/admin/sweep-overdue", h.SweepOverdue)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>ERP Pricing Core</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>ERP Pricing &amp; Allocation Core API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/products">/api/products</a> - List products</li>
<li><a href="/api/customers">/api/customers</a> - List customers</li>
<li><a href="/api/documents?type=invoice">/api/documents</a> - List documents</li>
<li><a href="/api/reports/aging">/api/reports/aging</a> - Aging report</li>
<li><a href="/api/scenarios">/api/scenarios</a> - List demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
