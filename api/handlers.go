/*
handlers.go - HTTP API handlers for the pricing and allocation core

PURPOSE:
  Exposes the pricing, billing, costing, allocation, and receivables
  engines via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Products:
    GET    /api/products                        List products
    POST   /api/products                        Create product
    GET    /api/products/{id}                   Get product
    POST   /api/products/{id}/receipts          Apply stock receipt (AVCO)
    GET    /api/products/{id}/cost-history      Cost ledger
    GET    /api/products/{id}/volume-tiers      List volume tiers
    POST   /api/products/{id}/volume-tiers      Add volume tier
    GET    /api/products/{id}/promotions        List promotions
    POST   /api/products/{id}/promotions        Add promotion

  Customers:
    GET    /api/customers                       List customers
    POST   /api/customers                       Create customer
    GET    /api/customers/{id}                  Get customer
    GET    /api/customers/{id}/conditions       Get commercial conditions
    PUT    /api/customers/{id}/conditions       Set commercial conditions
    POST   /api/customers/{id}/credit-check     Validate an order total

  Price lists:
    GET    /api/price-lists                     List price lists
    POST   /api/price-lists                     Create price list
    PUT    /api/price-lists/{id}/entries        Upsert a product price

  Pricing:
    POST   /api/pricing/resolve                 Resolve a price

  Documents:
    GET    /api/documents                       List (filter: type, customer_id)
    POST   /api/documents                       Create with lines
    GET    /api/documents/{id}                  Get with lines
    POST   /api/documents/{id}/lines            Add a line
    DELETE /api/documents/{id}/lines/{lineID}   Remove a line
    PUT    /api/documents/{id}/discount         Set document discount
    POST   /api/documents/{id}/status           Change lifecycle status

  Payments:
    POST   /api/payments                        Record and allocate
    GET    /api/payments/{id}                   Get with allocations

  Reports:
    GET    /api/reports/aging                   Aging report (?as_of=)

  Admin:
    POST   /api/admin/sweep-overdue             Flip past-due invoices

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (resolver, calculators, engines)
  4. Persist through the store
  5. Serialize response

ERROR HANDLING:
  Domain errors map to HTTP status via their taxonomy:
  - finance.IsNotFound        -> 404
  - finance.ErrPolicyViolation -> 409
  - finance.ErrInvalidInput,
    finance.ErrUnknownStrategy -> 400
  - anything else              -> 500

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridian/erp-core/allocation"
	"github.com/meridian/erp-core/billing"
	"github.com/meridian/erp-core/costing"
	"github.com/meridian/erp-core/finance"
	"github.com/meridian/erp-core/pricing"
	"github.com/meridian/erp-core/receivables"
	"github.com/meridian/erp-core/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Resolver *pricing.Resolver
	Costing  costing.Engine
	Log      *zap.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Resolver: pricing.NewResolver(store),
		Log:      logger,
	}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProduct creates a new product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	if req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price must not be negative", nil)
		return
	}

	product := pricing.Product{
		ID:             finance.ProductID(req.ID),
		Name:           req.Name,
		Price:          req.Price,
		Cost:           req.Cost,
		Stock:          req.Stock,
		MinStock:       req.MinStock,
		MaxStock:       req.MaxStock,
		DefaultTaxRate: req.DefaultTaxRate,
	}
	if err := h.Store.CreateProduct(r.Context(), product); err != nil {
		writeDomainError(w, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(product))
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := finance.ProductID(chi.URLParam(r, "id"))

	product, err := h.Store.Product(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*product))
}

// ReceiveStock applies one incremental stock receipt to the product's
// moving average cost and appends the cost-history row.
func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	id := finance.ProductID(chi.URLParam(r, "id"))

	var req ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	product, err := h.Store.Product(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}

	result, err := h.Costing.ApplyReceipt(costing.ReceiptInput{
		ProductID:        id,
		PurchasePrice:    req.PurchasePrice,
		QuantityReceived: req.QuantityReceived,
		CurrentCost:      product.Cost,
		CurrentStock:     product.Stock,
	})
	if err != nil {
		writeDomainError(w, "Failed to apply receipt", err)
		return
	}

	if err := h.Store.ApplyCostUpdate(r.Context(), result); err != nil {
		writeDomainError(w, "Failed to persist cost update", err)
		return
	}

	h.Log.Info("stock receipt applied",
		zap.String("product_id", string(id)),
		zap.String("new_cost", result.NewCost.String()),
		zap.String("new_stock", result.NewStock.String()),
		zap.Bool("cost_changed", result.Changed))

	writeJSON(w, http.StatusOK, CostUpdateDTO{
		ProductID: string(result.ProductID),
		OldCost:   result.OldCost,
		NewCost:   result.NewCost,
		OldStock:  result.OldStock,
		NewStock:  result.NewStock,
		Changed:   result.Changed,
	})
}

// GetCostHistory returns a product's cost ledger, oldest first.
func (h *Handler) GetCostHistory(w http.ResponseWriter, r *http.Request) {
	id := finance.ProductID(chi.URLParam(r, "id"))

	// 404 on unknown product, not an empty ledger.
	if _, err := h.Store.Product(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}

	entries, err := h.Store.CostHistory(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get cost history", err)
		return
	}

	dtos := make([]CostHistoryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toCostHistoryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddVolumeTier adds a quantity-range price to a product.
func (h *Handler) AddVolumeTier(w http.ResponseWriter, r *http.Request) {
	id := finance.ProductID(chi.URLParam(r, "id"))

	var req VolumeTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.MinQuantity.IsPositive() || req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "min_quantity must be positive and price non-negative", nil)
		return
	}

	if _, err := h.Store.Product(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}

	tier := pricing.VolumeTier{
		ProductID:   id,
		MinQuantity: req.MinQuantity,
		MaxQuantity: req.MaxQuantity,
		Price:       req.Price,
	}
	if err := h.Store.AddVolumeTier(r.Context(), tier); err != nil {
		writeDomainError(w, "Failed to add volume tier", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListVolumeTiers returns a product's volume tiers.
func (h *Handler) ListVolumeTiers(w http.ResponseWriter, r *http.Request) {
	id := finance.ProductID(chi.URLParam(r, "id"))

	tiers, err := h.Store.VolumeTiers(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list volume tiers", err)
		return
	}

	dtos := make([]VolumeTierRequest, len(tiers))
	for i, t := range tiers {
		dtos[i] = VolumeTierRequest{MinQuantity: t.MinQuantity, MaxQuantity: t.MaxQuantity, Price: t.Price}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddPromotion adds a time-boxed promotional price to a product.
func (h *Handler) AddPromotion(w http.ResponseWriter, r *http.Request) {
	id := finance.ProductID(chi.URLParam(r, "id"))

	var req PromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use RFC3339)", err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end (use RFC3339)", err)
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end must not precede start", nil)
		return
	}
	if req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price must not be negative", nil)
		return
	}

	if _, err := h.Store.Product(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}

	promo := pricing.Promotion{
		ProductID: id,
		Price:     req.Price,
		Start:     start,
		End:       end,
		Active:    req.Active,
	}
	if err := h.Store.AddPromotion(r.Context(), promo); err != nil {
		writeDomainError(w, "Failed to add promotion", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListPromotions returns a product's promotions.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	id := finance.ProductID(chi.URLParam(r, "id"))

	promos, err := h.Store.Promotions(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list promotions", err)
		return
	}

	dtos := make([]PromotionRequest, len(promos))
	for i, p := range promos {
		dtos[i] = PromotionRequest{
			Price:  p.Price,
			Start:  p.Start.Format(time.RFC3339),
			End:    p.End.Format(time.RFC3339),
			Active: p.Active,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns all customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Store.ListCustomers(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list customers", err)
		return
	}

	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = CustomerDTO{ID: string(c.ID), Name: c.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCustomer creates a new customer.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	customer := pricing.Customer{ID: finance.CustomerID(req.ID), Name: req.Name}
	if err := h.Store.CreateCustomer(r.Context(), customer); err != nil {
		writeDomainError(w, "Failed to create customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, CustomerDTO{ID: req.ID, Name: req.Name})
}

// GetCustomer returns a single customer.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := finance.CustomerID(chi.URLParam(r, "id"))

	customer, err := h.Store.Customer(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, CustomerDTO{ID: string(customer.ID), Name: customer.Name})
}

// GetConditions returns a customer's commercial conditions. Customers
// without conditions get the zero-value defaults.
func (h *Handler) GetConditions(w http.ResponseWriter, r *http.Request) {
	id := finance.CustomerID(chi.URLParam(r, "id"))

	if _, err := h.Store.Customer(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}

	conditions, err := h.Store.Conditions(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get conditions", err)
		return
	}
	if conditions == nil {
		writeJSON(w, http.StatusOK, ConditionsDTO{
			CustomerID:             string(id),
			DefaultDiscountPercent: decimal.Zero,
			CreditLimit:            decimal.Zero,
		})
		return
	}

	dto := ConditionsDTO{
		CustomerID:             string(conditions.CustomerID),
		DefaultDiscountPercent: conditions.DefaultDiscountPercent,
		CreditLimit:            conditions.CreditLimit,
		BlockOnCreditExceeded:  conditions.BlockOnCreditExceeded,
	}
	if conditions.PriceListID != nil {
		s := string(*conditions.PriceListID)
		dto.PriceListID = &s
	}
	writeJSON(w, http.StatusOK, dto)
}

// PutConditions sets a customer's commercial conditions.
func (h *Handler) PutConditions(w http.ResponseWriter, r *http.Request) {
	id := finance.CustomerID(chi.URLParam(r, "id"))

	var req ConditionsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !finance.ValidPercent(req.DefaultDiscountPercent) {
		writeError(w, http.StatusBadRequest, "default_discount_percent must be within [0,100]", nil)
		return
	}
	if req.CreditLimit.IsNegative() {
		writeError(w, http.StatusBadRequest, "credit_limit must not be negative", nil)
		return
	}

	if _, err := h.Store.Customer(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}

	conditions := pricing.CommercialConditions{
		CustomerID:             id,
		DefaultDiscountPercent: req.DefaultDiscountPercent,
		CreditLimit:            req.CreditLimit,
		BlockOnCreditExceeded:  req.BlockOnCreditExceeded,
	}
	if req.PriceListID != nil {
		listID := finance.PriceListID(*req.PriceListID)
		conditions.PriceListID = &listID
	}

	if err := h.Store.PutConditions(r.Context(), conditions); err != nil {
		writeDomainError(w, "Failed to save conditions", err)
		return
	}
	req.CustomerID = string(id)
	writeJSON(w, http.StatusOK, req)
}

// CheckCredit validates a prospective order total against the customer's
// credit limit. Current debt is the sum of committed order totals.
func (h *Handler) CheckCredit(w http.ResponseWriter, r *http.Request) {
	id := finance.CustomerID(chi.URLParam(r, "id"))

	var req CreditCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OrderTotal.IsNegative() {
		writeError(w, http.StatusBadRequest, "order_total must not be negative", nil)
		return
	}

	if _, err := h.Store.Customer(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}

	result, err := h.validateCredit(r, id, req.OrderTotal, req.ExcludeOrderID)
	if err != nil {
		writeDomainError(w, "Failed to validate credit", err)
		return
	}

	writeJSON(w, http.StatusOK, CreditCheckDTO{
		Valid:             result.Valid,
		CurrentDebt:       result.CurrentDebt,
		CreditLimit:       result.CreditLimit,
		AvailableCredit:   result.AvailableCredit,
		NewDebtAfterOrder: result.NewDebtAfterOrder,
		Message:           result.Message,
	})
}

func (h *Handler) validateCredit(r *http.Request, customerID finance.CustomerID, orderTotal decimal.Decimal, excludeOrderID *string) (receivables.CreditValidationResult, error) {
	conditions, err := h.Store.Conditions(r.Context(), customerID)
	if err != nil {
		return receivables.CreditValidationResult{}, err
	}

	var exclude *finance.DocumentID
	if excludeOrderID != nil {
		docID := finance.DocumentID(*excludeOrderID)
		exclude = &docID
	}
	debt, err := h.Store.CommittedOrderTotal(r.Context(), customerID, exclude)
	if err != nil {
		return receivables.CreditValidationResult{}, err
	}

	return receivables.ValidateCredit(conditions, debt, orderTotal), nil
}

// =============================================================================
// PRICE LIST HANDLERS
// =============================================================================

// ListPriceLists returns all price lists.
func (h *Handler) ListPriceLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.Store.ListPriceLists(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list price lists", err)
		return
	}

	dtos := make([]PriceListDTO, len(lists))
	for i, l := range lists {
		dtos[i] = PriceListDTO{ID: string(l.ID), Name: l.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePriceList creates a price list.
func (h *Handler) CreatePriceList(w http.ResponseWriter, r *http.Request) {
	var req PriceListDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	list := pricing.PriceList{ID: finance.PriceListID(req.ID), Name: req.Name}
	if err := h.Store.CreatePriceList(r.Context(), list); err != nil {
		writeDomainError(w, "Failed to create price list", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// PutPriceListEntry upserts a product's fixed price inside a list.
func (h *Handler) PutPriceListEntry(w http.ResponseWriter, r *http.Request) {
	listID := finance.PriceListID(chi.URLParam(r, "id"))

	var req PriceListEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price must not be negative", nil)
		return
	}

	if _, err := h.Store.Product(r.Context(), finance.ProductID(req.ProductID)); err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}

	entry := pricing.PriceListEntry{
		PriceListID: listID,
		ProductID:   finance.ProductID(req.ProductID),
		Price:       req.Price,
	}
	if err := h.Store.PutPriceListEntry(r.Context(), entry); err != nil {
		writeDomainError(w, "Failed to save price list entry", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// PRICE RESOLUTION
// =============================================================================

// ResolvePrice resolves the price a customer pays for a quantity of a
// product, with provenance.
func (h *Handler) ResolvePrice(w http.ResponseWriter, r *http.Request) {
	var req ResolvePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	policy := pricing.FailFast
	if req.FallbackToBase {
		policy = pricing.FallBackToBase
	}

	result, err := policy.Resolve(r.Context(), h.Resolver,
		finance.ProductID(req.ProductID), finance.CustomerID(req.CustomerID), req.Quantity)
	if err != nil {
		writeDomainError(w, "Failed to resolve price", err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceResultDTO(result))
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

var validDocumentTypes = map[billing.DocumentType]bool{
	billing.DocQuote:         true,
	billing.DocOrder:         true,
	billing.DocInvoice:       true,
	billing.DocPurchaseOrder: true,
}

// CreateDocument creates a document with its lines. Lines without an
// explicit unit price go through price resolution.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	docType := billing.DocumentType(req.Type)
	if !validDocumentTypes[docType] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown document type %q", req.Type), nil)
		return
	}

	customerID := finance.CustomerID(req.CustomerID)
	customer, err := h.Store.Customer(r.Context(), customerID)
	if err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}

	issueDate := time.Now().UTC().Truncate(24 * time.Hour)
	if req.IssueDate != "" {
		if issueDate, err = time.Parse("2006-01-02", req.IssueDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid issue_date (use YYYY-MM-DD)", err)
			return
		}
	}
	dueDate := issueDate.AddDate(0, 0, 30)
	if req.DueDate != "" {
		if dueDate, err = time.Parse("2006-01-02", req.DueDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_date (use YYYY-MM-DD)", err)
			return
		}
	}

	doc := &billing.Document{
		ID:              finance.DocumentID(uuid.NewString()),
		Type:            docType,
		CustomerID:      customerID,
		CustomerName:    customer.Name,
		Status:          billing.StatusDraft,
		DiscountPercent: req.DiscountPercent,
		IssueDate:       issueDate,
		DueDate:         dueDate,
	}

	var warnings []string
	for _, lr := range req.Lines {
		line, lineWarnings, err := h.buildLine(r, doc.ID, customerID, lr, req.FallbackToBase)
		if err != nil {
			writeDomainError(w, "Failed to build line", err)
			return
		}
		doc.Lines = append(doc.Lines, line)
		warnings = append(warnings, lineWarnings...)
	}

	if err := doc.Recompute(); err != nil {
		writeDomainError(w, "Failed to compute totals", err)
		return
	}
	if err := h.Store.SaveDocument(r.Context(), doc); err != nil {
		writeDomainError(w, "Failed to save document", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentDTO(doc, warnings))
}

// buildLine turns a line request into a priced line. When the caller
// did not fix a unit price, resolution decides between a substituted
// price (discount 0) and the base price with the customer discount.
func (h *Handler) buildLine(r *http.Request, docID finance.DocumentID, customerID finance.CustomerID, lr LineRequest, fallbackToBase bool) (billing.Line, []string, error) {
	// Zero-quantity lines are legal for the calculator but not for line
	// creation; reject before any pricing work.
	if !lr.Quantity.IsPositive() {
		return billing.Line{}, nil, finance.Invalidf("quantity", "must be positive, got %s", lr.Quantity)
	}

	productID := finance.ProductID(lr.ProductID)
	product, err := h.Store.Product(r.Context(), productID)
	if err != nil {
		return billing.Line{}, nil, err
	}

	line := billing.Line{
		ID:         uuid.NewString(),
		DocumentID: docID,
		ProductID:  productID,
		Label:      lr.Label,
		Quantity:   lr.Quantity,
	}
	if line.Label == "" {
		line.Label = product.Name
	}

	line.TaxRate = product.DefaultTaxRate
	if lr.TaxRate != nil {
		line.TaxRate = *lr.TaxRate
	}

	var warnings []string
	if lr.UnitPrice != nil {
		line.UnitPrice = *lr.UnitPrice
		if lr.DiscountPercent != nil {
			line.DiscountPercent = *lr.DiscountPercent
		}
		return line, nil, nil
	}

	policy := pricing.FailFast
	if fallbackToBase {
		policy = pricing.FallBackToBase
	}
	result, err := policy.Resolve(r.Context(), h.Resolver, productID, customerID, lr.Quantity)
	if err != nil {
		return billing.Line{}, nil, err
	}
	warnings = append(warnings, result.Warnings...)

	// Substituted prices carry no discount; the customer discount keeps
	// the base price and the percent, so later edits never double-apply.
	line.UnitPrice = result.FinalPrice
	line.DiscountPercent = decimal.Zero
	if result.Source == pricing.SourceCustomerDiscount {
		line.UnitPrice = result.BasePrice
		line.DiscountPercent = result.AppliedDiscountPercent
	}
	if lr.DiscountPercent != nil {
		line.DiscountPercent = *lr.DiscountPercent
	}
	return line, warnings, nil
}

// GetDocument returns a document with its lines.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := finance.DocumentID(chi.URLParam(r, "id"))

	doc, err := h.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get document", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc, nil))
}

// ListDocuments returns documents filtered by type and optionally customer.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docType := billing.DocumentType(r.URL.Query().Get("type"))
	if docType == "" {
		docType = billing.DocInvoice
	}
	if !validDocumentTypes[docType] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown document type %q", docType), nil)
		return
	}

	var customerID *finance.CustomerID
	if c := r.URL.Query().Get("customer_id"); c != "" {
		id := finance.CustomerID(c)
		customerID = &id
	}

	docs, err := h.Store.ListDocuments(r.Context(), docType, customerID)
	if err != nil {
		writeDomainError(w, "Failed to list documents", err)
		return
	}

	dtos := make([]DocumentDTO, len(docs))
	for i := range docs {
		dtos[i] = toDocumentDTO(&docs[i], nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddLine adds a line to a draft document and recomputes its totals.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	id := finance.DocumentID(chi.URLParam(r, "id"))

	var req LineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	doc, err := h.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get document", err)
		return
	}
	if doc.Status != billing.StatusDraft {
		writeDomainError(w, "Cannot modify document", &finance.PolicyViolationError{
			Op: "add_line", Reason: "document " + string(id) + " is " + string(doc.Status)})
		return
	}

	fallback := r.URL.Query().Get("fallback_to_base") == "true"
	line, warnings, err := h.buildLine(r, doc.ID, doc.CustomerID, req, fallback)
	if err != nil {
		writeDomainError(w, "Failed to build line", err)
		return
	}
	doc.Lines = append(doc.Lines, line)

	if err := doc.Recompute(); err != nil {
		writeDomainError(w, "Failed to compute totals", err)
		return
	}
	if err := h.Store.SaveDocument(r.Context(), doc); err != nil {
		writeDomainError(w, "Failed to save document", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc, warnings))
}

// RemoveLine removes a line from a draft document and recomputes.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	id := finance.DocumentID(chi.URLParam(r, "id"))
	lineID := chi.URLParam(r, "lineID")

	doc, err := h.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get document", err)
		return
	}
	if doc.Status != billing.StatusDraft {
		writeDomainError(w, "Cannot modify document", &finance.PolicyViolationError{
			Op: "remove_line", Reason: "document " + string(id) + " is " + string(doc.Status)})
		return
	}

	found := false
	kept := doc.Lines[:0]
	for _, l := range doc.Lines {
		if l.ID == lineID {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	if !found {
		writeError(w, http.StatusNotFound, "Line not found", nil)
		return
	}
	doc.Lines = kept

	if err := doc.Recompute(); err != nil {
		writeDomainError(w, "Failed to compute totals", err)
		return
	}
	if err := h.Store.SaveDocument(r.Context(), doc); err != nil {
		writeDomainError(w, "Failed to save document", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc, nil))
}

// SetDiscount changes the document-level discount and recomputes.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	id := finance.DocumentID(chi.URLParam(r, "id"))

	var req SetDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	doc, err := h.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get document", err)
		return
	}
	if doc.Status != billing.StatusDraft {
		writeDomainError(w, "Cannot modify document", &finance.PolicyViolationError{
			Op: "set_discount", Reason: "document " + string(id) + " is " + string(doc.Status)})
		return
	}

	doc.DiscountPercent = req.DiscountPercent
	if err := doc.Recompute(); err != nil {
		writeDomainError(w, "Failed to compute totals", err)
		return
	}
	if err := h.Store.SaveDocument(r.Context(), doc); err != nil {
		writeDomainError(w, "Failed to save document", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc, nil))
}

// terminalStatuses cannot be left through the status endpoint.
var terminalStatuses = map[billing.DocumentStatus]bool{
	billing.StatusPaid:     true,
	billing.StatusCanceled: true,
	billing.StatusInvoiced: true,
}

// statusTargets lists the statuses each document type may be moved to
// through the status endpoint. Payment-driven statuses (paid,
// partially_paid) are absent everywhere: those come from allocation.
var statusTargets = map[billing.DocumentType]map[billing.DocumentStatus]bool{
	billing.DocQuote: {
		billing.StatusDraft:     true,
		billing.StatusValidated: true,
		billing.StatusSent:      true,
		billing.StatusCanceled:  true,
	},
	billing.DocOrder: {
		billing.StatusDraft:     true,
		billing.StatusValidated: true,
		billing.StatusConfirmed: true,
		billing.StatusInvoiced:  true,
		billing.StatusCanceled:  true,
	},
	billing.DocInvoice: {
		billing.StatusDraft:     true,
		billing.StatusValidated: true,
		billing.StatusSent:      true,
		billing.StatusOverdue:   true,
		billing.StatusCanceled:  true,
	},
	billing.DocPurchaseOrder: {
		billing.StatusDraft:     true,
		billing.StatusValidated: true,
		billing.StatusSent:      true,
		billing.StatusCanceled:  true,
	},
}

// SetStatus moves a document through its lifecycle. Confirming an order
// runs the credit check; paying an invoice goes through /api/payments,
// never through here.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := finance.DocumentID(chi.URLParam(r, "id"))

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	newStatus := billing.DocumentStatus(req.Status)

	doc, err := h.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get document", err)
		return
	}

	if terminalStatuses[doc.Status] {
		writeDomainError(w, "Cannot change status", &finance.PolicyViolationError{
			Op: "set_status", Reason: "document " + string(id) + " is " + string(doc.Status)})
		return
	}
	if newStatus == billing.StatusPaid || newStatus == billing.StatusPartiallyPaid {
		writeDomainError(w, "Cannot change status", &finance.PolicyViolationError{
			Op: "set_status", Reason: "payment statuses are driven by payment allocation"})
		return
	}
	if !statusTargets[doc.Type][newStatus] {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("status %q is not valid for a %s", req.Status, doc.Type), nil)
		return
	}
	if newStatus == billing.StatusCanceled && doc.PaidAmount.IsPositive() {
		writeDomainError(w, "Cannot change status", &finance.PolicyViolationError{
			Op: "set_status", Reason: "invoice " + string(id) + " has received payments"})
		return
	}

	// Order confirmation commits the customer's debt; the credit gate
	// sits here.
	if doc.Type == billing.DocOrder && newStatus == billing.StatusConfirmed {
		excludeID := string(doc.ID)
		result, err := h.validateCredit(r, doc.CustomerID, doc.Total, &excludeID)
		if err != nil {
			writeDomainError(w, "Failed to validate credit", err)
			return
		}
		if !result.Valid {
			writeDomainError(w, "Credit limit exceeded", &finance.PolicyViolationError{
				Op: "confirm_order", Reason: result.Message})
			return
		}
	}

	doc.Status = newStatus
	if err := h.Store.SaveDocument(r.Context(), doc); err != nil {
		writeDomainError(w, "Failed to save document", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc, nil))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreatePayment records a payment and allocates it across the customer's
// open invoices under the requested strategy, atomically.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	customerID := finance.CustomerID(req.CustomerID)
	if _, err := h.Store.Customer(r.Context(), customerID); err != nil {
		writeDomainError(w, "Failed to get customer", err)
		return
	}

	receivedAt := time.Now()
	if req.ReceivedAt != "" {
		var err error
		if receivedAt, err = time.Parse(time.RFC3339, req.ReceivedAt); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid received_at (use RFC3339)", err)
			return
		}
	}

	strategy := allocation.Strategy(req.Strategy)
	if strategy == "" {
		strategy = allocation.StrategyFIFO
	}

	invoices, err := h.Store.OpenInvoices(r.Context(), customerID)
	if err != nil {
		writeDomainError(w, "Failed to load open invoices", err)
		return
	}

	open := make([]allocation.OpenInvoice, len(invoices))
	byID := make(map[finance.InvoiceID]*billing.Document, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		open[i] = allocation.OpenInvoice{
			ID:        finance.InvoiceID(inv.ID),
			DueDate:   inv.DueDate,
			Remaining: inv.RemainingAmount,
		}
		byID[finance.InvoiceID(inv.ID)] = inv
	}

	allocs, err := allocation.Allocate(open, req.Amount, strategy)
	if err != nil {
		writeDomainError(w, "Failed to allocate payment", err)
		return
	}

	payment := &billing.Payment{
		ID:         finance.PaymentID(uuid.NewString()),
		CustomerID: customerID,
		Amount:     req.Amount,
		Reference:  req.Reference,
		ReceivedAt: receivedAt,
	}

	var touched []*billing.Document
	for _, a := range allocs {
		inv := byID[a.InvoiceID]
		if err := inv.ApplyAllocation(a.Amount); err != nil {
			writeDomainError(w, "Failed to apply allocation", err)
			return
		}
		payment.Allocations = append(payment.Allocations, billing.PaymentAllocation{
			ID:        uuid.NewString(),
			PaymentID: payment.ID,
			InvoiceID: a.InvoiceID,
			Amount:    a.Amount,
		})
		touched = append(touched, inv)
	}

	if err := payment.Confirm(); err != nil {
		writeDomainError(w, "Failed to confirm payment", err)
		return
	}

	if err := h.Store.SavePaymentWithAllocations(r.Context(), payment, touched); err != nil {
		writeDomainError(w, "Failed to save payment", err)
		return
	}

	h.Log.Info("payment recorded",
		zap.String("payment_id", string(payment.ID)),
		zap.String("customer_id", string(customerID)),
		zap.String("amount", req.Amount.String()),
		zap.String("strategy", string(strategy)),
		zap.Int("allocations", len(payment.Allocations)))

	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

// GetPayment returns a payment with its allocations.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := finance.PaymentID(chi.URLParam(r, "id"))

	payment, err := h.Store.GetPayment(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(payment))
}

// =============================================================================
// REPORTS AND ADMIN
// =============================================================================

// AgingReport returns outstanding balances bucketed by days overdue.
func (h *Handler) AgingReport(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if q := r.URL.Query().Get("as_of"); q != "" {
		var err error
		if asOf, err = time.Parse("2006-01-02", q); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of (use YYYY-MM-DD)", err)
			return
		}
	}

	invoices, err := h.Store.OutstandingInvoices(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to load outstanding invoices", err)
		return
	}

	summaries := receivables.BuildAging(invoices, asOf)
	writeJSON(w, http.StatusOK, toAgingReportDTO(summaries, asOf))
}

// SweepOverdue flips past-due open invoices to overdue.
func (h *Handler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	count, err := h.Store.SweepOverdue(r.Context(), time.Now())
	if err != nil {
		writeDomainError(w, "Failed to sweep overdue invoices", err)
		return
	}
	if count > 0 {
		h.Log.Info("overdue sweep", zap.Int("marked", count))
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked_overdue": count})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the error taxonomy to an HTTP status.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case finance.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, finance.ErrPolicyViolation):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, finance.ErrInvalidInput), errors.Is(err, finance.ErrUnknownStrategy):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
