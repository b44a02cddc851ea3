/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All monetary and quantity fields are decimal.Decimal, which marshals
  as a quoted decimal string ("19.99"). Clients must never parse these
  as binary floats.

VALIDATION:
  Validation is done in handlers and engines, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/billing"
	"github.com/meridian/erp-core/costing"
	"github.com/meridian/erp-core/pricing"
	"github.com/meridian/erp-core/receivables"
)

// =============================================================================
// PRODUCTS AND COSTING
// =============================================================================

// ProductDTO represents a product in API responses.
type ProductDTO struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Price          decimal.Decimal  `json:"price"`
	Cost           *decimal.Decimal `json:"cost,omitempty"`
	Stock          decimal.Decimal  `json:"stock"`
	MinStock       decimal.Decimal  `json:"min_stock"`
	MaxStock       decimal.Decimal  `json:"max_stock"`
	DefaultTaxRate decimal.Decimal  `json:"default_tax_rate"`
}

// CreateProductRequest is the request to create a product.
type CreateProductRequest struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Price          decimal.Decimal  `json:"price"`
	Cost           *decimal.Decimal `json:"cost,omitempty"`
	Stock          decimal.Decimal  `json:"stock"`
	MinStock       decimal.Decimal  `json:"min_stock"`
	MaxStock       decimal.Decimal  `json:"max_stock"`
	DefaultTaxRate decimal.Decimal  `json:"default_tax_rate"`
}

// ReceiptRequest records one incremental stock receipt against a product.
type ReceiptRequest struct {
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
}

// CostUpdateDTO is the outcome of applying a receipt.
type CostUpdateDTO struct {
	ProductID string           `json:"product_id"`
	OldCost   *decimal.Decimal `json:"old_cost,omitempty"`
	NewCost   decimal.Decimal  `json:"new_cost"`
	OldStock  decimal.Decimal  `json:"old_stock"`
	NewStock  decimal.Decimal  `json:"new_stock"`
	Changed   bool             `json:"cost_changed"`
}

// CostHistoryDTO is one row of a product's cost ledger.
type CostHistoryDTO struct {
	ID               string           `json:"id"`
	ProductID        string           `json:"product_id"`
	OldCost          *decimal.Decimal `json:"old_cost,omitempty"`
	NewCost          decimal.Decimal  `json:"new_cost"`
	OldStock         decimal.Decimal  `json:"old_stock"`
	NewStock         decimal.Decimal  `json:"new_stock"`
	PurchasePrice    decimal.Decimal  `json:"purchase_price"`
	QuantityReceived decimal.Decimal  `json:"quantity_received"`
	CreatedAt        string           `json:"created_at"`
}

// VolumeTierRequest adds a quantity-range price for a product.
type VolumeTierRequest struct {
	MinQuantity decimal.Decimal  `json:"min_quantity"`
	MaxQuantity *decimal.Decimal `json:"max_quantity,omitempty"`
	Price       decimal.Decimal  `json:"price"`
}

// PromotionRequest adds a time-boxed promotional price for a product.
type PromotionRequest struct {
	Price  decimal.Decimal `json:"price"`
	Start  string          `json:"start"` // RFC3339
	End    string          `json:"end"`   // RFC3339
	Active bool            `json:"active"`
}

// =============================================================================
// CUSTOMERS, CONDITIONS, CREDIT
// =============================================================================

// CustomerDTO represents a customer in API responses.
type CustomerDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateCustomerRequest is the request to create a customer.
type CreateCustomerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConditionsDTO carries a customer's commercial conditions.
type ConditionsDTO struct {
	CustomerID             string          `json:"customer_id"`
	DefaultDiscountPercent decimal.Decimal `json:"default_discount_percent"`
	CreditLimit            decimal.Decimal `json:"credit_limit"`
	BlockOnCreditExceeded  bool            `json:"block_on_credit_exceeded"`
	PriceListID            *string         `json:"price_list_id,omitempty"`
}

// CreditCheckRequest asks whether an order total fits the credit limit.
type CreditCheckRequest struct {
	OrderTotal     decimal.Decimal `json:"order_total"`
	ExcludeOrderID *string         `json:"exclude_order_id,omitempty"`
}

// CreditCheckDTO is the credit validation outcome.
type CreditCheckDTO struct {
	Valid             bool            `json:"valid"`
	CurrentDebt       decimal.Decimal `json:"current_debt"`
	CreditLimit       decimal.Decimal `json:"credit_limit"`
	AvailableCredit   decimal.Decimal `json:"available_credit"`
	NewDebtAfterOrder decimal.Decimal `json:"new_debt_after_order"`
	Message           string          `json:"message,omitempty"`
}

// =============================================================================
// PRICE LISTS
// =============================================================================

// PriceListDTO represents a price list.
type PriceListDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PriceListEntryRequest sets a product's fixed price inside a list.
type PriceListEntryRequest struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
}

// =============================================================================
// PRICE RESOLUTION
// =============================================================================

// ResolvePriceRequest asks for the price a customer pays for a quantity.
type ResolvePriceRequest struct {
	ProductID      string          `json:"product_id"`
	CustomerID     string          `json:"customer_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	FallbackToBase bool            `json:"fallback_to_base"`
}

// PriceResultDTO is the resolved price with its provenance.
type PriceResultDTO struct {
	BasePrice              decimal.Decimal `json:"base_price"`
	FinalPrice             decimal.Decimal `json:"final_price"`
	AppliedDiscountPercent decimal.Decimal `json:"applied_discount_percent"`
	DiscountAmount         decimal.Decimal `json:"discount_amount"`
	Source                 string          `json:"source"`
	Warnings               []string        `json:"warnings,omitempty"`
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// LineRequest is one line in a document create/add request. UnitPrice,
// DiscountPercent and TaxRate are optional; when absent they come from
// price resolution and the product's default tax rate.
type LineRequest struct {
	ProductID       string           `json:"product_id"`
	Label           string           `json:"label,omitempty"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
}

// CreateDocumentRequest creates a quote, order, invoice, or purchase order.
type CreateDocumentRequest struct {
	Type            string          `json:"type"`
	CustomerID      string          `json:"customer_id"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	IssueDate       string          `json:"issue_date,omitempty"` // YYYY-MM-DD
	DueDate         string          `json:"due_date,omitempty"`   // YYYY-MM-DD
	FallbackToBase  bool            `json:"fallback_to_base"`
	Lines           []LineRequest   `json:"lines"`
}

// SetDiscountRequest changes the document-level discount.
type SetDiscountRequest struct {
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// SetStatusRequest changes a document's lifecycle status.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// LineDTO represents a document line with its derived totals.
type LineDTO struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	Label           string          `json:"label,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TotalHT         decimal.Decimal `json:"total_ht"`
	TotalTTC        decimal.Decimal `json:"total_ttc"`
}

// DocumentDTO represents a document with its totals and lines.
type DocumentDTO struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	CustomerID      string          `json:"customer_id"`
	CustomerName    string          `json:"customer_name,omitempty"`
	Status          string          `json:"status"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Total           decimal.Decimal `json:"total"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	IssueDate       string          `json:"issue_date"`
	DueDate         string          `json:"due_date"`
	Warnings        []string        `json:"warnings,omitempty"`
	Lines           []LineDTO       `json:"lines"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// CreatePaymentRequest records a payment and allocates it across the
// customer's open invoices.
type CreatePaymentRequest struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	ReceivedAt string          `json:"received_at,omitempty"` // RFC3339, default now
	Strategy   string          `json:"strategy"`              // "fifo" or "proportional"
}

// AllocationDTO assigns part of a payment to one invoice.
type AllocationDTO struct {
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentDTO represents a recorded payment with its allocations.
type PaymentDTO struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	ReceivedAt  string          `json:"received_at"`
	Confirmed   bool            `json:"confirmed"`
	Unallocated decimal.Decimal `json:"unallocated"`
	Allocations []AllocationDTO `json:"allocations"`
}

// =============================================================================
// AGING REPORT
// =============================================================================

// BucketDTO is one aging bucket of one customer.
type BucketDTO struct {
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// CustomerAgingDTO is one customer's aged receivables.
type CustomerAgingDTO struct {
	CustomerID       string               `json:"customer_id"`
	CustomerName     string               `json:"customer_name"`
	Buckets          map[string]BucketDTO `json:"buckets"`
	TotalOutstanding decimal.Decimal      `json:"total_outstanding"`
}

// AgingReportDTO is the full aging report.
type AgingReportDTO struct {
	AsOf      string             `json:"as_of"`
	Customers []CustomerAgingDTO `json:"customers"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toProductDTO(p pricing.Product) ProductDTO {
	return ProductDTO{
		ID:             string(p.ID),
		Name:           p.Name,
		Price:          p.Price,
		Cost:           p.Cost,
		Stock:          p.Stock,
		MinStock:       p.MinStock,
		MaxStock:       p.MaxStock,
		DefaultTaxRate: p.DefaultTaxRate,
	}
}

func toPriceResultDTO(r pricing.PriceResult) PriceResultDTO {
	return PriceResultDTO{
		BasePrice:              r.BasePrice,
		FinalPrice:             r.FinalPrice,
		AppliedDiscountPercent: r.AppliedDiscountPercent,
		DiscountAmount:         r.DiscountAmount,
		Source:                 string(r.Source),
		Warnings:               r.Warnings,
	}
}

func toCostHistoryDTO(e costing.CostHistoryEntry) CostHistoryDTO {
	return CostHistoryDTO{
		ID:               e.ID,
		ProductID:        string(e.ProductID),
		OldCost:          e.OldCost,
		NewCost:          e.NewCost,
		OldStock:         e.OldStock,
		NewStock:         e.NewStock,
		PurchasePrice:    e.PurchasePrice,
		QuantityReceived: e.QuantityReceived,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
	}
}

func toDocumentDTO(d *billing.Document, warnings []string) DocumentDTO {
	lines := make([]LineDTO, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = LineDTO{
			ID:              l.ID,
			ProductID:       string(l.ProductID),
			Label:           l.Label,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			TaxRate:         l.TaxRate,
			DiscountAmount:  l.DiscountAmount,
			TotalHT:         l.TotalHT,
			TotalTTC:        l.TotalTTC,
		}
	}
	return DocumentDTO{
		ID:              string(d.ID),
		Type:            string(d.Type),
		CustomerID:      string(d.CustomerID),
		CustomerName:    d.CustomerName,
		Status:          string(d.Status),
		DiscountPercent: d.DiscountPercent,
		Subtotal:        d.Subtotal,
		DiscountAmount:  d.DiscountAmount,
		TaxAmount:       d.TaxAmount,
		Total:           d.Total,
		PaidAmount:      d.PaidAmount,
		RemainingAmount: d.RemainingAmount,
		IssueDate:       d.IssueDate.Format("2006-01-02"),
		DueDate:         d.DueDate.Format("2006-01-02"),
		Warnings:        warnings,
		Lines:           lines,
	}
}

func toPaymentDTO(p *billing.Payment) PaymentDTO {
	allocations := make([]AllocationDTO, len(p.Allocations))
	for i, a := range p.Allocations {
		allocations[i] = AllocationDTO{InvoiceID: string(a.InvoiceID), Amount: a.Amount}
	}
	return PaymentDTO{
		ID:          string(p.ID),
		CustomerID:  string(p.CustomerID),
		Amount:      p.Amount,
		Reference:   p.Reference,
		ReceivedAt:  p.ReceivedAt.Format(time.RFC3339),
		Confirmed:   p.Confirmed,
		Unallocated: p.Amount.Sub(p.AllocatedTotal()),
		Allocations: allocations,
	}
}

func toAgingReportDTO(summaries []receivables.CustomerAgingSummary, asOf time.Time) AgingReportDTO {
	customers := make([]CustomerAgingDTO, len(summaries))
	for i, s := range summaries {
		buckets := make(map[string]BucketDTO, len(s.Buckets))
		for b, bt := range s.Buckets {
			buckets[string(b)] = BucketDTO{Amount: bt.Amount, Count: bt.Count}
		}
		customers[i] = CustomerAgingDTO{
			CustomerID:       string(s.CustomerID),
			CustomerName:     s.CustomerName,
			Buckets:          buckets,
			TotalOutstanding: s.TotalOutstanding,
		}
	}
	return AgingReportDTO{AsOf: asOf.Format("2006-01-02"), Customers: customers}
}
