/*
Package billing computes line and document totals and owns invoice
balance transitions.

PURPOSE:
  Quotes, orders, invoices, and purchase orders all share one line
  formula and one document aggregation rule. This package is that
  shared math, plus the invoice-side mutations (paid/remaining amounts,
  status transitions) that payment allocation drives.

KEY CONCEPTS IN THIS FILE (types.go):
  - Line: a document line with its derived totals
  - LineTotals: full-precision output of the line calculator
  - DocumentTotals: full-precision output of document aggregation
  - Document: quote/order/invoice aggregate; invoices additionally
    carry paid/remaining amounts

DESIGN PRINCIPLES:
  1. Full recomputation: totals are always recalculated from the current
     line set, never incrementally patched. Correctness over performance.
  2. No intermediate rounding: engines compute at full precision;
     Round2 applies at the storage boundary (Rounded()).
  3. remaining_amount = total - paid_amount, mutated only by
     ApplyAllocation/MarkPaid, never directly.

SEE ALSO:
  - line.go:    ComputeLine (the line calculator)
  - totals.go:  RecomputeTotals (document aggregation)
  - invoice.go: Invoice balance operations and status transitions
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// =============================================================================
// DOCUMENT TYPES AND STATUSES
// =============================================================================

type DocumentType string

const (
	DocQuote         DocumentType = "quote"
	DocOrder         DocumentType = "order"
	DocInvoice       DocumentType = "invoice"
	DocPurchaseOrder DocumentType = "purchase_order"
)

type DocumentStatus string

const (
	StatusDraft         DocumentStatus = "draft"
	StatusValidated     DocumentStatus = "validated"
	StatusSent          DocumentStatus = "sent"
	StatusPartiallyPaid DocumentStatus = "partially_paid"
	StatusPaid          DocumentStatus = "paid"
	StatusOverdue       DocumentStatus = "overdue"
	StatusCanceled      DocumentStatus = "canceled"

	// Order lifecycle
	StatusConfirmed DocumentStatus = "confirmed"
	StatusInvoiced  DocumentStatus = "invoiced"
)

// openInvoiceStatuses are the statuses in which an invoice can still
// receive payment allocations.
var openInvoiceStatuses = map[DocumentStatus]bool{
	StatusValidated:     true,
	StatusSent:          true,
	StatusPartiallyPaid: true,
	StatusOverdue:       true,
}

// CommittedOrderStatuses approximate a customer's current debt for
// credit validation: orders committed but not yet superseded by an
// invoice. Known simplification of a true receivables ledger.
var CommittedOrderStatuses = []DocumentStatus{StatusConfirmed, StatusValidated}

// =============================================================================
// LINES
// =============================================================================

// Line is one document line. Quantity must be positive (enforced at
// line creation), unit price non-negative, discount within [0,100],
// tax rate non-negative. The derived fields hold Round2-ed values.
type Line struct {
	ID         string
	DocumentID finance.DocumentID
	ProductID  finance.ProductID
	Label      string

	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxRate         decimal.Decimal

	// Derived, stored rounded.
	DiscountAmount decimal.Decimal
	TotalHT        decimal.Decimal
	TotalTTC       decimal.Decimal
}

// LineTotals is the full-precision output of ComputeLine.
type LineTotals struct {
	DiscountAmount decimal.Decimal
	TotalHT        decimal.Decimal
	TotalTTC       decimal.Decimal
}

// Rounded applies the storage rounding rule.
func (lt LineTotals) Rounded() LineTotals {
	return LineTotals{
		DiscountAmount: finance.Round2(lt.DiscountAmount),
		TotalHT:        finance.Round2(lt.TotalHT),
		TotalTTC:       finance.Round2(lt.TotalTTC),
	}
}

// =============================================================================
// DOCUMENT TOTALS
// =============================================================================

// DocumentTotals is the full-precision output of RecomputeTotals.
type DocumentTotals struct {
	Subtotal              decimal.Decimal // Σ line HT before document discount
	DiscountAmount        decimal.Decimal // document-level discount
	SubtotalAfterDiscount decimal.Decimal
	TaxAmount             decimal.Decimal // Σ (TTC - HT), pre-document-discount
	Total                 decimal.Decimal
}

// Rounded applies the storage rounding rule.
func (dt DocumentTotals) Rounded() DocumentTotals {
	return DocumentTotals{
		Subtotal:              finance.Round2(dt.Subtotal),
		DiscountAmount:        finance.Round2(dt.DiscountAmount),
		SubtotalAfterDiscount: finance.Round2(dt.SubtotalAfterDiscount),
		TaxAmount:             finance.Round2(dt.TaxAmount),
		Total:                 finance.Round2(dt.Total),
	}
}

// =============================================================================
// DOCUMENT AGGREGATE
// =============================================================================

// Document is a quote, order, invoice, or purchase order with its lines
// and derived totals. PaidAmount/RemainingAmount are meaningful only
// for invoices.
type Document struct {
	ID           finance.DocumentID
	Type         DocumentType
	CustomerID   finance.CustomerID
	CustomerName string
	Status       DocumentStatus

	DiscountPercent decimal.Decimal // document-level, 0..100

	// Derived, stored rounded.
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal

	// Invoice balance. remaining = total - paid >= 0.
	PaidAmount      decimal.Decimal
	RemainingAmount decimal.Decimal

	IssueDate time.Time
	DueDate   time.Time

	Lines []Line

	CreatedAt time.Time
	UpdatedAt time.Time
}
