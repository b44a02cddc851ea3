package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// Payment is an incoming customer payment. Its allocations are the only
// writers of invoice paid amounts, and Σ allocated <= Amount always.
type Payment struct {
	ID         finance.PaymentID
	CustomerID finance.CustomerID
	Amount     decimal.Decimal
	Reference  string
	ReceivedAt time.Time
	Confirmed  bool

	Allocations []PaymentAllocation
	CreatedAt   time.Time
}

// PaymentAllocation links a payment to one invoice.
type PaymentAllocation struct {
	ID        string
	PaymentID finance.PaymentID
	InvoiceID finance.InvoiceID
	Amount    decimal.Decimal
}

// AllocatedTotal returns the sum of all allocations.
func (p *Payment) AllocatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// Confirm finalizes the payment. Confirming twice is a PolicyViolation.
func (p *Payment) Confirm() error {
	if p.Confirmed {
		return &finance.PolicyViolationError{Op: "confirm_payment",
			Reason: "payment " + string(p.ID) + " is already confirmed"}
	}
	if total := p.AllocatedTotal(); total.GreaterThan(p.Amount) {
		return finance.Invalidf("allocations", "allocated %s exceeds payment amount %s", total, p.Amount)
	}
	p.Confirmed = true
	return nil
}
