/*
Package costing recomputes a product's moving weighted-average cost
(AVCO) when stock is received.

PURPOSE:
  One stock-receipt event carries the incremental quantity received and
  the purchase price. The engine folds it into the product's current
  cost and stock:

    new_cost = round2((old_cost*old_stock + price*qty) / new_stock)

  with new_cost = purchase price in the degenerate new_stock <= 0 case
  (the stock subsystem may report negative on-hand when oversold).

HISTORY:
  A ProductCostHistory entry is produced ONLY when the computed cost
  differs from the old cost, or when no prior cost existed. A receipt
  that leaves the cost unchanged is a costing no-op (the stock quantity
  itself is always updated by the stock subsystem, not here).

SEQUENTIAL RECEIPTS:
  quantity_received is always the incremental amount of THIS event,
  never a cumulative total. Repeated partial receipts on the same
  purchase-order line each start from the then-current cost and stock,
  so accumulation never double-counts.
*/
package costing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// ReceiptInput is one stock-receipt event against a product.
type ReceiptInput struct {
	ProductID        finance.ProductID
	PurchasePrice    decimal.Decimal
	QuantityReceived decimal.Decimal // incremental, > 0

	// Then-current product state, before this receipt.
	CurrentCost  *decimal.Decimal // nil when the product was never costed
	CurrentStock decimal.Decimal
}

// CostHistoryEntry is one row of the append-only cost ledger.
type CostHistoryEntry struct {
	ID               string
	ProductID        finance.ProductID
	OldCost          *decimal.Decimal
	NewCost          decimal.Decimal
	OldStock         decimal.Decimal
	NewStock         decimal.Decimal
	PurchasePrice    decimal.Decimal
	QuantityReceived decimal.Decimal
	CreatedAt        time.Time
}

// CostUpdateResult is the outcome of applying one receipt.
type CostUpdateResult struct {
	ProductID finance.ProductID
	OldCost   *decimal.Decimal
	NewCost   decimal.Decimal
	OldStock  decimal.Decimal
	NewStock  decimal.Decimal

	// Changed is true when the cost moved or no prior cost existed.
	// History is non-nil exactly when Changed is true.
	Changed bool
	History *CostHistoryEntry
}

// Engine applies stock receipts to product costs. Stateless; construct
// freely.
type Engine struct{}

// ApplyReceipt folds one incremental receipt into the product's moving
// average cost. Pure computation; the caller persists the new cost and
// the history entry in its own transaction.
func (Engine) ApplyReceipt(in ReceiptInput) (CostUpdateResult, error) {
	if !in.QuantityReceived.IsPositive() {
		return CostUpdateResult{}, finance.Invalidf("quantity_received",
			"must be positive, got %s", in.QuantityReceived)
	}
	if in.PurchasePrice.IsNegative() {
		return CostUpdateResult{}, finance.Invalidf("purchase_price",
			"must not be negative, got %s", in.PurchasePrice)
	}

	oldStock := in.CurrentStock
	newStock := oldStock.Add(in.QuantityReceived)

	oldCost := decimal.Zero
	if in.CurrentCost != nil {
		oldCost = *in.CurrentCost
	}

	var newCost decimal.Decimal
	if newStock.IsPositive() {
		weighted := oldCost.Mul(oldStock).Add(in.PurchasePrice.Mul(in.QuantityReceived))
		newCost = finance.Round2(weighted.Div(newStock))
	} else {
		newCost = in.PurchasePrice
	}

	result := CostUpdateResult{
		ProductID: in.ProductID,
		OldCost:   in.CurrentCost,
		NewCost:   newCost,
		OldStock:  oldStock,
		NewStock:  newStock,
	}

	if in.CurrentCost == nil || !newCost.Equal(*in.CurrentCost) {
		result.Changed = true
		result.History = &CostHistoryEntry{
			ProductID:        in.ProductID,
			OldCost:          in.CurrentCost,
			NewCost:          newCost,
			OldStock:         oldStock,
			NewStock:         newStock,
			PurchasePrice:    in.PurchasePrice,
			QuantityReceived: in.QuantityReceived,
		}
	}
	return result, nil
}
