/*
Package pricing resolves the price a specific customer pays for a
specific product and quantity.

PURPOSE:
  Several pricing mechanisms overlap: time-boxed promotions, quantity
  tiers, customer price lists, and customer default discounts. This
  package owns the entities those mechanisms are defined on, the
  priority rules that arbitrate between them, and the distinction
  between a price SUBSTITUTION and a DISCOUNT.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: base price plus moving-average cost and stock levels
  - PriceList / PriceListEntry: fixed per-product prices per named list
  - VolumeTier: quantity-range fixed price (max nil = unbounded)
  - Promotion: time-boxed fixed price
  - CommercialConditions: per-customer discount, credit limit, price list
  - Catalog: the read path the resolver consumes (provided by a store)

LIFECYCLE:
  All pricing entities are created and edited by catalog management.
  The resolver treats them as read-only inputs.

SEE ALSO:
  - result.go:   PriceResult variants and their constructors
  - resolver.go: Priority rules (promotion > tier > list > discount > base)
  - fallback.go: Caller-owned fallback-to-base policy
*/
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// =============================================================================
// CATALOG ENTITIES
// =============================================================================

// Product carries the base selling price and the costing state the AVCO
// engine maintains. Cost is nil until the first stock receipt.
type Product struct {
	ID             finance.ProductID
	Name           string
	Price          decimal.Decimal // base selling price
	Cost           *decimal.Decimal
	Stock          decimal.Decimal
	MinStock       decimal.Decimal
	MaxStock       decimal.Decimal
	DefaultTaxRate decimal.Decimal
}

// Customer is the minimal customer view the core needs. Full customer
// management (addresses, contacts) lives outside the core.
type Customer struct {
	ID   finance.CustomerID
	Name string
}

// CommercialConditions is the 1:1 companion of a customer: its default
// discount, credit limit, and optional price list.
type CommercialConditions struct {
	CustomerID             finance.CustomerID
	DefaultDiscountPercent decimal.Decimal // 0..100
	CreditLimit            decimal.Decimal // >= 0
	BlockOnCreditExceeded  bool
	PriceListID            *finance.PriceListID
}

// PriceList is a named collection of fixed per-product prices.
type PriceList struct {
	ID   finance.PriceListID
	Name string
}

// PriceListEntry is one fixed price inside a price list. A list holds
// at most one entry per product.
type PriceListEntry struct {
	PriceListID finance.PriceListID
	ProductID   finance.ProductID
	Price       decimal.Decimal
}

// VolumeTier is a quantity-range fixed price. MaxQuantity nil means the
// tier is unbounded above.
type VolumeTier struct {
	ProductID   finance.ProductID
	MinQuantity decimal.Decimal
	MaxQuantity *decimal.Decimal
	Price       decimal.Decimal
}

// Matches reports whether qty falls inside the tier's range.
func (t VolumeTier) Matches(qty decimal.Decimal) bool {
	if qty.LessThan(t.MinQuantity) {
		return false
	}
	if t.MaxQuantity != nil && qty.GreaterThan(*t.MaxQuantity) {
		return false
	}
	return true
}

// Promotion is a time-boxed fixed price for a product.
type Promotion struct {
	ProductID finance.ProductID
	Price     decimal.Decimal
	Start     time.Time
	End       time.Time
	Active    bool
}

// ActiveAt reports whether the promotion applies at the given instant.
func (p Promotion) ActiveAt(at time.Time) bool {
	return p.Active && !at.Before(p.Start) && !at.After(p.End)
}

// =============================================================================
// CATALOG - Read path consumed by the resolver
// =============================================================================

// Catalog is the read-only view of pricing data the resolver consumes.
// Implementations: store/sqlite (production), pricing/store (in-memory).
type Catalog interface {
	// Product returns the product or finance.ErrProductNotFound.
	Product(ctx context.Context, id finance.ProductID) (*Product, error)

	// Customer returns the customer or finance.ErrCustomerNotFound.
	Customer(ctx context.Context, id finance.CustomerID) (*Customer, error)

	// Conditions returns the customer's commercial conditions, or
	// (nil, nil) when the customer has none configured.
	Conditions(ctx context.Context, id finance.CustomerID) (*CommercialConditions, error)

	// Promotions returns all promotions for a product, active or not.
	// Time filtering belongs to the resolver.
	Promotions(ctx context.Context, id finance.ProductID) ([]Promotion, error)

	// VolumeTiers returns all volume tiers for a product.
	VolumeTiers(ctx context.Context, id finance.ProductID) ([]VolumeTier, error)

	// PriceListEntry returns the fixed price of a product inside a list,
	// or (nil, nil) when the list has no entry for the product.
	PriceListEntry(ctx context.Context, listID finance.PriceListID, productID finance.ProductID) (*PriceListEntry, error)
}
