/*
resolver.go - Price resolution priority rules

PURPOSE:
  Given (product, customer, quantity), pick the price to charge and its
  provenance. Several mechanisms may apply at once; the first match in
  strict priority order wins:

    1. Active promotion        (start <= now <= end, is_active;
                                ties broken by latest start)
    2. Volume tier             (highest qualifying min_quantity)
    3. Customer price list     (fixed per-product price)
    4. Customer default discount (> 0)
    5. Base price

  Sources 1-3 substitute the price and carry NO discount fields; see
  result.go for why that distinction is load-bearing.

ERRORS:
  Unknown product or customer is fatal to the caller. The resolver never
  falls back on failure; fallback is a decision the calling line-addition
  workflow makes explicitly through FallbackPolicy (fallback.go).
*/
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// Resolver arbitrates between the overlapping pricing mechanisms.
// Construct one per transaction scope and pass it down; there is no
// package-level instance.
type Resolver struct {
	Catalog Catalog

	// Now is the clock used for promotion windows. Defaults to time.Now;
	// injectable for tests.
	Now func() time.Time
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{Catalog: catalog, Now: time.Now}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Resolve returns the price the customer pays for quantity units of the
// product, with its provenance. First matching source wins.
func (r *Resolver) Resolve(ctx context.Context, productID finance.ProductID, customerID finance.CustomerID, quantity decimal.Decimal) (PriceResult, error) {
	if !quantity.IsPositive() {
		return PriceResult{}, finance.Invalidf("quantity", "must be positive, got %s", quantity)
	}

	product, err := r.Catalog.Product(ctx, productID)
	if err != nil {
		return PriceResult{}, err
	}
	if _, err := r.Catalog.Customer(ctx, customerID); err != nil {
		return PriceResult{}, err
	}
	conditions, err := r.Catalog.Conditions(ctx, customerID)
	if err != nil {
		return PriceResult{}, err
	}

	// 1. Active promotional price, most recent start wins.
	promo, err := r.activePromotion(ctx, productID)
	if err != nil {
		return PriceResult{}, err
	}
	if promo != nil {
		return PromotionalPrice(product.Price, promo.Price), nil
	}

	// 2. Volume tier with the highest qualifying min_quantity.
	tier, err := r.matchingTier(ctx, productID, quantity)
	if err != nil {
		return PriceResult{}, err
	}
	if tier != nil {
		return VolumeTierPrice(product.Price, tier.Price), nil
	}

	// 3. Customer's price list, if the product has an entry in it.
	if conditions != nil && conditions.PriceListID != nil {
		entry, err := r.Catalog.PriceListEntry(ctx, *conditions.PriceListID, productID)
		if err != nil {
			return PriceResult{}, err
		}
		if entry != nil {
			return PriceListPrice(product.Price, entry.Price), nil
		}
	}

	// 4. Customer default discount.
	if conditions != nil && conditions.DefaultDiscountPercent.IsPositive() {
		if !finance.ValidPercent(conditions.DefaultDiscountPercent) {
			return PriceResult{}, finance.Invalidf("default_discount_percent",
				"must be within [0,100], got %s", conditions.DefaultDiscountPercent)
		}
		return CustomerDiscountPrice(product.Price, conditions.DefaultDiscountPercent), nil
	}

	// 5. Base price.
	return BasePrice(product.Price), nil
}

// activePromotion returns the promotion in effect now, or nil. When
// several are concurrently active, the most recent start wins.
func (r *Resolver) activePromotion(ctx context.Context, productID finance.ProductID) (*Promotion, error) {
	promos, err := r.Catalog.Promotions(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var best *Promotion
	for i := range promos {
		p := promos[i]
		if !p.ActiveAt(now) {
			continue
		}
		if best == nil || p.Start.After(best.Start) {
			best = &promos[i]
		}
	}
	return best, nil
}

// matchingTier returns the qualifying tier with the highest MinQuantity,
// or nil when no tier matches.
func (r *Resolver) matchingTier(ctx context.Context, productID finance.ProductID, qty decimal.Decimal) (*VolumeTier, error) {
	tiers, err := r.Catalog.VolumeTiers(ctx, productID)
	if err != nil {
		return nil, err
	}

	var best *VolumeTier
	for i := range tiers {
		t := tiers[i]
		if !t.Matches(qty) {
			continue
		}
		if best == nil || t.MinQuantity.GreaterThan(best.MinQuantity) {
			best = &tiers[i]
		}
	}
	return best, nil
}
