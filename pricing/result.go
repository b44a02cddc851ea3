package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// =============================================================================
// PRICE SOURCE - Closed set of resolution outcomes
// =============================================================================

// Source identifies which pricing mechanism produced the final price.
type Source string

const (
	SourcePromotion        Source = "promotional_price"
	SourceVolumeTier       Source = "volume_pricing"
	SourcePriceList        Source = "price_list"
	SourceCustomerDiscount Source = "customer_discount"
	SourceBase             Source = "base"
)

// PriceResult is the outcome of price resolution.
//
// INVARIANT: promotions, volume tiers, and price lists SUBSTITUTE the
// price; they are not discounts. For those sources DiscountAmount and
// AppliedDiscountPercent are zero even though FinalPrice < BasePrice.
// Only SourceCustomerDiscount carries a non-zero discount. Downstream
// line creation relies on this to decide whether to store FinalPrice
// with discount 0, or BasePrice with the discount percent applied
// separately (avoiding double-discounting on later line edits).
//
// Results are built ONLY through the constructors below, which enforce
// the invariant; there is no "reset discount if source != customer
// discount" code path anywhere else.
type PriceResult struct {
	BasePrice              decimal.Decimal
	FinalPrice             decimal.Decimal
	AppliedDiscountPercent decimal.Decimal
	DiscountAmount         decimal.Decimal
	Source                 Source

	// Warnings collects advisory pricing issues (e.g. fallback applied).
	// Soft validation: never blocks quote/order creation.
	Warnings []string
}

// IsSubstitution reports whether the final price replaced the base price
// outright (as opposed to being derived from it by a discount).
func (r PriceResult) IsSubstitution() bool {
	switch r.Source {
	case SourcePromotion, SourceVolumeTier, SourcePriceList:
		return true
	}
	return false
}

// =============================================================================
// CONSTRUCTORS - The only way to build a PriceResult
// =============================================================================

func substituted(src Source, base, final decimal.Decimal) PriceResult {
	return PriceResult{
		BasePrice:              base,
		FinalPrice:             final,
		AppliedDiscountPercent: decimal.Zero,
		DiscountAmount:         decimal.Zero,
		Source:                 src,
	}
}

// PromotionalPrice builds the result for an active promotion.
func PromotionalPrice(base, promoPrice decimal.Decimal) PriceResult {
	return substituted(SourcePromotion, base, promoPrice)
}

// VolumeTierPrice builds the result for a matched volume tier.
func VolumeTierPrice(base, tierPrice decimal.Decimal) PriceResult {
	return substituted(SourceVolumeTier, base, tierPrice)
}

// PriceListPrice builds the result for a customer price-list entry.
func PriceListPrice(base, listPrice decimal.Decimal) PriceResult {
	return substituted(SourcePriceList, base, listPrice)
}

// CustomerDiscountPrice builds the only variant carrying a discount:
// final = base * (1 - pct/100), discount amount = base - final.
func CustomerDiscountPrice(base, pct decimal.Decimal) PriceResult {
	final := finance.ApplyDiscount(base, pct)
	return PriceResult{
		BasePrice:              base,
		FinalPrice:             final,
		AppliedDiscountPercent: pct,
		DiscountAmount:         base.Sub(final),
		Source:                 SourceCustomerDiscount,
	}
}

// BasePrice builds the no-mechanism-applied result.
func BasePrice(base decimal.Decimal) PriceResult {
	return PriceResult{
		BasePrice:              base,
		FinalPrice:             base,
		AppliedDiscountPercent: decimal.Zero,
		DiscountAmount:         decimal.Zero,
		Source:                 SourceBase,
	}
}
