package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/finance"
)

// FallbackPolicy is the caller's explicit decision about what happens
// when price resolution fails. The resolver itself never falls back;
// the line-addition workflow passes one of these so the behavior is
// visible and testable instead of a caught-and-ignored error.
type FallbackPolicy struct {
	// UseBaseOnError falls back to the product base price when
	// resolution fails for a reason other than an unknown product or
	// invalid input, recording a warning on the result.
	UseBaseOnError bool
}

var (
	// FailFast surfaces every resolution error to the caller.
	FailFast = FallbackPolicy{}

	// FallBackToBase degrades to the base price where possible.
	FallBackToBase = FallbackPolicy{UseBaseOnError: true}
)

// Resolve runs the resolver and applies the policy to its outcome.
// Unknown products and invalid inputs are always fatal: there is no
// price to fall back to, and bad input must never be papered over.
func (p FallbackPolicy) Resolve(ctx context.Context, r *Resolver, productID finance.ProductID, customerID finance.CustomerID, quantity decimal.Decimal) (PriceResult, error) {
	result, err := r.Resolve(ctx, productID, customerID, quantity)
	if err == nil {
		return result, nil
	}
	if !p.UseBaseOnError ||
		errors.Is(err, finance.ErrProductNotFound) ||
		errors.Is(err, finance.ErrInvalidInput) {
		return PriceResult{}, err
	}

	product, perr := r.Catalog.Product(ctx, productID)
	if perr != nil {
		return PriceResult{}, perr
	}

	result = BasePrice(product.Price)
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("price resolution failed (%v); fell back to base price", err))
	return result, nil
}
