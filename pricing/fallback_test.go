package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian/erp-core/finance"
	"github.com/meridian/erp-core/pricing"
)

func TestFallback_FailFast_SurfacesErrors(t *testing.T) {
	r := newResolver(newCatalog())

	_, err := pricing.FailFast.Resolve(context.Background(), r, "prod-1", "missing", d("1"))

	if !errors.Is(err, finance.ErrCustomerNotFound) {
		t.Errorf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestFallback_BaseOnError_DegradesWithWarning(t *testing.T) {
	// Unknown customer is recoverable under FallBackToBase: the product
	// still has a base price to fall back to.
	r := newResolver(newCatalog())

	result, err := pricing.FallBackToBase.Resolve(context.Background(), r, "prod-1", "missing", d("1"))

	require.NoError(t, err)
	require.Equal(t, pricing.SourceBase, result.Source)
	require.True(t, result.FinalPrice.Equal(d("100")))
	require.Len(t, result.Warnings, 1)
}

func TestFallback_UnknownProduct_AlwaysFatal(t *testing.T) {
	r := newResolver(newCatalog())

	_, err := pricing.FallBackToBase.Resolve(context.Background(), r, "missing", "cust-1", d("1"))

	if !errors.Is(err, finance.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestFallback_InvalidInput_AlwaysFatal(t *testing.T) {
	r := newResolver(newCatalog())

	_, err := pricing.FallBackToBase.Resolve(context.Background(), r, "prod-1", "cust-1", d("0"))

	if !errors.Is(err, finance.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFallback_NoErrorPassesThrough(t *testing.T) {
	r := newResolver(newCatalog())

	result, err := pricing.FallBackToBase.Resolve(context.Background(), r, "prod-1", "cust-1", d("1"))

	require.NoError(t, err)
	require.Empty(t, result.Warnings)
}
