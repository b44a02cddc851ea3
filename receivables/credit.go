/*
credit.go - Credit exposure validation

PURPOSE:
  Checks a prospective order total against a customer's credit limit.
  current_debt is supplied by the caller; in this system it is the sum
  of committed-but-not-yet-invoiced order totals (see
  billing.CommittedOrderStatuses), an acknowledged approximation of a
  true receivables ledger pending a policy decision with domain owners.
*/
package receivables

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian/erp-core/pricing"
)

// CreditValidationResult reports the outcome of a credit check. It is
// advisory when blocking is disabled; callers enforce Valid only when
// the customer's conditions say to block.
type CreditValidationResult struct {
	Valid             bool
	CurrentDebt       decimal.Decimal
	CreditLimit       decimal.Decimal
	AvailableCredit   decimal.Decimal
	NewDebtAfterOrder decimal.Decimal
	Message           string
}

// ValidateCredit checks currentDebt + orderTotal against the customer's
// credit limit. Customers without commercial conditions, or without
// block_on_credit_exceeded, always pass.
func ValidateCredit(conditions *pricing.CommercialConditions, currentDebt, orderTotal decimal.Decimal) CreditValidationResult {
	newDebt := currentDebt.Add(orderTotal)

	if conditions == nil || !conditions.BlockOnCreditExceeded {
		return CreditValidationResult{
			Valid:             true,
			CurrentDebt:       currentDebt,
			NewDebtAfterOrder: newDebt,
			Message:           "credit enforcement disabled for this customer",
		}
	}

	limit := conditions.CreditLimit
	available := limit.Sub(currentDebt)
	result := CreditValidationResult{
		CurrentDebt:       currentDebt,
		CreditLimit:       limit,
		AvailableCredit:   available,
		NewDebtAfterOrder: newDebt,
	}

	if newDebt.GreaterThan(limit) {
		result.Valid = false
		result.Message = fmt.Sprintf(
			"order of %s would raise debt to %s, exceeding the credit limit of %s",
			orderTotal, newDebt, limit)
		return result
	}

	result.Valid = true
	result.Message = fmt.Sprintf("available credit after order: %s", limit.Sub(newDebt))
	return result
}
