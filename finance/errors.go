/*
errors.go - Centralized error taxonomy for the core

PURPOSE:
  All fatal error categories in one place. Engines return these; the
  transaction boundary (HTTP handler, command handler) maps them to a
  rollback and a status code. Nothing in the core retries or silently
  clamps.

ERROR CATEGORIES:
  1. NotFound        - an id did not resolve (product, customer, invoice...)
  2. InvalidInput    - negative amount, percent outside [0,100], unknown
                       allocation strategy. Never clamped, always surfaced.
  3. PolicyViolation - operation forbidden by document state (allocating to
                       a draft invoice, confirming a confirmed payment)

  Soft validation (pricing warnings, suggested discounts) is NOT an error:
  it is collected into string lists on results so quote/order creation is
  never blocked by advisory issues.

USAGE:
  if errors.Is(err, finance.ErrInvalidInput) { ... }
  if finance.IsNotFound(err) { ... 404 ... }
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrProductNotFound is returned when a product id does not resolve.
	ErrProductNotFound = errors.New("product not found")

	// ErrCustomerNotFound is returned when a customer id does not resolve.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrInvoiceNotFound is returned when an invoice id does not resolve.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrDocumentNotFound is returned when a quote/order/invoice id does not resolve.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrPaymentNotFound is returned when a payment id does not resolve.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrPriceListNotFound is returned when a price list id does not resolve.
	ErrPriceListNotFound = errors.New("price list not found")

	// ErrInvalidInput is the root of all input validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownStrategy is returned for an unrecognized allocation strategy.
	ErrUnknownStrategy = errors.New("unknown allocation strategy")

	// ErrPolicyViolation is the root of all document-state violations.
	ErrPolicyViolation = errors.New("policy violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError reports a rejected input with the offending field.
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Message)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// Invalidf builds an InvalidInputError with a formatted message.
func Invalidf(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PolicyViolationError reports an operation forbidden by document state.
type PolicyViolationError struct {
	Op     string // e.g. "allocate", "confirm_payment"
	Reason string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation in %s: %s", e.Op, e.Reason)
}

func (e *PolicyViolationError) Unwrap() error { return ErrPolicyViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates an unresolvable id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrPriceListNotFound)
}

// IsClientError returns true if the error is due to invalid client input
// or a forbidden operation, as opposed to an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnknownStrategy) ||
		errors.Is(err, ErrPolicyViolation)
}
