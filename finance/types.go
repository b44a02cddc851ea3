package finance

// Type-safe identifiers. Strong typing prevents passing a customer id
// where a product id is expected.

type ProductID string
type CustomerID string
type PriceListID string
type DocumentID string
type InvoiceID string
type PaymentID string
