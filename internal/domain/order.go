package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product is a storefront catalog item. Prices are authoritative here:
// webhook metadata only identifies which products were bought, never what
// they cost.
type Product struct {
	ID        uuid.UUID
	Name      string
	Price     int64 // minor currency units
	Active    bool
	CreatedAt time.Time
}

// Order is a storefront purchase created from a payment-succeeded webhook,
// keyed idempotently on the processor's payment identifier.
type Order struct {
	ID                uuid.UUID
	ExternalPaymentID string
	CustomerEmail     string
	Subtotal          int64
	Tax               int64
	Shipping          int64
	Total             int64
	Items             []OrderItem
	CreatedAt         time.Time
}

// OrderItem is a purchased line on an order, priced from the catalog at
// the time the webhook was applied.
type OrderItem struct {
	ProductID uuid.UUID
	Name      string
	Quantity  int64
	UnitPrice int64
}
