package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuoteStatus represents the lifecycle state of a quote.
type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "pending"
	QuoteStatusAccepted  QuoteStatus = "accepted"
	QuoteStatusRejected  QuoteStatus = "rejected"
	QuoteStatusWithdrawn QuoteStatus = "withdrawn"
)

// IsActive returns true for quotes that occupy the one-active-quote slot a
// tradesperson holds per job. Withdrawing a quote frees the slot.
func (s QuoteStatus) IsActive() bool {
	return s != QuoteStatusWithdrawn
}

// LineItemUnit is the optional unit of measure on a quote line item.
type LineItemUnit string

const (
	UnitHour LineItemUnit = "hour"
	UnitDay  LineItemUnit = "day"
	UnitItem LineItemUnit = "item"
	UnitJob  LineItemUnit = "job"
)

func (u LineItemUnit) valid() bool {
	switch u {
	case UnitHour, UnitDay, UnitItem, UnitJob:
		return true
	}
	return false
}

// LineItem is a single priced line on a quote.
type LineItem struct {
	Description string       `json:"description"`
	Quantity    int64        `json:"quantity"`
	UnitPrice   int64        `json:"unit_price"` // minor currency units, >= 0
	VATRate     *float64     `json:"vat_rate,omitempty"`
	Unit        LineItemUnit `json:"unit,omitempty"`
}

// Quote represents a tradesperson's offer on a job.
//
// Invariants: at most one non-withdrawn quote per (job, tradesperson)
// pair, and at most one accepted quote per job (matching the job's
// AcceptedQuoteID). Both are enforced by the storage layer's unique
// indexes, not by application locking.
type Quote struct {
	ID             uuid.UUID
	JobID          uuid.UUID
	TradespersonID uuid.UUID
	Price          int64 // minor currency units, > 0
	DepositAmount  int64 // 0 means no deposit configured
	LineItems      []LineItem
	Status         QuoteStatus
	// Checkout breadcrumb: set when a payment session is created for this
	// quote, before the session URL is returned to the caller. Lets a
	// crashed request be reconciled against the processor's own record.
	CheckoutSessionID string
	CheckoutStatus    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasDeposit reports whether the tradesperson configured an up-front
// deposit on this quote. A quote without a deposit is a valid business
// state, not a missing field.
func (q *Quote) HasDeposit() bool {
	return q.DepositAmount > 0
}

// BalanceAmount returns the amount still owed after the deposit.
func (q *Quote) BalanceAmount() int64 {
	return q.Price - q.DepositAmount
}

// QuoteParams holds the caller-supplied fields for creating a quote.
type QuoteParams struct {
	Price         int64
	DepositAmount int64
	LineItems     []LineItem
}

// Validate checks quote creation input.
func (p QuoteParams) Validate() error {
	const op = "quote.validate"
	if p.Price <= 0 {
		return Invalid(op, "price must be positive")
	}
	if p.DepositAmount < 0 {
		return Invalid(op, "deposit must not be negative")
	}
	if p.DepositAmount > p.Price {
		return Invalid(op, "deposit must not exceed the price")
	}
	for _, item := range p.LineItems {
		if item.Quantity <= 0 {
			return Invalid(op, "line items must have a positive quantity")
		}
		if item.UnitPrice < 0 {
			return Invalid(op, "line item unit prices must not be negative")
		}
		if item.VATRate != nil && *item.VATRate < 0 {
			return Invalid(op, "line item VAT rates must not be negative")
		}
		if item.Unit != "" && !item.Unit.valid() {
			return Invalid(op, "line item unit must be one of hour, day, item or job")
		}
	}
	return nil
}
