// Package domain contains core business types for the Tradevine marketplace.
//
// This file defines payment-derived state: the forward-only payment status
// lattice stored on a job, the idempotent payment record, and the payee's
// connected account. Webhook deliveries are at-least-once and unordered,
// so every write here is keyed on a stable external identifier and status
// changes are a monotone merge rather than an overwrite.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentType distinguishes the two charges a job can carry.
type PaymentType string

const (
	PaymentTypeDeposit PaymentType = "deposit"
	PaymentTypeFinal   PaymentType = "final"
)

// Valid reports whether t is a known payment type.
func (t PaymentType) Valid() bool {
	return t == PaymentTypeDeposit || t == PaymentTypeFinal
}

// PaymentStatus is an ordered lattice stored on the job:
//
//	pending_deposit < deposit_paid < pending_final < fully_paid
//
// plus the absorbing states refunded and canceled. Transitions only move
// forward except via an explicit refund or cancel.
type PaymentStatus string

const (
	PaymentStatusPendingDeposit PaymentStatus = "pending_deposit"
	PaymentStatusDepositPaid    PaymentStatus = "deposit_paid"
	PaymentStatusPendingFinal   PaymentStatus = "pending_final"
	PaymentStatusFullyPaid      PaymentStatus = "fully_paid"
	PaymentStatusRefunded       PaymentStatus = "refunded"
	PaymentStatusCanceled       PaymentStatus = "canceled"
)

var paymentStatusRank = map[PaymentStatus]int{
	PaymentStatusPendingDeposit: 1,
	PaymentStatusDepositPaid:    2,
	PaymentStatusPendingFinal:   3,
	PaymentStatusFullyPaid:      4,
}

// IsAbsorbing returns true for refunded/canceled, which no forward
// transition may leave.
func (s PaymentStatus) IsAbsorbing() bool {
	return s == PaymentStatusRefunded || s == PaymentStatusCanceled
}

// MergePaymentStatus returns the status the job should carry after an
// event reporting `incoming` arrives while the job is at `current`. The
// merge is a "max so far": duplicate or out-of-order deliveries can never
// move the status backward. Absorbing states win in both directions:
// once refunded/canceled the status is frozen, and an explicit
// refund/cancel always applies.
func MergePaymentStatus(current, incoming PaymentStatus) PaymentStatus {
	if current.IsAbsorbing() {
		return current
	}
	if incoming.IsAbsorbing() {
		return incoming
	}
	if paymentStatusRank[incoming] > paymentStatusRank[current] {
		return incoming
	}
	if current == "" {
		return incoming
	}
	return current
}

// StatusAfterPayment maps a captured payment to the lattice point it
// advances the job to.
func StatusAfterPayment(t PaymentType) PaymentStatus {
	if t == PaymentTypeDeposit {
		return PaymentStatusDepositPaid
	}
	return PaymentStatusFullyPaid
}

// InitialPaymentStatus returns the lattice entry point for a freshly
// assigned job: pending_deposit when the accepted quote carries a deposit,
// pending_final otherwise.
func InitialPaymentStatus(hasDeposit bool) PaymentStatus {
	if hasDeposit {
		return PaymentStatusPendingDeposit
	}
	return PaymentStatusPendingFinal
}

// PaymentRecord is the durable record of a captured payment.
//
// Invariant: at most one record exists per (job, type), enforced by a
// unique index keyed on the external payment identifier rather than
// application locking, so duplicate webhook deliveries are absorbed.
type PaymentRecord struct {
	ID                uuid.UUID
	JobID             uuid.UUID
	Type              PaymentType
	ExternalPaymentID string
	Amount            int64
	PaidAt            time.Time
}

// IdempotencyKey derives the stable key under which this record's insert
// is deduplicated.
func (r *PaymentRecord) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%s", r.JobID, r.Type, r.ExternalPaymentID)
}

// ConnectedAccount is the payee-side payment identity registered with the
// external processor.
//
// Invariant: ChargesEnabled implies OnboardingComplete. Both flags are
// monotonic — a background read never resets them to false; only an
// explicit re-provisioning (the account recreated after the processor
// reported it missing) may.
type ConnectedAccount struct {
	OwnerUserID        uuid.UUID
	ExternalAccountID  string
	OnboardingComplete bool
	ChargesEnabled     bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MergeRemoteFlags folds a fresh processor read into the local flags,
// monotonically. Returns true if either flag newly became true and the
// record should be persisted.
func (a *ConnectedAccount) MergeRemoteFlags(detailsSubmitted, chargesEnabled, payoutsEnabled bool) bool {
	changed := false
	complete := detailsSubmitted || chargesEnabled || payoutsEnabled
	if complete && !a.OnboardingComplete {
		a.OnboardingComplete = true
		changed = true
	}
	if chargesEnabled && !a.ChargesEnabled {
		a.ChargesEnabled = true
		a.OnboardingComplete = true
		changed = true
	}
	return changed
}
