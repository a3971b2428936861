package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergePaymentStatus_MovesForwardOnly(t *testing.T) {
	testCases := []struct {
		name     string
		current  PaymentStatus
		incoming PaymentStatus
		want     PaymentStatus
	}{
		{"empty advances", "", PaymentStatusPendingDeposit, PaymentStatusPendingDeposit},
		{"forward step", PaymentStatusPendingDeposit, PaymentStatusDepositPaid, PaymentStatusDepositPaid},
		{"repeat delivery is no-op", PaymentStatusDepositPaid, PaymentStatusDepositPaid, PaymentStatusDepositPaid},
		{"late deposit event ignored", PaymentStatusFullyPaid, PaymentStatusDepositPaid, PaymentStatusFullyPaid},
		{"backward never applies", PaymentStatusPendingFinal, PaymentStatusPendingDeposit, PaymentStatusPendingFinal},
		{"skip ahead allowed", PaymentStatusPendingDeposit, PaymentStatusFullyPaid, PaymentStatusFullyPaid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MergePaymentStatus(tc.current, tc.incoming))
		})
	}
}

func TestMergePaymentStatus_AbsorbingStates(t *testing.T) {
	// explicit refund applies from any forward state
	assert.Equal(t, PaymentStatusRefunded, MergePaymentStatus(PaymentStatusFullyPaid, PaymentStatusRefunded))
	assert.Equal(t, PaymentStatusCanceled, MergePaymentStatus(PaymentStatusPendingDeposit, PaymentStatusCanceled))

	// once absorbed, nothing moves the status again
	assert.Equal(t, PaymentStatusRefunded, MergePaymentStatus(PaymentStatusRefunded, PaymentStatusFullyPaid))
	assert.Equal(t, PaymentStatusCanceled, MergePaymentStatus(PaymentStatusCanceled, PaymentStatusDepositPaid))
	assert.Equal(t, PaymentStatusRefunded, MergePaymentStatus(PaymentStatusRefunded, PaymentStatusCanceled))
}

// Applying any permutation of a set of forward events, with duplicates,
// must land on the highest-ranked event in the set.
func TestMergePaymentStatus_OrderAndDuplicateInsensitive(t *testing.T) {
	events := []PaymentStatus{
		PaymentStatusPendingDeposit,
		PaymentStatusDepositPaid,
		PaymentStatusDepositPaid, // duplicate delivery
		PaymentStatusPendingFinal,
		PaymentStatusFullyPaid,
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		shuffled := make([]PaymentStatus, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		status := PaymentStatus("")
		for _, ev := range shuffled {
			status = MergePaymentStatus(status, ev)
		}
		assert.Equal(t, PaymentStatusFullyPaid, status, "permutation %d: %v", i, shuffled)
	}
}

func TestStatusAfterPayment(t *testing.T) {
	assert.Equal(t, PaymentStatusDepositPaid, StatusAfterPayment(PaymentTypeDeposit))
	assert.Equal(t, PaymentStatusFullyPaid, StatusAfterPayment(PaymentTypeFinal))
}

func TestInitialPaymentStatus(t *testing.T) {
	assert.Equal(t, PaymentStatusPendingDeposit, InitialPaymentStatus(true))
	assert.Equal(t, PaymentStatusPendingFinal, InitialPaymentStatus(false))
}

func TestConnectedAccount_MergeRemoteFlagsMonotonic(t *testing.T) {
	acct := &ConnectedAccount{}

	changed := acct.MergeRemoteFlags(true, false, false)
	assert.True(t, changed)
	assert.True(t, acct.OnboardingComplete)
	assert.False(t, acct.ChargesEnabled)

	// a later read reporting everything false must not reset the flags
	changed = acct.MergeRemoteFlags(false, false, false)
	assert.False(t, changed)
	assert.True(t, acct.OnboardingComplete)

	changed = acct.MergeRemoteFlags(false, true, false)
	assert.True(t, changed)
	assert.True(t, acct.ChargesEnabled)
	assert.True(t, acct.OnboardingComplete)

	// fully enabled account never reports a change again
	changed = acct.MergeRemoteFlags(true, true, true)
	assert.False(t, changed)
}

func TestConnectedAccount_ChargesImpliesOnboarding(t *testing.T) {
	acct := &ConnectedAccount{}
	acct.MergeRemoteFlags(false, true, false)
	assert.True(t, acct.OnboardingComplete, "charges_enabled must imply onboarding_complete")
}

func TestPaymentRecord_IdempotencyKey(t *testing.T) {
	rec := &PaymentRecord{
		JobID:             mustUUID("7a5c0aa8-52cb-4bb1-9f1e-3f4bd0a1a111"),
		Type:              PaymentTypeDeposit,
		ExternalPaymentID: "pi_123",
	}
	assert.Equal(t, "7a5c0aa8-52cb-4bb1-9f1e-3f4bd0a1a111:deposit:pi_123", rec.IdempotencyKey())
}
