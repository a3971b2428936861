package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePolicy_KnownTiers(t *testing.T) {
	basic := ResolvePolicy(TierBasic)
	assert.False(t, basic.UnlimitedQuotes)
	assert.Equal(t, int64(5), basic.QuoteQuotaPerMonth)
	assert.False(t, basic.CanSeeCustomerContact)

	pro := ResolvePolicy(TierPro)
	assert.True(t, pro.UnlimitedQuotes)
	assert.True(t, pro.CanSeeCustomerContact)

	business := ResolvePolicy(TierBusiness)
	assert.True(t, business.UnlimitedQuotes)
	assert.True(t, business.CanSaveJobs)
}

func TestResolvePolicy_UnknownTierDefaultsToBasic(t *testing.T) {
	policy := ResolvePolicy(SubscriptionTier("platinum"))
	assert.Equal(t, ResolvePolicy(TierBasic), policy)

	policy = ResolvePolicy("")
	assert.Equal(t, ResolvePolicy(TierBasic), policy)
}

func TestCanSubmitQuotes_RoleGate(t *testing.T) {
	testCases := []struct {
		name    string
		role    Role
		tier    SubscriptionTier
		allowed bool
	}{
		{"tradesperson basic", RoleTradesperson, TierBasic, true},
		{"tradesperson pro", RoleTradesperson, TierPro, true},
		{"business owner basic", RoleBusinessOwner, TierBasic, false},
		{"business owner pro", RoleBusinessOwner, TierPro, false},
		{"business owner business", RoleBusinessOwner, TierBusiness, true},
		{"customer", RoleCustomer, TierBusiness, false},
		{"admin", RoleAdmin, TierBusiness, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanSubmitQuotes(tc.role, tc.tier))
		})
	}
}

func TestPlatformFee_Bounds(t *testing.T) {
	amounts := []int64{1, 50, 99, 100, 5000, 20000, 1_000_000}
	tiers := []SubscriptionTier{TierBasic, TierPro, TierBusiness}

	for _, tier := range tiers {
		policy := ResolvePolicy(tier)
		for _, amount := range amounts {
			fee := policy.PlatformFee(amount)
			assert.GreaterOrEqual(t, fee, int64(0), "tier %s amount %d", tier, amount)
			assert.LessOrEqual(t, fee, amount, "tier %s amount %d", tier, amount)
		}
	}
}

func TestPlatformFee_DecreasesWithTier(t *testing.T) {
	amounts := []int64{100, 999, 5000, 123456}
	for _, amount := range amounts {
		basicFee := ResolvePolicy(TierBasic).PlatformFee(amount)
		proFee := ResolvePolicy(TierPro).PlatformFee(amount)
		businessFee := ResolvePolicy(TierBusiness).PlatformFee(amount)

		assert.GreaterOrEqual(t, basicFee, proFee, "amount %d", amount)
		assert.GreaterOrEqual(t, proFee, businessFee, "amount %d", amount)
	}
}

func TestPlatformFee_Deterministic(t *testing.T) {
	policy := ResolvePolicy(TierBasic)
	// 10% of £200.00 = £20.00
	assert.Equal(t, int64(2000), policy.PlatformFee(20000))
	// rounding: 10% of 5 = 0.5, rounds up
	assert.Equal(t, int64(1), policy.PlatformFee(5))
	// non-positive amounts carry no fee
	assert.Equal(t, int64(0), policy.PlatformFee(0))
	assert.Equal(t, int64(0), policy.PlatformFee(-100))
}
