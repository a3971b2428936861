// Package domain contains core business types for the Tradevine marketplace.
//
// This file defines the tier policy: a pure lookup from subscription tier
// to quoting quota, platform commission and feature gates. It performs no
// I/O and has no failure modes beyond defaulting unknown tiers to basic.
package domain

// TierPolicy describes what a subscription tier entitles a provider to.
type TierPolicy struct {
	QuoteQuotaPerMonth    int64
	UnlimitedQuotes       bool
	FeeBasisPoints        int64 // platform commission, in basis points of the charged amount
	CanSeeCustomerContact bool
	CanSaveJobs           bool
}

// tierPolicies maps subscription tiers to their entitlements.
// Higher tiers pay a lower platform commission.
var tierPolicies = map[SubscriptionTier]TierPolicy{
	TierBasic: {
		QuoteQuotaPerMonth: 5,
		FeeBasisPoints:     1000,
	},
	TierPro: {
		UnlimitedQuotes:       true,
		FeeBasisPoints:        700,
		CanSeeCustomerContact: true,
		CanSaveJobs:           true,
	},
	TierBusiness: {
		UnlimitedQuotes:       true,
		FeeBasisPoints:        500,
		CanSeeCustomerContact: true,
		CanSaveJobs:           true,
	},
}

// QuotaCheck reports a provider's standing against their monthly quote
// quota. Advisory at read time; the quote creation path re-checks it
// immediately before insert.
type QuotaCheck struct {
	Allowed   bool
	Unlimited bool
	Used      int64
	Limit     int64
}

// ResolvePolicy returns the policy for a tier, defaulting unknown tiers to
// basic (fail-safe, least privilege).
func ResolvePolicy(tier SubscriptionTier) TierPolicy {
	if policy, ok := tierPolicies[tier]; ok {
		return policy
	}
	return tierPolicies[TierBasic]
}

// CanSubmitQuotes returns whether the role/tier combination may submit
// quotes at all. A business_owner quotes on behalf of a company and needs
// the business tier; a tradesperson may quote at any tier.
func CanSubmitQuotes(role Role, tier SubscriptionTier) bool {
	switch role {
	case RoleTradesperson:
		return true
	case RoleBusinessOwner:
		return tier == TierBusiness
	default:
		return false
	}
}

// PlatformFee computes the commission withheld from a split payment of the
// given amount (in minor currency units), rounded half away from zero.
// The result is never negative and never exceeds the amount.
func (p TierPolicy) PlatformFee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	fee := (amount*p.FeeBasisPoints + 5000) / 10000
	if fee > amount {
		return amount
	}
	return fee
}
