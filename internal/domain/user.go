// Package domain contains core business types for the Tradevine marketplace.
//
// This file defines the User type and the role/subscription enums used by
// the authorization and tier policy layers. Account registration and
// session issuance live in an external auth service; this codebase only
// consumes the resulting user records.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of the marketplace a user acts on.
type Role string

const (
	RoleCustomer      Role = "customer"
	RoleTradesperson  Role = "tradesperson"
	RoleBusinessOwner Role = "business_owner"
	RoleAdmin         Role = "admin"
)

// SubscriptionStatus represents the possible states of a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// SubscriptionTier represents the pricing tier of a tradesperson or
// business subscription.
type SubscriptionTier string

const (
	TierBasic    SubscriptionTier = "basic"
	TierPro      SubscriptionTier = "pro"
	TierBusiness SubscriptionTier = "business"
)

// User represents a registered marketplace user.
type User struct {
	ID                 uuid.UUID
	Email              string
	Name               string
	Phone              string
	Role               Role
	StripeCustomerID   string
	SubscriptionStatus SubscriptionStatus
	SubscriptionTier   SubscriptionTier
	SubscriptionID     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsAdmin returns true for platform administrators.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsProvider returns true for users on the service-provider side of the
// marketplace (the side that submits quotes and receives payouts).
func (u *User) IsProvider() bool {
	return u.Role == RoleTradesperson || u.Role == RoleBusinessOwner
}

// DisplayName returns the user's name, or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// ContactDetails is the slice of a customer's profile shared with the
// tradespeople working their job. Visibility is tier-gated, so these
// fields never appear in a view unless the policy allows it.
type ContactDetails struct {
	Name  string
	Email string
	Phone string
}

// Contact returns the user's shareable contact details.
func (u *User) Contact() ContactDetails {
	return ContactDetails{Name: u.DisplayName(), Email: u.Email, Phone: u.Phone}
}
