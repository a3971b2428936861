// Package service contains the business logic layer.
//
// This file implements subscription state sync: webhook events about a
// user's subscription are folded into the local tier and status fields
// that drive the quota and fee policy. The processor is authoritative;
// local state is a cache refreshed on every event.
package service

import (
	"context"
	"log/slog"

	"github.com/harlowfield/tradevine/internal/billing"
	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/repository"
)

// SubscriptionStore is the subscription persistence surface. Satisfied by
// *repository.Queries.
type SubscriptionStore interface {
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error)
	UpdateUserSubscription(ctx context.Context, arg repository.UpdateUserSubscriptionParams) error
}

// SubscriptionEvent carries the subscription fields extracted from a
// verified webhook event.
type SubscriptionEvent struct {
	CustomerID     string // processor customer ID
	SubscriptionID string
	PriceID        string
	Status         string // processor status: active, trialing, past_due, canceled, ...
}

// SubscriptionService syncs tier state from webhook events.
type SubscriptionService interface {
	// SyncSubscription updates the user's tier and status from a
	// subscription event. Unknown customers and prices are logged and
	// skipped, never errors: the webhook must still be acknowledged.
	SyncSubscription(ctx context.Context, event SubscriptionEvent) error

	// CancelSubscription reverts the user to the basic tier.
	CancelSubscription(ctx context.Context, customerID string) error
}

type subscriptionService struct {
	store   SubscriptionStore
	billing billing.Service
	logger  *slog.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(store SubscriptionStore, billingSvc billing.Service, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{store: store, billing: billingSvc, logger: logger}
}

func (s *subscriptionService) SyncSubscription(ctx context.Context, event SubscriptionEvent) error {
	const op = "subscription.sync"

	if s.billing == nil {
		s.logger.Warn("subscription event ignored, billing not configured", "customer_id", event.CustomerID)
		return nil
	}

	user, err := s.store.GetUserByStripeCustomerID(ctx, event.CustomerID)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Warn("subscription event for unknown customer", "customer_id", event.CustomerID)
			return nil
		}
		return domain.Internal(err, op, "failed to load user by customer id")
	}

	tier := s.billing.TierForPriceID(event.PriceID)
	if tier == "" {
		s.logger.Warn("subscription event with unknown price",
			"customer_id", event.CustomerID, "price_id", event.PriceID)
		return nil
	}

	status := normalizeSubscriptionStatus(event.Status)
	if status == domain.SubscriptionStatusCanceled {
		return s.CancelSubscription(ctx, event.CustomerID)
	}

	err = s.store.UpdateUserSubscription(ctx, repository.UpdateUserSubscriptionParams{
		ID:                 user.ID,
		SubscriptionStatus: string(status),
		SubscriptionTier:   tier,
		SubscriptionID:     event.SubscriptionID,
	})
	if err != nil {
		return domain.Internal(err, op, "failed to update subscription")
	}

	s.logger.Info("subscription synced",
		"user_id", user.ID, "tier", tier, "status", status, "subscription_id", event.SubscriptionID)
	return nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, customerID string) error {
	const op = "subscription.cancel"

	user, err := s.store.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Warn("cancellation event for unknown customer", "customer_id", customerID)
			return nil
		}
		return domain.Internal(err, op, "failed to load user by customer id")
	}

	err = s.store.UpdateUserSubscription(ctx, repository.UpdateUserSubscriptionParams{
		ID:                 user.ID,
		SubscriptionStatus: string(domain.SubscriptionStatusCanceled),
		SubscriptionTier:   string(domain.TierBasic),
		SubscriptionID:     "",
	})
	if err != nil {
		return domain.Internal(err, op, "failed to cancel subscription")
	}

	s.logger.Info("subscription cancelled, reverted to basic", "user_id", user.ID)
	return nil
}

func normalizeSubscriptionStatus(status string) domain.SubscriptionStatus {
	switch status {
	case "active":
		return domain.SubscriptionStatusActive
	case "trialing":
		return domain.SubscriptionStatusTrialing
	case "past_due":
		return domain.SubscriptionStatusPastDue
	case "canceled", "unpaid", "incomplete_expired":
		return domain.SubscriptionStatusCanceled
	}
	return domain.SubscriptionStatusInactive
}
