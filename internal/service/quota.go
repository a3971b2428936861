// Package service contains the business logic layer.
//
// This file implements the quote quota guard: the per-tier monthly cap on
// quote submissions. The check is advisory when called from a read path
// and authoritative when called inside quote creation, which re-counts
// immediately before the insert. Two submissions racing at the quota
// boundary can still both pass — a documented tolerance of one extra
// quote per race, accepted instead of cross-request locking for what is
// a soft commercial quota.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/repository"
)

// QuoteCounter counts a tradesperson's quote submissions. Satisfied by
// *repository.Queries.
type QuoteCounter interface {
	CountQuotesByTradespersonSince(ctx context.Context, arg repository.CountQuotesParams) (int64, error)
}

// QuotaService defines the quote quota guard operations.
type QuotaService interface {
	// CanSubmitQuote reports the provider's quota standing without
	// side effects. Used by read paths and the pre-submit check.
	CanSubmitQuote(ctx context.Context, user *domain.User) (*domain.QuotaCheck, error)

	// CheckQuoteQuota returns nil if the provider may submit a quote
	// right now, or a quote_limit / forbidden domain error.
	CheckQuoteQuota(ctx context.Context, user *domain.User) error
}

type quotaService struct {
	counter QuoteCounter
	logger  *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(counter QuoteCounter, logger *slog.Logger) QuotaService {
	return &quotaService{counter: counter, logger: logger}
}

func (s *quotaService) CanSubmitQuote(ctx context.Context, user *domain.User) (*domain.QuotaCheck, error) {
	const op = "quota.can_submit_quote"

	if !domain.CanSubmitQuotes(user.Role, user.SubscriptionTier) {
		return &domain.QuotaCheck{Allowed: false}, nil
	}

	policy := domain.ResolvePolicy(user.SubscriptionTier)
	if policy.UnlimitedQuotes {
		return &domain.QuotaCheck{Allowed: true, Unlimited: true}, nil
	}

	used, err := s.counter.CountQuotesByTradespersonSince(ctx, repository.CountQuotesParams{
		TradespersonID: user.ID,
		Since:          startOfCurrentMonth(),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count quotes")
	}

	return &domain.QuotaCheck{
		Allowed: used < policy.QuoteQuotaPerMonth,
		Used:    used,
		Limit:   policy.QuoteQuotaPerMonth,
	}, nil
}

func (s *quotaService) CheckQuoteQuota(ctx context.Context, user *domain.User) error {
	const op = "quota.check_quote_quota"

	if !domain.CanSubmitQuotes(user.Role, user.SubscriptionTier) {
		return domain.Forbidden(op, "your role and plan do not permit submitting quotes")
	}

	check, err := s.CanSubmitQuote(ctx, user)
	if err != nil {
		return err
	}
	if check.Allowed {
		return nil
	}

	s.logger.Info("quote quota exceeded",
		"user_id", user.ID,
		"tier", user.SubscriptionTier,
		"used", check.Used,
		"limit", check.Limit,
	)
	return domain.QuoteLimitExceeded(op, check.Used, check.Limit)
}

// startOfCurrentMonth returns the first instant of the current calendar
// month in UTC.
func startOfCurrentMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
