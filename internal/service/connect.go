// Package service contains the business logic layer.
//
// This file implements the connected-account reconciler: it keeps the
// local view of a payee's external payment account converged with the
// processor's authoritative state. Local records are a cache; the
// processor is the source of truth. Readiness flags only ever rise,
// except when the processor reports the account ID missing entirely, in
// which case a fresh account is provisioned and the flags restart from
// false.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/billing"
	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/repository"
)

// AccountStore is the connected-account persistence surface. Satisfied by
// *repository.Queries.
type AccountStore interface {
	GetConnectedAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error)
	UpsertConnectedAccount(ctx context.Context, arg repository.UpsertConnectedAccountParams) (*domain.ConnectedAccount, error)
	RaiseConnectedAccountFlags(ctx context.Context, arg repository.RaiseConnectedAccountFlagsParams) error
}

// ConnectService manages payee connected accounts.
type ConnectService interface {
	// EnsureAccount returns the provider's connected account with flags
	// refreshed from the processor, provisioning or re-provisioning the
	// account as needed.
	EnsureAccount(ctx context.Context, user *domain.User) (*domain.ConnectedAccount, error)

	// OnboardingLink returns the hosted URL for the provider's next step:
	// the onboarding flow while setup is incomplete, the account
	// management dashboard afterwards.
	OnboardingLink(ctx context.Context, user *domain.User) (string, error)
}

type connectService struct {
	accounts AccountStore
	billing  billing.Service
	baseURL  string
	logger   *slog.Logger
}

// NewConnectService creates a new ConnectService. baseURL is the public
// origin used to build onboarding refresh/return URLs.
func NewConnectService(accounts AccountStore, billingSvc billing.Service, baseURL string, logger *slog.Logger) ConnectService {
	return &connectService{
		accounts: accounts,
		billing:  billingSvc,
		baseURL:  baseURL,
		logger:   logger,
	}
}

func (s *connectService) EnsureAccount(ctx context.Context, user *domain.User) (*domain.ConnectedAccount, error) {
	const op = "connect.ensure_account"

	if !user.IsProvider() {
		return nil, domain.Forbidden(op, "only tradespeople can hold a payout account")
	}
	if s.billing == nil {
		return nil, domain.Unavailable(nil, op, "payments are not configured")
	}

	local, err := s.accounts.GetConnectedAccountByOwner(ctx, user.ID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, domain.Internal(err, op, "failed to load connected account")
	}

	if local == nil {
		return s.provision(ctx, user)
	}

	remote, err := s.billing.GetConnectedAccount(local.ExternalAccountID)
	if err != nil {
		if errors.Is(err, billing.ErrAccountNotFound) {
			// Stale or cross-environment ID: the processor has no such
			// account. Recover by provisioning a replacement instead of
			// failing every checkout against a dead ID.
			s.logger.Warn("connected account missing at processor, re-provisioning",
				"user_id", user.ID, "stale_account_id", local.ExternalAccountID)
			return s.provision(ctx, user)
		}
		// Processor unreachable: serve the cached record rather than
		// block. Flags may be behind but never wrong in the dangerous
		// direction, since they only rise.
		s.logger.Warn("connected account refresh failed, serving cached state",
			"user_id", user.ID, "error", err)
		return local, nil
	}

	if local.MergeRemoteFlags(remote.DetailsSubmitted, remote.ChargesEnabled, remote.PayoutsEnabled) {
		err := s.accounts.RaiseConnectedAccountFlags(ctx, repository.RaiseConnectedAccountFlagsParams{
			OwnerUserID:        user.ID,
			OnboardingComplete: local.OnboardingComplete,
			ChargesEnabled:     local.ChargesEnabled,
		})
		if err != nil {
			return nil, domain.Internal(err, op, "failed to persist account flags")
		}
		s.logger.Info("connected account flags raised",
			"user_id", user.ID,
			"onboarding_complete", local.OnboardingComplete,
			"charges_enabled", local.ChargesEnabled)
	}

	return local, nil
}

func (s *connectService) provision(ctx context.Context, user *domain.User) (*domain.ConnectedAccount, error) {
	const op = "connect.provision"

	accountID, err := s.billing.CreateConnectedAccount(user.Email)
	if err != nil {
		return nil, domain.Unavailable(err, op, "payment provider is unavailable, please try again")
	}

	acct, err := s.accounts.UpsertConnectedAccount(ctx, repository.UpsertConnectedAccountParams{
		OwnerUserID:       user.ID,
		ExternalAccountID: accountID,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to save connected account")
	}

	s.logger.Info("connected account provisioned", "user_id", user.ID, "account_id", accountID)
	return acct, nil
}

func (s *connectService) OnboardingLink(ctx context.Context, user *domain.User) (string, error) {
	const op = "connect.onboarding_link"

	acct, err := s.EnsureAccount(ctx, user)
	if err != nil {
		return "", err
	}

	if acct.OnboardingComplete && acct.ChargesEnabled {
		url, err := s.billing.CreateManagementLink(acct.ExternalAccountID)
		if err != nil {
			return "", domain.Unavailable(err, op, "payment provider is unavailable, please try again")
		}
		return url, nil
	}

	url, err := s.billing.CreateOnboardingLink(
		acct.ExternalAccountID,
		s.baseURL+"/connect/refresh",
		s.baseURL+"/connect/return",
	)
	if err != nil {
		return "", domain.Unavailable(err, op, "payment provider is unavailable, please try again")
	}
	return url, nil
}
