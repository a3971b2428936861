package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/harlowfield/tradevine/internal/billing"
	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/repository"
)

// mockBilling implements billing.Service for testing.
type mockBilling struct {
	CreateCustomerFunc             func(email, name string) (string, error)
	CreatePaymentCheckoutFunc      func(params billing.PaymentCheckoutParams) (*billing.CheckoutSession, error)
	CreateSubscriptionCheckoutFunc func(params billing.SubscriptionCheckoutParams) (*billing.CheckoutSession, error)
	CreateConnectedAccountFunc     func(email string) (string, error)
	GetConnectedAccountFunc        func(accountID string) (*stripe.Account, error)
	CreateOnboardingLinkFunc       func(accountID, refreshURL, returnURL string) (string, error)
	CreateManagementLinkFunc       func(accountID string) (string, error)
	VerifyWebhookSignatureFunc     func(payload []byte, signature string) (stripe.Event, error)
	TierForPriceIDFunc             func(priceID string) string
}

func (m *mockBilling) CreateCustomer(email, name string) (string, error) {
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(email, name)
	}
	return "cus_test", nil
}

func (m *mockBilling) CreatePaymentCheckoutSession(params billing.PaymentCheckoutParams) (*billing.CheckoutSession, error) {
	if m.CreatePaymentCheckoutFunc != nil {
		return m.CreatePaymentCheckoutFunc(params)
	}
	return nil, errors.New("CreatePaymentCheckoutFunc not implemented")
}

func (m *mockBilling) CreateSubscriptionCheckoutSession(params billing.SubscriptionCheckoutParams) (*billing.CheckoutSession, error) {
	if m.CreateSubscriptionCheckoutFunc != nil {
		return m.CreateSubscriptionCheckoutFunc(params)
	}
	return nil, errors.New("CreateSubscriptionCheckoutFunc not implemented")
}

func (m *mockBilling) CreateConnectedAccount(email string) (string, error) {
	if m.CreateConnectedAccountFunc != nil {
		return m.CreateConnectedAccountFunc(email)
	}
	return "", errors.New("CreateConnectedAccountFunc not implemented")
}

func (m *mockBilling) GetConnectedAccount(accountID string) (*stripe.Account, error) {
	if m.GetConnectedAccountFunc != nil {
		return m.GetConnectedAccountFunc(accountID)
	}
	return nil, errors.New("GetConnectedAccountFunc not implemented")
}

func (m *mockBilling) CreateOnboardingLink(accountID, refreshURL, returnURL string) (string, error) {
	if m.CreateOnboardingLinkFunc != nil {
		return m.CreateOnboardingLinkFunc(accountID, refreshURL, returnURL)
	}
	return "https://connect.example.com/onboard", nil
}

func (m *mockBilling) CreateManagementLink(accountID string) (string, error) {
	if m.CreateManagementLinkFunc != nil {
		return m.CreateManagementLinkFunc(accountID)
	}
	return "https://connect.example.com/manage", nil
}

func (m *mockBilling) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature)
	}
	return stripe.Event{}, errors.New("VerifyWebhookSignatureFunc not implemented")
}

func (m *mockBilling) TierForPriceID(priceID string) string {
	if m.TierForPriceIDFunc != nil {
		return m.TierForPriceIDFunc(priceID)
	}
	return ""
}

// mockAccountStore implements AccountStore for testing.
type mockAccountStore struct {
	GetFunc    func(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error)
	UpsertFunc func(ctx context.Context, arg repository.UpsertConnectedAccountParams) (*domain.ConnectedAccount, error)
	RaiseFunc  func(ctx context.Context, arg repository.RaiseConnectedAccountFlagsParams) error
}

func (m *mockAccountStore) GetConnectedAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, ownerID)
	}
	return nil, errors.New("GetFunc not implemented")
}

func (m *mockAccountStore) UpsertConnectedAccount(ctx context.Context, arg repository.UpsertConnectedAccountParams) (*domain.ConnectedAccount, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, arg)
	}
	return &domain.ConnectedAccount{
		OwnerUserID:       arg.OwnerUserID,
		ExternalAccountID: arg.ExternalAccountID,
	}, nil
}

func (m *mockAccountStore) RaiseConnectedAccountFlags(ctx context.Context, arg repository.RaiseConnectedAccountFlagsParams) error {
	if m.RaiseFunc != nil {
		return m.RaiseFunc(ctx, arg)
	}
	return nil
}

func notFoundErr() error {
	return sql.ErrNoRows
}

func TestEnsureAccount_ProvisionsWhenMissing(t *testing.T) {
	user := basicTradesperson()

	var upserted repository.UpsertConnectedAccountParams
	accounts := &mockAccountStore{
		GetFunc: func(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error) {
			return nil, notFoundErr()
		},
		UpsertFunc: func(ctx context.Context, arg repository.UpsertConnectedAccountParams) (*domain.ConnectedAccount, error) {
			upserted = arg
			return &domain.ConnectedAccount{OwnerUserID: arg.OwnerUserID, ExternalAccountID: arg.ExternalAccountID}, nil
		},
	}
	billingSvc := &mockBilling{
		CreateConnectedAccountFunc: func(email string) (string, error) {
			assert.Equal(t, user.Email, email)
			return "acct_new", nil
		},
	}
	svc := NewConnectService(accounts, billingSvc, "https://tradevine.test", testLogger())

	acct, err := svc.EnsureAccount(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, "acct_new", acct.ExternalAccountID)
	assert.Equal(t, user.ID, upserted.OwnerUserID)
	assert.False(t, acct.ChargesEnabled)
}

func TestEnsureAccount_StaleIDRecovery(t *testing.T) {
	user := basicTradesperson()
	stale := &domain.ConnectedAccount{
		OwnerUserID:        user.ID,
		ExternalAccountID:  "acct_stale",
		OnboardingComplete: true,
		ChargesEnabled:     true,
	}

	accounts := &mockAccountStore{
		GetFunc: func(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error) {
			return stale, nil
		},
		UpsertFunc: func(ctx context.Context, arg repository.UpsertConnectedAccountParams) (*domain.ConnectedAccount, error) {
			// Upsert replaces the ID and resets the readiness flags.
			return &domain.ConnectedAccount{OwnerUserID: arg.OwnerUserID, ExternalAccountID: arg.ExternalAccountID}, nil
		},
	}
	billingSvc := &mockBilling{
		GetConnectedAccountFunc: func(accountID string) (*stripe.Account, error) {
			return nil, billing.ErrAccountNotFound
		},
		CreateConnectedAccountFunc: func(email string) (string, error) {
			return "acct_fresh", nil
		},
	}
	svc := NewConnectService(accounts, billingSvc, "https://tradevine.test", testLogger())

	acct, err := svc.EnsureAccount(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, "acct_fresh", acct.ExternalAccountID)
	assert.False(t, acct.OnboardingComplete, "re-provisioning restarts the flags")
	assert.False(t, acct.ChargesEnabled)
}

func TestEnsureAccount_ProcessorUnreachableServesCache(t *testing.T) {
	user := basicTradesperson()
	cached := &domain.ConnectedAccount{
		OwnerUserID:        user.ID,
		ExternalAccountID:  "acct_cached",
		OnboardingComplete: true,
		ChargesEnabled:     true,
	}

	accounts := &mockAccountStore{
		GetFunc: func(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error) {
			return cached, nil
		},
	}
	billingSvc := &mockBilling{
		GetConnectedAccountFunc: func(accountID string) (*stripe.Account, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewConnectService(accounts, billingSvc, "https://tradevine.test", testLogger())

	acct, err := svc.EnsureAccount(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, "acct_cached", acct.ExternalAccountID)
	assert.True(t, acct.ChargesEnabled)
}

func TestEnsureAccount_RaisesFlagsFromRemote(t *testing.T) {
	user := basicTradesperson()
	local := &domain.ConnectedAccount{
		OwnerUserID:       user.ID,
		ExternalAccountID: "acct_123",
	}

	var raised *repository.RaiseConnectedAccountFlagsParams
	accounts := &mockAccountStore{
		GetFunc: func(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error) {
			return local, nil
		},
		RaiseFunc: func(ctx context.Context, arg repository.RaiseConnectedAccountFlagsParams) error {
			raised = &arg
			return nil
		},
	}
	billingSvc := &mockBilling{
		GetConnectedAccountFunc: func(accountID string) (*stripe.Account, error) {
			return &stripe.Account{DetailsSubmitted: true, ChargesEnabled: true, PayoutsEnabled: true}, nil
		},
	}
	svc := NewConnectService(accounts, billingSvc, "https://tradevine.test", testLogger())

	acct, err := svc.EnsureAccount(context.Background(), user)

	require.NoError(t, err)
	assert.True(t, acct.OnboardingComplete)
	assert.True(t, acct.ChargesEnabled)
	require.NotNil(t, raised, "raised flags must be persisted")
	assert.True(t, raised.OnboardingComplete)
	assert.True(t, raised.ChargesEnabled)
}

func TestEnsureAccount_NonProviderForbidden(t *testing.T) {
	user := basicTradesperson()
	user.Role = domain.RoleCustomer

	svc := NewConnectService(&mockAccountStore{}, &mockBilling{}, "https://tradevine.test", testLogger())

	_, err := svc.EnsureAccount(context.Background(), user)

	require.Error(t, err)
	assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
}

func TestEnsureAccount_BillingNotConfigured(t *testing.T) {
	svc := NewConnectService(&mockAccountStore{}, nil, "https://tradevine.test", testLogger())

	_, err := svc.EnsureAccount(context.Background(), basicTradesperson())

	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
}

func TestOnboardingLink_IncompleteAccountGetsOnboardingFlow(t *testing.T) {
	user := basicTradesperson()
	accounts := &mockAccountStore{
		GetFunc: func(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error) {
			return &domain.ConnectedAccount{OwnerUserID: user.ID, ExternalAccountID: "acct_123"}, nil
		},
	}
	billingSvc := &mockBilling{
		GetConnectedAccountFunc: func(accountID string) (*stripe.Account, error) {
			return &stripe.Account{}, nil
		},
		CreateOnboardingLinkFunc: func(accountID, refreshURL, returnURL string) (string, error) {
			assert.Equal(t, "https://tradevine.test/connect/refresh", refreshURL)
			assert.Equal(t, "https://tradevine.test/connect/return", returnURL)
			return "https://connect.example.com/onboard", nil
		},
	}
	svc := NewConnectService(accounts, billingSvc, "https://tradevine.test", testLogger())

	url, err := svc.OnboardingLink(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, "https://connect.example.com/onboard", url)
}

func TestOnboardingLink_CompleteAccountGetsManagementLink(t *testing.T) {
	user := basicTradesperson()
	accounts := &mockAccountStore{
		GetFunc: func(ctx context.Context, ownerID uuid.UUID) (*domain.ConnectedAccount, error) {
			return &domain.ConnectedAccount{
				OwnerUserID: user.ID, ExternalAccountID: "acct_123",
				OnboardingComplete: true, ChargesEnabled: true,
			}, nil
		},
	}
	billingSvc := &mockBilling{
		GetConnectedAccountFunc: func(accountID string) (*stripe.Account, error) {
			return &stripe.Account{DetailsSubmitted: true, ChargesEnabled: true, PayoutsEnabled: true}, nil
		},
		CreateManagementLinkFunc: func(accountID string) (string, error) {
			return "https://connect.example.com/manage", nil
		},
	}
	svc := NewConnectService(accounts, billingSvc, "https://tradevine.test", testLogger())

	url, err := svc.OnboardingLink(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, "https://connect.example.com/manage", url)
}
