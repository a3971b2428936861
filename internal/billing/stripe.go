// Package billing provides the Stripe integration for marketplace
// payments: destination-charge checkout sessions with a platform fee,
// Connect account onboarding, subscription checkout and webhook
// signature verification.
package billing

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/account"
	"github.com/stripe/stripe-go/v79/accountlink"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/loginlink"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ErrAccountNotFound is returned when the processor reports that a
// connected account ID does not exist. This happens with stale or
// cross-environment IDs (e.g. a test-mode account ID in a live store);
// the reconciler responds by provisioning a fresh account.
var ErrAccountNotFound = errors.New("billing: connected account not found")

// PaymentCheckoutParams describes a marketplace split payment: the
// customer pays, the platform fee is withheld, and the remainder
// transfers to the payee's connected account on capture.
type PaymentCheckoutParams struct {
	Amount               int64 // minor currency units
	Currency             string
	Description          string
	DestinationAccountID string
	ApplicationFee       int64
	SuccessURL           string
	CancelURL            string
	// Metadata correlates the eventual webhook back to the job, quote
	// and parties. Values only identify entities; nothing in here is
	// trusted for pricing.
	Metadata map[string]string
}

// SubscriptionCheckoutParams describes a tier-upgrade checkout. The
// idempotency key must be derived from the full request semantics: a
// retry with the same key replays the original session, so the key may
// only be reused for byte-identical payloads.
type SubscriptionCheckoutParams struct {
	CustomerID     string // existing payer profile, or empty
	CustomerEmail  string // used when no profile exists yet
	PriceID        string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the subset of the processor's session the
// orchestrator persists and returns.
type CheckoutSession struct {
	ID  string
	URL string
}

// Service defines the processor operations the orchestrator requires.
// Any processor that can host a payment session, split-pay to a
// connected payee and report outcomes via signed webhook can satisfy it.
type Service interface {
	// CreateCustomer creates a payer profile for subscription billing.
	CreateCustomer(email, name string) (string, error)

	// CreatePaymentCheckoutSession creates a hosted payment session for a
	// deposit or final payment, split to the payee's connected account.
	CreatePaymentCheckoutSession(params PaymentCheckoutParams) (*CheckoutSession, error)

	// CreateSubscriptionCheckoutSession creates a hosted subscription
	// checkout for a tier upgrade.
	CreateSubscriptionCheckoutSession(params SubscriptionCheckoutParams) (*CheckoutSession, error)

	// CreateConnectedAccount provisions a new payee account.
	CreateConnectedAccount(email string) (string, error)

	// GetConnectedAccount fetches the authoritative account state.
	// Returns ErrAccountNotFound for stale or cross-environment IDs.
	GetConnectedAccount(accountID string) (*stripe.Account, error)

	// CreateOnboardingLink returns a hosted onboarding flow with distinct
	// refresh (retry) and return (completion) destinations.
	CreateOnboardingLink(accountID, refreshURL, returnURL string) (string, error)

	// CreateManagementLink returns a hosted account-management login link
	// for an already-onboarded payee.
	CreateManagementLink(accountID string) (string, error)

	// VerifyWebhookSignature verifies an inbound webhook and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// TierForPriceID returns the subscription tier for a price ID, or ""
	// when the price is unknown.
	TierForPriceID(priceID string) string
}

// PriceConfig holds the Stripe price IDs for each subscription plan.
type PriceConfig struct {
	ProMonthlyPriceID      string
	ProYearlyPriceID       string
	BusinessMonthlyPriceID string
	BusinessYearlyPriceID  string
}

// PriceIDFor returns the price ID for a tier/interval pair, or "".
func (p PriceConfig) PriceIDFor(tier, interval string) string {
	switch tier + "/" + interval {
	case "pro/monthly":
		return p.ProMonthlyPriceID
	case "pro/yearly":
		return p.ProYearlyPriceID
	case "business/monthly":
		return p.BusinessMonthlyPriceID
	case "business/yearly":
		return p.BusinessYearlyPriceID
	}
	return ""
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	prices        PriceConfig
	priceToTier   map[string]string
}

// requestTimeout bounds every outbound processor call. A timed-out call
// is failed-but-possibly-applied: callers must re-query authoritative
// state rather than assume the side effect did not happen.
const requestTimeout = 20 * time.Second

// NewStripeService creates a new Stripe billing service.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}))

	priceToTier := make(map[string]string)
	if prices.ProMonthlyPriceID != "" {
		priceToTier[prices.ProMonthlyPriceID] = "pro"
	}
	if prices.ProYearlyPriceID != "" {
		priceToTier[prices.ProYearlyPriceID] = "pro"
	}
	if prices.BusinessMonthlyPriceID != "" {
		priceToTier[prices.BusinessMonthlyPriceID] = "business"
	}
	if prices.BusinessYearlyPriceID != "" {
		priceToTier[prices.BusinessYearlyPriceID] = "business"
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		prices:        prices,
		priceToTier:   priceToTier,
	}
}

func (s *stripeService) CreateCustomer(email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreatePaymentCheckoutSession(p PaymentCheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(p.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(p.ApplicationFee),
			CaptureMethod:        stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(p.DestinationAccountID),
			},
			Metadata: p.Metadata,
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *stripeService) CreateSubscriptionCheckoutSession(p SubscriptionCheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create subscription checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *stripeService) CreateConnectedAccount(email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
	}
	acct, err := account.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create connected account: %w", err)
	}
	return acct.ID, nil
}

func (s *stripeService) GetConnectedAccount(accountID string) (*stripe.Account, error) {
	acct, err := account.GetByID(accountID, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeAccountInvalid {
				return nil, ErrAccountNotFound
			}
		}
		return nil, fmt.Errorf("stripe get connected account: %w", err)
	}
	return acct, nil
}

func (s *stripeService) CreateOnboardingLink(accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	link, err := accountlink.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create onboarding link: %w", err)
	}
	return link.URL, nil
}

func (s *stripeService) CreateManagementLink(accountID string) (string, error) {
	params := &stripe.LoginLinkParams{
		Account: stripe.String(accountID),
	}
	link, err := loginlink.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create management link: %w", err)
	}
	return link.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) TierForPriceID(priceID string) string {
	return s.priceToTier[priceID]
}
