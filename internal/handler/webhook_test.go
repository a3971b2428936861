package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/harlowfield/tradevine/internal/billing"
	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockVerifier implements billing.Service; only signature verification is
// exercised by the webhook handler.
type mockVerifier struct {
	VerifyFunc func(payload []byte, signature string) (stripe.Event, error)
}

func (m *mockVerifier) CreateCustomer(email, name string) (string, error) { return "", nil }
func (m *mockVerifier) CreatePaymentCheckoutSession(params billing.PaymentCheckoutParams) (*billing.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}
func (m *mockVerifier) CreateSubscriptionCheckoutSession(params billing.SubscriptionCheckoutParams) (*billing.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}
func (m *mockVerifier) CreateConnectedAccount(email string) (string, error) {
	return "", errors.New("not implemented")
}
func (m *mockVerifier) GetConnectedAccount(accountID string) (*stripe.Account, error) {
	return nil, errors.New("not implemented")
}
func (m *mockVerifier) CreateOnboardingLink(accountID, refreshURL, returnURL string) (string, error) {
	return "", errors.New("not implemented")
}
func (m *mockVerifier) CreateManagementLink(accountID string) (string, error) {
	return "", errors.New("not implemented")
}
func (m *mockVerifier) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(payload, signature)
	}
	return stripe.Event{}, errors.New("VerifyFunc not implemented")
}
func (m *mockVerifier) TierForPriceID(priceID string) string { return "" }

// mockPayments implements service.PaymentService.
type mockPayments struct {
	ApplyFunc     func(ctx context.Context, params service.JobPaymentParams) (*service.AppliedPayment, error)
	AbsorbingFunc func(ctx context.Context, jobID uuid.UUID, status domain.PaymentStatus) error
}

func (m *mockPayments) CreatePaymentSession(ctx context.Context, actor *domain.User, jobID, quoteID uuid.UUID, paymentType domain.PaymentType) (*billing.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}
func (m *mockPayments) CreateSubscriptionSession(ctx context.Context, actor *domain.User, tier domain.SubscriptionTier, interval string) (*billing.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}
func (m *mockPayments) ApplyJobPayment(ctx context.Context, params service.JobPaymentParams) (*service.AppliedPayment, error) {
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, params)
	}
	return nil, errors.New("ApplyFunc not implemented")
}
func (m *mockPayments) ApplyAbsorbingStatus(ctx context.Context, jobID uuid.UUID, status domain.PaymentStatus) error {
	if m.AbsorbingFunc != nil {
		return m.AbsorbingFunc(ctx, jobID, status)
	}
	return errors.New("AbsorbingFunc not implemented")
}

// mockOrders implements service.OrderService.
type mockOrders struct {
	ApplyFunc func(ctx context.Context, params service.StorefrontPaymentParams) (*domain.Order, error)
}

func (m *mockOrders) ApplyStorefrontPayment(ctx context.Context, params service.StorefrontPaymentParams) (*domain.Order, error) {
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, params)
	}
	return nil, errors.New("ApplyFunc not implemented")
}

// mockSubscriptions implements service.SubscriptionService.
type mockSubscriptions struct {
	SyncFunc   func(ctx context.Context, event service.SubscriptionEvent) error
	CancelFunc func(ctx context.Context, customerID string) error
}

func (m *mockSubscriptions) SyncSubscription(ctx context.Context, event service.SubscriptionEvent) error {
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, event)
	}
	return errors.New("SyncFunc not implemented")
}
func (m *mockSubscriptions) CancelSubscription(ctx context.Context, customerID string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, customerID)
	}
	return errors.New("CancelFunc not implemented")
}

func eventVerifier(event stripe.Event) *mockVerifier {
	return &mockVerifier{
		VerifyFunc: func(payload []byte, signature string) (stripe.Event, error) {
			return event, nil
		},
	}
}

func postWebhook(t *testing.T, h *WebhookHandler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}"))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, req)
	return rec
}

func checkoutEvent(t *testing.T, sess map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(sess)
	require.NoError(t, err)
	return stripe.Event{
		ID:   "evt_1",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	verifier := &mockVerifier{
		VerifyFunc: func(payload []byte, signature string) (stripe.Event, error) {
			return stripe.Event{}, errors.New("signature mismatch")
		},
	}
	h := NewWebhookHandler(verifier, &mockPayments{}, &mockOrders{}, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_BillingNotConfiguredAcks(t *testing.T) {
	h := NewWebhookHandler(nil, &mockPayments{}, &mockOrders{}, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_UnknownEventTypeAcked(t *testing.T) {
	verifier := eventVerifier(stripe.Event{ID: "evt_1", Type: "invoice.finalized", Data: &stripe.EventData{Raw: []byte("{}")}})
	h := NewWebhookHandler(verifier, &mockPayments{}, &mockOrders{}, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_MalformedPayloadRejected(t *testing.T) {
	verifier := eventVerifier(stripe.Event{
		ID:   "evt_1",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: []byte("not json")},
	})
	h := NewWebhookHandler(verifier, &mockPayments{}, &mockOrders{}, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusBadRequest, rec.Code, "redelivery cannot fix a malformed payload")
}

func TestWebhook_NoValidItemsRejected(t *testing.T) {
	event := checkoutEvent(t, map[string]any{
		"id":   "cs_shop",
		"mode": "payment",
		"metadata": map[string]string{
			"items": `[{"product_id":"` + uuid.NewString() + `","quantity":1}]`,
		},
	})

	orders := &mockOrders{
		ApplyFunc: func(ctx context.Context, params service.StorefrontPaymentParams) (*domain.Order, error) {
			return nil, domain.Invalid("order.apply_storefront_payment", "no valid items in storefront payment")
		},
	}
	h := NewWebhookHandler(eventVerifier(event), &mockPayments{}, orders, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_JobCheckoutApplied(t *testing.T) {
	jobID := uuid.New()
	event := checkoutEvent(t, map[string]any{
		"id":             "cs_1",
		"mode":           "payment",
		"amount_total":   2500,
		"created":        1756400000,
		"payment_intent": "pi_123",
		"metadata": map[string]string{
			"job_id":       jobID.String(),
			"payment_type": "deposit",
		},
	})

	var got service.JobPaymentParams
	payments := &mockPayments{
		ApplyFunc: func(ctx context.Context, params service.JobPaymentParams) (*service.AppliedPayment, error) {
			got = params
			return &service.AppliedPayment{
				JobID: params.JobID, Type: params.Type, Amount: params.Amount,
				Status: domain.PaymentStatusDepositPaid, Recorded: true,
			}, nil
		},
	}
	h := NewWebhookHandler(eventVerifier(event), payments, &mockOrders{}, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobID, got.JobID)
	assert.Equal(t, domain.PaymentTypeDeposit, got.Type)
	assert.Equal(t, "pi_123", got.ExternalPaymentID, "payment intent is the stable charge identity")
	assert.Equal(t, int64(2500), got.Amount)
}

func TestWebhook_StoreFailureRequestsRedelivery(t *testing.T) {
	jobID := uuid.New()
	event := checkoutEvent(t, map[string]any{
		"id":   "cs_1",
		"mode": "payment",
		"metadata": map[string]string{
			"job_id":       jobID.String(),
			"payment_type": "final",
		},
	})

	payments := &mockPayments{
		ApplyFunc: func(ctx context.Context, params service.JobPaymentParams) (*service.AppliedPayment, error) {
			return nil, domain.Internal(errors.New("connection reset"), "payment.apply_job_payment", "failed to record payment")
		},
	}
	h := NewWebhookHandler(eventVerifier(event), payments, &mockOrders{}, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_UnknownJobAcked(t *testing.T) {
	jobID := uuid.New()
	event := checkoutEvent(t, map[string]any{
		"id":   "cs_1",
		"mode": "payment",
		"metadata": map[string]string{
			"job_id":       jobID.String(),
			"payment_type": "deposit",
		},
	})

	payments := &mockPayments{
		ApplyFunc: func(ctx context.Context, params service.JobPaymentParams) (*service.AppliedPayment, error) {
			return nil, domain.NotFound("payment.apply_job_payment", "job", jobID.String())
		},
	}
	h := NewWebhookHandler(eventVerifier(event), payments, &mockOrders{}, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_StorefrontCheckoutApplied(t *testing.T) {
	productID := uuid.New()
	event := checkoutEvent(t, map[string]any{
		"id":   "cs_shop",
		"mode": "payment",
		"customer_details": map[string]any{
			"email": "shopper@example.com",
		},
		"metadata": map[string]string{
			"items": `[{"product_id":"` + productID.String() + `","quantity":2}]`,
		},
	})

	var got service.StorefrontPaymentParams
	orders := &mockOrders{
		ApplyFunc: func(ctx context.Context, params service.StorefrontPaymentParams) (*domain.Order, error) {
			got = params
			return &domain.Order{ID: uuid.New()}, nil
		},
	}
	h := NewWebhookHandler(eventVerifier(event), &mockPayments{}, orders, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shopper@example.com", got.CustomerEmail)
	require.Len(t, got.Items, 1)
	assert.Equal(t, productID, got.Items[0].ProductID)
	assert.Equal(t, int64(2), got.Items[0].Quantity)
}

func TestWebhook_ChargeRefundedAbsorbs(t *testing.T) {
	jobID := uuid.New()
	raw, err := json.Marshal(map[string]any{
		"id":       "ch_1",
		"metadata": map[string]string{"job_id": jobID.String()},
	})
	require.NoError(t, err)
	event := stripe.Event{ID: "evt_r", Type: "charge.refunded", Data: &stripe.EventData{Raw: raw}}

	var gotJob uuid.UUID
	var gotStatus domain.PaymentStatus
	payments := &mockPayments{
		AbsorbingFunc: func(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error {
			gotJob, gotStatus = id, status
			return nil
		},
	}
	h := NewWebhookHandler(eventVerifier(event), payments, &mockOrders{}, &mockSubscriptions{}, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobID, gotJob)
	assert.Equal(t, domain.PaymentStatusRefunded, gotStatus)
}

func TestWebhook_SubscriptionUpdatedSyncs(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"id":       "sub_1",
		"customer": "cus_42",
		"status":   "active",
		"items": map[string]any{
			"data": []map[string]any{
				{"price": map[string]any{"id": "price_pro_m"}},
			},
		},
	})
	require.NoError(t, err)
	event := stripe.Event{ID: "evt_s", Type: "customer.subscription.updated", Data: &stripe.EventData{Raw: raw}}

	var got service.SubscriptionEvent
	subs := &mockSubscriptions{
		SyncFunc: func(ctx context.Context, ev service.SubscriptionEvent) error {
			got = ev
			return nil
		},
	}
	h := NewWebhookHandler(eventVerifier(event), &mockPayments{}, &mockOrders{}, subs, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cus_42", got.CustomerID)
	assert.Equal(t, "sub_1", got.SubscriptionID)
	assert.Equal(t, "price_pro_m", got.PriceID)
	assert.Equal(t, "active", got.Status)
}

func TestWebhook_SubscriptionDeletedCancels(t *testing.T) {
	raw, err := json.Marshal(map[string]any{"id": "sub_1", "customer": "cus_42"})
	require.NoError(t, err)
	event := stripe.Event{ID: "evt_d", Type: "customer.subscription.deleted", Data: &stripe.EventData{Raw: raw}}

	var cancelled string
	subs := &mockSubscriptions{
		CancelFunc: func(ctx context.Context, customerID string) error {
			cancelled = customerID
			return nil
		},
	}
	h := NewWebhookHandler(eventVerifier(event), &mockPayments{}, &mockOrders{}, subs, testLogger())

	rec := postWebhook(t, h)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cus_42", cancelled)
}
