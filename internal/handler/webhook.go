// Package handler contains HTTP handlers for the Tradevine API.
//
// This file implements the payment processor webhook endpoint:
//
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// The route is PUBLIC — authentication is the webhook signature. The
// response code is the delivery contract: 200 acknowledges the event
// (including duplicates and event types we don't care about), 400
// rejects a bad signature, a malformed payload or a domain-level
// rejection (redelivering those has no value), and 500 asks the
// processor to redeliver after a persistence failure. Every mutation
// behind this endpoint is idempotent, so redelivery is always safe.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/harlowfield/tradevine/internal/billing"
	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/metrics"
	"github.com/harlowfield/tradevine/internal/service"
)

// maxWebhookBody bounds the request body read (64KB).
const maxWebhookBody = 65536

// WebhookHandler handles incoming webhook events from the payment
// processor.
type WebhookHandler struct {
	billing       billing.Service
	payments      service.PaymentService
	orders        service.OrderService
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. billingService may be
// nil when the processor is not configured; events are then acknowledged
// and dropped.
func NewWebhookHandler(
	billingService billing.Service,
	payments service.PaymentService,
	orders service.OrderService,
	subscriptions service.SubscriptionService,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		payments:      payments,
		orders:        orders,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux. These
// routes are PUBLIC — no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming processor webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("webhook received", "type", event.Type, "id", event.ID)

	err = h.dispatch(r, event)
	if err != nil {
		if domain.ErrorCode(err) == domain.EINVALID {
			// Malformed payload or domain-level rejection: permanent, so
			// refuse without inviting redelivery of the same bytes.
			h.logger.Error("webhook event rejected",
				"type", event.Type, "id", event.ID, "error", err)
			metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "rejected").Inc()
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// Persistence failed: signal redelivery. The idempotent writes
		// make the retry a no-op for whatever did commit.
		h.logger.Error("webhook processing failed, requesting redelivery",
			"type", event.Type, "id", event.ID, "error", err)
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) dispatch(r *http.Request, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(r, event)
	case "customer.subscription.created", "customer.subscription.updated":
		return h.handleSubscriptionChanged(r, event)
	case "customer.subscription.deleted":
		return h.handleSubscriptionDeleted(r, event)
	case "charge.refunded":
		return h.handleChargeRefunded(r, event)
	case "payment_intent.canceled":
		return h.handlePaymentCanceled(r, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(r *http.Request, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return domain.Invalid("webhook.checkout_completed", "malformed checkout session payload")
	}

	switch sess.Mode {
	case stripe.CheckoutSessionModeSubscription:
		return h.applySubscriptionCheckout(r, &sess)
	case stripe.CheckoutSessionModePayment:
		if sess.Metadata["job_id"] != "" {
			return h.applyJobCheckout(r, &sess)
		}
		return h.applyStorefrontCheckout(r, &sess)
	}
	return nil
}

func (h *WebhookHandler) applyJobCheckout(r *http.Request, sess *stripe.CheckoutSession) error {
	jobID, err := uuid.Parse(sess.Metadata["job_id"])
	if err != nil {
		h.logger.Error("checkout session has malformed job_id",
			"session_id", sess.ID, "job_id", sess.Metadata["job_id"])
		return domain.Invalid("webhook.job_checkout", "malformed job_id metadata")
	}

	paymentType := domain.PaymentType(sess.Metadata["payment_type"])
	if !paymentType.Valid() {
		h.logger.Error("checkout session has unknown payment_type",
			"session_id", sess.ID, "payment_type", sess.Metadata["payment_type"])
		return domain.Invalid("webhook.job_checkout", "unknown payment_type metadata")
	}

	// The payment intent is the stable external identity of the charge;
	// the session ID would change on a new session for the same payment.
	externalID := sess.ID
	if sess.PaymentIntent != nil {
		externalID = sess.PaymentIntent.ID
	}

	applied, err := h.payments.ApplyJobPayment(r.Context(), service.JobPaymentParams{
		JobID:             jobID,
		Type:              paymentType,
		ExternalPaymentID: externalID,
		Amount:            sess.AmountTotal,
		PaidAt:            time.Unix(sess.Created, 0).UTC(),
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			// A job deleted after payment is an operational problem, not
			// one redelivery can fix.
			h.logger.Error("payment for unknown job", "job_id", jobID, "session_id", sess.ID)
			return nil
		}
		return err
	}

	h.logger.Info("job payment applied",
		"job_id", applied.JobID, "type", applied.Type,
		"status", applied.Status, "recorded", applied.Recorded)
	return nil
}

// storefrontItem is the wire shape of the "items" metadata entry on a
// storefront checkout session.
type storefrontItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

func (h *WebhookHandler) applyStorefrontCheckout(r *http.Request, sess *stripe.CheckoutSession) error {
	rawItems := sess.Metadata["items"]
	if rawItems == "" {
		h.logger.Debug("payment checkout session with no recognizable metadata", "session_id", sess.ID)
		return nil
	}

	var wireItems []storefrontItem
	if err := json.Unmarshal([]byte(rawItems), &wireItems); err != nil {
		h.logger.Error("failed to parse storefront items metadata", "session_id", sess.ID, "error", err)
		return domain.Invalid("webhook.storefront_checkout", "malformed items metadata")
	}

	items := make([]service.StorefrontItem, 0, len(wireItems))
	for _, item := range wireItems {
		id, err := uuid.Parse(item.ProductID)
		if err != nil {
			h.logger.Warn("storefront item has malformed product id",
				"session_id", sess.ID, "product_id", item.ProductID)
			continue
		}
		items = append(items, service.StorefrontItem{ProductID: id, Quantity: item.Quantity})
	}

	externalID := sess.ID
	if sess.PaymentIntent != nil {
		externalID = sess.PaymentIntent.ID
	}

	email := ""
	if sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}

	// A "no valid items" rejection surfaces as EINVALID and becomes a 400.
	_, err := h.orders.ApplyStorefrontPayment(r.Context(), service.StorefrontPaymentParams{
		ExternalPaymentID: externalID,
		CustomerEmail:     email,
		Items:             items,
	})
	return err
}

func (h *WebhookHandler) applySubscriptionCheckout(r *http.Request, sess *stripe.CheckoutSession) error {
	if sess.Customer == nil || sess.Subscription == nil {
		h.logger.Warn("subscription checkout missing customer or subscription", "session_id", sess.ID)
		return nil
	}

	// Tier sync happens on the subscription events that carry the price;
	// here we only log the handoff.
	h.logger.Info("subscription checkout completed",
		"customer_id", sess.Customer.ID, "subscription_id", sess.Subscription.ID)
	return nil
}

func (h *WebhookHandler) handleSubscriptionChanged(r *http.Request, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.Invalid("webhook.subscription_changed", "malformed subscription payload")
	}
	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return nil
	}

	priceID := ""
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		priceID = sub.Items.Data[0].Price.ID
	}

	return h.subscriptions.SyncSubscription(r.Context(), service.SubscriptionEvent{
		CustomerID:     sub.Customer.ID,
		SubscriptionID: sub.ID,
		PriceID:        priceID,
		Status:         string(sub.Status),
	})
}

func (h *WebhookHandler) handleSubscriptionDeleted(r *http.Request, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.Invalid("webhook.subscription_deleted", "malformed subscription payload")
	}
	if sub.Customer == nil {
		h.logger.Warn("subscription deleted event missing customer", "subscription_id", sub.ID)
		return nil
	}
	return h.subscriptions.CancelSubscription(r.Context(), sub.Customer.ID)
}

func (h *WebhookHandler) handleChargeRefunded(r *http.Request, event stripe.Event) error {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return domain.Invalid("webhook.charge_refunded", "malformed charge payload")
	}
	return h.applyAbsorbing(r, charge.Metadata["job_id"], domain.PaymentStatusRefunded, event.ID)
}

func (h *WebhookHandler) handlePaymentCanceled(r *http.Request, event stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return domain.Invalid("webhook.payment_canceled", "malformed payment intent payload")
	}
	return h.applyAbsorbing(r, intent.Metadata["job_id"], domain.PaymentStatusCanceled, event.ID)
}

func (h *WebhookHandler) applyAbsorbing(r *http.Request, rawJobID string, status domain.PaymentStatus, eventID string) error {
	if rawJobID == "" {
		// Not a marketplace charge (storefront or unrelated).
		h.logger.Debug("payment status event without job metadata", "event_id", eventID)
		return nil
	}
	jobID, err := uuid.Parse(rawJobID)
	if err != nil {
		h.logger.Error("payment status event with malformed job_id", "event_id", eventID, "job_id", rawJobID)
		return domain.Invalid("webhook.absorbing_status", "malformed job_id metadata")
	}

	err = h.payments.ApplyAbsorbingStatus(r.Context(), jobID, status)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			h.logger.Error("payment status event for unknown job", "event_id", eventID, "job_id", jobID)
			return nil
		}
		return err
	}
	return nil
}
