// Package handler contains HTTP handlers for the Tradevine API.
//
// This file implements checkout session creation:
//
//   - POST /api/payments/checkout      -> CreatePaymentCheckout
//   - POST /api/subscriptions/checkout -> CreateSubscriptionCheckout
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/auth"
	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/service"
)

// CheckoutHandler handles checkout session requests.
type CheckoutHandler struct {
	payments service.PaymentService
	logger   *slog.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(payments service.PaymentService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{payments: payments, logger: logger}
}

// RegisterRoutes registers checkout routes. checkoutGuard applies the
// strict rate limit; both routes also require an authenticated user.
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux, requireUser, checkoutGuard func(http.Handler) http.Handler) {
	mux.Handle("POST /api/payments/checkout", checkoutGuard(requireUser(http.HandlerFunc(h.CreatePaymentCheckout))))
	mux.Handle("POST /api/subscriptions/checkout", checkoutGuard(requireUser(http.HandlerFunc(h.CreateSubscriptionCheckout))))
}

type paymentCheckoutRequest struct {
	JobID       uuid.UUID `json:"job_id"`
	QuoteID     uuid.UUID `json:"quote_id"`
	PaymentType string    `json:"payment_type"` // "deposit" or "final"
}

type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

func (h *CheckoutHandler) CreatePaymentCheckout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	var req paymentCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == uuid.Nil || req.QuoteID == uuid.Nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "job_id, quote_id and payment_type are required"))
		return
	}

	session, err := h.payments.CreatePaymentSession(r.Context(), user, req.JobID, req.QuoteID, domain.PaymentType(req.PaymentType))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{SessionID: session.ID, CheckoutURL: session.URL})
}

type subscriptionCheckoutRequest struct {
	Tier     string `json:"tier"`     // "pro" or "business"
	Interval string `json:"interval"` // "monthly" or "yearly"
}

func (h *CheckoutHandler) CreateSubscriptionCheckout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	var req subscriptionCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "invalid request body"))
		return
	}

	session, err := h.payments.CreateSubscriptionSession(r.Context(), user, domain.SubscriptionTier(req.Tier), req.Interval)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{SessionID: session.ID, CheckoutURL: session.URL})
}
