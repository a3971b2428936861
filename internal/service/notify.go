// Package service contains the business logic layer.
//
// This file implements the best-effort notification dispatcher. Primary
// operations (quote writes, payment reconciliation) enqueue a row in the
// notification outbox after their own state is durably committed; the
// background worker delivers the emails. Enqueue failures are logged and
// swallowed — they never flip a successful primary operation into a
// failure, and never cause a webhook to be redelivered.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/metrics"
	"github.com/harlowfield/tradevine/internal/repository"
)

// Notification types understood by the worker.
const (
	NotifyQuoteReceived  = "quote_received"
	NotifyJobAssigned    = "job_assigned"
	NotifyPaymentReceipt = "payment_receipt"
)

// QuoteReceivedPayload notifies a customer that a new quote arrived.
type QuoteReceivedPayload struct {
	To       string    `json:"to"`
	Name     string    `json:"name"`
	JobTitle string    `json:"job_title"`
	QuoteID  uuid.UUID `json:"quote_id"`
	Price    int64     `json:"price"`
}

// JobAssignedPayload notifies a tradesperson that their quote won.
type JobAssignedPayload struct {
	To       string    `json:"to"`
	Name     string    `json:"name"`
	JobTitle string    `json:"job_title"`
	JobID    uuid.UUID `json:"job_id"`
}

// PaymentReceiptPayload notifies a customer of a captured payment.
type PaymentReceiptPayload struct {
	To          string    `json:"to"`
	Name        string    `json:"name"`
	JobTitle    string    `json:"job_title"`
	JobID       uuid.UUID `json:"job_id"`
	PaymentType string    `json:"payment_type"`
	Amount      int64     `json:"amount"`
}

// NotificationQueue is the outbox write side. Satisfied by
// *repository.Queries.
type NotificationQueue interface {
	EnqueueNotification(ctx context.Context, arg repository.EnqueueNotificationParams) error
}

// Notifier enqueues best-effort notifications.
type Notifier struct {
	queue  NotificationQueue
	logger *slog.Logger
}

// NewNotifier creates a Notifier. queue may be nil, in which case every
// notification is dropped with a debug log (development without a DB
// outbox configured).
func NewNotifier(queue NotificationQueue, logger *slog.Logger) *Notifier {
	return &Notifier{queue: queue, logger: logger}
}

func (n *Notifier) QuoteReceived(ctx context.Context, payload QuoteReceivedPayload) {
	n.enqueue(ctx, NotifyQuoteReceived, payload)
}

func (n *Notifier) JobAssigned(ctx context.Context, payload JobAssignedPayload) {
	n.enqueue(ctx, NotifyJobAssigned, payload)
}

func (n *Notifier) PaymentReceipt(ctx context.Context, payload PaymentReceiptPayload) {
	n.enqueue(ctx, NotifyPaymentReceipt, payload)
}

func (n *Notifier) enqueue(ctx context.Context, notifyType string, payload interface{}) {
	if n.queue == nil {
		n.logger.Debug("notification dropped, no outbox configured", "type", notifyType)
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to encode notification payload", "type", notifyType, "error", err)
		return
	}

	err = n.queue.EnqueueNotification(ctx, repository.EnqueueNotificationParams{
		ID:         uuid.New(),
		NotifyType: notifyType,
		Payload:    raw,
	})
	if err != nil {
		// Best effort only. The primary operation already committed.
		n.logger.Error("failed to enqueue notification", "type", notifyType, "error", err)
		metrics.NotificationJobsTotal.WithLabelValues(notifyType, "enqueue_failed").Inc()
		return
	}
	metrics.NotificationJobsTotal.WithLabelValues(notifyType, "enqueued").Inc()
}
