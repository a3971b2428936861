// Package service contains the business logic layer.
//
// This file implements split-payment checkout and the payment-side
// reconciler. A job's money moves in up to two charges (deposit, then
// final) through hosted checkout sessions; the platform fee is withheld
// at capture and the remainder transfers to the tradesperson's connected
// account. Payment truth arrives via webhooks: ApplyJobPayment is
// idempotent under redelivery and merges the job's payment status
// forward through the lattice, never backward.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/billing"
	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/metrics"
	"github.com/harlowfield/tradevine/internal/repository"
)

// PaymentStore is the payment persistence surface. Satisfied by
// *repository.Queries.
type PaymentStore interface {
	InsertPaymentRecord(ctx context.Context, arg repository.InsertPaymentRecordParams) (bool, error)
	ListPaymentRecordsByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.PaymentRecord, error)
	UpdateJobPaymentStatusIfCurrent(ctx context.Context, arg repository.UpdateJobPaymentStatusParams) (int64, error)
	SetQuoteCheckout(ctx context.Context, arg repository.SetQuoteCheckoutParams) error
	UpdateUserStripeCustomer(ctx context.Context, arg repository.UpdateUserStripeCustomerParams) error
}

// AppliedPayment describes the outcome of reconciling one captured
// payment event.
type AppliedPayment struct {
	JobID    uuid.UUID
	Type     domain.PaymentType
	Amount   int64
	Status   domain.PaymentStatus
	Recorded bool // false when the event was a duplicate delivery
}

// JobPaymentParams carries the fields of a captured payment extracted
// from a verified webhook event. Amounts come from the processor, never
// from client input.
type JobPaymentParams struct {
	JobID             uuid.UUID
	Type              domain.PaymentType
	ExternalPaymentID string
	Amount            int64
	PaidAt            time.Time
}

// PaymentService defines checkout creation and payment reconciliation.
type PaymentService interface {
	// CreatePaymentSession creates a hosted checkout session for the next
	// charge due on an assigned job: the deposit while pending_deposit,
	// the balance while pending_final. quoteID must name the job's
	// accepted quote; paying against any other quote is a conflict.
	CreatePaymentSession(ctx context.Context, actor *domain.User, jobID, quoteID uuid.UUID, paymentType domain.PaymentType) (*billing.CheckoutSession, error)

	// CreateSubscriptionSession creates a hosted checkout session for a
	// tier upgrade.
	CreateSubscriptionSession(ctx context.Context, actor *domain.User, tier domain.SubscriptionTier, interval string) (*billing.CheckoutSession, error)

	// ApplyJobPayment durably records a captured payment and advances the
	// job's payment status. Safe under duplicate and out-of-order
	// webhook delivery.
	ApplyJobPayment(ctx context.Context, params JobPaymentParams) (*AppliedPayment, error)

	// ApplyAbsorbingStatus moves the job's payment status to refunded or
	// canceled. Absorbing states freeze the lattice; later captured-payment
	// events cannot leave them.
	ApplyAbsorbingStatus(ctx context.Context, jobID uuid.UUID, status domain.PaymentStatus) error
}

type paymentService struct {
	jobs     JobStore
	quotes   QuoteStore
	users    UserReader
	payments PaymentStore
	connect  ConnectService
	billing  billing.Service
	prices   billing.PriceConfig
	baseURL  string
	notifier *Notifier
	logger   *slog.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	jobs JobStore,
	quotes QuoteStore,
	users UserReader,
	payments PaymentStore,
	connect ConnectService,
	billingSvc billing.Service,
	prices billing.PriceConfig,
	baseURL string,
	notifier *Notifier,
	logger *slog.Logger,
) PaymentService {
	return &paymentService{
		jobs:     jobs,
		quotes:   quotes,
		users:    users,
		payments: payments,
		connect:  connect,
		billing:  billingSvc,
		prices:   prices,
		baseURL:  baseURL,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *paymentService) CreatePaymentSession(ctx context.Context, actor *domain.User, jobID, quoteID uuid.UUID, paymentType domain.PaymentType) (*billing.CheckoutSession, error) {
	const op = "payment.create_session"

	if s.billing == nil {
		return nil, domain.Unavailable(nil, op, "payments are not configured")
	}
	if !paymentType.Valid() {
		return nil, domain.Invalid(op, "payment type must be deposit or final")
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "job", jobID.String())
		}
		return nil, domain.Internal(err, op, "failed to load job")
	}
	if !job.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
		return nil, domain.Forbidden(op, "only the job owner can pay for this job")
	}
	if job.AcceptedQuoteID == nil || job.TradespersonID == nil {
		return nil, domain.Conflict(op, "job has no accepted quote to pay against")
	}

	quote, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "quote", quoteID.String())
		}
		return nil, domain.Internal(err, op, "failed to load quote")
	}
	if quote.JobID != job.ID {
		return nil, domain.Invalid(op, "quote does not belong to this job")
	}
	if quote.ID != *job.AcceptedQuoteID {
		return nil, domain.Conflict(op, "only the accepted quote can be paid")
	}
	if quote.Status != domain.QuoteStatusAccepted && quote.Status != domain.QuoteStatusPending {
		return nil, domain.Conflict(op, "quote is no longer payable")
	}

	amount, err := chargeAmount(op, job, quote, paymentType)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues(string(paymentType), "rejected").Inc()
		return nil, err
	}

	payee, err := s.users.GetUserByID(ctx, *job.TradespersonID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load tradesperson")
	}

	// Payee readiness gate: checked before any call that could create a
	// session, so an unonboarded payee costs nothing at the processor.
	acct, err := s.connect.EnsureAccount(ctx, payee)
	if err != nil {
		return nil, err
	}
	if !acct.ChargesEnabled {
		metrics.CheckoutSessionsTotal.WithLabelValues(string(paymentType), "payee_not_ready").Inc()
		return nil, domain.PayeeNotOnboarded(op)
	}

	// The platform fee comes from the payee's tier at session-creation
	// time, computed on this charge's amount.
	fee := domain.ResolvePolicy(payee.SubscriptionTier).PlatformFee(amount)

	session, err := s.billing.CreatePaymentCheckoutSession(billing.PaymentCheckoutParams{
		Amount:               amount,
		Currency:             "gbp",
		Description:          fmt.Sprintf("%s payment for %q", paymentType, job.Title),
		DestinationAccountID: acct.ExternalAccountID,
		ApplicationFee:       fee,
		SuccessURL:           s.baseURL + "/jobs/" + jobID.String() + "?payment=success",
		CancelURL:            s.baseURL + "/jobs/" + jobID.String() + "?payment=cancelled",
		Metadata: map[string]string{
			"job_id":          jobID.String(),
			"quote_id":        quote.ID.String(),
			"payment_type":    string(paymentType),
			"customer_id":     job.CustomerID.String(),
			"tradesperson_id": payee.ID.String(),
		},
	})
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues(string(paymentType), "error").Inc()
		return nil, domain.Unavailable(err, op, "payment provider is unavailable, please try again")
	}

	// Breadcrumb before returning the URL: if we crash here the session
	// is still discoverable from the quote row.
	err = s.payments.SetQuoteCheckout(ctx, repository.SetQuoteCheckoutParams{
		ID:                quote.ID,
		CheckoutSessionID: session.ID,
		CheckoutStatus:    "created",
	})
	if err != nil {
		s.logger.Error("failed to record checkout breadcrumb",
			"quote_id", quote.ID, "session_id", session.ID, "error", err)
	}

	metrics.CheckoutSessionsTotal.WithLabelValues(string(paymentType), "created").Inc()
	s.logger.Info("payment checkout session created",
		"job_id", jobID, "type", paymentType, "amount", amount, "fee", fee, "session_id", session.ID)

	return session, nil
}

// chargeAmount resolves which amount is due for the requested payment
// type given the job's current payment status.
func chargeAmount(op string, job *domain.Job, quote *domain.Quote, paymentType domain.PaymentType) (int64, error) {
	switch paymentType {
	case domain.PaymentTypeDeposit:
		if !quote.HasDeposit() {
			return 0, domain.Conflict(op, "no deposit due on this job")
		}
		if job.PaymentStatus != domain.PaymentStatusPendingDeposit {
			return 0, domain.Conflict(op, "deposit is not currently payable")
		}
		return quote.DepositAmount, nil
	case domain.PaymentTypeFinal:
		if job.PaymentStatus != domain.PaymentStatusPendingFinal && job.PaymentStatus != domain.PaymentStatusDepositPaid {
			return 0, domain.Conflict(op, "no balance due on this job")
		}
		balance := quote.BalanceAmount()
		if balance <= 0 {
			return 0, domain.Conflict(op, "no balance due on this job")
		}
		return balance, nil
	}
	return 0, domain.Invalid(op, "payment type must be deposit or final")
}

func (s *paymentService) CreateSubscriptionSession(ctx context.Context, actor *domain.User, tier domain.SubscriptionTier, interval string) (*billing.CheckoutSession, error) {
	const op = "payment.create_subscription_session"

	if s.billing == nil {
		return nil, domain.Unavailable(nil, op, "payments are not configured")
	}
	if !actor.IsProvider() {
		return nil, domain.Forbidden(op, "subscriptions are for tradespeople and businesses")
	}
	if interval != "monthly" && interval != "yearly" {
		return nil, domain.Invalid(op, "interval must be monthly or yearly")
	}

	priceID := s.prices.PriceIDFor(string(tier), interval)
	if priceID == "" {
		return nil, domain.Invalid(op, "unknown subscription plan")
	}

	params := billing.SubscriptionCheckoutParams{
		PriceID:    priceID,
		SuccessURL: s.baseURL + "/account?subscription=success",
		CancelURL:  s.baseURL + "/account?subscription=cancelled",
	}

	if actor.StripeCustomerID != "" {
		params.CustomerID = actor.StripeCustomerID
	} else {
		customerID, err := s.billing.CreateCustomer(actor.Email, actor.DisplayName())
		if err != nil {
			return nil, domain.Unavailable(err, op, "payment provider is unavailable, please try again")
		}
		err = s.payments.UpdateUserStripeCustomer(ctx, repository.UpdateUserStripeCustomerParams{
			ID:               actor.ID,
			StripeCustomerID: customerID,
		})
		if err != nil {
			return nil, domain.Internal(err, op, "failed to save customer profile")
		}
		params.CustomerID = customerID
	}
	// The key pins the full request semantics; any field that changes the
	// payload must change the key or the processor replays the old bytes.
	params.IdempotencyKey = fmt.Sprintf("sub:%s:%s:%s:%s", actor.ID, tier, interval, params.CustomerID)

	session, err := s.billing.CreateSubscriptionCheckoutSession(params)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("subscription", "error").Inc()
		return nil, domain.Unavailable(err, op, "payment provider is unavailable, please try again")
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("subscription", "created").Inc()
	s.logger.Info("subscription checkout session created",
		"user_id", actor.ID, "tier", tier, "interval", interval, "session_id", session.ID)

	return session, nil
}

// applyStatusRetries bounds the compare-and-set merge loop. Contention on
// a single job's payment status is two webhook deliveries at most, so
// three attempts is already generous.
const applyStatusRetries = 3

func (s *paymentService) ApplyJobPayment(ctx context.Context, params JobPaymentParams) (*AppliedPayment, error) {
	const op = "payment.apply_job_payment"

	if !params.Type.Valid() {
		return nil, domain.Invalid(op, "payment type must be deposit or final")
	}
	if params.ExternalPaymentID == "" {
		return nil, domain.Invalid(op, "external payment id is required")
	}

	job, err := s.jobs.GetJob(ctx, params.JobID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "job", params.JobID.String())
		}
		return nil, domain.Internal(err, op, "failed to load job")
	}

	paidAt := params.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	// Durable record first. The unique indexes absorb redelivery: a
	// duplicate inserts nothing and must not advance anything twice.
	inserted, err := s.payments.InsertPaymentRecord(ctx, repository.InsertPaymentRecordParams{
		ID:                uuid.New(),
		JobID:             params.JobID,
		Type:              string(params.Type),
		ExternalPaymentID: params.ExternalPaymentID,
		Amount:            params.Amount,
		PaidAt:            paidAt,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to record payment")
	}

	target := domain.StatusAfterPayment(params.Type)
	status, err := s.advancePaymentStatus(ctx, job, target)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to advance payment status")
	}

	if !inserted {
		s.logger.Info("duplicate payment event absorbed",
			"job_id", params.JobID, "type", params.Type, "external_id", params.ExternalPaymentID)
		return &AppliedPayment{
			JobID: params.JobID, Type: params.Type, Amount: params.Amount,
			Status: status, Recorded: false,
		}, nil
	}

	metrics.PaymentsRecordedTotal.WithLabelValues(string(params.Type)).Inc()
	s.logger.Info("payment recorded",
		"job_id", params.JobID, "type", params.Type, "amount", params.Amount,
		"external_id", params.ExternalPaymentID, "status", status)

	if customer, err := s.users.GetUserByID(ctx, job.CustomerID); err == nil {
		s.notifier.PaymentReceipt(ctx, PaymentReceiptPayload{
			To:          customer.Email,
			Name:        customer.DisplayName(),
			JobTitle:    job.Title,
			JobID:       job.ID,
			PaymentType: string(params.Type),
			Amount:      params.Amount,
		})
	}

	return &AppliedPayment{
		JobID: params.JobID, Type: params.Type, Amount: params.Amount,
		Status: status, Recorded: true,
	}, nil
}

func (s *paymentService) ApplyAbsorbingStatus(ctx context.Context, jobID uuid.UUID, status domain.PaymentStatus) error {
	const op = "payment.apply_absorbing_status"

	if !status.IsAbsorbing() {
		return domain.Invalid(op, "status must be refunded or canceled")
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.NotFound(op, "job", jobID.String())
		}
		return domain.Internal(err, op, "failed to load job")
	}

	final, err := s.advancePaymentStatus(ctx, job, status)
	if err != nil {
		return domain.Internal(err, op, "failed to apply payment status")
	}

	s.logger.Info("absorbing payment status applied", "job_id", jobID, "status", final)
	return nil
}

// advancePaymentStatus merges target into the job's payment status with a
// compare-and-set loop. A lost race reloads and re-merges; if the merge
// is a no-op (duplicate or late event) the stored status stands.
func (s *paymentService) advancePaymentStatus(ctx context.Context, job *domain.Job, target domain.PaymentStatus) (domain.PaymentStatus, error) {
	current := job.PaymentStatus
	for attempt := 0; attempt < applyStatusRetries; attempt++ {
		next := domain.MergePaymentStatus(current, target)
		if next == current {
			return current, nil
		}

		rows, err := s.payments.UpdateJobPaymentStatusIfCurrent(ctx, repository.UpdateJobPaymentStatusParams{
			JobID:    job.ID,
			Expected: string(current),
			Next:     string(next),
		})
		if err != nil {
			return "", err
		}
		if rows > 0 {
			return next, nil
		}

		reloaded, err := s.jobs.GetJob(ctx, job.ID)
		if err != nil {
			return "", err
		}
		current = reloaded.PaymentStatus
	}
	// Still losing after retries: surface the last observed status; the
	// merge semantics make the stored value correct regardless.
	s.logger.Warn("payment status merge contended, keeping stored value",
		"job_id", job.ID, "target", target, "current", current)
	return current, nil
}
