// Package service contains the business logic layer.
//
// This file implements the job/quote state machine. Jobs and quotes are
// mutated only here and in the webhook reconciler — never by handlers or
// background tasks directly. Transitions use compare-and-set writes: the
// update only applies while the stored status matches the precondition,
// and a zero row count is surfaced as a conflict for the caller to
// reload and retry, never silently overwritten.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/metrics"
	"github.com/harlowfield/tradevine/internal/repository"
)

// JobStore is the job persistence surface. Satisfied by *repository.Queries.
type JobStore interface {
	CreateJob(ctx context.Context, arg repository.CreateJobParams) (*domain.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListJobsByCustomer(ctx context.Context, customerID uuid.UUID) ([]*domain.Job, error)
	AssignJob(ctx context.Context, arg repository.AssignJobParams) (int64, error)
	CompleteJob(ctx context.Context, id uuid.UUID) (int64, error)
	CancelJob(ctx context.Context, arg repository.CancelJobParams) (int64, error)
	SaveJob(ctx context.Context, arg repository.SaveJobParams) (bool, error)
	UnsaveJob(ctx context.Context, arg repository.SaveJobParams) (int64, error)
	ListSavedJobs(ctx context.Context, userID uuid.UUID) ([]*domain.Job, error)
}

// QuoteStore is the quote persistence surface. Satisfied by *repository.Queries.
type QuoteStore interface {
	CreateQuote(ctx context.Context, arg repository.CreateQuoteParams) (*domain.Quote, error)
	GetQuote(ctx context.Context, id uuid.UUID) (*domain.Quote, error)
	ListQuotesByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.Quote, error)
	AcceptQuote(ctx context.Context, id uuid.UUID) (int64, error)
	WithdrawQuote(ctx context.Context, id uuid.UUID) (int64, error)
}

// UserReader loads users for authorization and notifications. Satisfied
// by *repository.Queries.
type UserReader interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// JobView is a job read model shaped for the requesting user. Customer
// contact details are attached only when the viewer's tier includes
// contact visibility.
type JobView struct {
	Job             *domain.Job
	CustomerContact *domain.ContactDetails
}

// JobService defines the state machine operations on jobs and quotes.
type JobService interface {
	CreateJob(ctx context.Context, actor *domain.User, params domain.JobParams) (*domain.Job, error)

	// GetJob returns the job shaped for the requesting user. The owner
	// and admins see the customer's contact details; providers see them
	// only from the pro tier up.
	GetJob(ctx context.Context, actor *domain.User, id uuid.UUID) (*JobView, error)
	ListJobs(ctx context.Context, actor *domain.User) ([]*domain.Job, error)

	// SaveJob bookmarks a job for a provider on a tier with the saved-jobs
	// feature. Saving an already-saved job is a no-op.
	SaveJob(ctx context.Context, actor *domain.User, jobID uuid.UUID) error
	UnsaveJob(ctx context.Context, actor *domain.User, jobID uuid.UUID) error
	ListSavedJobs(ctx context.Context, actor *domain.User) ([]*domain.Job, error)

	// SubmitQuote adds a pending quote to an open or quoted job. The
	// quota guard is re-checked here, immediately before the insert.
	SubmitQuote(ctx context.Context, actor *domain.User, jobID uuid.UUID, params domain.QuoteParams) (*domain.Quote, error)
	ListQuotes(ctx context.Context, actor *domain.User, jobID uuid.UUID) ([]*domain.Quote, error)
	WithdrawQuote(ctx context.Context, actor *domain.User, quoteID uuid.UUID) error

	// AcceptQuote assigns the job to the quoting tradesperson. Accepting
	// the already-accepted quote again is a no-op success so retries are
	// harmless; accepting a different quote afterwards is a conflict.
	AcceptQuote(ctx context.Context, actor *domain.User, jobID, quoteID uuid.UUID) (*domain.Job, error)

	// MarkComplete moves an assigned job to completed. Only the assigned
	// party or an admin may call it.
	MarkComplete(ctx context.Context, actor *domain.User, jobID uuid.UUID) (*domain.Job, error)

	// Cancel moves any non-terminal job to cancelled.
	Cancel(ctx context.Context, actor *domain.User, jobID uuid.UUID, reason string) error
}

type jobService struct {
	jobs     JobStore
	quotes   QuoteStore
	users    UserReader
	quota    QuotaService
	notifier *Notifier
	logger   *slog.Logger
}

// NewJobService creates a new JobService.
func NewJobService(jobs JobStore, quotes QuoteStore, users UserReader, quota QuotaService, notifier *Notifier, logger *slog.Logger) JobService {
	return &jobService{
		jobs:     jobs,
		quotes:   quotes,
		users:    users,
		quota:    quota,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *jobService) CreateJob(ctx context.Context, actor *domain.User, params domain.JobParams) (*domain.Job, error) {
	const op = "job.create"

	if actor.Role != domain.RoleCustomer && !actor.IsAdmin() {
		return nil, domain.Forbidden(op, "only customers can post jobs")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	job, err := s.jobs.CreateJob(ctx, repository.CreateJobParams{
		ID:          uuid.New(),
		CustomerID:  actor.ID,
		Title:       params.Title,
		Description: params.Description,
		Budget:      params.Budget,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create job")
	}

	s.logger.Info("job created", "job_id", job.ID, "customer_id", actor.ID)
	return job, nil
}

func (s *jobService) GetJob(ctx context.Context, actor *domain.User, id uuid.UUID) (*JobView, error) {
	job, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &JobView{Job: job}
	if canSeeCustomerContact(actor, job) {
		if customer, err := s.users.GetUserByID(ctx, job.CustomerID); err == nil {
			contact := customer.Contact()
			view.CustomerContact = &contact
		}
	}
	return view, nil
}

// canSeeCustomerContact gates the customer contact details on a job
// view: the owner and admins always see them, providers only when their
// tier policy grants contact visibility.
func canSeeCustomerContact(actor *domain.User, job *domain.Job) bool {
	if job.IsOwnedBy(actor.ID) || actor.IsAdmin() {
		return true
	}
	return actor.IsProvider() && domain.ResolvePolicy(actor.SubscriptionTier).CanSeeCustomerContact
}

func (s *jobService) loadJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	const op = "job.get"

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "job", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load job")
	}
	return job, nil
}

func (s *jobService) ListJobs(ctx context.Context, actor *domain.User) ([]*domain.Job, error) {
	const op = "job.list"

	jobs, err := s.jobs.ListJobsByCustomer(ctx, actor.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list jobs")
	}
	return jobs, nil
}

func (s *jobService) SubmitQuote(ctx context.Context, actor *domain.User, jobID uuid.UUID, params domain.QuoteParams) (*domain.Quote, error) {
	const op = "job.submit_quote"

	if err := params.Validate(); err != nil {
		metrics.QuotesSubmittedTotal.WithLabelValues(string(actor.SubscriptionTier), "invalid").Inc()
		return nil, err
	}

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.AcceptsQuotes() {
		metrics.QuotesSubmittedTotal.WithLabelValues(string(actor.SubscriptionTier), "rejected").Inc()
		return nil, domain.Conflict(op, "this job is no longer accepting quotes")
	}
	if job.IsOwnedBy(actor.ID) {
		return nil, domain.Forbidden(op, "you cannot quote on your own job")
	}

	// Authoritative quota check, re-counted just before the insert. A
	// concurrent submission inside this window may still slip through;
	// the quota tolerates an overrun of one per race.
	if err := s.quota.CheckQuoteQuota(ctx, actor); err != nil {
		metrics.QuotesSubmittedTotal.WithLabelValues(string(actor.SubscriptionTier), "quota_denied").Inc()
		return nil, err
	}

	quote, err := s.quotes.CreateQuote(ctx, repository.CreateQuoteParams{
		ID:             uuid.New(),
		JobID:          jobID,
		TradespersonID: actor.ID,
		Price:          params.Price,
		DepositAmount:  params.DepositAmount,
		LineItems:      params.LineItems,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			metrics.QuotesSubmittedTotal.WithLabelValues(string(actor.SubscriptionTier), "duplicate").Inc()
			return nil, domain.Conflict(op, "you already have an active quote on this job")
		}
		return nil, domain.Internal(err, op, "failed to create quote")
	}

	metrics.QuotesSubmittedTotal.WithLabelValues(string(actor.SubscriptionTier), "created").Inc()
	s.logger.Info("quote submitted",
		"quote_id", quote.ID, "job_id", jobID, "tradesperson_id", actor.ID, "price", quote.Price)

	if customer, err := s.users.GetUserByID(ctx, job.CustomerID); err == nil {
		s.notifier.QuoteReceived(ctx, QuoteReceivedPayload{
			To:       customer.Email,
			Name:     customer.DisplayName(),
			JobTitle: job.Title,
			QuoteID:  quote.ID,
			Price:    quote.Price,
		})
	}

	return quote, nil
}

func (s *jobService) ListQuotes(ctx context.Context, actor *domain.User, jobID uuid.UUID) ([]*domain.Quote, error) {
	const op = "job.list_quotes"

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	quotes, err := s.quotes.ListQuotesByJob(ctx, jobID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list quotes")
	}

	if job.IsOwnedBy(actor.ID) || actor.IsAdmin() {
		return quotes, nil
	}

	// Providers only see their own quotes on someone else's job.
	var own []*domain.Quote
	for _, quote := range quotes {
		if quote.TradespersonID == actor.ID {
			own = append(own, quote)
		}
	}
	return own, nil
}

func (s *jobService) WithdrawQuote(ctx context.Context, actor *domain.User, quoteID uuid.UUID) error {
	const op = "job.withdraw_quote"

	quote, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.NotFound(op, "quote", quoteID.String())
		}
		return domain.Internal(err, op, "failed to load quote")
	}
	if quote.TradespersonID != actor.ID && !actor.IsAdmin() {
		return domain.Forbidden(op, "you can only withdraw your own quotes")
	}

	rows, err := s.quotes.WithdrawQuote(ctx, quoteID)
	if err != nil {
		return domain.Internal(err, op, "failed to withdraw quote")
	}
	if rows == 0 {
		return domain.Conflict(op, "only pending quotes can be withdrawn")
	}
	return nil
}

func (s *jobService) AcceptQuote(ctx context.Context, actor *domain.User, jobID, quoteID uuid.UUID) (*domain.Job, error) {
	const op = "job.accept_quote"

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
		return nil, domain.Forbidden(op, "only the job owner can accept a quote")
	}

	// Retry tolerance: re-accepting the already-accepted quote succeeds
	// without mutating anything.
	if job.HasAcceptedQuote(quoteID) {
		return job, nil
	}

	quote, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "quote", quoteID.String())
		}
		return nil, domain.Internal(err, op, "failed to load quote")
	}
	if quote.JobID != jobID {
		return nil, domain.Invalid(op, "quote does not belong to this job")
	}
	if quote.Status == domain.QuoteStatusWithdrawn {
		return nil, domain.Conflict(op, "quote has been withdrawn")
	}
	if !job.Status.AcceptsQuotes() {
		return nil, domain.Conflict(op, "job is not accepting quote decisions in its current state")
	}

	rows, err := s.jobs.AssignJob(ctx, repository.AssignJobParams{
		JobID:          jobID,
		QuoteID:        quoteID,
		TradespersonID: quote.TradespersonID,
		PaymentStatus:  string(domain.InitialPaymentStatus(quote.HasDeposit())),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to assign job")
	}
	if rows == 0 {
		// Lost the compare-and-set: either a concurrent acceptance of
		// the same quote (idempotent success) or of a different one.
		current, err := s.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if current.HasAcceptedQuote(quoteID) {
			return current, nil
		}
		return nil, domain.Conflict(op, "another quote was accepted for this job")
	}

	if _, err := s.quotes.AcceptQuote(ctx, quoteID); err != nil {
		// The job row is assigned; the quote status is recoverable from
		// jobs.accepted_quote_id. Log and continue.
		s.logger.Error("failed to mark quote accepted", "quote_id", quoteID, "error", err)
	}

	s.logger.Info("quote accepted",
		"job_id", jobID, "quote_id", quoteID, "tradesperson_id", quote.TradespersonID)

	if tradesperson, err := s.users.GetUserByID(ctx, quote.TradespersonID); err == nil {
		s.notifier.JobAssigned(ctx, JobAssignedPayload{
			To:       tradesperson.Email,
			Name:     tradesperson.DisplayName(),
			JobTitle: job.Title,
			JobID:    jobID,
		})
	}

	return s.loadJob(ctx, jobID)
}

func (s *jobService) MarkComplete(ctx context.Context, actor *domain.User, jobID uuid.UUID) (*domain.Job, error) {
	const op = "job.mark_complete"

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsAssignedTo(actor.ID) && !actor.IsAdmin() {
		return nil, domain.Forbidden(op, "only the assigned tradesperson can mark this job complete")
	}

	rows, err := s.jobs.CompleteJob(ctx, jobID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to complete job")
	}
	if rows == 0 {
		return nil, domain.Conflict(op, "job is not in an assigned state")
	}

	s.logger.Info("job completed", "job_id", jobID, "by", actor.ID)
	return s.loadJob(ctx, jobID)
}

func (s *jobService) Cancel(ctx context.Context, actor *domain.User, jobID uuid.UUID, reason string) error {
	const op = "job.cancel"

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
		return domain.Forbidden(op, "only the job owner can cancel this job")
	}
	if reason == "" {
		reason = "cancelled by customer"
	}

	rows, err := s.jobs.CancelJob(ctx, repository.CancelJobParams{JobID: jobID, Reason: reason})
	if err != nil {
		return domain.Internal(err, op, "failed to cancel job")
	}
	if rows == 0 {
		return domain.Conflict(op, "job is already in a terminal state")
	}

	s.logger.Info("job cancelled", "job_id", jobID, "reason", reason)
	return nil
}

func (s *jobService) SaveJob(ctx context.Context, actor *domain.User, jobID uuid.UUID) error {
	const op = "job.save"

	if !actor.IsProvider() {
		return domain.Forbidden(op, "only tradespeople and businesses can save jobs")
	}
	if !domain.ResolvePolicy(actor.SubscriptionTier).CanSaveJobs {
		return domain.Forbidden(op, "saving jobs requires a pro subscription")
	}
	if _, err := s.loadJob(ctx, jobID); err != nil {
		return err
	}

	// The primary key absorbs a repeat save; no error either way.
	if _, err := s.jobs.SaveJob(ctx, repository.SaveJobParams{UserID: actor.ID, JobID: jobID}); err != nil {
		return domain.Internal(err, op, "failed to save job")
	}
	return nil
}

func (s *jobService) UnsaveJob(ctx context.Context, actor *domain.User, jobID uuid.UUID) error {
	const op = "job.unsave"

	if _, err := s.jobs.UnsaveJob(ctx, repository.SaveJobParams{UserID: actor.ID, JobID: jobID}); err != nil {
		return domain.Internal(err, op, "failed to unsave job")
	}
	return nil
}

func (s *jobService) ListSavedJobs(ctx context.Context, actor *domain.User) ([]*domain.Job, error) {
	const op = "job.list_saved"

	if !actor.IsProvider() {
		return nil, domain.Forbidden(op, "only tradespeople and businesses have saved jobs")
	}

	jobs, err := s.jobs.ListSavedJobs(ctx, actor.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list saved jobs")
	}
	return jobs, nil
}
