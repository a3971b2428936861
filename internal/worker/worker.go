// Package worker runs the notification outbox poller.
//
// The worker claims batches of pending notification jobs (SKIP LOCKED, so
// multiple processes can poll safely), renders and sends the email for
// each, and marks the outcome. Failed sends re-queue with an attempt
// counter until MaxAttempts, then park as failed. Delivery is best
// effort; no business state waits on it.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harlowfield/tradevine/internal/email"
	"github.com/harlowfield/tradevine/internal/metrics"
	"github.com/harlowfield/tradevine/internal/repository"
	"github.com/harlowfield/tradevine/internal/service"
)

// Config holds notification worker settings.
type Config struct {
	PollInterval      time.Duration
	BatchSize         int32
	MaxAttempts       int32
	StaleJobThreshold time.Duration
	ShutdownTimeout   time.Duration
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.StaleJobThreshold <= 0 {
		c.StaleJobThreshold = 5 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// Worker polls the notification outbox and delivers emails.
type Worker struct {
	queries *repository.Queries
	mailer  email.EmailService
	config  Config
	logger  *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a new Worker. Start it with Start and stop with Stop.
func New(queries *repository.Queries, mailer email.EmailService, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Worker{
		queries: queries,
		mailer:  mailer,
		config:  config,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start recovers stale jobs from previous crashes and begins polling.
func (w *Worker) Start(ctx context.Context) {
	count, err := w.queries.RecoverStaleNotifications(ctx, w.config.StaleJobThreshold.Seconds())
	if err != nil {
		w.logger.Error("failed to recover stale notification jobs", "error", err)
	} else if count > 0 {
		w.logger.Warn("recovered stale notification jobs", "count", count)
	}

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("notification worker started",
		"poll_interval", w.config.PollInterval, "batch_size", w.config.BatchSize)
}

// Stop signals the worker to stop and waits up to ShutdownTimeout.
func (w *Worker) Stop() {
	w.logger.Info("stopping notification worker")
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("notification worker stopped")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("notification worker shutdown timeout exceeded")
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	jobs, err := w.queries.DequeueNotifications(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to dequeue notification jobs", "error", err)
		return
	}

	for _, job := range jobs {
		if err := w.deliver(ctx, job); err != nil {
			w.logger.Warn("notification delivery failed",
				"job_id", job.ID, "type", job.NotifyType, "attempts", job.Attempts+1, "error", err)
			metrics.NotificationJobsTotal.WithLabelValues(job.NotifyType, "failed").Inc()

			markErr := w.queries.MarkNotificationFailed(ctx, repository.MarkNotificationFailedParams{
				ID:          job.ID,
				LastError:   err.Error(),
				MaxAttempts: w.config.MaxAttempts,
			})
			if markErr != nil {
				w.logger.Error("failed to mark notification failed", "job_id", job.ID, "error", markErr)
			}
			continue
		}

		metrics.NotificationJobsTotal.WithLabelValues(job.NotifyType, "sent").Inc()
		if err := w.queries.MarkNotificationSent(ctx, job.ID); err != nil {
			// Worst case the job re-queues after the stale threshold and
			// the recipient gets a duplicate email.
			w.logger.Error("failed to mark notification sent", "job_id", job.ID, "error", err)
		}
	}
}

// deliver routes a claimed job to the matching email.
func (w *Worker) deliver(ctx context.Context, job repository.NotificationJob) error {
	switch job.NotifyType {
	case service.NotifyQuoteReceived:
		var p service.QuoteReceivedPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.mailer.SendQuoteReceivedEmail(ctx, p.To, p.Name, p.JobTitle, p.Price)

	case service.NotifyJobAssigned:
		var p service.JobAssignedPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.mailer.SendJobAssignedEmail(ctx, p.To, p.Name, p.JobTitle)

	case service.NotifyPaymentReceipt:
		var p service.PaymentReceiptPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.mailer.SendPaymentReceiptEmail(ctx, p.To, p.Name, p.JobTitle, p.PaymentType, p.Amount)

	default:
		return fmt.Errorf("unknown notification type %q", job.NotifyType)
	}
}
