// Package email provides transactional email sending for Tradevine.
//
// An EmailService interface with an SMTP implementation that works with
// Mailhog in development and any authenticated SMTP relay in production.
// Emails here are best-effort notifications dispatched by the outbox
// worker; no business state depends on their delivery.
package email

import (
	"context"
)

// EmailService defines the transactional emails the notification worker
// can send. All methods are context-aware for timeout and cancellation.
type EmailService interface {
	// SendQuoteReceivedEmail tells a customer a new quote arrived on
	// their job.
	SendQuoteReceivedEmail(ctx context.Context, to, name, jobTitle string, price int64) error

	// SendJobAssignedEmail tells a tradesperson their quote was accepted.
	SendJobAssignedEmail(ctx context.Context, to, name, jobTitle string) error

	// SendPaymentReceiptEmail sends a customer a receipt for a captured
	// deposit or final payment.
	SendPaymentReceiptEmail(ctx context.Context, to, name, jobTitle, paymentType string, amount int64) error
}

// Email represents a single email message.
type Email struct {
	To       string
	Subject  string
	TextBody string
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g. "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g. 1025 for Mailhog)
	Username string // empty for Mailhog
	Password string // empty for Mailhog
	From     string // default sender address
	FromName string // default sender display name
}

const (
	// DefaultFromEmail is the default sender for transactional emails.
	DefaultFromEmail = "noreply@tradevine.app"

	// DefaultFromName is the default sender display name.
	DefaultFromName = "Tradevine"
)
