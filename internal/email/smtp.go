package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SMTPEmailService sends emails via SMTP.
//
// Works with Mailhog (development, no auth) and any standard SMTP server
// with username/password authentication.
type SMTPEmailService struct {
	config  SMTPConfig
	baseURL string
	printer *message.Printer
	logger  *slog.Logger
}

// NewSMTPEmailService creates a new SMTP-based email service. baseURL is
// the application's public URL for constructing links.
func NewSMTPEmailService(config SMTPConfig, baseURL string, logger *slog.Logger) *SMTPEmailService {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	return &SMTPEmailService{
		config:  config,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		printer: message.NewPrinter(language.BritishEnglish),
		logger:  logger,
	}
}

// SendQuoteReceivedEmail tells a customer a new quote arrived on their job.
func (s *SMTPEmailService) SendQuoteReceivedEmail(ctx context.Context, to, name, jobTitle string, price int64) error {
	textBody := fmt.Sprintf(`Hi %s,

You've received a new quote of %s for your job %q.

Log in to review the details and compare it with your other quotes:

%s/jobs

Thanks,
The Tradevine Team
`, name, s.formatGBP(price), jobTitle, s.baseURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  fmt.Sprintf("New quote for %q", jobTitle),
		TextBody: textBody,
	})
}

// SendJobAssignedEmail tells a tradesperson their quote was accepted.
func (s *SMTPEmailService) SendJobAssignedEmail(ctx context.Context, to, name, jobTitle string) error {
	textBody := fmt.Sprintf(`Hi %s,

Good news — your quote for %q was accepted and the job is now assigned to you.

Log in to see the job details and next steps:

%s/jobs

Thanks,
The Tradevine Team
`, name, jobTitle, s.baseURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  fmt.Sprintf("Your quote for %q was accepted", jobTitle),
		TextBody: textBody,
	})
}

// SendPaymentReceiptEmail sends a customer a receipt for a captured payment.
func (s *SMTPEmailService) SendPaymentReceiptEmail(ctx context.Context, to, name, jobTitle, paymentType string, amount int64) error {
	textBody := fmt.Sprintf(`Hi %s,

We've received your %s payment of %s for %q.

You can view your payment history at any time:

%s/jobs

Thanks,
The Tradevine Team
`, name, paymentType, s.formatGBP(amount), jobTitle, s.baseURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  fmt.Sprintf("Payment received for %q", jobTitle),
		TextBody: textBody,
	})
}

// formatGBP renders a minor-unit amount as a localized pound figure.
func (s *SMTPEmailService) formatGBP(amount int64) string {
	return s.printer.Sprintf("£%.2f", float64(amount)/100)
}

// send delivers an email via SMTP.
func (s *SMTPEmailService) send(ctx context.Context, email Email) error {
	msg := s.buildMessage(email)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Auth only when credentials are configured (Mailhog needs none).
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := smtp.SendMail(addr, auth, s.config.From, []string{email.To}, msg); err != nil {
		s.logger.Error("failed to send email",
			"to", email.To, "subject", email.Subject, "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent", "to", email.To, "subject", email.Subject)
	return nil
}

// buildMessage constructs the raw email message with headers.
func (s *SMTPEmailService) buildMessage(email Email) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.TextBody)
	buf.WriteString("\r\n")

	return buf.Bytes()
}

var _ EmailService = (*SMTPEmailService)(nil)
