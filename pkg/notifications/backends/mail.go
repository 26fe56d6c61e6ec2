package backends

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/labelforge/labelforge/pkg/notifications"
)

// MailBackend sends notification emails via SMTP
type MailBackend struct {
	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromAddress  string
	fromName     string
	useTLS       bool
	maxAttempts  uint64
	initialDelay time.Duration

	logger hclog.Logger

	// send delivers a rendered message. Replaced in tests.
	send func(from string, to []string, msg []byte) error
}

// MailBackendConfig configures the mail backend
type MailBackendConfig struct {
	SMTPHost     string // SMTP server hostname
	SMTPPort     string // SMTP server port (typically 587 for TLS, 25 for plaintext)
	SMTPUsername string // optional
	SMTPPassword string // optional
	FromAddress  string
	FromName     string
	UseTLS       bool // Use STARTTLS (recommended for port 587)

	// MaxAttempts bounds delivery attempts for retryable failures (default: 3).
	MaxAttempts int

	// InitialDelay is the first retry delay (default: 500ms).
	InitialDelay time.Duration

	Logger hclog.Logger
}

// NewMailBackend creates a new mail backend
func NewMailBackend(cfg MailBackendConfig) *MailBackend {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	b := &MailBackend{
		smtpHost:     cfg.SMTPHost,
		smtpPort:     cfg.SMTPPort,
		smtpUsername: cfg.SMTPUsername,
		smtpPassword: cfg.SMTPPassword,
		fromAddress:  cfg.FromAddress,
		fromName:     cfg.FromName,
		useTLS:       cfg.UseTLS,
		maxAttempts:  uint64(cfg.MaxAttempts),
		initialDelay: cfg.InitialDelay,
		logger:       cfg.Logger,
	}
	b.send = b.sendSMTP
	return b
}

// Name returns the backend identifier
func (b *MailBackend) Name() string {
	return "mail"
}

// SupportsBackend checks if this backend should process the message
func (b *MailBackend) SupportsBackend(backend string) bool {
	return backend == "mail" || backend == "email"
}

// Handle sends the message as a plain text email to every recipient.
func (b *MailBackend) Handle(ctx context.Context, msg *notifications.NotificationMessage) error {
	recipients := msg.EmailRecipients()
	if len(recipients) == 0 {
		return NewBackendError(b.Name(), "validate", false,
			errors.New("no email recipients found in notification"))
	}

	fromAddr := b.fromAddress
	fromHeader := b.fromHeader()
	// A sender equal to the configured address keeps the display name.
	if msg.From != "" && !strings.EqualFold(msg.From, b.fromAddress) {
		fromAddr = msg.From
		fromHeader = msg.From
	}

	for _, to := range recipients {
		raw := buildMessage(fromHeader, to, msg.Subject, msg.Body, msg.ID)
		if err := b.deliver(ctx, fromAddr, to, raw); err != nil {
			return err
		}
		b.logger.Debug("email sent",
			"message_id", msg.ID,
			"to", to,
		)
	}
	return nil
}

// deliver sends one message, retrying retryable failures with exponential
// backoff.
func (b *MailBackend) deliver(ctx context.Context, from, to string, raw []byte) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.initialDelay
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := b.send(from, []string{to}, raw)
		if err == nil {
			return nil
		}
		if !isRetryableSMTPError(err) {
			return backoff.Permanent(NewBackendError(b.Name(), "send", false,
				fmt.Errorf("failed to send email to %s: %w", to, err)))
		}
		b.logger.Warn("email delivery failed, retrying",
			"to", to,
			"attempt", attempt,
			"error", err,
		)
		return NewBackendError(b.Name(), "send", true,
			fmt.Errorf("failed to send email to %s: %w", to, err))
	}

	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, b.maxAttempts-1), ctx))
}

func (b *MailBackend) fromHeader() string {
	if b.fromName == "" {
		return b.fromAddress
	}
	return (&mail.Address{Name: b.fromName, Address: b.fromAddress}).String()
}

// buildMessage renders an RFC 5322 text/plain message.
func buildMessage(from, to, subject, body, messageID string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	sb.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	if messageID != "" {
		sb.WriteString("X-Labelforge-Notification-ID: " + messageID + "\r\n")
	}
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(sb.String())
}

// isRetryableSMTPError reports whether a send failure is worth retrying:
// network failures and 4xx transient SMTP replies.
func isRetryableSMTPError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}
	return false
}

// sendSMTP sends an email via SMTP
func (b *MailBackend) sendSMTP(from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(b.smtpHost, b.smtpPort)

	var auth smtp.Auth
	if b.smtpUsername != "" && b.smtpPassword != "" {
		auth = smtp.PlainAuth("", b.smtpUsername, b.smtpPassword, b.smtpHost)
	}

	if !b.useTLS {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err = client.StartTLS(&tls.Config{ServerName: b.smtpHost}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, addr := range to {
		if err = client.Rcpt(addr); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", addr, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
