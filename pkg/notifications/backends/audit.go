package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/labelforge/labelforge/pkg/notifications"
)

// AuditBackend logs all notifications for compliance and debugging. It is
// also the delivery backend when email is configured to only be logged.
type AuditBackend struct {
	logger hclog.Logger
}

// NewAuditBackend creates a new audit backend
func NewAuditBackend(logger hclog.Logger) *AuditBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &AuditBackend{
		logger: logger,
	}
}

// Name returns the backend identifier
func (b *AuditBackend) Name() string {
	return "audit"
}

// SupportsBackend checks if this backend should process the message
func (b *AuditBackend) SupportsBackend(backend string) bool {
	return backend == "audit"
}

// Handle logs the message.
func (b *AuditBackend) Handle(ctx context.Context, msg *notifications.NotificationMessage) error {
	b.logger.Info("notification",
		"id", msg.ID,
		"type", msg.Type,
		"timestamp", msg.Timestamp,
		"user_id", msg.UserID,
		"recipients", formatRecipients(msg.Recipients),
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
		"retry_count", msg.RetryCount,
	)
	if b.logger.IsTrace() {
		b.logger.Trace("notification body",
			"id", msg.ID,
			"body", msg.Body,
		)
	}
	return nil
}

func formatRecipients(recipients []notifications.Recipient) string {
	var parts []string
	for _, r := range recipients {
		if r.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", r.Name, r.Email))
		} else if r.Email != "" {
			parts = append(parts, r.Email)
		}
	}
	return strings.Join(parts, ", ")
}
