package notifications

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	// NotificationTypeEmail is a plain email composed by a user.
	NotificationTypeEmail NotificationType = "email"
)

// NotificationMessage is the envelope for all notifications
type NotificationMessage struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`

	// UserID is the user that triggered the notification.
	UserID string `json:"user_id,omitempty"`

	Recipients []Recipient `json:"recipients"`

	// From overrides the backend's default sender address.
	From string `json:"from,omitempty"`

	Subject string `json:"subject"`

	// Body is plain text.
	Body string `json:"body"`

	// Backends lists which backends should process this, e.g. ["mail", "audit"].
	Backends []string `json:"backends"`

	// Retry tracking (set by consumers)
	RetryCount     int       `json:"retry_count,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	LastRetryAt    time.Time `json:"last_retry_at,omitempty"`
	FailedBackends []string  `json:"failed_backends,omitempty"`
}

// Recipient defines a notification recipient
type Recipient struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Dispatcher delivers notification messages, either directly or through a
// queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *NotificationMessage) error
}

// NewEmail builds a plain text email notification routed to the mail and
// audit backends.
func NewEmail(userID uint, to, from, subject, body string) *NotificationMessage {
	msg := &NotificationMessage{
		ID:         uuid.New().String(),
		Type:       NotificationTypeEmail,
		Timestamp:  time.Now().UTC(),
		Recipients: []Recipient{{Email: to}},
		From:       from,
		Subject:    subject,
		Body:       body,
		Backends:   []string{"mail", "audit"},
	}
	if userID != 0 {
		msg.UserID = strconv.FormatUint(uint64(userID), 10)
	}
	return msg
}

// EmailRecipients returns the non-empty recipient addresses.
func (m *NotificationMessage) EmailRecipients() []string {
	var out []string
	for _, r := range m.Recipients {
		if r.Email != "" {
			out = append(out, r.Email)
		}
	}
	return out
}
