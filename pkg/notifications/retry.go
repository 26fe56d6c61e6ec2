package notifications

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig holds retry configuration for queued notifications.
type RetryConfig struct {
	// MaxRetries is the maximum number of requeues before a message goes to
	// the DLQ (default: 5).
	MaxRetries int
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
	}
}

// RetryHandler requeues failed notifications and moves exhausted ones to the
// DLQ.
type RetryHandler struct {
	config RetryConfig
	requeue interface {
		PublishMessage(ctx context.Context, msg *NotificationMessage) error
	}
	dlq interface {
		PublishToDLQ(ctx context.Context, msg *NotificationMessage, failureReason string) error
	}
}

// NewRetryHandler creates a new retry handler. dlqPublisher may be nil, in
// which case exhausted messages are reported as errors.
func NewRetryHandler(config RetryConfig, publisher *Publisher, dlqPublisher *DLQPublisher) *RetryHandler {
	h := &RetryHandler{config: config}
	if publisher != nil {
		h.requeue = publisher
	}
	if dlqPublisher != nil {
		h.dlq = dlqPublisher
	}
	return h
}

// ShouldRetry determines if a message should be retried
func (h *RetryHandler) ShouldRetry(msg *NotificationMessage) bool {
	return msg.RetryCount < h.config.MaxRetries
}

// PrepareRetry returns a copy of msg with updated retry metadata.
func (h *RetryHandler) PrepareRetry(msg *NotificationMessage, err error, failedBackends []string) *NotificationMessage {
	retryMsg := *msg
	retryMsg.RetryCount = msg.RetryCount + 1
	retryMsg.LastError = err.Error()
	retryMsg.LastRetryAt = time.Now().UTC()
	retryMsg.FailedBackends = failedBackends
	// Only the failed backends need another attempt.
	if len(failedBackends) > 0 {
		retryMsg.Backends = failedBackends
	}
	return &retryMsg
}

// HandleFailure either requeues the message or sends it to the DLQ.
// Permanent failures go to the DLQ immediately.
func (h *RetryHandler) HandleFailure(
	ctx context.Context, msg *NotificationMessage, err error, failedBackends []string, retryable bool,
) error {
	if retryable && h.ShouldRetry(msg) && h.requeue != nil {
		retryMsg := h.PrepareRetry(msg, err, failedBackends)
		if err := h.requeue.PublishMessage(ctx, retryMsg); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		return nil
	}

	if h.dlq == nil {
		return fmt.Errorf("message exceeded max retries (%d): %s", h.config.MaxRetries, msg.ID)
	}

	failed := *msg
	failed.FailedBackends = failedBackends
	failed.LastError = err.Error()
	failureReason := fmt.Sprintf("Exceeded max retries (%d). Last error: %s", msg.RetryCount, err)
	return h.dlq.PublishToDLQ(ctx, &failed, failureReason)
}
