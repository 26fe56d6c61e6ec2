package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultDLQSuffix is appended to the notification topic to name the dead
// letter topic.
const DefaultDLQSuffix = ".dlq"

// DLQMessage wraps a notification that could not be delivered.
type DLQMessage struct {
	OriginalMessage *NotificationMessage `json:"original_message"`

	FailureReason  string    `json:"failure_reason"`
	FailedBackends []string  `json:"failed_backends"`
	RetryCount     int       `json:"retry_count"`
	FirstFailureAt time.Time `json:"first_failure_at"`
	DLQTimestamp   time.Time `json:"dlq_timestamp"`

	MessageID string `json:"message_id"`
	UserID    string `json:"user_id,omitempty"`
}

// DLQPublisher publishes messages to the Dead Letter Queue
type DLQPublisher struct {
	client producer
	topic  string
}

// DLQPublisherConfig holds DLQ publisher configuration
type DLQPublisherConfig struct {
	Brokers []string
	Topic   string
}

// NewDLQPublisher creates a new DLQ publisher
func NewDLQPublisher(cfg DLQPublisherConfig) (*DLQPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.RequestRetries(10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ kafka client: %w", err)
	}

	return &DLQPublisher{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// PublishToDLQ publishes a failed notification to the DLQ
func (p *DLQPublisher) PublishToDLQ(ctx context.Context, msg *NotificationMessage, failureReason string) error {
	firstFailureAt := msg.LastRetryAt
	if firstFailureAt.IsZero() {
		firstFailureAt = msg.Timestamp
	}

	dlqMsg := DLQMessage{
		OriginalMessage: msg,
		FailureReason:   failureReason,
		FailedBackends:  msg.FailedBackends,
		RetryCount:      msg.RetryCount,
		FirstFailureAt:  firstFailureAt,
		DLQTimestamp:    time.Now().UTC(),
		MessageID:       msg.ID,
		UserID:          msg.UserID,
	}

	value, err := json.Marshal(dlqMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.ID),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

// Close closes the DLQ publisher
func (p *DLQPublisher) Close() {
	p.client.Close()
}
