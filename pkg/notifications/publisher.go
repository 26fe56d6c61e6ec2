package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher publishes notifications to a Kafka topic. It implements
// Dispatcher for the queue email backend.
type Publisher struct {
	client producer
	topic  string
}

// producer is the subset of *kgo.Client used by Publisher.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// PublisherConfig holds configuration for the publisher
type PublisherConfig struct {
	Brokers []string
	Topic   string
}

// NewPublisher creates a new notification publisher
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),

		// Wait for all in-sync replicas; franz-go is idempotent by default
		// with this setting.
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		// Linear backoff of 100ms per try, capped at 60s.
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),

		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Publisher{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// Dispatch publishes the message and waits for the broker to acknowledge it.
func (p *Publisher) Dispatch(ctx context.Context, msg *NotificationMessage) error {
	return p.PublishMessage(ctx, msg)
}

// PublishMessage publishes a pre-built notification message
func (p *Publisher) PublishMessage(ctx context.Context, msg *NotificationMessage) error {
	record, err := NewRecord(p.topic, msg)
	if err != nil {
		return err
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() {
	p.client.Close()
}

// NewRecord encodes the message as a Kafka record for topic.
func NewRecord(topic string, msg *NotificationMessage) (*kgo.Record, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification message: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(partitionKey(msg)),
		Value: value,
	}, nil
}

// ParseRecord decodes a notification message from a Kafka record.
func ParseRecord(record *kgo.Record) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// partitionKey keeps notifications to the same recipient ordered.
func partitionKey(msg *NotificationMessage) string {
	if len(msg.Recipients) > 0 && msg.Recipients[0].Email != "" {
		return fmt.Sprintf("user:%s", msg.Recipients[0].Email)
	}
	return msg.ID
}
