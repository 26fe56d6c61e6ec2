// Command labelforge-notify consumes queued notifications from Kafka and
// delivers them through the configured backends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/labelforge/labelforge/pkg/notifications"
	"github.com/labelforge/labelforge/pkg/notifications/backends"
)

// NotifierConfig holds the notifier configuration from HCL
type NotifierConfig struct {
	Backends *backends.Config `hcl:"backends,block"`

	Brokers       []string `hcl:"brokers,optional"`
	Topic         string   `hcl:"topic,optional"`
	DLQTopic      string   `hcl:"dlq_topic,optional"`
	ConsumerGroup string   `hcl:"consumer_group,optional"`
	MaxRetries    int      `hcl:"max_retries,optional"`
	LogLevel      string   `hcl:"log_level,optional"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("labelforge-notify", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to HCL configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := hclog.New(&hclog.LoggerOptions{Name: "labelforge-notify"})

	if *configFile == "" {
		log.Error("missing required -config flag")
		return 1
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Error("error loading configuration", "error", err)
		return 1
	}
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	registry, err := backends.NewRegistry(cfg.Backends, log.Named("backends"))
	if err != nil {
		log.Error("error initializing backend registry", "error", err)
		return 1
	}
	if len(registry.GetAll()) == 0 {
		log.Error("no backends initialized")
		return 1
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		log.Error("error creating consumer", "error", err)
		return 1
	}
	defer client.Close()

	requeue, err := notifications.NewPublisher(notifications.PublisherConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
	})
	if err != nil {
		log.Error("error creating retry publisher", "error", err)
		return 1
	}
	defer requeue.Close()

	dlq, err := notifications.NewDLQPublisher(notifications.DLQPublisherConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.DLQTopic,
	})
	if err != nil {
		log.Error("error creating DLQ publisher", "error", err)
		return 1
	}
	defer dlq.Close()

	w := &worker{
		log:      log,
		registry: registry,
		retry: notifications.NewRetryHandler(
			notifications.RetryConfig{MaxRetries: cfg.MaxRetries}, requeue, dlq),
	}

	log.Info("starting notification worker",
		"backends", registry.GetBackendNames(),
		"group", cfg.ConsumerGroup,
		"topic", cfg.Topic,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	w.consume(ctx, client)
	return 0
}

func loadConfig(path string) (*NotifierConfig, error) {
	var cfg NotifierConfig
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *NotifierConfig) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.Topic == "" {
		cfg.Topic = "labelforge.notifications"
	}
	if cfg.DLQTopic == "" {
		cfg.DLQTopic = cfg.Topic + notifications.DefaultDLQSuffix
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "labelforge-notify"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = notifications.DefaultRetryConfig().MaxRetries
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// offsetClient is the part of *kgo.Client the worker needs after a batch is
// processed.
type offsetClient interface {
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	SetOffsets(offsets map[string]map[int32]kgo.EpochOffset)
}

type worker struct {
	log      hclog.Logger
	registry *backends.Registry
	retry    *notifications.RetryHandler
}

func (w *worker) consume(ctx context.Context, client *kgo.Client) {
	for {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			w.log.Info("shutdown signal received, stopping consumer")
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				w.log.Error("fetch error",
					"topic", fe.Topic,
					"partition", fe.Partition,
					"error", fe.Err,
				)
			}
			continue
		}
		w.processFetches(ctx, client, fetches)
	}
}

// processFetches handles every partition of a poll concurrently and returns
// once all of them are done, so records of one partition are never processed
// out of order across polls.
func (w *worker) processFetches(ctx context.Context, c offsetClient, fetches kgo.Fetches) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		// Failed records are rewound to after the batch.
		rewind = map[string]map[int32]kgo.EpochOffset{}
	)
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		if len(p.Records) == 0 {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			failed := w.processPartition(ctx, c, p.Records)
			if failed == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if rewind[failed.Topic] == nil {
				rewind[failed.Topic] = map[int32]kgo.EpochOffset{}
			}
			rewind[failed.Topic][failed.Partition] = kgo.EpochOffset{
				Epoch:  failed.LeaderEpoch,
				Offset: failed.Offset,
			}
		}()
	})
	wg.Wait()

	if len(rewind) > 0 && ctx.Err() == nil {
		c.SetOffsets(rewind)
	}
}

// processPartition processes records of a single partition in offset order.
// It stops at the first failure, commits the records before it and returns
// the failed record so it can be fetched again.
func (w *worker) processPartition(ctx context.Context, c offsetClient, records []*kgo.Record) *kgo.Record {
	var (
		last   *kgo.Record
		failed *kgo.Record
	)
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		if err := w.processMessage(ctx, record); err != nil {
			w.log.Error("error processing message",
				"partition", record.Partition,
				"offset", record.Offset,
				"error", err,
			)
			failed = record
			break
		}
		last = record
	}

	if last != nil {
		// Commit even when shutting down; the work is already done.
		if err := c.CommitRecords(context.WithoutCancel(ctx), last); err != nil {
			w.log.Error("error committing record offset",
				"partition", last.Partition,
				"offset", last.Offset,
				"error", err,
			)
		}
	}
	return failed
}

// processMessage delivers one record. A nil return means the record is done
// with, either delivered, skipped, requeued or dead-lettered.
func (w *worker) processMessage(ctx context.Context, record *kgo.Record) error {
	msg, err := notifications.ParseRecord(record)
	if err != nil {
		// Undecodable payloads will never succeed.
		w.log.Error("dropping malformed message", "offset", record.Offset, "error", err)
		return nil
	}

	if !w.registry.Supports(msg) {
		w.log.Debug("skipping message not handled by this notifier",
			"id", msg.ID,
			"backends", msg.Backends,
		)
		return nil
	}

	w.log.Info("processing message",
		"id", msg.ID,
		"backends", msg.Backends,
		"retry_count", msg.RetryCount,
	)

	err = w.registry.Dispatch(ctx, msg)
	if err == nil {
		return nil
	}

	var failed []string
	var multi *backends.MultiBackendError
	if errors.As(err, &multi) {
		failed = multi.FailedBackends()
	}
	return w.retry.HandleFailure(ctx, msg, err, failed, backends.IsRetryable(err))
}
