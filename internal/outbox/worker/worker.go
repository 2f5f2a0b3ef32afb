package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rollguard/internal/outbox"
	"rollguard/internal/outbox/metrics"
	"rollguard/internal/platform/kafka/producer"
)

// Store is the outbox persistence used by the worker.
type Store interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	CountPending(ctx context.Context) (int64, error)
}

// Publisher delivers one message; *producer.Producer and NoopProducer satisfy it.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker polls the outbox table and publishes entries to Kafka, routing by
// aggregate type.
type Worker struct {
	store        Store
	publisher    Publisher
	topics       map[string]string
	defaultTopic string
	batchSize    int
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures the Worker.
type Option func(*Worker)

// WithTopic routes an aggregate type to a topic.
func WithTopic(aggregateType, topic string) Option {
	return func(w *Worker) {
		w.topics[aggregateType] = topic
	}
}

// WithBatchSize sets the maximum number of entries to fetch per poll.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithPollInterval sets the interval between polls.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a new outbox worker.
func New(store Store, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		publisher:    publisher,
		topics:       map[string]string{},
		defaultTopic: "rollguard.events",
		batchSize:    100,
		pollInterval: time.Second,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start polls until ctx is cancelled, then drains what is left with a short
// grace period.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			w.drain(drainCtx)
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.ErrorContext(ctx, "outbox poll failed", "error", err)
			}
		}
	}
}

// RunOnce publishes one batch and returns how many entries were delivered.
// Entries that fail stay pending and are retried on the next poll.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		if w.metrics != nil {
			w.metrics.IncPublishFailures()
		}
		return 0, fmt.Errorf("fetch outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if w.metrics != nil {
		w.metrics.ObserveBatchSize(len(entries))
	}

	var errs []error
	published := 0
	for _, entry := range entries {
		if err := w.publishEntry(ctx, entry); err != nil {
			w.logger.ErrorContext(ctx, "failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			if w.metrics != nil {
				w.metrics.IncPublishFailures()
			}
			errs = append(errs, err)
			continue
		}

		// A publish without a mark is re-sent next poll; consumers key on entry ID.
		if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
			w.logger.ErrorContext(ctx, "failed to mark entry as processed", "id", entry.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		published++
		if w.metrics != nil {
			w.metrics.IncPublished(entry.AggregateType)
		}
	}
	return published, errors.Join(errs...)
}

func (w *Worker) publishEntry(ctx context.Context, entry *outbox.Entry) error {
	start := time.Now()
	topic, ok := w.topics[entry.AggregateType]
	if !ok {
		topic = w.defaultTopic
	}

	err := w.publisher.Produce(ctx, &producer.Message{
		Topic: topic,
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
		Headers: map[string]string{
			"entry_id":       entry.ID.String(),
			"aggregate_type": entry.AggregateType,
			"event_type":     entry.EventType,
		},
	})
	if err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.ObservePublishDuration(time.Since(start).Seconds())
	}
	return nil
}

func (w *Worker) drain(ctx context.Context) {
	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "outbox drain stopped", "error", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

// UpdateMetrics refreshes the pending depth gauge.
func (w *Worker) UpdateMetrics(ctx context.Context) error {
	if w.metrics == nil {
		return nil
	}
	count, err := w.store.CountPending(ctx)
	if err != nil {
		return err
	}
	w.metrics.SetPendingDepth(count)
	return nil
}
