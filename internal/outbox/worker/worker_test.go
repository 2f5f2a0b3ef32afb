package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"rollguard/internal/outbox"
	"rollguard/internal/outbox/metrics"
	"rollguard/internal/outbox/worker"
	"rollguard/internal/platform/kafka/producer"
	dbtestutil "rollguard/pkg/testutil"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*producer.Message
	failFor  string
}

func (p *recordingPublisher) Produce(_ context.Context, msg *producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor != "" && msg.Headers["aggregate_type"] == p.failFor {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) sent() []*producer.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*producer.Message(nil), p.messages...)
}

type WorkerSuite struct {
	suite.Suite
	store     *outbox.Store
	publisher *recordingPublisher
	metrics   *metrics.Metrics
	worker    *worker.Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.store = outbox.NewStore(dbtestutil.NewSQLitePool(s.T()))
	s.publisher = &recordingPublisher{}
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.worker = worker.New(s.store, s.publisher,
		worker.WithTopic(outbox.AggregateAuditEntry, "audit-topic"),
		worker.WithTopic(outbox.AggregateClusterAlert, "alert-topic"),
		worker.WithBatchSize(10),
		worker.WithPollInterval(10*time.Millisecond),
		worker.WithMetrics(s.metrics),
	)
}

func (s *WorkerSuite) append(aggType, eventType string) *outbox.Entry {
	entry := outbox.NewEntry(aggType, "agg-1", eventType, []byte(`{}`), time.Now())
	s.Require().NoError(s.store.Append(context.Background(), entry))
	return entry
}

// Entries are routed by aggregate type and marked processed once published.
func (s *WorkerSuite) TestRunOnceRoutesByAggregateType() {
	ctx := context.Background()
	audit := s.append(outbox.AggregateAuditEntry, "revision_committed")
	s.append(outbox.AggregateClusterAlert, "cluster_alert")

	n, err := s.worker.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	topics := map[string]string{}
	for _, msg := range s.publisher.sent() {
		topics[msg.Headers["event_type"]] = msg.Topic
	}
	s.Equal("audit-topic", topics["revision_committed"])
	s.Equal("alert-topic", topics["cluster_alert"])

	pending, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.PublishedTotal.WithLabelValues(outbox.AggregateAuditEntry)))

	s.Run("entry id travels as a header", func() {
		for _, msg := range s.publisher.sent() {
			if msg.Headers["event_type"] == "revision_committed" {
				s.Equal(audit.ID.String(), msg.Headers["entry_id"])
			}
		}
	})
}

// Failed publishes leave the entry pending for the next poll.
func (s *WorkerSuite) TestFailedPublishStaysPending() {
	ctx := context.Background()
	s.publisher.failFor = outbox.AggregateClusterAlert
	s.append(outbox.AggregateAuditEntry, "verification_run")
	s.append(outbox.AggregateClusterAlert, "cluster_alert")

	n, err := s.worker.RunOnce(ctx)
	s.Require().Error(err)
	s.Equal(1, n)

	pending, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), pending)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.PublishFailures))

	s.publisher.failFor = ""
	n, err = s.worker.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *WorkerSuite) TestStartDrainsOnShutdown() {
	s.append(outbox.AggregateAuditEntry, "task_resolved")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.worker.Start(ctx) }()

	s.Eventually(func() bool { return len(s.publisher.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	s.Require().NoError(<-done)

	s.Require().NoError(s.worker.UpdateMetrics(context.Background()))
	s.Zero(testutil.ToFloat64(s.metrics.PendingDepth))
}
