//go:build integration

package consumer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rollguard/internal/platform/kafka/consumer"
	"rollguard/internal/platform/kafka/producer"
	"rollguard/pkg/testutil/containers"
)

type ConsumerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestConsumerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ConsumerIntegrationSuite))
}

func (s *ConsumerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())

	prod, err := producer.New(producer.Config{
		Brokers:         []string{s.kafka.Brokers},
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ConsumerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

func (s *ConsumerIntegrationSuite) TestRunDeliversMessagesToHandler() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "test-cluster-alerts"
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 1, 1))

	var mu sync.Mutex
	var got []*consumer.Message
	done := make(chan struct{})
	handler := consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
		if len(got) == 2 {
			close(done)
		}
		return nil
	})

	c, err := consumer.New(consumer.Config{
		Brokers: []string{s.kafka.Brokers},
		GroupID: "rollctl-test",
		Topics:  []string{topic},
	}, handler, nil)
	s.Require().NoError(err)

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(runCtx) }()

	for _, key := range []string{"digest-a", "digest-b"} {
		s.Require().NoError(s.producer.Produce(ctx, &producer.Message{
			Topic:   topic,
			Key:     []byte(key),
			Value:   []byte(`{"risk_level":"critical"}`),
			Headers: map[string]string{"event_type": "cluster_alert"},
		}))
	}

	select {
	case <-done:
	case <-ctx.Done():
		s.FailNow("timed out waiting for messages")
	}
	stop()
	s.Require().NoError(<-errCh)

	mu.Lock()
	defer mu.Unlock()
	s.Equal("digest-a", string(got[0].Key))
	s.Equal("cluster_alert", got[0].Headers["event_type"])
}
