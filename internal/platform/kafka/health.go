// Package kafka holds broker-level helpers shared by the producer and consumer.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// HealthChecker asks the cluster for broker metadata. A TCP dial would pass
// against a listener that cannot serve requests; a metadata round trip does
// not.
type HealthChecker struct {
	client *kgo.Client
	admin  *kadm.Client
	topics []string
}

// NewHealthChecker creates a checker that also requires topics to exist.
func NewHealthChecker(brokers []string, topics ...string) (*HealthChecker, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create kafka health client: %w", err)
	}
	return &HealthChecker{client: client, admin: kadm.NewClient(client), topics: topics}, nil
}

// Check fails when no broker answers or a required topic is missing.
func (h *HealthChecker) Check(ctx context.Context) error {
	brokers, err := h.admin.ListBrokers(ctx)
	if err != nil {
		return fmt.Errorf("list brokers: %w", err)
	}
	if len(brokers) == 0 {
		return errors.New("no kafka brokers reachable")
	}
	if len(h.topics) == 0 {
		return nil
	}
	details, err := h.admin.ListTopics(ctx, h.topics...)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	for _, topic := range h.topics {
		if d, ok := details[topic]; !ok || d.Err != nil {
			return fmt.Errorf("topic %s unavailable", topic)
		}
	}
	return nil
}

func (h *HealthChecker) Close() {
	h.client.Close()
}
