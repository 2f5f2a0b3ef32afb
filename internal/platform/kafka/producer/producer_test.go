package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestNoopProducerDiscards(t *testing.T) {
	p := NewNoopProducer()
	require.NoError(t, p.Produce(context.Background(), &Message{Topic: "rollguard.audit"}))
	require.NoError(t, p.Close())
}

func TestProduceAfterCloseFails(t *testing.T) {
	p, err := New(Config{Brokers: []string{"127.0.0.1:1"}, Acks: "1"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	err = p.Produce(context.Background(), &Message{Topic: "rollguard.cluster-alerts", Value: []byte("{}")})
	assert.ErrorContains(t, err, "producer is closed")
}
