// Package outbox implements the transactional outbox: domain writes append an
// entry in the same transaction, and a worker ships pending entries to Kafka.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Aggregate types routed to their own topics.
const (
	AggregateAuditEntry   = "audit_entry"
	AggregateClusterAlert = "cluster_alert"
)

// Entry represents a pending event in the outbox table.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil until published
}

// IsPending returns true if this entry has not been processed yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry creates a new outbox entry with a generated UUID.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, now time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now.UTC().Truncate(time.Microsecond),
	}
}
