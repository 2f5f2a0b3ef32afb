package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollguard/internal/auditchain/models"
	"rollguard/internal/outbox"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
)

const systemActor = "system"

// Recorder appends hash-chained audit entries. Domain services call it
// inside their own transaction so the entry commits with the change.
type Recorder struct {
	store Store
	tx    TxRunner
	opts  options
}

func NewRecorder(store Store, tx TxRunner, opts ...Option) *Recorder {
	return &Recorder{store: store, tx: tx, opts: buildOptions(opts)}
}

// Record appends ev to the chain. The chain head row is locked for the rest
// of the surrounding transaction.
func (r *Recorder) Record(ctx context.Context, ev models.Event) (*models.Entry, error) {
	if ev.Action == "" || ev.EntityType == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "audit event requires action and entity type")
	}
	details := "{}"
	if ev.Details != nil {
		raw, err := json.Marshal(ev.Details)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode audit details")
		}
		details = string(raw)
	}
	actor := ev.Actor
	if actor == "" {
		actor = systemActor
	}

	start := time.Now()
	var entry *models.Entry
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		head, err := r.store.LockHead(ctx)
		if err != nil {
			return err
		}

		occurredAt := r.opts.now(ctx).UTC().Truncate(time.Microsecond)
		// Keeps timestamp order identical to sequence order.
		if occurredAt.Before(head.LastOccurredAt) {
			occurredAt = head.LastOccurredAt
		}

		entry = &models.Entry{
			Seq:          head.LastSeq + 1,
			ID:           id.AuditEntryID(uuid.New()),
			OccurredAt:   occurredAt,
			Action:       ev.Action,
			EntityType:   ev.EntityType,
			EntityID:     ev.EntityID,
			Actor:        actor,
			Details:      details,
			PreviousHash: head.LastHash,
		}
		entry.EntryHash = entry.ComputeHash(head.LastHash)

		if err := r.store.Insert(ctx, entry); err != nil {
			return err
		}
		if r.opts.outbox == nil {
			return nil
		}
		return r.opts.outbox.Append(ctx, outboxEntry(entry))
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("append audit entry %s", ev.Action))
	}

	if r.opts.metrics != nil {
		r.opts.metrics.IncAppended(string(ev.Action))
		r.opts.metrics.ObserveAppendDuration(time.Since(start).Seconds())
	}
	return entry, nil
}

// History returns the entries recorded about one entity.
func (r *Recorder) History(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Entry, error) {
	entries, err := r.store.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit history")
	}
	return entries, nil
}

type entryMessage struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	OccurredAt time.Time       `json:"occurred_at"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Actor      string          `json:"actor"`
	Details    json.RawMessage `json:"details"`
	EntryHash  string          `json:"entry_hash"`
}

func outboxEntry(e *models.Entry) *outbox.Entry {
	payload, _ := json.Marshal(entryMessage{ //nolint:errcheck // fields are plain values and valid JSON
		ID:         e.ID.String(),
		Seq:        e.Seq,
		OccurredAt: e.OccurredAt,
		Action:     string(e.Action),
		EntityType: string(e.EntityType),
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		Details:    json.RawMessage(e.Details),
		EntryHash:  e.EntryHash,
	})
	return outbox.NewEntry(outbox.AggregateAuditEntry, e.EntityID, string(e.Action), payload, e.OccurredAt)
}
