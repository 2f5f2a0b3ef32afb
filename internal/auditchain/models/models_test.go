package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "rollguard/pkg/domain"
)

func TestComputeHash(t *testing.T) {
	base := Entry{
		Seq:        7,
		ID:         id.AuditEntryID(uuid.MustParse("5f0c2a55-8a5e-4d57-9c39-7f1f0b0f4d11")),
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
		Action:     ActionBatchCommitted,
		EntityType: EntityRevisionBatch,
		EntityID:   "batch-1",
		Actor:      "officer",
		Details:    `{"flags_applied":2}`,
	}
	want := base.ComputeHash(GenesisHash)

	t.Run("deterministic and hex encoded", func(t *testing.T) {
		again := base
		assert.Equal(t, want, again.ComputeHash(GenesisHash))
		assert.Len(t, want, 64)
	})

	t.Run("timezone does not matter", func(t *testing.T) {
		shifted := base
		shifted.OccurredAt = base.OccurredAt.In(time.FixedZone("IST", 5*3600+1800))
		assert.Equal(t, want, shifted.ComputeHash(GenesisHash))
	})

	t.Run("stored hashes are not inputs", func(t *testing.T) {
		withHashes := base
		withHashes.PreviousHash = "x"
		withHashes.EntryHash = "y"
		assert.Equal(t, want, withHashes.ComputeHash(GenesisHash))
	})

	mutations := map[string]func(e *Entry){
		"seq":         func(e *Entry) { e.Seq++ },
		"occurred_at": func(e *Entry) { e.OccurredAt = e.OccurredAt.Add(time.Microsecond) },
		"action":      func(e *Entry) { e.Action = ActionBatchCancelled },
		"entity_id":   func(e *Entry) { e.EntityID = "batch-2" },
		"actor":       func(e *Entry) { e.Actor = "clerk" },
		"details":     func(e *Entry) { e.Details = `{"flags_applied":3}` },
	}
	for name, mutate := range mutations {
		t.Run("changing "+name+" changes the hash", func(t *testing.T) {
			changed := base
			mutate(&changed)
			assert.NotEqual(t, want, changed.ComputeHash(GenesisHash))
		})
	}

	t.Run("previous hash is an input", func(t *testing.T) {
		assert.NotEqual(t, want, base.ComputeHash(want))
	})
}
