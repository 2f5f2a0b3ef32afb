// Package models defines the append-only audit log and the blocks a
// verification pass writes about it.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	id "rollguard/pkg/domain"
)

// GenesisHash is the previous hash of the first entry in the chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Action names the mutation an entry records.
type Action string

const (
	ActionVoterRegistered     Action = "voter_registered"
	ActionVoterStatusChanged  Action = "voter_status_changed"
	ActionVoterDeactivated    Action = "voter_deactivated"
	ActionClusterFlagUpserted Action = "cluster_flag_upserted"
	ActionClusterFlagReopened Action = "cluster_flag_reopened"
	ActionClusterDissolved    Action = "cluster_flag_dissolved"
	ActionClusterSweepRun     Action = "cluster_sweep_completed"
	ActionTaskCreated         Action = "review_task_created"
	ActionTaskAssigned        Action = "review_task_assigned"
	ActionTaskResolved        Action = "review_task_resolved"
	ActionBatchDryRun         Action = "revision_dry_run"
	ActionBatchCommitted      Action = "revision_committed"
	ActionBatchCancelled      Action = "revision_cancelled"
	ActionRevisionFlagClosed  Action = "revision_flag_closed"
	ActionDeathsImported      Action = "death_registry_imported"
	ActionChainVerified       Action = "hash_chain_verified"
)

// EntityType names the kind of record an entry refers to.
type EntityType string

const (
	EntityVoter         EntityType = "voter"
	EntityClusterFlag   EntityType = "cluster_flag"
	EntityReviewTask    EntityType = "review_task"
	EntityRevisionBatch EntityType = "revision_batch"
	EntityRevisionFlag  EntityType = "revision_flag"
	EntityDeathRegistry EntityType = "death_registry"
	EntityAuditChain    EntityType = "audit_chain"
)

// Event is what domain services hand to the recorder.
type Event struct {
	Action     Action
	EntityType EntityType
	EntityID   string
	Actor      string
	Details    any
}

// Entry is one row of the append-only audit log.
type Entry struct {
	Seq          int64
	ID           id.AuditEntryID
	OccurredAt   time.Time
	Action       Action
	EntityType   EntityType
	EntityID     string
	Actor        string
	Details      string // JSON, hashed as stored
	PreviousHash string
	EntryHash    string
}

// ComputeHash returns the hex SHA-256 over previousHash and the entry's
// identifying fields. The stored hashes are ignored.
func (e *Entry) ComputeHash(previousHash string) string {
	var b strings.Builder
	b.WriteString(previousHash)
	for _, field := range []string{
		strconv.FormatInt(e.Seq, 10),
		e.ID.String(),
		e.OccurredAt.UTC().Format(time.RFC3339Nano),
		string(e.Action),
		string(e.EntityType),
		e.EntityID,
		e.Actor,
		e.Details,
	} {
		b.WriteByte('|')
		b.WriteString(field)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ChainHealth summarizes a verification pass.
type ChainHealth string

const (
	ChainHealthy     ChainHealth = "healthy"
	ChainCompromised ChainHealth = "compromised"
)

// Block records the outcome of checking one entry.
type Block struct {
	VerificationID id.VerificationID
	EntryID        id.AuditEntryID
	Seq            int64
	PreviousHash   string // computed previous hash the entry was checked against
	StoredHash     string
	ComputedHash   string
	IsValid        bool
	VerifiedAt     time.Time
}

// Verification is the result of one pass over the log.
type Verification struct {
	VerificationID  id.VerificationID
	TotalBlocks     int
	InvalidBlocks   int
	FirstInvalidSeq int64 // zero when the chain is healthy
	HeadMismatch    bool  // the log does not end at the recorded chain head
	ChainHealth     ChainHealth
	VerifiedAt      time.Time
}
