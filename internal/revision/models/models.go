package models

import (
	"time"

	id "rollguard/pkg/domain"
)

// BatchStatus is the lifecycle state of a revision batch.
type BatchStatus string

const (
	BatchDraft     BatchStatus = "draft"
	BatchCommitted BatchStatus = "committed"
	BatchCancelled BatchStatus = "cancelled"
)

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchDraft, BatchCommitted, BatchCancelled:
		return true
	}
	return false
}

// FlagType names the kind of issue a revision flag reports.
type FlagType string

const (
	FlagDuplicate       FlagType = "duplicate"
	FlagDeceased        FlagType = "deceased"
	FlagAddressMismatch FlagType = "address_mismatch"
	FlagDocumentExpired FlagType = "document_expired"
	FlagOther           FlagType = "other"
)

func (t FlagType) IsValid() bool {
	switch t {
	case FlagDuplicate, FlagDeceased, FlagAddressMismatch, FlagDocumentExpired, FlagOther:
		return true
	}
	return false
}

// FlagStatus is the state of a single finding. Nothing returns to pending.
type FlagStatus string

const (
	FlagPending  FlagStatus = "pending"
	FlagApplied  FlagStatus = "applied"
	FlagRejected FlagStatus = "rejected"
	FlagResolved FlagStatus = "resolved"
)

func (s FlagStatus) IsValid() bool {
	switch s {
	case FlagPending, FlagApplied, FlagRejected, FlagResolved:
		return true
	}
	return false
}

// Scope bounds a dry run. Empty Region means every region; nil range ends
// are open. ScanCap limits the findings of each scan.
type Scope struct {
	Region  string     `json:"region,omitempty"`
	From    *time.Time `json:"from,omitempty"`
	To      *time.Time `json:"to,omitempty"`
	ScanCap int        `json:"scan_cap,omitempty"`
}

// Batch is a proposed roll-wide change set.
type Batch struct {
	ID              id.BatchID  `json:"id"`
	Region          string      `json:"region"`
	RangeFrom       *time.Time  `json:"range_from,omitempty"`
	RangeTo         *time.Time  `json:"range_to,omitempty"`
	ScanCap         int         `json:"scan_cap"`
	Status          BatchStatus `json:"status"`
	IntegrityDigest string      `json:"integrity_digest"`
	FlagsApplied    int         `json:"flags_applied"`
	CreatedBy       string      `json:"created_by"`
	CreatedAt       time.Time   `json:"created_at"`
	CommittedAt     *time.Time  `json:"committed_at,omitempty"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
}

// Flag is one finding of a dry run.
type Flag struct {
	ID             id.RevisionFlagID `json:"id"`
	BatchID        id.BatchID        `json:"batch_id"`
	VoterID        id.VoterID        `json:"voter_id"`
	RelatedVoterID *id.VoterID       `json:"related_voter_id,omitempty"`
	Type           FlagType          `json:"flag_type"`
	Reason         string            `json:"reason"`
	Confidence     float64           `json:"confidence"`
	Status         FlagStatus        `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// DuplicateMatch is a pair of active voters sharing contact or identity
// fields. VoterID is the later registration.
type DuplicateMatch struct {
	VoterID        id.VoterID
	RelatedVoterID id.VoterID
	MatchedOn      []string
}

// DeceasedMatch is an active voter whose identifier appears in the death
// registry.
type DeceasedMatch struct {
	VoterID          id.VoterID
	UniqueIdentifier string
	VoterLastName    string
	VoterDOB         string
	Death            DeathRecord
}

// DeathRecord is one row of the death registry.
type DeathRecord struct {
	UniqueIdentifier string `json:"unique_identifier"`
	FullName         string `json:"full_name"`
	LastName         string `json:"last_name"`
	DateOfBirth      string `json:"date_of_birth"`
	DateOfDeath      string `json:"date_of_death"`
	Source           string `json:"source"`
}

// DryRunResult is the outcome of RunDryRun.
type DryRunResult struct {
	Batch *Batch  `json:"batch"`
	Flags []*Flag `json:"flags"`
}

// CommitResult is the outcome of CommitBatch.
type CommitResult struct {
	BatchID      id.BatchID  `json:"batch_id"`
	FlagsApplied int         `json:"flags_applied"`
	Status       BatchStatus `json:"status"`
}
