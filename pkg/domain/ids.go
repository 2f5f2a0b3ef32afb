// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "rollguard/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing VoterID where TaskID is expected.
type (
	VoterID        uuid.UUID
	ClusterFlagID  uuid.UUID
	TaskID         uuid.UUID
	BatchID        uuid.UUID
	RevisionFlagID uuid.UUID
	AuditEntryID   uuid.UUID
	VerificationID uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, CLI arguments).

func ParseVoterID(s string) (VoterID, error) {
	id, err := parseUUID(s, "voter ID")
	return VoterID(id), err
}

func ParseClusterFlagID(s string) (ClusterFlagID, error) {
	id, err := parseUUID(s, "cluster flag ID")
	return ClusterFlagID(id), err
}

func ParseTaskID(s string) (TaskID, error) {
	id, err := parseUUID(s, "task ID")
	return TaskID(id), err
}

func ParseBatchID(s string) (BatchID, error) {
	id, err := parseUUID(s, "batch ID")
	return BatchID(id), err
}

func ParseRevisionFlagID(s string) (RevisionFlagID, error) {
	id, err := parseUUID(s, "revision flag ID")
	return RevisionFlagID(id), err
}

func ParseVerificationID(s string) (VerificationID, error) {
	id, err := parseUUID(s, "verification ID")
	return VerificationID(id), err
}

// String methods - for logging and debugging.

func (id VoterID) String() string        { return uuid.UUID(id).String() }
func (id ClusterFlagID) String() string  { return uuid.UUID(id).String() }
func (id TaskID) String() string         { return uuid.UUID(id).String() }
func (id BatchID) String() string        { return uuid.UUID(id).String() }
func (id RevisionFlagID) String() string { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string   { return uuid.UUID(id).String() }
func (id VerificationID) String() string { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id VoterID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ClusterFlagID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id TaskID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id BatchID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id RevisionFlagID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text encoding - IDs travel as canonical UUID strings in JSON payloads.

func (id VoterID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id ClusterFlagID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id TaskID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id BatchID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id RevisionFlagID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id VerificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *VoterID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ClusterFlagID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TaskID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *BatchID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RevisionFlagID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditEntryID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *VerificationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// parseUUID is the shared validation logic. The nil UUID is rejected so a
// zero value never reaches a store lookup.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
