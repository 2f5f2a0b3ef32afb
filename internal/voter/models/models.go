package models

import (
	"time"

	addressmodels "rollguard/internal/address/models"
	id "rollguard/pkg/domain"
)

// Status is the registration state of a voter record.
type Status string

const (
	StatusActive        Status = "active"
	StatusPendingReview Status = "pending_review"
	StatusRejected      Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPendingReview, StatusRejected:
		return true
	}
	return false
}

// Record is a voter-roll entry. Records are never deleted; deactivation
// clears IsActive and keeps the row.
type Record struct {
	ID                 id.VoterID               `json:"id"`
	UniqueIdentifier   string                   `json:"unique_identifier"`
	FirstName          string                   `json:"first_name"`
	LastName           string                   `json:"last_name"`
	DateOfBirth        string                   `json:"date_of_birth"`
	Gender             string                   `json:"gender,omitempty"`
	Email              string                   `json:"email,omitempty"`
	Phone              string                   `json:"phone,omitempty"`
	Address            addressmodels.Components `json:"address"`
	NormalizedAddress  string                   `json:"normalized_address"`
	AddressDigest      string                   `json:"address_digest"`
	AddressScore       float64                  `json:"address_score"`
	NameScore          float64                  `json:"name_score"`
	PhoneticCode       string                   `json:"phonetic_code"`
	Region             string                   `json:"region"`
	Status             Status                   `json:"status"`
	RejectionReason    string                   `json:"rejection_reason,omitempty"`
	ValidationFlags    []string                 `json:"validation_flags"`
	IsActive           bool                     `json:"is_active"`
	DeactivatedAt      *time.Time               `json:"deactivated_at,omitempty"`
	DeactivationReason string                   `json:"deactivation_reason,omitempty"`
	RegisteredAt       time.Time                `json:"registered_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// Registration is a submitted application to join the roll.
type Registration struct {
	UniqueIdentifier string
	FirstName        string
	LastName         string
	DateOfBirth      string
	Gender           string
	Email            string
	Phone            string
	Region           string
	Address          addressmodels.Components
}

// SubmitResult is the outcome of SubmitRegistration.
type SubmitResult struct {
	Voter       *Record     `json:"voter"`
	OpenedTasks []id.TaskID `json:"opened_tasks,omitempty"`
	Status      Status      `json:"status"`
	Flags       []string    `json:"flags"`
}
