package models

import (
	"time"

	id "rollguard/pkg/domain"
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Suspicious reports whether the level warrants human review.
func (l RiskLevel) Suspicious() bool {
	return l == RiskHigh || l == RiskCritical
}

// Status is the review state of a cluster flag.
type Status string

const (
	StatusOpen          Status = "open"
	StatusUnderReview   Status = "under_review"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusUnderReview, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// IsTerminal reports whether detection leaves the flag alone.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

// Factors is the breakdown behind a risk score.
type Factors struct {
	Base             float64 `json:"base"`
	SurnameDiversity float64 `json:"surname_diversity"`
	SurnamePenalty   float64 `json:"surname_penalty"`
	DOBConcentration float64 `json:"dob_concentration"`
	DOBPenalty       float64 `json:"dob_penalty"`
	PeakVelocity     int     `json:"peak_velocity"`
	VelocityPenalty  float64 `json:"velocity_penalty"`
}

// AsMap flattens the factors for review evidence.
func (f Factors) AsMap() map[string]float64 {
	return map[string]float64{
		"base":              f.Base,
		"surname_diversity": f.SurnameDiversity,
		"surname_penalty":   f.SurnamePenalty,
		"dob_concentration": f.DOBConcentration,
		"dob_penalty":       f.DOBPenalty,
		"peak_velocity":     float64(f.PeakVelocity),
		"velocity_penalty":  f.VelocityPenalty,
	}
}

// Flag records one suspicious concentration of voters at an address.
type Flag struct {
	ID            id.ClusterFlagID `json:"id"`
	AddressDigest string           `json:"address_digest"`
	VoterCount    int              `json:"voter_count"`
	RiskScore     float64          `json:"risk_score"`
	RiskLevel     RiskLevel        `json:"risk_level"`
	Suspicious    bool             `json:"suspicious"`
	Status        Status           `json:"status"`
	Assignee      string           `json:"assignee,omitempty"`
	Factors       Factors          `json:"factors"`
	DetectedAt    time.Time        `json:"detected_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Member is the slice of a voter record the detector looks at.
type Member struct {
	LastName     string
	DateOfBirth  string
	RegisteredAt time.Time
}

// Group is the set of active voters sharing an address digest.
type Group struct {
	AddressDigest string
	Members       []Member
}

// StaleFlag is an unresolved flag whose address no longer qualifies as a
// cluster, with the number of active voters still registered there.
type StaleFlag struct {
	Flag         *Flag
	ActiveVoters int
}

// Result summarises one detection run.
type Result struct {
	FlagsCreated    int     `json:"flags_created"`
	FlagsUpdated    int     `json:"flags_updated"`
	FlagsUnchanged  int     `json:"flags_unchanged"`
	FlagsSkipped    int     `json:"flags_skipped"`
	FlagsDissolved  int     `json:"flags_dissolved"`
	TasksOpened     int     `json:"tasks_opened"`
	Flags           []*Flag `json:"flags"`
	NewlySuspicious []*Flag `json:"-"`
}

// Alert announces a suspicious cluster to downstream consumers.
type Alert struct {
	FlagID        id.ClusterFlagID `json:"flag_id"`
	AddressDigest string           `json:"address_digest"`
	VoterCount    int              `json:"voter_count"`
	RiskScore     float64          `json:"risk_score"`
	RiskLevel     RiskLevel        `json:"risk_level"`
	DetectedAt    time.Time        `json:"detected_at"`
}

// AlertFor builds the alert for f.
func AlertFor(f *Flag) Alert {
	return Alert{
		FlagID:        f.ID,
		AddressDigest: f.AddressDigest,
		VoterCount:    f.VoterCount,
		RiskScore:     f.RiskScore,
		RiskLevel:     f.RiskLevel,
		DetectedAt:    f.UpdatedAt,
	}
}
