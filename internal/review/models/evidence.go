package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Evidence is a tagged union: exactly the payload named by Type is set.
// Extensions carries free-form data from external collaborators and is
// stored verbatim.
type Evidence struct {
	Type                  TaskType                  `json:"type"`
	AddressCluster        *AddressClusterEvidence   `json:"address_cluster,omitempty"`
	NameVerification      *NameVerificationEvidence `json:"name_verification,omitempty"`
	DocumentCheck         *DocumentCheckEvidence    `json:"document_check,omitempty"`
	BiometricVerification *BiometricEvidence        `json:"biometric_verification,omitempty"`
	DuplicateReview       *DuplicateReviewEvidence  `json:"duplicate_review,omitempty"`
	Extensions            json.RawMessage           `json:"extensions,omitempty"`
}

type AddressClusterEvidence struct {
	AddressDigest string             `json:"address_digest"`
	VoterCount    int                `json:"voter_count"`
	RiskScore     float64            `json:"risk_score"`
	RiskLevel     string             `json:"risk_level"`
	Factors       map[string]float64 `json:"factors,omitempty"`
}

type NameVerificationEvidence struct {
	Field        string   `json:"field"`
	Name         string   `json:"name"`
	Score        float64  `json:"score"`
	Flags        []string `json:"flags,omitempty"`
	PhoneticCode string   `json:"phonetic_code,omitempty"`
}

type DocumentCheckEvidence struct {
	DocumentType string `json:"document_type"`
	DocumentRef  string `json:"document_ref"`
	Issue        string `json:"issue"`
}

// BiometricEvidence records an external matcher's outcome. rollguard never
// matches biometrics itself.
type BiometricEvidence struct {
	MatcherRef string  `json:"matcher_ref"`
	MatchScore float64 `json:"match_score"`
	Outcome    string  `json:"outcome"`
}

type DuplicateReviewEvidence struct {
	RelatedVoterID string   `json:"related_voter_id"`
	MatchedOn      []string `json:"matched_on"`
	Confidence     float64  `json:"confidence"`
}

var errEvidenceMismatch = errors.New("evidence payload does not match its type")

// Validate checks that the payload for Type, and only it, is present.
func (e Evidence) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("unknown evidence type %q", e.Type)
	}
	set := map[TaskType]bool{
		TypeAddressCluster:        e.AddressCluster != nil,
		TypeNameVerification:      e.NameVerification != nil,
		TypeDocumentCheck:         e.DocumentCheck != nil,
		TypeBiometricVerification: e.BiometricVerification != nil,
		TypeDuplicateReview:       e.DuplicateReview != nil,
	}
	for t, present := range set {
		if present != (t == e.Type) {
			return fmt.Errorf("%w: %s", errEvidenceMismatch, e.Type)
		}
	}
	if len(e.Extensions) > 0 && !json.Valid(e.Extensions) {
		return errors.New("evidence extensions must be valid JSON")
	}
	return nil
}

// ForAddressCluster builds cluster evidence.
func ForAddressCluster(ev AddressClusterEvidence) Evidence {
	return Evidence{Type: TypeAddressCluster, AddressCluster: &ev}
}

// ForNameVerification builds name evidence.
func ForNameVerification(ev NameVerificationEvidence) Evidence {
	return Evidence{Type: TypeNameVerification, NameVerification: &ev}
}
