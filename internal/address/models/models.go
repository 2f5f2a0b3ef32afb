package models

import "time"

// Components are the raw address parts as submitted.
type Components struct {
	HouseNumber string `json:"house_number"`
	Street      string `json:"street"`
	Locality    string `json:"locality"`
	District    string `json:"district"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
}

// Values returns the components in canonical order.
func (c Components) Values() []string {
	return []string{c.HouseNumber, c.Street, c.Locality, c.District, c.State, c.PostalCode}
}

// Geocode is a provider's answer for a normalized address.
type Geocode struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	Confidence       float64 `json:"confidence"`
	FormattedAddress string  `json:"formatted_address"`
	PostalCode       string  `json:"postal_code,omitempty"`
	Provider         string  `json:"provider"`
}

// PlaceholderProvider labels coordinates synthesized from the digest when no
// provider answered. They are never a surveyed location.
const PlaceholderProvider = "placeholder"

// IsPlaceholder reports whether g was synthesized rather than geocoded.
func (g *Geocode) IsPlaceholder() bool {
	return g != nil && g.Provider == PlaceholderProvider
}

// ValidationResult buckets a quality score.
type ValidationResult string

const (
	ResultPassed   ValidationResult = "passed"
	ResultFlagged  ValidationResult = "flagged"
	ResultRejected ValidationResult = "rejected"
)

// Score thresholds.
const (
	PassThreshold = 0.75
	FlagThreshold = 0.5
)

// ResultForScore maps a score onto its validation bucket.
func ResultForScore(score float64) ValidationResult {
	switch {
	case score >= PassThreshold:
		return ResultPassed
	case score >= FlagThreshold:
		return ResultFlagged
	default:
		return ResultRejected
	}
}

// Flags explaining a score.
const (
	FlagIncomplete          = "incomplete_address"
	FlagInvalidPostalCode   = "invalid_postal_code"
	FlagLowGeocode          = "low_geocode_confidence"
	FlagPinMismatch         = "pin_mismatch"
	FlagPlaceholderGeocode  = "placeholder_geocode"
	LowGeocodeConfidenceCut = 0.5
)

// Result is the outcome of ValidateAddress.
type Result struct {
	Normalized       Components       `json:"normalized"`
	Canonical        string           `json:"canonical"`
	Digest           string           `json:"digest"`
	Geocode          *Geocode         `json:"geocode"`
	QualityScore     float64          `json:"quality_score"`
	ValidationResult ValidationResult `json:"validation_result"`
	Flags            []string         `json:"flags"`
	Cached           bool             `json:"cached"`
}

// CacheEntry is the address score cache row, keyed by digest.
type CacheEntry struct {
	Digest       string    `json:"digest"`
	Normalized   string    `json:"normalized"`
	Geocode      Geocode   `json:"geocode"`
	QualityScore float64   `json:"quality_score"`
	CachedAt     time.Time `json:"cached_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the entry is stale at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
