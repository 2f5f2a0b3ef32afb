package service

import (
	"math"
	"regexp"
	"strings"

	"rollguard/internal/address/models"
)

const (
	weightCompleteness = 0.40
	weightRichness     = 0.20
	weightConfidence   = 0.30
	weightPostal       = 0.10

	// richTokenCount is the number of distinct tokens at which the
	// canonical string counts as fully descriptive.
	richTokenCount = 8
)

var postalPattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// ValidPostalCode reports whether code is a six-digit PIN not starting with 0.
func ValidPostalCode(code string) bool {
	return postalPattern.MatchString(code)
}

// Score computes the quality score and explanatory flags for a normalized
// address and its geocode. The score is clamped to [0,1].
func Score(normalized models.Components, canonical string, geocode *models.Geocode) (float64, []string) {
	flags := []string{}

	completeness := completeness(normalized)
	if completeness < 1 {
		flags = append(flags, models.FlagIncomplete)
	}

	postal := 0.0
	if ValidPostalCode(normalized.PostalCode) {
		postal = 1
	} else {
		flags = append(flags, models.FlagInvalidPostalCode)
	}

	confidence := 0.0
	if geocode != nil {
		confidence = clamp(geocode.Confidence)
		if confidence < models.LowGeocodeConfidenceCut {
			flags = append(flags, models.FlagLowGeocode)
		}
		if geocode.PostalCode != "" && normalized.PostalCode != "" &&
			strings.ReplaceAll(geocode.PostalCode, " ", "") != normalized.PostalCode {
			flags = append(flags, models.FlagPinMismatch)
		}
		if geocode.IsPlaceholder() {
			flags = append(flags, models.FlagPlaceholderGeocode)
		}
	}

	score := completeness*weightCompleteness +
		richness(canonical)*weightRichness +
		confidence*weightConfidence +
		postal*weightPostal
	return round(clamp(score)), flags
}

func completeness(c models.Components) float64 {
	values := c.Values()
	filled := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(values))
}

// richness measures how descriptive the canonical string is by its distinct
// token count.
func richness(canonical string) float64 {
	seen := map[string]struct{}{}
	for _, tok := range strings.FieldsFunc(canonical, func(r rune) bool { return r == ' ' || r == ',' }) {
		seen[tok] = struct{}{}
	}
	return math.Min(1, float64(len(seen))/richTokenCount)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
