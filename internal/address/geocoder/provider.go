// Package geocoder resolves normalized addresses to coordinates through a
// chain of external providers, falling back to a deterministic placeholder.
package geocoder

import (
	"context"
	"errors"
	"fmt"

	"rollguard/internal/address/models"
)

// Query is what providers are asked to resolve.
type Query struct {
	Canonical  string
	Components models.Components
}

// Provider is implemented by every geocoding backend.
type Provider interface {
	// Name identifies the provider in logs, spans and the cached geocode.
	Name() string
	Geocode(ctx context.Context, q Query) (*models.Geocode, error)
}

// ErrorCategory is the normalized failure taxonomy for provider errors.
type ErrorCategory string

const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorOutage         ErrorCategory = "provider_outage"
	ErrorNoMatch        ErrorCategory = "no_match"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorCircuitOpen    ErrorCategory = "circuit_open"
	ErrorInternal       ErrorCategory = "internal"
)

// ProviderError wraps provider failures with a normalized category.
type ProviderError struct {
	Category   ErrorCategory
	Provider   string
	Message    string
	Underlying error
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("geocoder %s [%s]: %s: %v", e.Provider, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("geocoder %s [%s]: %s", e.Provider, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError creates a categorized provider error.
func NewProviderError(category ErrorCategory, provider, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		Provider:   provider,
		Message:    message,
		Underlying: underlying,
	}
}

// Category extracts the error category from an error.
func Category(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}
