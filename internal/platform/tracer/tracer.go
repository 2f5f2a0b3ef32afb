// Package tracer provides a lightweight tracing abstraction.
//
// Packages emit spans through the Tracer interface so they stay decoupled
// from OpenTelemetry APIs:
//   - NoopTracer: for tests (zero overhead)
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
// Example:
//
//	ctx, span := tr.Start(ctx, tracer.SpanGeocodeCall,
//	    tracer.String(tracer.AttrProvider, "primary"),
//	)
//	defer span.End(err)
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Float64 creates a float64 attribute.
func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// ShortDigest returns the first 8 bytes of the SHA-256 of v, hex encoded,
// so spans can be correlated without carrying an address in clear text.
func ShortDigest(v string) string {
	if v == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(v))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanAddressValidate = "address.validate"
	SpanGeocodeChain    = "geocoder.chain"
	SpanGeocodeCall     = "geocoder.call"
)

// Attribute keys.
const (
	AttrAddressDigest = "address.digest"
	AttrProvider      = "geocoder.provider"
	AttrConfidence    = "geocoder.confidence"
	AttrCircuitOpen   = "geocoder.circuit_open"
	AttrPlaceholder   = "geocoder.placeholder"
	AttrCacheHit      = "cache.hit"
	AttrErrorCategory = "error.category"
)

// Event names.
const (
	EventProviderSkipped = "geocoder.provider_skipped"
	EventFallback        = "geocoder.fallback"
)
