package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"rollguard/internal/address/models"
)

const maxResponseBytes = 64 << 10

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResponseParser converts a 200 response body into a geocode.
type ResponseParser func(body []byte) (*models.Geocode, error)

// HTTPAdapterConfig configures an HTTP geocoding provider.
type HTTPAdapterConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Parser     ResponseParser
}

// HTTPAdapter calls GET {BaseURL}/geocode?q=...&postal_code=...
type HTTPAdapter struct {
	name    string
	baseURL string
	apiKey  string
	client  HTTPDoer
	timeout time.Duration
	parser  ResponseParser
}

// NewHTTPAdapter creates a new HTTP geocoding provider.
func NewHTTPAdapter(cfg HTTPAdapterConfig) *HTTPAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Parser == nil {
		cfg.Parser = ParseJSON
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPAdapter{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
		timeout: cfg.Timeout,
		parser:  cfg.Parser,
	}
}

func (a *HTTPAdapter) Name() string {
	return a.name
}

// Geocode resolves q with a single bounded request; it never retries.
func (a *HTTPAdapter) Geocode(ctx context.Context, q Query) (*models.Geocode, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", q.Canonical)
	if q.Components.PostalCode != "" {
		params.Set("postal_code", q.Components.PostalCode)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/geocode?"+params.Encode(), nil)
	if err != nil {
		return nil, NewProviderError(ErrorInternal, a.name, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("X-API-Key", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, NewProviderError(ErrorTimeout, a.name, "request timeout", err)
		}
		return nil, NewProviderError(ErrorOutage, a.name, "failed to execute request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewProviderError(ErrorBadData, a.name, "failed to read response", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, NewProviderError(ErrorAuthentication, a.name, fmt.Sprintf("authentication failed: %d", resp.StatusCode), nil)
	case http.StatusNotFound:
		return nil, NewProviderError(ErrorNoMatch, a.name, "address not found", nil)
	case http.StatusTooManyRequests:
		return nil, NewProviderError(ErrorRateLimited, a.name, "rate limit exceeded", nil)
	default:
		return nil, NewProviderError(ErrorOutage, a.name, fmt.Sprintf("unexpected status: %d", resp.StatusCode), nil)
	}

	geocode, err := a.parser(body)
	if err != nil {
		return nil, NewProviderError(ErrorBadData, a.name, "failed to parse response", err)
	}
	if geocode.Confidence < 0 || geocode.Confidence > 1 {
		return nil, NewProviderError(ErrorBadData, a.name, fmt.Sprintf("confidence out of range: %v", geocode.Confidence), nil)
	}
	geocode.Provider = a.name
	return geocode, nil
}

type geocodeResponse struct {
	Lat              *float64 `json:"lat"`
	Lon              *float64 `json:"lon"`
	Confidence       float64  `json:"confidence"`
	FormattedAddress string   `json:"formatted_address"`
	PostalCode       string   `json:"postal_code"`
}

// ParseJSON reads {"lat","lon","confidence","formatted_address","postal_code"}.
func ParseJSON(body []byte) (*models.Geocode, error) {
	var r geocodeResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if r.Lat == nil || r.Lon == nil {
		return nil, errors.New("missing coordinates")
	}
	return &models.Geocode{
		Latitude:         *r.Lat,
		Longitude:        *r.Lon,
		Confidence:       r.Confidence,
		FormattedAddress: r.FormattedAddress,
		PostalCode:       r.PostalCode,
	}, nil
}
