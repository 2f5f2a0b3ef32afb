package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"rollguard/internal/app"
	"rollguard/internal/platform/config"
	"rollguard/internal/platform/logger"
	httptransport "rollguard/internal/transport/http"
	votermodels "rollguard/internal/voter/models"
	voterstore "rollguard/internal/voter/store"
	id "rollguard/pkg/domain"
	"rollguard/pkg/testutil"
)

// TestContext holds state between test steps. Every scenario gets its own
// in-process server over a fresh in-memory database.
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	ActorID          string
	ActorRole        string
	BatchID          string

	app    *app.App
	server *httptest.Server
	voters map[string]id.VoterID
	seq    int
}

// NewTestContext starts a server for one scenario.
func NewTestContext(t testing.TB) (*TestContext, error) {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"

	log := logger.NewWithWriter(io.Discard, "error")
	a, err := app.New(context.Background(), cfg, log, app.WithPool(testutil.NewSQLitePool(t)))
	if err != nil {
		return nil, err
	}
	server := httptest.NewServer(httptransport.NewRouter(httptransport.RouterConfig{
		Logger:   log,
		Handlers: a.Handlers(),
	}))

	return &TestContext{
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		ActorID:    "e2e-clerk",
		ActorRole:  "registrar",
		app:        a,
		server:     server,
		voters:     map[string]id.VoterID{},
	}, nil
}

// Close stops the scenario server.
func (tc *TestContext) Close() {
	tc.server.Close()
	_ = tc.app.Close()
}

// POST makes a POST request and stores the response
func (tc *TestContext) POST(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(data))
}

// GET makes a GET request and stores the response
func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor-ID", tc.ActorID)
	req.Header.Set("X-Actor-Role", tc.ActorRole)

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// GetResponseField extracts a top-level field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err == nil {
		if _, ok := data[text]; ok {
			return true
		}
	}
	return false
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

func (tc *TestContext) SetActor(actorID, role string) {
	tc.ActorID = actorID
	tc.ActorRole = role
}

func (tc *TestContext) GetBatchID() string {
	return tc.BatchID
}

func (tc *TestContext) SetBatchID(batchID string) {
	tc.BatchID = batchID
}

// SeedVoter inserts an active voter directly, bypassing intake scoring.
func (tc *TestContext) SeedVoter(ctx context.Context, alias, uniqueIdentifier, region string) error {
	tc.seq++
	registered := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, tc.seq)
	v := &votermodels.Record{
		ID:               id.VoterID(uuid.New()),
		UniqueIdentifier: uniqueIdentifier,
		FirstName:        "Wanjiru",
		LastName:         "Kamau",
		DateOfBirth:      "1956-07-21",
		AddressDigest:    "e2e-digest-" + alias,
		Region:           region,
		Status:           votermodels.StatusActive,
		IsActive:         true,
		RegisteredAt:     registered,
		UpdatedAt:        registered,
	}
	if err := voterstore.New(tc.app.Pool).Insert(ctx, v); err != nil {
		return err
	}
	tc.voters[alias] = v.ID
	return nil
}

// ImportDeath records a death-registry row matching the seeded voter data.
func (tc *TestContext) ImportDeath(ctx context.Context, uniqueIdentifier string) error {
	row := fmt.Sprintf("%s,Wanjiru Kamau,Kamau,1956-07-21,2026-01-04,civil_registry\n", uniqueIdentifier)
	_, err := tc.app.Revisions.ImportDeaths(ctx, strings.NewReader(row), "civil_registry")
	return err
}

// VoterActive reports whether the voter seeded under alias is active.
func (tc *TestContext) VoterActive(ctx context.Context, alias string) (bool, error) {
	voterID, ok := tc.voters[alias]
	if !ok {
		return false, fmt.Errorf("no voter seeded as %q", alias)
	}
	v, err := tc.app.Voters.GetVoter(ctx, voterID)
	if err != nil {
		return false, err
	}
	return v.IsActive, nil
}
