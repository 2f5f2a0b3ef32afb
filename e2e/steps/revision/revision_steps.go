package revision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetBatchID() string
	SetBatchID(batchID string)
	SeedVoter(ctx context.Context, alias, uniqueIdentifier, region string) error
	ImportDeath(ctx context.Context, uniqueIdentifier string) error
	VoterActive(ctx context.Context, alias string) (bool, error)
}

// RegisterSteps registers revision batch step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &revisionSteps{tc: tc}

	// Roll fixtures
	ctx.Step(`^an active voter "([^"]*)" with identifier "([^"]*)" in region "([^"]*)"$`, steps.seedVoter)
	ctx.Step(`^the death registry lists identifier "([^"]*)"$`, steps.importDeath)

	// Batch lifecycle
	ctx.Step(`^I request a dry run for region "([^"]*)"$`, steps.requestDryRun)
	ctx.Step(`^I commit the batch$`, steps.commitBatch)
	ctx.Step(`^I cancel the batch with reason "([^"]*)"$`, steps.cancelBatch)
	ctx.Step(`^I fetch the batch$`, steps.fetchBatch)
	ctx.Step(`^I verify the audit chain$`, steps.verifyChain)

	// Assertions
	ctx.Step(`^the batch status should be "([^"]*)"$`, steps.batchStatusShouldBe)
	ctx.Step(`^the batch should propose (\d+) "([^"]*)" flags?$`, steps.batchShouldPropose)
	ctx.Step(`^voter "([^"]*)" should still be active$`, steps.voterShouldBeActive)
	ctx.Step(`^voter "([^"]*)" should be inactive$`, steps.voterShouldBeInactive)
}

type revisionSteps struct {
	tc TestContext
}

type batchView struct {
	Batch *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"batch"`
	Flags []struct {
		Type   string `json:"flag_type"`
		Status string `json:"status"`
	} `json:"flags"`
	// Flat batch bodies (cancel) carry the status at the top level.
	Status string `json:"status"`
}

func (s *revisionSteps) seedVoter(ctx context.Context, alias, uniqueIdentifier, region string) error {
	return s.tc.SeedVoter(ctx, alias, uniqueIdentifier, region)
}

func (s *revisionSteps) importDeath(ctx context.Context, uniqueIdentifier string) error {
	return s.tc.ImportDeath(ctx, uniqueIdentifier)
}

func (s *revisionSteps) requestDryRun(ctx context.Context, region string) error {
	if err := s.tc.POST("/v1/revisions/dry-run", map[string]any{"region": region}); err != nil {
		return err
	}
	view, err := s.view()
	if err != nil {
		return err
	}
	if view.Batch == nil {
		return fmt.Errorf("dry run returned no batch: %s", s.tc.GetLastResponseBody())
	}
	s.tc.SetBatchID(view.Batch.ID)
	return nil
}

func (s *revisionSteps) commitBatch(ctx context.Context) error {
	return s.tc.POST("/v1/revisions/"+s.tc.GetBatchID()+"/commit", map[string]any{})
}

func (s *revisionSteps) cancelBatch(ctx context.Context, reason string) error {
	return s.tc.POST("/v1/revisions/"+s.tc.GetBatchID()+"/cancel", map[string]any{"reason": reason})
}

func (s *revisionSteps) fetchBatch(ctx context.Context) error {
	return s.tc.GET("/v1/revisions/" + s.tc.GetBatchID())
}

func (s *revisionSteps) verifyChain(ctx context.Context) error {
	return s.tc.POST("/v1/audit/verify", map[string]any{})
}

func (s *revisionSteps) batchStatusShouldBe(ctx context.Context, expected string) error {
	view, err := s.view()
	if err != nil {
		return err
	}
	actual := view.Status
	if view.Batch != nil {
		actual = view.Batch.Status
	}
	if actual != expected {
		return fmt.Errorf("expected batch status %s but got %s", expected, actual)
	}
	return nil
}

func (s *revisionSteps) batchShouldPropose(ctx context.Context, count int, flagType string) error {
	view, err := s.view()
	if err != nil {
		return err
	}
	n := 0
	for _, f := range view.Flags {
		if f.Type == flagType {
			n++
		}
	}
	if n != count {
		return fmt.Errorf("expected %d %s flags but got %d\nResponse: %s", count, flagType, n, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *revisionSteps) voterShouldBeActive(ctx context.Context, alias string) error {
	active, err := s.tc.VoterActive(ctx, alias)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("voter %s was deactivated", alias)
	}
	return nil
}

func (s *revisionSteps) voterShouldBeInactive(ctx context.Context, alias string) error {
	active, err := s.tc.VoterActive(ctx, alias)
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("voter %s is still active", alias)
	}
	return nil
}

func (s *revisionSteps) view() (*batchView, error) {
	var v batchView
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &v); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &v, nil
}
