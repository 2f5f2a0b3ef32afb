package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/urfave/cli/v2"

	"rollguard/internal/platform/database"
	"rollguard/internal/platform/middleware"
	revisionmodels "rollguard/internal/revision/models"
	votermodels "rollguard/internal/voter/models"
	voterstore "rollguard/internal/voter/store"
	id "rollguard/pkg/domain"
)

const testSigningKey = "rollctl-test-signing-key"

type RollctlSuite struct {
	suite.Suite
	dir string
	url string
}

func TestRollctlSuite(t *testing.T) {
	suite.Run(t, new(RollctlSuite))
}

func (s *RollctlSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.url = "file:" + filepath.Join(s.dir, "roll.db")
	s.T().Setenv("ROLLGUARD_CONFIG", "")
	s.T().Setenv("DATABASE_DRIVER", "sqlite")
	s.T().Setenv("DATABASE_URL", s.url)
	s.T().Setenv("JWT_SIGNING_KEY", testSigningKey)

	_, err := s.run("migrate")
	s.Require().NoError(err)
}

func (s *RollctlSuite) run(args ...string) (string, error) {
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"rollctl"}, args...))
	return out.String(), err
}

func (s *RollctlSuite) seedVoter(uid string) *votermodels.Record {
	pool, err := database.New(database.Config{Driver: database.DriverSQLite, URL: s.url})
	s.Require().NoError(err)
	defer pool.Close()

	v := &votermodels.Record{
		ID:               id.VoterID(uuid.New()),
		UniqueIdentifier: uid,
		FirstName:        "Tomas",
		LastName:         "Varga",
		DateOfBirth:      "1948-11-02",
		AddressDigest:    "digest",
		Region:           "HU-BU",
		Status:           votermodels.StatusActive,
		IsActive:         true,
		RegisteredAt:     time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(voterstore.New(pool).Insert(context.Background(), v))
	return v
}

func (s *RollctlSuite) writeFile(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *RollctlSuite) TestMigrateIsRerunnable() {
	out, err := s.run("migrate")
	s.Require().NoError(err)
	s.Contains(out, "migrations applied (sqlite)")
}

func (s *RollctlSuite) TestDeathImportDryRunAndCommit() {
	s.seedVoter("HU-000123")
	deaths := s.writeFile("deaths.csv",
		"unique_identifier,full_name,last_name,date_of_birth,date_of_death,source\n"+
			"HU-000123,Tomas Varga,Varga,1948-11-02,2026-02-10,\n")

	out, err := s.run("import-deaths", "--file", deaths, "--source", "crs")
	s.Require().NoError(err)
	s.Contains(out, "imported 1 death records")

	out, err = s.run("--actor", "clerk-4", "dry-run", "--region", "HU-BU")
	s.Require().NoError(err)
	var dry revisionmodels.DryRunResult
	s.Require().NoError(json.Unmarshal([]byte(out), &dry))
	s.Require().NotNil(dry.Batch)
	s.Equal(revisionmodels.BatchDraft, dry.Batch.Status)
	s.Equal("clerk-4", dry.Batch.CreatedBy)
	s.Require().Len(dry.Flags, 1)
	s.Equal(revisionmodels.FlagDeceased, dry.Flags[0].Type)

	out, err = s.run("commit", "--batch", dry.Batch.ID.String())
	s.Require().NoError(err)
	var res revisionmodels.CommitResult
	s.Require().NoError(json.Unmarshal([]byte(out), &res))
	s.Equal(revisionmodels.BatchCommitted, res.Status)
	s.Equal(1, res.FlagsApplied)

	_, err = s.run("commit", "--batch", dry.Batch.ID.String())
	s.Require().Error(err)

	out, err = s.run("verify-chain")
	s.Require().NoError(err)
	s.Contains(out, "healthy")
}

func (s *RollctlSuite) TestCancelDraft() {
	out, err := s.run("dry-run")
	s.Require().NoError(err)
	var dry revisionmodels.DryRunResult
	s.Require().NoError(json.Unmarshal([]byte(out), &dry))

	out, err = s.run("cancel", "--batch", dry.Batch.ID.String(), "--reason", "scope too wide")
	s.Require().NoError(err)
	var batch revisionmodels.Batch
	s.Require().NoError(json.Unmarshal([]byte(out), &batch))
	s.Equal(revisionmodels.BatchCancelled, batch.Status)
}

func (s *RollctlSuite) TestDryRunRejectsBadDates() {
	_, err := s.run("dry-run", "--from", "02/10/2026")
	s.Require().Error(err)
	s.Contains(err.Error(), "YYYY-MM-DD")
}

func (s *RollctlSuite) TestCommitRejectsMalformedBatchID() {
	_, err := s.run("commit", "--batch", "not-a-uuid")
	s.Require().Error(err)
}

func (s *RollctlSuite) TestImportNames() {
	names := s.writeFile("names.csv", "role,name,frequency\nfirst_name,Tomas,812\nlast_name,Varga,1440\n")

	out, err := s.run("import-names", "--file", names)
	s.Require().NoError(err)
	s.Contains(out, "imported 2 name frequencies")
}

func (s *RollctlSuite) TestSweepOnEmptyRoll() {
	out, err := s.run("sweep", "--dispatch")
	s.Require().NoError(err)
	s.Contains(out, `"flags_created": 0`)
}

func (s *RollctlSuite) TestTokenValidatesAgainstSigningKey() {
	out, err := s.run("--actor", "auditor-2", "--role", "auditor", "token", "--ttl", "10m")
	s.Require().NoError(err)

	actor, err := middleware.NewTokenService(testSigningKey).Validate(string(bytes.TrimSpace([]byte(out))))
	s.Require().NoError(err)
	s.Equal(middleware.Actor{ID: "auditor-2", Role: "auditor"}, actor)
}

func (s *RollctlSuite) TestWatchAlertsRequiresBrokers() {
	s.T().Setenv("KAFKA_BROKERS", "")
	_, err := s.run("watch-alerts")
	s.Require().Error(err)
}
