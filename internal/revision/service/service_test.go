package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	auditservice "rollguard/internal/auditchain/service"
	auditstore "rollguard/internal/auditchain/store"
	"rollguard/internal/platform/database"
	"rollguard/internal/platform/middleware"
	"rollguard/internal/revision/models"
	"rollguard/internal/revision/service"
	"rollguard/internal/revision/store"
	votermodels "rollguard/internal/voter/models"
	voterstore "rollguard/internal/voter/store"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/testutil"
)

// failingDeactivator delegates to the real store but fails on call failOn.
type failingDeactivator struct {
	inner  *voterstore.Store
	failOn int
	calls  int
}

func (f *failingDeactivator) Deactivate(ctx context.Context, voterID id.VoterID, reason string, now time.Time) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("registry write timeout")
	}
	return f.inner.Deactivate(ctx, voterID, reason, now)
}

type RevisionSuite struct {
	suite.Suite
	ctx      context.Context
	pool     *database.Pool
	tx       *database.TxRunner
	voters   *voterstore.Store
	store    *store.Store
	recorder *auditservice.Recorder
	service  *service.Service
	clock    time.Time
	seq      int
}

func TestRevisionSuite(t *testing.T) {
	suite.Run(t, new(RevisionSuite))
}

func (s *RevisionSuite) SetupTest() {
	s.ctx = middleware.WithActor(context.Background(), middleware.Actor{ID: "ero-7", Role: "electoral_officer"})
	s.pool = testutil.NewSQLitePool(s.T())
	s.tx = database.NewTxRunner(s.pool, 0)
	s.voters = voterstore.New(s.pool)
	s.store = store.New(s.pool)
	s.clock = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.recorder = auditservice.NewRecorder(auditstore.New(s.pool), s.tx, auditservice.WithNow(s.tick))
	s.service = s.newService(s.voters)
}

func (s *RevisionSuite) newService(voters service.VoterDeactivator) *service.Service {
	return service.New(s.store, voters, s.recorder, s.tx, service.WithNow(s.tick))
}

func (s *RevisionSuite) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type voterOpt func(*votermodels.Record)

func withEmail(e string) voterOpt  { return func(v *votermodels.Record) { v.Email = e } }
func withPhone(p string) voterOpt  { return func(v *votermodels.Record) { v.Phone = p } }
func withRegion(r string) voterOpt { return func(v *votermodels.Record) { v.Region = r } }
func withUID(u string) voterOpt    { return func(v *votermodels.Record) { v.UniqueIdentifier = u } }

func (s *RevisionSuite) seedVoter(opts ...voterOpt) *votermodels.Record {
	s.seq++
	v := &votermodels.Record{
		ID:               id.VoterID(uuid.New()),
		UniqueIdentifier: fmt.Sprintf("UID%05d", s.seq),
		FirstName:        "Kavya",
		LastName:         "Nair",
		DateOfBirth:      "1971-03-09",
		AddressDigest:    "digest",
		Region:           "KL-TVM",
		Status:           votermodels.StatusActive,
		IsActive:         true,
		RegisteredAt:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, s.seq),
		UpdatedAt:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(v)
	}
	s.Require().NoError(s.voters.Insert(s.ctx, v))
	return v
}

func (s *RevisionSuite) importDeaths(rows ...string) {
	csv := "unique_identifier,full_name,last_name,date_of_birth,date_of_death,source\n" + strings.Join(rows, "\n")
	_, err := s.service.ImportDeaths(s.ctx, strings.NewReader(csv), "crs")
	s.Require().NoError(err)
}

func (s *RevisionSuite) seedDeceased(n int) []*votermodels.Record {
	var voters []*votermodels.Record
	var rows []string
	for range n {
		v := s.seedVoter()
		voters = append(voters, v)
		rows = append(rows, fmt.Sprintf("%s,Kavya Nair,Nair,1971-03-09,2026-01-15,", v.UniqueIdentifier))
	}
	s.importDeaths(rows...)
	return voters
}

func (s *RevisionSuite) activeCount() int {
	var n int
	s.Require().NoError(s.pool.DB().QueryRow(`SELECT COUNT(*) FROM voters WHERE is_active = 1`).Scan(&n))
	return n
}

func countByType(flags []*models.Flag) map[models.FlagType]int {
	counts := map[models.FlagType]int{}
	for _, f := range flags {
		counts[f.Type]++
	}
	return counts
}

func (s *RevisionSuite) TestDryRunProposesWithoutMutating() {
	first := s.seedVoter(withEmail("asha@example.org"))
	second := s.seedVoter(withEmail("asha@example.org"), withPhone("9876543210"))
	s.seedVoter(withPhone("9876543210"))
	s.seedVoter()
	dead := s.seedDeceased(1)[0]

	result, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)

	batch := result.Batch
	s.Equal(models.BatchDraft, batch.Status)
	s.Len(batch.IntegrityDigest, 64)
	s.Equal("ero-7", batch.CreatedBy)

	counts := countByType(result.Flags)
	s.Equal(2, counts[models.FlagDuplicate])
	s.Equal(1, counts[models.FlagDeceased])
	for _, f := range result.Flags {
		s.Equal(models.FlagPending, f.Status)
		s.Greater(f.Confidence, 0.0)
		s.LessOrEqual(f.Confidence, 1.0)
		s.NotEmpty(f.Reason)
		if f.Type == models.FlagDuplicate && f.RelatedVoterID != nil && *f.RelatedVoterID == first.ID {
			s.Equal(second.ID, f.VoterID)
			s.Equal(0.7, f.Confidence)
		}
		if f.Type == models.FlagDeceased {
			s.Equal(dead.ID, f.VoterID)
			s.Equal(1.0, f.Confidence)
		}
	}

	s.Equal(5, s.activeCount())
	stored, err := s.service.GetBatch(s.ctx, batch.ID)
	s.Require().NoError(err)
	s.Equal(batch.IntegrityDigest, stored.Batch.IntegrityDigest)
	s.Len(stored.Flags, 3)
}

func (s *RevisionSuite) TestSharedIdentifierAndPhoneCombineConfidence() {
	s.seedVoter(withUID("KL/99/1"), withPhone("9000000001"))
	s.seedVoter(withUID("KL/99/1"), withPhone("9000000001"))

	result, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)
	s.Require().Len(result.Flags, 1)
	s.InDelta(0.98, result.Flags[0].Confidence, 1e-9)
	s.Contains(result.Flags[0].Reason, "unique_identifier, phone")
}

func (s *RevisionSuite) TestScanCapBoundsFindings() {
	for range 6 {
		s.seedVoter(withEmail("shared@example.org"))
	}
	result, err := s.service.RunDryRun(s.ctx, models.Scope{ScanCap: 4})
	s.Require().NoError(err)
	s.Len(result.Flags, 4)
	s.Equal(4, result.Batch.ScanCap)
}

func (s *RevisionSuite) TestScopeFiltersRegion() {
	s.seedVoter(withEmail("a@example.org"), withRegion("KL-TVM"))
	s.seedVoter(withEmail("a@example.org"), withRegion("KL-TVM"))
	s.seedVoter(withEmail("b@example.org"), withRegion("KL-EKM"))
	s.seedVoter(withEmail("b@example.org"), withRegion("KL-EKM"))

	result, err := s.service.RunDryRun(s.ctx, models.Scope{Region: "KL-EKM"})
	s.Require().NoError(err)
	s.Len(result.Flags, 1)
}

func (s *RevisionSuite) TestInvalidScope() {
	from := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err := s.service.RunDryRun(s.ctx, models.Scope{From: &from, To: &to})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.service.RunDryRun(s.ctx, models.Scope{ScanCap: -1})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *RevisionSuite) TestCommitAppliesOnlyEligibleFlags() {
	s.seedVoter(withEmail("dup@example.org"))
	s.seedVoter(withEmail("dup@example.org"))
	dead := s.seedDeceased(2)

	dry, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)

	result, err := s.service.CommitBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	s.Equal(2, result.FlagsApplied)
	s.Equal(models.BatchCommitted, result.Status)

	for _, v := range dead {
		stored, err := s.voters.FindByID(s.ctx, v.ID)
		s.Require().NoError(err)
		s.False(stored.IsActive)
		s.NotNil(stored.DeactivatedAt)
		s.Contains(stored.DeactivationReason, "death registry match")
	}

	after, err := s.service.GetBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	s.Equal(models.BatchCommitted, after.Batch.Status)
	s.NotNil(after.Batch.CommittedAt)
	s.Equal(2, after.Batch.FlagsApplied)
	for _, f := range after.Flags {
		switch f.Type {
		case models.FlagDeceased:
			s.Equal(models.FlagApplied, f.Status)
		default:
			s.Equal(models.FlagPending, f.Status)
		}
	}
}

func (s *RevisionSuite) TestCommitTwiceIsInvalidTransition() {
	s.seedDeceased(2)
	dry, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)
	_, err = s.service.CommitBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	before, err := s.service.GetBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)

	_, err = s.service.CommitBatch(s.ctx, dry.Batch.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	after, err := s.service.GetBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	s.Equal(before.Flags, after.Flags)
	s.Equal(before.Batch.CommittedAt, after.Batch.CommittedAt)
}

func (s *RevisionSuite) TestConcurrentCommitsApplyOnce() {
	s.seedDeceased(3)
	dry, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)

	res := testutil.RunConcurrent(6, func(int) error {
		_, err := s.service.CommitBatch(s.ctx, dry.Batch.ID)
		return err
	})

	s.EqualValues(1, res.Successes)
	s.EqualValues(5, res.Rejections)
	s.EqualValues(0, res.Errors)
	s.Equal(0, s.activeCount())

	got, err := s.service.GetBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	s.Equal(3, got.Batch.FlagsApplied)
}

// A failure while applying the third of five flags leaves every voter and
// the batch as they were.
func (s *RevisionSuite) TestCommitFailureRollsBackEverything() {
	dead := s.seedDeceased(5)
	dry, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)

	failing := &failingDeactivator{inner: s.voters, failOn: 3}
	_, err = s.newService(failing).CommitBatch(s.ctx, dry.Batch.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(3, failing.calls)

	for _, v := range dead {
		stored, err := s.voters.FindByID(s.ctx, v.ID)
		s.Require().NoError(err)
		s.True(stored.IsActive, "voter %s", v.ID)
	}
	after, err := s.service.GetBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	s.Equal(models.BatchDraft, after.Batch.Status)
	s.Zero(after.Batch.FlagsApplied)
	for _, f := range after.Flags {
		s.Equal(models.FlagPending, f.Status)
	}

	// The batch is still committable once the fault clears.
	result, err := s.service.CommitBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	s.Equal(5, result.FlagsApplied)
}

func (s *RevisionSuite) TestTamperedBatchFailsIntegrity() {
	s.seedDeceased(1)
	dry, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)

	_, err = s.pool.DB().Exec(`UPDATE revision_flags SET confidence = 0.1`)
	s.Require().NoError(err)

	_, err = s.service.CommitBatch(s.ctx, dry.Batch.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
	s.Equal(1, s.activeCount())
}

func (s *RevisionSuite) TestAlreadyInactiveVoterCountsAsApplied() {
	dead := s.seedDeceased(1)[0]
	dry, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)
	s.Require().NoError(s.voters.Deactivate(s.ctx, dead.ID, "moved", s.clock))

	result, err := s.service.CommitBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	s.Equal(1, result.FlagsApplied)

	stored, err := s.voters.FindByID(s.ctx, dead.ID)
	s.Require().NoError(err)
	s.Equal("moved", stored.DeactivationReason)
}

func (s *RevisionSuite) TestCancelBatch() {
	s.seedDeceased(1)
	dry, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)

	cancelled, err := s.service.CancelBatch(s.ctx, dry.Batch.ID, "wrong region")
	s.Require().NoError(err)
	s.Equal(models.BatchCancelled, cancelled.Status)
	s.NotNil(cancelled.CancelledAt)

	_, err = s.service.CommitBatch(s.ctx, dry.Batch.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	_, err = s.service.CancelBatch(s.ctx, dry.Batch.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	after, err := s.service.GetBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	s.Equal(models.FlagRejected, after.Flags[0].Status)
	s.Equal(1, s.activeCount())
}

func (s *RevisionSuite) TestCloseFlag() {
	s.seedVoter(withPhone("9111111111"))
	s.seedVoter(withPhone("9111111111"))
	dry, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)
	s.Require().Len(dry.Flags, 1)
	flagID := dry.Flags[0].ID

	_, err = s.service.CloseFlag(s.ctx, flagID, models.FlagPending, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	// Closing by hand keeps the draft committable.
	closed, err := s.service.CloseFlag(s.ctx, flagID, models.FlagResolved, "same person, merged")
	s.Require().NoError(err)
	s.Equal(models.FlagResolved, closed.Status)

	_, err = s.service.CloseFlag(s.ctx, flagID, models.FlagRejected, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	result, err := s.service.CommitBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)
	s.Zero(result.FlagsApplied)

	_, err = s.service.CloseFlag(s.ctx, id.RevisionFlagID(uuid.New()), models.FlagResolved, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RevisionSuite) TestPendingFlagOfCommittedBatchCanBeClosed() {
	s.seedVoter(withEmail("x@example.org"))
	s.seedVoter(withEmail("x@example.org"))
	dry, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)
	_, err = s.service.CommitBatch(s.ctx, dry.Batch.ID)
	s.Require().NoError(err)

	closed, err := s.service.CloseFlag(s.ctx, dry.Flags[0].ID, models.FlagRejected, "different people")
	s.Require().NoError(err)
	s.Equal(models.FlagRejected, closed.Status)
}

func (s *RevisionSuite) TestCommitUnknownBatch() {
	_, err := s.service.CommitBatch(s.ctx, id.BatchID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RevisionSuite) TestImportDeaths() {
	n, err := s.service.ImportDeaths(s.ctx, strings.NewReader(
		"KL/1,Ravi Menon,Menon,1950-01-01,2025-12-01,crs\nKL/2,,,,2026-01-02,\n"), "")
	s.Require().NoError(err)
	s.Equal(2, n)

	// Re-importing a row updates it in place.
	n, err = s.service.ImportDeaths(s.ctx, strings.NewReader("KL/1,Ravi Menon,Menon,1950-01-01,2025-12-02,crs\n"), "")
	s.Require().NoError(err)
	s.Equal(1, n)

	count, err := s.store.CountDeaths(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *RevisionSuite) TestImportDeathsRejectsBadRows() {
	cases := map[string]string{
		"missing identifier": ",Ravi,Menon,1950-01-01,2025-12-01,crs\n",
		"missing death date": "KL/1,Ravi,Menon,1950-01-01,,crs\n",
		"bad date":           "KL/1,Ravi,Menon,01/01/1950,2025-12-01,crs\n",
		"wrong column count": "KL/1,Ravi\n",
	}
	for name, body := range cases {
		s.Run(name, func() {
			_, err := s.service.ImportDeaths(s.ctx, strings.NewReader(body), "")
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func (s *RevisionSuite) TestListBatches() {
	_, err := s.service.RunDryRun(s.ctx, models.Scope{})
	s.Require().NoError(err)
	_, err = s.service.RunDryRun(s.ctx, models.Scope{Region: "KL-EKM"})
	s.Require().NoError(err)

	batches, err := s.service.ListBatches(s.ctx, models.BatchDraft, 10)
	s.Require().NoError(err)
	s.Require().Len(batches, 2)
	s.Equal("KL-EKM", batches[0].Region)

	_, err = s.service.ListBatches(s.ctx, "archived", 10)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
