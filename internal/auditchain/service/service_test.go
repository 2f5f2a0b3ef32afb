package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rollguard/internal/auditchain/models"
	"rollguard/internal/auditchain/service"
	"rollguard/internal/auditchain/store"
	"rollguard/internal/outbox"
	"rollguard/internal/platform/database"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/testutil"
)

type ChainSuite struct {
	suite.Suite
	pool     *database.Pool
	outbox   *outbox.Store
	recorder *service.Recorder
	verifier *service.Verifier
	clock    time.Time
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	s.pool = testutil.NewSQLitePool(s.T())
	s.outbox = outbox.NewStore(s.pool)
	s.clock = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	st := store.New(s.pool)
	tx := database.NewTxRunner(s.pool, 0)
	s.recorder = service.NewRecorder(st, tx,
		service.WithOutbox(s.outbox),
		service.WithNow(s.tick),
	)
	s.verifier = service.NewVerifier(st, tx, nil, service.WithNow(s.tick))
}

func (s *ChainSuite) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *ChainSuite) recordN(n int) []*models.Entry {
	entries := make([]*models.Entry, 0, n)
	for i := range n {
		entry, err := s.recorder.Record(context.Background(), models.Event{
			Action:     models.ActionVoterRegistered,
			EntityType: models.EntityVoter,
			EntityID:   uuid.NewString(),
			Actor:      "registrar-7",
			Details:    map[string]int{"ordinal": i},
		})
		s.Require().NoError(err)
		entries = append(entries, entry)
	}
	return entries
}

func (s *ChainSuite) exec(query string, args ...any) {
	_, err := s.pool.DB().ExecContext(context.Background(), query, args...)
	s.Require().NoError(err)
}

func (s *ChainSuite) TestRecordLinksEntries() {
	entries := s.recordN(3)

	s.Equal(models.GenesisHash, entries[0].PreviousHash)
	for i := 1; i < len(entries); i++ {
		s.Equal(int64(i+1), entries[i].Seq)
		s.Equal(entries[i-1].EntryHash, entries[i].PreviousHash)
	}

	pending, err := s.outbox.CountPending(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(3), pending)
}

func (s *ChainSuite) TestRecordRejectsIncompleteEvent() {
	_, err := s.recorder.Record(context.Background(), models.Event{EntityType: models.EntityVoter})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ChainSuite) TestRecordDefaultsToSystemActor() {
	entry, err := s.recorder.Record(context.Background(), models.Event{
		Action:     models.ActionDeathsImported,
		EntityType: models.EntityDeathRegistry,
		EntityID:   "import",
	})
	s.Require().NoError(err)
	s.Equal("system", entry.Actor)
	s.Equal("{}", entry.Details)
}

func (s *ChainSuite) TestUntamperedChainIsHealthy() {
	s.recordN(5)

	result, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Equal(5, result.TotalBlocks)
	s.Zero(result.InvalidBlocks)
	s.Zero(result.FirstInvalidSeq)
	s.False(result.HeadMismatch)
	s.Equal(models.ChainHealthy, result.ChainHealth)
}

func (s *ChainSuite) TestEmptyChainIsHealthy() {
	result, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Zero(result.TotalBlocks)
	s.Equal(models.ChainHealthy, result.ChainHealth)
}

// Editing a stored entry invalidates it and every entry after it.
func (s *ChainSuite) TestTamperedDetailsCompromiseChain() {
	s.recordN(5)
	s.exec(`UPDATE audit_log SET details = '{"ordinal":99}' WHERE seq = 3`)

	result, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Equal(5, result.TotalBlocks)
	s.Equal(3, result.InvalidBlocks)
	s.Equal(int64(3), result.FirstInvalidSeq)
	s.Equal(models.ChainCompromised, result.ChainHealth)

	blocks, err := s.verifier.Blocks(context.Background(), result.VerificationID)
	s.Require().NoError(err)
	s.Require().Len(blocks, 5)
	for _, b := range blocks {
		s.Equal(b.Seq < 3, b.IsValid, "block %d", b.Seq)
	}
}

// Re-hashing a forged entry moves the break to its successor.
func (s *ChainSuite) TestRehashedForgeryDetectedAtSuccessor() {
	entries := s.recordN(4)

	forged := *entries[1]
	forged.Actor = "someone-else"
	forged.EntryHash = forged.ComputeHash(forged.PreviousHash)
	s.exec(fmt.Sprintf(`UPDATE audit_log SET actor = '%s', entry_hash = '%s' WHERE seq = 2`,
		forged.Actor, forged.EntryHash))

	result, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(3), result.FirstInvalidSeq)
	s.Equal(2, result.InvalidBlocks)
	s.Equal(models.ChainCompromised, result.ChainHealth)
}

// Verification is read-only with respect to the log.
func (s *ChainSuite) TestVerifyNeverRepairs() {
	s.recordN(3)
	s.exec(`UPDATE audit_log SET entity_id = 'forged' WHERE seq = 1`)

	first, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	second, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)

	s.Equal(first.InvalidBlocks, second.InvalidBlocks)
	s.NotEqual(first.VerificationID, second.VerificationID)

	var entityID string
	s.Require().NoError(s.pool.DB().QueryRow(`SELECT entity_id FROM audit_log WHERE seq = 1`).Scan(&entityID))
	s.Equal("forged", entityID)
}

// Removing trailing entries leaves every remaining block valid, so only
// the recorded head reveals it.
func (s *ChainSuite) TestTruncatedTailCompromisesChain() {
	s.recordN(5)
	s.exec(`DELETE FROM audit_log WHERE seq = 5`)

	result, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Equal(4, result.TotalBlocks)
	s.Equal(1, result.InvalidBlocks)
	s.Equal(int64(5), result.FirstInvalidSeq)
	s.True(result.HeadMismatch)
	s.Equal(models.ChainCompromised, result.ChainHealth)

	blocks, err := s.verifier.Blocks(context.Background(), result.VerificationID)
	s.Require().NoError(err)
	s.Require().Len(blocks, 4)
	for _, b := range blocks {
		s.True(b.IsValid, "block %d", b.Seq)
	}
}

func (s *ChainSuite) TestEmptiedLogCompromisesChain() {
	s.recordN(3)
	s.exec(`DELETE FROM audit_log`)

	result, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Zero(result.TotalBlocks)
	s.Equal(int64(1), result.FirstInvalidSeq)
	s.True(result.HeadMismatch)
	s.Equal(models.ChainCompromised, result.ChainHealth)
}

// A rehashed forgery of the newest entry has no successor to expose it.
func (s *ChainSuite) TestRehashedTailForgeryCompromisesChain() {
	entries := s.recordN(3)

	forged := *entries[2]
	forged.Actor = "someone-else"
	forged.EntryHash = forged.ComputeHash(forged.PreviousHash)
	s.exec(fmt.Sprintf(`UPDATE audit_log SET actor = '%s', entry_hash = '%s' WHERE seq = 3`,
		forged.Actor, forged.EntryHash))

	result, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Equal(1, result.InvalidBlocks)
	s.Equal(int64(3), result.FirstInvalidSeq)
	s.True(result.HeadMismatch)
	s.Equal(models.ChainCompromised, result.ChainHealth)
}

func (s *ChainSuite) TestBackwardsClockKeepsOrder() {
	rewind := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	tx := database.NewTxRunner(s.pool, 0)
	rec := service.NewRecorder(store.New(s.pool), tx, service.WithNow(func() time.Time {
		rewind = rewind.Add(-time.Minute)
		return rewind
	}))

	var prev time.Time
	for range 3 {
		entry, err := rec.Record(context.Background(), models.Event{
			Action: models.ActionTaskCreated, EntityType: models.EntityReviewTask, EntityID: "t",
		})
		s.Require().NoError(err)
		s.False(entry.OccurredAt.Before(prev))
		prev = entry.OccurredAt
	}

	result, err := s.verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Equal(models.ChainHealthy, result.ChainHealth)
}

func (s *ChainSuite) TestVerificationRecordedOnChain() {
	s.recordN(2)
	st := store.New(s.pool)
	verifier := service.NewVerifier(st, database.NewTxRunner(s.pool, 0), s.recorder)

	first, err := verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Equal(2, first.TotalBlocks)

	history, err := s.recorder.History(context.Background(), models.EntityAuditChain, first.VerificationID.String())
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(models.ActionChainVerified, history[0].Action)

	second, err := verifier.VerifyHashChain(context.Background())
	s.Require().NoError(err)
	s.Equal(3, second.TotalBlocks)
	s.Equal(models.ChainHealthy, second.ChainHealth)
}

func (s *ChainSuite) TestBlocksUnknownVerification() {
	_, err := s.verifier.Blocks(context.Background(), id.VerificationID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
