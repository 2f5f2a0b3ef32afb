package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rollguard/internal/revision/models"
	"rollguard/internal/revision/store"
	"rollguard/internal/sentinel"
	id "rollguard/pkg/domain"
	"rollguard/pkg/testutil"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *store.Store
	now   time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.New(testutil.NewSQLitePool(s.T()))
	s.now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) insertBatch(createdAt time.Time) *models.Batch {
	b := &models.Batch{
		ID:              id.BatchID(uuid.New()),
		Region:          "MH-PUN",
		ScanCap:         100,
		Status:          models.BatchDraft,
		IntegrityDigest: "digest",
		CreatedBy:       "ero-1",
		CreatedAt:       createdAt,
	}
	s.Require().NoError(s.store.InsertBatch(s.ctx, b))
	return b
}

func (s *StoreSuite) insertFlag(batchID id.BatchID) *models.Flag {
	f := &models.Flag{
		ID:         id.RevisionFlagID(uuid.New()),
		BatchID:    batchID,
		VoterID:    id.VoterID(uuid.New()),
		Type:       models.FlagDeceased,
		Reason:     "death registry match",
		Confidence: 0.9,
		Status:     models.FlagPending,
		CreatedAt:  s.now,
		UpdatedAt:  s.now,
	}
	s.Require().NoError(s.store.InsertFlags(s.ctx, []*models.Flag{f}))
	return f
}

func (s *StoreSuite) TestBatchRoundTrip() {
	b := s.insertBatch(s.now)

	found, err := s.store.FindBatch(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(b.Region, found.Region)
	s.Equal(models.BatchDraft, found.Status)
	s.Nil(found.CommittedAt)

	committed := s.now.Add(time.Minute)
	found.Status = models.BatchCommitted
	found.CommittedAt = &committed
	found.FlagsApplied = 3
	s.Require().NoError(s.store.UpdateBatch(s.ctx, found))

	again, err := s.store.FindBatchForUpdate(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(models.BatchCommitted, again.Status)
	s.Equal(3, again.FlagsApplied)
	s.Require().NotNil(again.CommittedAt)
	s.True(committed.Equal(*again.CommittedAt))
}

func (s *StoreSuite) TestMissingBatch() {
	_, err := s.store.FindBatch(s.ctx, id.BatchID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.store.UpdateBatch(s.ctx, &models.Batch{ID: id.BatchID(uuid.New()), Status: models.BatchCancelled})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestListBatchesNewestFirst() {
	older := s.insertBatch(s.now)
	newer := s.insertBatch(s.now.Add(time.Hour))

	batches, err := s.store.ListBatches(s.ctx, "", 0)
	s.Require().NoError(err)
	s.Require().Len(batches, 2)
	s.Equal(newer.ID, batches[0].ID)
	s.Equal(older.ID, batches[1].ID)

	batches, err = s.store.ListBatches(s.ctx, models.BatchCommitted, 10)
	s.Require().NoError(err)
	s.Empty(batches)
}

func (s *StoreSuite) TestSetFlagStatusOnlyFromPending() {
	b := s.insertBatch(s.now)
	f := s.insertFlag(b.ID)

	s.Require().NoError(s.store.SetFlagStatus(s.ctx, f.ID, models.FlagApplied, s.now))
	err := s.store.SetFlagStatus(s.ctx, f.ID, models.FlagRejected, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	found, err := s.store.FindFlagForUpdate(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Equal(models.FlagApplied, found.Status)
	s.Nil(found.RelatedVoterID)
}

func (s *StoreSuite) TestRejectPendingSkipsSettledFlags() {
	b := s.insertBatch(s.now)
	settled := s.insertFlag(b.ID)
	s.insertFlag(b.ID)
	s.insertFlag(b.ID)
	s.Require().NoError(s.store.SetFlagStatus(s.ctx, settled.ID, models.FlagResolved, s.now))

	n, err := s.store.RejectPending(s.ctx, b.ID, s.now)
	s.Require().NoError(err)
	s.Equal(2, n)

	flags, err := s.store.ListFlags(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Len(flags, 3)
}

func (s *StoreSuite) TestUpsertDeathsReplacesRows() {
	rec := models.DeathRecord{UniqueIdentifier: "MH/7", LastName: "Patil", DateOfDeath: "2025-10-01", Source: "crs"}
	n, err := s.store.UpsertDeaths(s.ctx, []models.DeathRecord{rec}, s.now)
	s.Require().NoError(err)
	s.Equal(1, n)

	rec.DateOfDeath = "2025-10-02"
	_, err = s.store.UpsertDeaths(s.ctx, []models.DeathRecord{rec}, s.now)
	s.Require().NoError(err)

	count, err := s.store.CountDeaths(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}
