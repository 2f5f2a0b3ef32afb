package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rollguard/internal/outbox"
	"rollguard/internal/sentinel"
	"rollguard/pkg/testutil"
)

type StoreSuite struct {
	suite.Suite
	store *outbox.Store
	now   time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = outbox.NewStore(testutil.NewSQLitePool(s.T()))
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) append(offset time.Duration) *outbox.Entry {
	entry := outbox.NewEntry(outbox.AggregateAuditEntry, uuid.NewString(), "voter_registered",
		[]byte(`{"ok":true}`), s.now.Add(offset))
	s.Require().NoError(s.store.Append(context.Background(), entry))
	return entry
}

func (s *StoreSuite) TestFetchReturnsPendingOldestFirst() {
	ctx := context.Background()
	second := s.append(time.Minute)
	first := s.append(0)

	entries, err := s.store.FetchUnprocessed(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(first.ID, entries[0].ID)
	s.Equal(second.ID, entries[1].ID)
	s.True(entries[0].IsPending())
	s.Equal([]byte(`{"ok":true}`), entries[0].Payload)
}

func (s *StoreSuite) TestMarkProcessed() {
	ctx := context.Background()
	entry := s.append(0)

	s.Require().NoError(s.store.MarkProcessed(ctx, entry.ID, s.now))

	pending, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	s.Run("second mark reports not found", func() {
		err := s.store.MarkProcessed(ctx, entry.ID, s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StoreSuite) TestFetchHonoursLimit() {
	ctx := context.Background()
	for i := range 3 {
		s.append(time.Duration(i) * time.Second)
	}

	entries, err := s.store.FetchUnprocessed(ctx, 2)
	s.Require().NoError(err)
	s.Len(entries, 2)

	entries, err = s.store.FetchUnprocessed(ctx, 0)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *StoreSuite) TestDeleteProcessedBefore() {
	ctx := context.Background()
	old := s.append(0)
	recent := s.append(time.Minute)
	s.append(2 * time.Minute)

	s.Require().NoError(s.store.MarkProcessed(ctx, old.ID, s.now))
	s.Require().NoError(s.store.MarkProcessed(ctx, recent.ID, s.now.Add(48*time.Hour)))

	n, err := s.store.DeleteProcessedBefore(ctx, s.now.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, n)

	pending, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), pending)
}
