package sweep_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rollguard/internal/cluster/models"
	"rollguard/internal/cluster/sweep"
	"rollguard/internal/outbox"
	"rollguard/internal/platform/middleware"
	id "rollguard/pkg/domain"
	"rollguard/pkg/testutil"
)

type stubDetector struct {
	calls  atomic.Int32
	actor  atomic.Value
	result *models.Result
	err    error
}

func (d *stubDetector) DetectAddressClusters(ctx context.Context, _ *models.Thresholds) (*models.Result, error) {
	d.calls.Add(1)
	d.actor.Store(middleware.ActorFrom(ctx).ID)
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

func suspiciousFlag(digest string) *models.Flag {
	return &models.Flag{
		ID:            id.ClusterFlagID(uuid.New()),
		AddressDigest: digest,
		VoterCount:    22,
		RiskScore:     0.85,
		RiskLevel:     models.RiskCritical,
		Suspicious:    true,
		UpdatedAt:     time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
	}
}

type SweepSuite struct {
	suite.Suite
}

func TestSweepSuite(t *testing.T) {
	suite.Run(t, new(SweepSuite))
}

func (s *SweepSuite) TestRunOnceQueuesAlertsForNewlySuspicious() {
	flag := suspiciousFlag("a")
	det := &stubDetector{result: &models.Result{NewlySuspicious: []*models.Flag{flag}}}
	sched := sweep.NewScheduler(det)

	_, err := sched.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal("system", det.actor.Load())

	select {
	case alert := <-sched.Alerts():
		s.Equal(flag.ID, alert.FlagID)
		s.Equal(models.RiskCritical, alert.RiskLevel)
	default:
		s.Fail("expected an alert")
	}
}

func (s *SweepSuite) TestFullBufferDropsAlerts() {
	det := &stubDetector{result: &models.Result{NewlySuspicious: []*models.Flag{
		suspiciousFlag("a"), suspiciousFlag("b"), suspiciousFlag("c"),
	}}}
	sched := sweep.NewScheduler(det, sweep.WithBufferSize(1))

	_, err := sched.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Len(sched.Alerts(), 1)
}

func (s *SweepSuite) TestStartRunsUntilStop() {
	det := &stubDetector{result: &models.Result{}}
	sched := sweep.NewScheduler(det, sweep.WithInterval(5*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- sched.Start(context.Background()) }()

	s.Eventually(func() bool { return det.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	sched.Stop()
	sched.Stop()
	s.NoError(<-done)
}

func (s *SweepSuite) TestStartReturnsOnCancel() {
	det := &stubDetector{result: &models.Result{}}
	sched := sweep.NewScheduler(det, sweep.WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()
	cancel()
	s.ErrorIs(<-done, context.Canceled)
}

func (s *SweepSuite) TestDispatcherWritesOutbox() {
	pool := testutil.NewSQLitePool(s.T())
	store := outbox.NewStore(pool)
	alerts := make(chan models.Alert, 4)
	flag := suspiciousFlag("a")
	alerts <- models.AlertFor(flag)
	alerts <- models.AlertFor(suspiciousFlag("b"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	disp := sweep.NewDispatcher(alerts, store, nil)
	go func() { done <- disp.Start(ctx) }()

	s.Eventually(func() bool {
		n, err := store.CountPending(context.Background())
		return err == nil && n == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	s.NoError(<-done)

	entries, err := store.FetchUnprocessed(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(outbox.AggregateClusterAlert, entries[0].AggregateType)

	var decoded models.Alert
	s.Require().NoError(json.Unmarshal(entries[0].Payload, &decoded))
	s.Equal(entries[0].AggregateID, decoded.FlagID.String())
}
