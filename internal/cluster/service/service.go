// Package service detects suspicious concentrations of voters at a single
// address and manages the resulting flags.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	auditmodels "rollguard/internal/auditchain/models"
	"rollguard/internal/cluster/metrics"
	"rollguard/internal/cluster/models"
	"rollguard/internal/platform/middleware"
	reviewmodels "rollguard/internal/review/models"
	"rollguard/internal/sentinel"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/middleware/requesttime"
)

// Store persists flags. Error contract: Find* and Update return
// sentinel.ErrNotFound; InsertIfAbsent reports false when the digest is
// already flagged.
type Store interface {
	ActiveGroups(ctx context.Context, minSize int) ([]models.Group, error)
	Stale(ctx context.Context, minSize int) ([]models.StaleFlag, error)
	FindByDigestForUpdate(ctx context.Context, digest string) (*models.Flag, error)
	FindByID(ctx context.Context, flagID id.ClusterFlagID) (*models.Flag, error)
	FindByIDForUpdate(ctx context.Context, flagID id.ClusterFlagID) (*models.Flag, error)
	InsertIfAbsent(ctx context.Context, f *models.Flag) (bool, error)
	Update(ctx context.Context, f *models.Flag) error
	List(ctx context.Context, status models.Status, limit int) ([]*models.Flag, error)
}

// ReviewQueue opens review tasks for suspicious flags.
type ReviewQueue interface {
	HasActiveForClusterFlag(ctx context.Context, flagID id.ClusterFlagID) (bool, error)
	CreateTask(ctx context.Context, req reviewmodels.CreateRequest) (*reviewmodels.Task, error)
}

// AuditRecorder appends to the hash-chained audit log.
type AuditRecorder interface {
	Record(ctx context.Context, ev auditmodels.Event) (*auditmodels.Entry, error)
}

// TxRunner runs fn in a transaction published through ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service is the cluster anomaly detector.
type Service struct {
	store      Store
	review     ReviewQueue
	audit      AuditRecorder
	tx         TxRunner
	thresholds models.Thresholds
	running    atomic.Bool
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func(ctx context.Context) time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithThresholds replaces the default risk model.
func WithThresholds(t models.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = func(context.Context) time.Time { return now() }
		}
	}
}

func New(store Store, review ReviewQueue, audit AuditRecorder, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		store:      store,
		review:     review,
		audit:      audit,
		tx:         tx,
		thresholds: models.DefaultThresholds(),
		logger:     slog.Default(),
		now:        requesttime.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Thresholds returns the configured risk model.
func (s *Service) Thresholds() models.Thresholds {
	return s.thresholds
}

// DetectAddressClusters scores every qualifying address group and upserts
// one flag per digest in a single transaction. Flags already resolved or
// marked false positive are left alone. A flag that becomes suspicious
// gets an address_cluster review task in the same transaction. Unresolved
// flags whose address fell below the low threshold are dissolved: their
// voter count is refreshed and they drop to low risk.
//
// Overlapping runs in this process are rejected with CodeConflict. Running
// twice over unchanged data writes nothing the second time.
func (s *Service) DetectAddressClusters(ctx context.Context, override *models.Thresholds) (*models.Result, error) {
	th := s.thresholds
	if override != nil {
		th = *override
	}
	if err := th.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid cluster thresholds")
	}

	if !s.running.CompareAndSwap(false, true) {
		s.incRun("in_flight")
		return nil, dErrors.Wrap(sentinel.ErrInFlight, dErrors.CodeConflict, "cluster detection already running")
	}
	defer s.running.Store(false)

	start := time.Now()
	result := &models.Result{}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		*result = models.Result{}
		groups, err := s.store.ActiveGroups(ctx, th.Low)
		if err != nil {
			return err
		}
		now := s.now(ctx).UTC().Truncate(time.Microsecond)
		for _, g := range groups {
			if err := s.upsert(ctx, th, g, now, result); err != nil {
				return err
			}
		}
		stale, err := s.store.Stale(ctx, th.Low)
		if err != nil {
			return err
		}
		for _, sf := range stale {
			if err := s.dissolve(ctx, sf, now, result); err != nil {
				return err
			}
		}
		_, err = s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionClusterSweepRun,
			EntityType: auditmodels.EntityClusterFlag,
			EntityID:   "*",
			Actor:      middleware.ActorFrom(ctx).ID,
			Details: map[string]int{
				"groups":          len(groups),
				"flags_created":   result.FlagsCreated,
				"flags_updated":   result.FlagsUpdated,
				"flags_unchanged": result.FlagsUnchanged,
				"flags_skipped":   result.FlagsSkipped,
				"flags_dissolved": result.FlagsDissolved,
				"tasks_opened":    result.TasksOpened,
			},
		})
		return err
	})
	if s.metrics != nil {
		s.metrics.ObserveRun(time.Since(start).Seconds())
	}
	if err != nil {
		s.incRun("error")
		return nil, translate(err, "cluster detection failed")
	}

	s.incRun("ok")
	s.recordLevels(result)
	s.logger.InfoContext(ctx, "cluster detection completed",
		"flags_created", result.FlagsCreated,
		"flags_updated", result.FlagsUpdated,
		"flags_skipped", result.FlagsSkipped,
		"flags_dissolved", result.FlagsDissolved,
		"tasks_opened", result.TasksOpened,
	)
	return result, nil
}

func (s *Service) upsert(ctx context.Context, th models.Thresholds, g models.Group, now time.Time, result *models.Result) error {
	score, level, factors := th.Assess(g)

	existing, err := s.store.FindByDigestForUpdate(ctx, g.AddressDigest)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}

	var flag *models.Flag
	wasSuspicious := false
	if existing == nil {
		candidate := &models.Flag{
			ID:            id.ClusterFlagID(uuid.New()),
			AddressDigest: g.AddressDigest,
			VoterCount:    len(g.Members),
			RiskScore:     score,
			RiskLevel:     level,
			Suspicious:    level.Suspicious(),
			Status:        models.StatusOpen,
			Factors:       factors,
			DetectedAt:    now,
			UpdatedAt:     now,
		}
		inserted, err := s.store.InsertIfAbsent(ctx, candidate)
		if err != nil {
			return err
		}
		if inserted {
			flag = candidate
			result.FlagsCreated++
			s.incUpsert("created")
		} else {
			// A concurrent run flagged the digest first; reassess its row.
			existing, err = s.store.FindByDigestForUpdate(ctx, g.AddressDigest)
			if err != nil {
				return err
			}
		}
	}

	switch {
	case flag != nil:
	case existing.Status.IsTerminal():
		result.FlagsSkipped++
		return nil
	case existing.VoterCount == len(g.Members) && existing.RiskScore == score &&
		existing.Factors == factors && existing.Suspicious == level.Suspicious():
		result.FlagsUnchanged++
		result.Flags = append(result.Flags, existing)
		return nil
	default:
		flag = existing
		wasSuspicious = existing.Suspicious
		flag.VoterCount = len(g.Members)
		flag.RiskScore = score
		flag.RiskLevel = level
		flag.Suspicious = level.Suspicious()
		flag.Factors = factors
		flag.UpdatedAt = now
		if err := s.store.Update(ctx, flag); err != nil {
			return err
		}
		result.FlagsUpdated++
		s.incUpsert("updated")
	}
	result.Flags = append(result.Flags, flag)

	_, err = s.audit.Record(ctx, auditmodels.Event{
		Action:     auditmodels.ActionClusterFlagUpserted,
		EntityType: auditmodels.EntityClusterFlag,
		EntityID:   flag.ID.String(),
		Actor:      middleware.ActorFrom(ctx).ID,
		Details: map[string]any{
			"address_digest": flag.AddressDigest,
			"voter_count":    flag.VoterCount,
			"risk_score":     flag.RiskScore,
			"risk_level":     flag.RiskLevel,
		},
	})
	if err != nil {
		return err
	}

	if !flag.Suspicious || wasSuspicious {
		return nil
	}
	result.NewlySuspicious = append(result.NewlySuspicious, flag)
	return s.openTask(ctx, flag, result)
}

func (s *Service) dissolve(ctx context.Context, sf models.StaleFlag, now time.Time, result *models.Result) error {
	current := sf.Flag
	if current.VoterCount == sf.ActiveVoters && current.RiskLevel == models.RiskLow &&
		current.RiskScore == 0 && !current.Suspicious {
		result.FlagsUnchanged++
		return nil
	}
	flag, err := s.store.FindByIDForUpdate(ctx, current.ID)
	if err != nil {
		return err
	}
	if flag.Status.IsTerminal() {
		result.FlagsSkipped++
		return nil
	}
	previous := flag.RiskLevel
	flag.VoterCount = sf.ActiveVoters
	flag.RiskScore = 0
	flag.RiskLevel = models.RiskLow
	flag.Suspicious = false
	flag.Factors = models.Factors{}
	flag.UpdatedAt = now
	if err := s.store.Update(ctx, flag); err != nil {
		return err
	}
	result.FlagsDissolved++
	result.Flags = append(result.Flags, flag)
	s.incUpsert("dissolved")

	_, err = s.audit.Record(ctx, auditmodels.Event{
		Action:     auditmodels.ActionClusterDissolved,
		EntityType: auditmodels.EntityClusterFlag,
		EntityID:   flag.ID.String(),
		Actor:      middleware.ActorFrom(ctx).ID,
		Details: map[string]any{
			"address_digest":      flag.AddressDigest,
			"voter_count":         flag.VoterCount,
			"previous_risk_level": previous,
		},
	})
	return err
}

func (s *Service) openTask(ctx context.Context, flag *models.Flag, result *models.Result) error {
	active, err := s.review.HasActiveForClusterFlag(ctx, flag.ID)
	if err != nil || active {
		return err
	}
	priority := reviewmodels.PriorityHigh
	if flag.RiskLevel == models.RiskCritical {
		priority = reviewmodels.PriorityCritical
	}
	flagID := flag.ID
	_, err = s.review.CreateTask(ctx, reviewmodels.CreateRequest{
		Type:          reviewmodels.TypeAddressCluster,
		ClusterFlagID: &flagID,
		Priority:      priority,
		Evidence: reviewmodels.ForAddressCluster(reviewmodels.AddressClusterEvidence{
			AddressDigest: flag.AddressDigest,
			VoterCount:    flag.VoterCount,
			RiskScore:     flag.RiskScore,
			RiskLevel:     string(flag.RiskLevel),
			Factors:       flag.Factors.AsMap(),
		}),
	})
	if err != nil {
		return err
	}
	result.TasksOpened++
	return nil
}

// GetFlag returns one flag.
func (s *Service) GetFlag(ctx context.Context, flagID id.ClusterFlagID) (*models.Flag, error) {
	f, err := s.store.FindByID(ctx, flagID)
	if err != nil {
		return nil, translate(err, "cluster flag not found")
	}
	return f, nil
}

// ListFlags returns flags in status (all when empty), riskiest first.
func (s *Service) ListFlags(ctx context.Context, status models.Status, limit int) ([]*models.Flag, error) {
	if status != "" && !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown cluster flag status")
	}
	flags, err := s.store.List(ctx, status, limit)
	if err != nil {
		return nil, translate(err, "failed to list cluster flags")
	}
	return flags, nil
}

// ReopenFlag returns a resolved or false-positive flag to open so the next
// detection run reassesses it.
func (s *Service) ReopenFlag(ctx context.Context, flagID id.ClusterFlagID, reason string) (*models.Flag, error) {
	var flag *models.Flag
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.store.FindByIDForUpdate(ctx, flagID)
		if err != nil {
			return err
		}
		if !f.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeInvalidState, "only resolved or false-positive flags can be reopened")
		}
		previous := f.Status
		f.Status = models.StatusOpen
		f.Suspicious = false
		f.UpdatedAt = s.now(ctx).UTC().Truncate(time.Microsecond)
		if err := s.store.Update(ctx, f); err != nil {
			return err
		}
		flag = f
		_, err = s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionClusterFlagReopened,
			EntityType: auditmodels.EntityClusterFlag,
			EntityID:   f.ID.String(),
			Actor:      middleware.ActorFrom(ctx).ID,
			Details:    map[string]string{"previous_status": string(previous), "reason": reason},
		})
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to reopen cluster flag")
	}
	return flag, nil
}

func (s *Service) incRun(outcome string) {
	if s.metrics != nil {
		s.metrics.IncRun(outcome)
	}
}

func (s *Service) incUpsert(change string) {
	if s.metrics != nil {
		s.metrics.IncUpsert(change)
	}
}

func (s *Service) recordLevels(result *models.Result) {
	if s.metrics == nil {
		return
	}
	counts := map[string]int{}
	for _, f := range result.Flags {
		counts[string(f.RiskLevel)]++
	}
	s.metrics.SetLevels(counts)
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
