// Package service implements revision batches: a dry run proposes
// roll-wide changes as a draft batch, and a commit applies the findings
// the policy table marks as auto-eligible, all or nothing.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	auditmodels "rollguard/internal/auditchain/models"
	"rollguard/internal/platform/middleware"
	"rollguard/internal/revision/metrics"
	"rollguard/internal/revision/models"
	"rollguard/internal/sentinel"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/middleware/requesttime"
	platformsync "rollguard/pkg/platform/sync"
)

const (
	defaultScanCap = 1000
	maxScanCap     = 10000
)

// Store persists batches and runs the scans. Error contract: Find* return
// sentinel.ErrNotFound; SetFlagStatus returns sentinel.ErrInvalidState for
// a flag that is no longer pending.
type Store interface {
	InsertBatch(ctx context.Context, b *models.Batch) error
	FindBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
	FindBatchForUpdate(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
	UpdateBatch(ctx context.Context, b *models.Batch) error
	ListBatches(ctx context.Context, status models.BatchStatus, limit int) ([]*models.Batch, error)
	InsertFlags(ctx context.Context, flags []*models.Flag) error
	ListFlags(ctx context.Context, batchID id.BatchID) ([]*models.Flag, error)
	FindFlagForUpdate(ctx context.Context, flagID id.RevisionFlagID) (*models.Flag, error)
	SetFlagStatus(ctx context.Context, flagID id.RevisionFlagID, status models.FlagStatus, now time.Time) error
	RejectPending(ctx context.Context, batchID id.BatchID, now time.Time) (int, error)
	ScanDuplicates(ctx context.Context, scope models.Scope, limit int) ([]models.DuplicateMatch, error)
	ScanDeceased(ctx context.Context, scope models.Scope, limit int) ([]models.DeceasedMatch, error)
	UpsertDeaths(ctx context.Context, records []models.DeathRecord, now time.Time) (int, error)
}

// VoterDeactivator applies deactivations. An already inactive voter yields
// sentinel.ErrInvalidState.
type VoterDeactivator interface {
	Deactivate(ctx context.Context, voterID id.VoterID, reason string, now time.Time) error
}

type AuditRecorder interface {
	Record(ctx context.Context, ev auditmodels.Event) (*auditmodels.Entry, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	store   Store
	voters  VoterDeactivator
	audit   AuditRecorder
	tx      TxRunner
	policy  models.Policy
	scanCap int
	locks   *platformsync.ShardedMutex
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func(ctx context.Context) time.Time
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

// WithPolicy replaces the auto-apply table.
func WithPolicy(p models.Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithScanCap sets the per-scan finding cap used when a scope leaves it
// unset.
func WithScanCap(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.scanCap = min(limit, maxScanCap)
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = func(context.Context) time.Time { return now() }
		}
	}
}

func New(store Store, voters VoterDeactivator, audit AuditRecorder, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		store:   store,
		voters:  voters,
		audit:   audit,
		tx:      tx,
		policy:  models.DefaultPolicy(),
		scanCap: defaultScanCap,
		locks:   platformsync.NewShardedMutex(),
		logger:  slog.Default(),
		now:     requesttime.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunDryRun scans the roll within scope and stores the findings as a draft
// batch. Voter records are never touched.
func (s *Service) RunDryRun(ctx context.Context, scope models.Scope) (*models.DryRunResult, error) {
	if err := s.normalizeScope(&scope); err != nil {
		return nil, err
	}

	result := &models.DryRunResult{}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.now(ctx).UTC().Truncate(time.Microsecond)
		batch := &models.Batch{
			ID:        id.BatchID(uuid.New()),
			Region:    scope.Region,
			RangeFrom: scope.From,
			RangeTo:   scope.To,
			ScanCap:   scope.ScanCap,
			Status:    models.BatchDraft,
			CreatedBy: middleware.ActorFrom(ctx).ID,
			CreatedAt: now,
		}

		duplicates, err := s.store.ScanDuplicates(ctx, scope, scope.ScanCap)
		if err != nil {
			return err
		}
		deceased, err := s.store.ScanDeceased(ctx, scope, scope.ScanCap)
		if err != nil {
			return err
		}

		flags := make([]*models.Flag, 0, len(duplicates)+len(deceased))
		for _, m := range duplicates {
			flags = append(flags, duplicateFlag(batch.ID, m, now))
		}
		for _, m := range deceased {
			flags = append(flags, deceasedFlag(batch.ID, m, now))
		}

		batch.IntegrityDigest = batch.ComputeDigest(flags)
		if err := s.store.InsertBatch(ctx, batch); err != nil {
			return err
		}
		if err := s.store.InsertFlags(ctx, flags); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionBatchDryRun,
			EntityType: auditmodels.EntityRevisionBatch,
			EntityID:   batch.ID.String(),
			Actor:      batch.CreatedBy,
			Details: map[string]any{
				"region":           batch.Region,
				"scan_cap":         batch.ScanCap,
				"duplicates":       len(duplicates),
				"deceased":         len(deceased),
				"integrity_digest": batch.IntegrityDigest,
			},
		})
		if err != nil {
			return err
		}
		result.Batch = batch
		result.Flags = flags
		return nil
	})
	if err != nil {
		return nil, translate(err, "revision dry run failed")
	}

	if s.metrics != nil {
		s.metrics.IncDryRun()
		counts := map[models.FlagType]int{}
		for _, f := range result.Flags {
			counts[f.Type]++
		}
		for t, n := range counts {
			s.metrics.IncEmitted(string(t), n)
		}
	}
	s.logger.InfoContext(ctx, "revision dry run completed",
		"batch_id", result.Batch.ID.String(),
		"flags", len(result.Flags),
	)
	return result, nil
}

// CommitBatch applies a draft batch. The batch content must still match
// its integrity digest. Pending flags whose type the policy marks eligible
// are applied and marked applied; the rest stay pending. Either every
// change lands together with the status change or none does.
func (s *Service) CommitBatch(ctx context.Context, batchID id.BatchID) (*models.CommitResult, error) {
	// SQLite has no row locks; serialize transitions of one batch in-process.
	s.locks.Lock(batchID.String())
	defer s.locks.Unlock(batchID.String())

	var result *models.CommitResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		batch, err := s.store.FindBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchDraft {
			return dErrors.New(dErrors.CodeInvalidState, "batch is "+string(batch.Status)+", only draft batches can be committed")
		}
		flags, err := s.store.ListFlags(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.ComputeDigest(flags) != batch.IntegrityDigest {
			return dErrors.New(dErrors.CodeIntegrity, "batch content no longer matches its integrity digest")
		}

		now := s.now(ctx).UTC().Truncate(time.Microsecond)
		actor := middleware.ActorFrom(ctx).ID
		applied := 0
		for _, f := range flags {
			if f.Status != models.FlagPending {
				continue
			}
			action, ok := s.policy.Eligible(f.Type)
			if !ok {
				continue
			}
			if err := s.apply(ctx, f, action, actor, now); err != nil {
				return fmt.Errorf("apply flag %s: %w", f.ID, err)
			}
			if err := s.store.SetFlagStatus(ctx, f.ID, models.FlagApplied, now); err != nil {
				return err
			}
			applied++
		}

		batch.Status = models.BatchCommitted
		batch.CommittedAt = &now
		batch.FlagsApplied = applied
		if err := s.store.UpdateBatch(ctx, batch); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionBatchCommitted,
			EntityType: auditmodels.EntityRevisionBatch,
			EntityID:   batch.ID.String(),
			Actor:      actor,
			Details:    map[string]int{"flags_applied": applied, "flags_total": len(flags)},
		})
		if err != nil {
			return err
		}
		result = &models.CommitResult{BatchID: batch.ID, FlagsApplied: applied, Status: batch.Status}
		return nil
	})
	if err != nil {
		s.incCommit(commitOutcome(err))
		return nil, translate(err, "revision commit failed")
	}

	s.incCommit("committed")
	if s.metrics != nil {
		s.metrics.AddApplied(result.FlagsApplied)
	}
	s.logger.InfoContext(ctx, "revision batch committed",
		"batch_id", batchID.String(),
		"flags_applied", result.FlagsApplied,
	)
	return result, nil
}

func (s *Service) apply(ctx context.Context, f *models.Flag, action models.AutoAction, actor string, now time.Time) error {
	switch action {
	case models.ActionDeactivateVoter:
		reason := fmt.Sprintf("revision batch %s: %s", f.BatchID, f.Reason)
		err := s.voters.Deactivate(ctx, f.VoterID, reason, now)
		if errors.Is(err, sentinel.ErrInvalidState) {
			s.logger.WarnContext(ctx, "voter already inactive", "voter_id", f.VoterID.String(), "flag_id", f.ID.String())
			return nil
		}
		if err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionVoterDeactivated,
			EntityType: auditmodels.EntityVoter,
			EntityID:   f.VoterID.String(),
			Actor:      actor,
			Details:    map[string]string{"batch_id": f.BatchID.String(), "flag_id": f.ID.String(), "reason": f.Reason},
		})
		return err
	default:
		return fmt.Errorf("unsupported auto action %q", action)
	}
}

// CancelBatch abandons a draft batch and rejects its pending flags.
func (s *Service) CancelBatch(ctx context.Context, batchID id.BatchID, reason string) (*models.Batch, error) {
	s.locks.Lock(batchID.String())
	defer s.locks.Unlock(batchID.String())

	var batch *models.Batch
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.store.FindBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b.Status != models.BatchDraft {
			return dErrors.New(dErrors.CodeInvalidState, "batch is "+string(b.Status)+", only draft batches can be cancelled")
		}
		now := s.now(ctx).UTC().Truncate(time.Microsecond)
		rejected, err := s.store.RejectPending(ctx, batchID, now)
		if err != nil {
			return err
		}
		b.Status = models.BatchCancelled
		b.CancelledAt = &now
		if err := s.store.UpdateBatch(ctx, b); err != nil {
			return err
		}
		batch = b
		_, err = s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionBatchCancelled,
			EntityType: auditmodels.EntityRevisionBatch,
			EntityID:   b.ID.String(),
			Actor:      middleware.ActorFrom(ctx).ID,
			Details:    map[string]any{"reason": reason, "flags_rejected": rejected},
		})
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to cancel revision batch")
	}
	return batch, nil
}

// CloseFlag settles a pending flag by hand as resolved or rejected. The
// batch must be draft or committed.
func (s *Service) CloseFlag(ctx context.Context, flagID id.RevisionFlagID, status models.FlagStatus, notes string) (*models.Flag, error) {
	if status != models.FlagResolved && status != models.FlagRejected {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "flags can only be closed as resolved or rejected")
	}

	var flag *models.Flag
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.store.FindFlagForUpdate(ctx, flagID)
		if err != nil {
			return err
		}
		batch, err := s.store.FindBatch(ctx, f.BatchID)
		if err != nil {
			return err
		}
		if batch.Status == models.BatchCancelled {
			return dErrors.New(dErrors.CodeInvalidState, "flags of a cancelled batch cannot be closed")
		}
		if f.Status != models.FlagPending {
			return dErrors.New(dErrors.CodeInvalidState, "flag is "+string(f.Status)+", only pending flags can be closed")
		}
		now := s.now(ctx).UTC().Truncate(time.Microsecond)
		if err := s.store.SetFlagStatus(ctx, f.ID, status, now); err != nil {
			return err
		}
		f.Status = status
		f.UpdatedAt = now
		flag = f
		_, err = s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionRevisionFlagClosed,
			EntityType: auditmodels.EntityRevisionFlag,
			EntityID:   f.ID.String(),
			Actor:      middleware.ActorFrom(ctx).ID,
			Details:    map[string]string{"status": string(status), "notes": notes, "batch_id": f.BatchID.String()},
		})
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to close revision flag")
	}
	return flag, nil
}

// GetBatch returns a batch with its flags.
func (s *Service) GetBatch(ctx context.Context, batchID id.BatchID) (*models.DryRunResult, error) {
	batch, err := s.store.FindBatch(ctx, batchID)
	if err != nil {
		return nil, translate(err, "revision batch not found")
	}
	flags, err := s.store.ListFlags(ctx, batchID)
	if err != nil {
		return nil, translate(err, "failed to list revision flags")
	}
	return &models.DryRunResult{Batch: batch, Flags: flags}, nil
}

// ListBatches returns recent batches, optionally filtered by status.
func (s *Service) ListBatches(ctx context.Context, status models.BatchStatus, limit int) ([]*models.Batch, error) {
	if status != "" && !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown batch status")
	}
	batches, err := s.store.ListBatches(ctx, status, limit)
	if err != nil {
		return nil, translate(err, "failed to list revision batches")
	}
	return batches, nil
}

func (s *Service) normalizeScope(scope *models.Scope) error {
	scope.Region = strings.TrimSpace(scope.Region)
	if scope.From != nil && scope.To != nil && !scope.From.Before(*scope.To) {
		return dErrors.New(dErrors.CodeInvalidInput, "scope start must be before its end")
	}
	if scope.From != nil {
		t := scope.From.UTC().Truncate(time.Microsecond)
		scope.From = &t
	}
	if scope.To != nil {
		t := scope.To.UTC().Truncate(time.Microsecond)
		scope.To = &t
	}
	switch {
	case scope.ScanCap == 0:
		scope.ScanCap = s.scanCap
	case scope.ScanCap < 0 || scope.ScanCap > maxScanCap:
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("scan cap must be between 1 and %d", maxScanCap))
	}
	return nil
}

// Per-field confidence that two records sharing it are the same person.
var duplicateWeights = map[string]float64{
	"unique_identifier": 0.95,
	"email":             0.7,
	"phone":             0.6,
}

func duplicateFlag(batchID id.BatchID, m models.DuplicateMatch, now time.Time) *models.Flag {
	miss := 1.0
	for _, field := range m.MatchedOn {
		miss *= 1 - duplicateWeights[field]
	}
	related := m.RelatedVoterID
	return &models.Flag{
		ID:             id.RevisionFlagID(uuid.New()),
		BatchID:        batchID,
		VoterID:        m.VoterID,
		RelatedVoterID: &related,
		Type:           models.FlagDuplicate,
		Reason:         fmt.Sprintf("shares %s with voter %s", strings.Join(m.MatchedOn, ", "), m.RelatedVoterID),
		Confidence:     round(1 - miss),
		Status:         models.FlagPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func deceasedFlag(batchID id.BatchID, m models.DeceasedMatch, now time.Time) *models.Flag {
	confidence := 0.8
	corroborated := []string{"unique_identifier"}
	if m.Death.LastName != "" && strings.EqualFold(m.Death.LastName, m.VoterLastName) {
		confidence += 0.1
		corroborated = append(corroborated, "last_name")
	}
	if m.Death.DateOfBirth != "" && m.Death.DateOfBirth == m.VoterDOB {
		confidence += 0.1
		corroborated = append(corroborated, "date_of_birth")
	}
	reason := fmt.Sprintf("death registry match on %s", strings.Join(corroborated, ", "))
	if m.Death.DateOfDeath != "" {
		reason += ", died " + m.Death.DateOfDeath
	}
	if m.Death.Source != "" {
		reason += " (" + m.Death.Source + ")"
	}
	return &models.Flag{
		ID:         id.RevisionFlagID(uuid.New()),
		BatchID:    batchID,
		VoterID:    m.VoterID,
		Type:       models.FlagDeceased,
		Reason:     reason,
		Confidence: round(math.Min(1, confidence)),
		Status:     models.FlagPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func (s *Service) incCommit(outcome string) {
	if s.metrics != nil {
		s.metrics.IncCommit(outcome)
	}
}

func commitOutcome(err error) string {
	switch {
	case dErrors.HasCode(err, dErrors.CodeInvalidState):
		return "invalid_state"
	case dErrors.HasCode(err, dErrors.CodeIntegrity):
		return "integrity"
	default:
		return "error"
	}
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
