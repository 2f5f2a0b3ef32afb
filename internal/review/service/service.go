// Package service implements the human review workflow: opening tasks,
// assigning them to reviewers and applying resolutions to the records
// they reference.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	auditmodels "rollguard/internal/auditchain/models"
	clustermodels "rollguard/internal/cluster/models"
	"rollguard/internal/platform/middleware"
	"rollguard/internal/review/metrics"
	"rollguard/internal/review/models"
	"rollguard/internal/sentinel"
	votermodels "rollguard/internal/voter/models"
	id "rollguard/pkg/domain"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/middleware/requesttime"
)

const maxNotesLength = 2000

// Store persists tasks. Error contract: Find* and Update return
// sentinel.ErrNotFound; Insert returns sentinel.ErrConflict.
type Store interface {
	Insert(ctx context.Context, t *models.Task) error
	FindByID(ctx context.Context, taskID id.TaskID) (*models.Task, error)
	FindByIDForUpdate(ctx context.Context, taskID id.TaskID) (*models.Task, error)
	Update(ctx context.Context, t *models.Task) error
	List(ctx context.Context, f models.Filter) ([]*models.Task, error)
	HasActiveForClusterFlag(ctx context.Context, flagID id.ClusterFlagID) (bool, error)
}

// VoterStatusWriter applies review outcomes to voter records.
type VoterStatusWriter interface {
	SetStatus(ctx context.Context, voterID id.VoterID, status votermodels.Status, reason string, now time.Time) error
}

// ClusterStatusWriter applies review progress and outcomes to cluster flags.
type ClusterStatusWriter interface {
	SetStatus(ctx context.Context, flagID id.ClusterFlagID, status clustermodels.Status, now time.Time) error
	AssignReviewer(ctx context.Context, flagID id.ClusterFlagID, assignee string, now time.Time) error
}

type AuditRecorder interface {
	Record(ctx context.Context, ev auditmodels.Event) (*auditmodels.Entry, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service runs the review workflow.
type Service struct {
	store    Store
	voters   VoterStatusWriter
	clusters ClusterStatusWriter
	audit    AuditRecorder
	tx       TxRunner
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func(ctx context.Context) time.Time
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

func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = func(context.Context) time.Time { return now() }
		}
	}
}

func New(store Store, voters VoterStatusWriter, clusters ClusterStatusWriter, audit AuditRecorder, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		store:    store,
		voters:   voters,
		clusters: clusters,
		audit:    audit,
		tx:       tx,
		logger:   slog.Default(),
		now:      requesttime.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTask opens a task. Joins the transaction in ctx when there is one.
func (s *Service) CreateTask(ctx context.Context, req models.CreateRequest) (*models.Task, error) {
	if !req.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown task type")
	}
	if req.Evidence.Type == "" {
		req.Evidence.Type = req.Type
	}
	if req.Evidence.Type != req.Type {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "evidence type does not match task type")
	}
	if err := req.Evidence.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, err.Error())
	}
	priority := req.Priority
	switch priority {
	case "":
		priority = models.PriorityNormal
	case models.PriorityNormal, models.PriorityHigh, models.PriorityCritical:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown task priority")
	}

	actor := middleware.ActorFrom(ctx)
	var task *models.Task
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.now(ctx).UTC().Truncate(time.Microsecond)
		task = &models.Task{
			ID:             id.TaskID(uuid.New()),
			Type:           req.Type,
			VoterID:        req.VoterID,
			ClusterFlagID:  req.ClusterFlagID,
			RevisionFlagID: req.RevisionFlagID,
			Evidence:       req.Evidence,
			Status:         models.StatusOpen,
			Priority:       priority,
			CreatedBy:      actor.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.Insert(ctx, task); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionTaskCreated,
			EntityType: auditmodels.EntityReviewTask,
			EntityID:   task.ID.String(),
			Actor:      actor.ID,
			Details:    map[string]string{"type": string(task.Type), "priority": string(task.Priority)},
		})
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to create review task")
	}
	if s.metrics != nil {
		s.metrics.IncCreated(string(task.Type))
	}
	return task, nil
}

// AssignTask hands a task to a reviewer and moves it to in_progress. A
// linked cluster flag takes the same assignee and leaves open for
// under_review in the same transaction.
func (s *Service) AssignTask(ctx context.Context, taskID id.TaskID, assigneeID, assigneeRole string) (*models.Task, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "assignee is required")
	}

	var task *models.Task
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		t, err := s.store.FindByIDForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if !t.Status.CanAssign() {
			return dErrors.New(dErrors.CodeInvalidState, "task in status "+string(t.Status)+" cannot be assigned")
		}
		previous := t.Status
		now := s.now(ctx).UTC().Truncate(time.Microsecond)
		t.Status = models.StatusInProgress
		t.AssigneeID = assigneeID
		t.AssigneeRole = strings.TrimSpace(assigneeRole)
		t.UpdatedAt = now
		if err := s.store.Update(ctx, t); err != nil {
			return err
		}
		if t.ClusterFlagID != nil {
			if err := s.clusters.AssignReviewer(ctx, *t.ClusterFlagID, assigneeID, now); err != nil {
				return err
			}
		}
		task = t
		_, err = s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionTaskAssigned,
			EntityType: auditmodels.EntityReviewTask,
			EntityID:   t.ID.String(),
			Actor:      middleware.ActorFrom(ctx).ID,
			Details: map[string]string{
				"assignee":        t.AssigneeID,
				"role":            t.AssigneeRole,
				"previous_status": string(previous),
			},
		})
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to assign review task")
	}
	return task, nil
}

// ResolveTask records a reviewer's decision. Only in-progress tasks can be
// resolved. The decision is applied to the referenced voter and cluster
// flag in the same transaction as the task update.
func (s *Service) ResolveTask(ctx context.Context, taskID id.TaskID, action models.Action, notes string) (*models.Task, error) {
	status, ok := action.ResultingStatus()
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown resolution action")
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > maxNotesLength {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "resolution notes are too long")
	}

	var task *models.Task
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		t, err := s.store.FindByIDForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if !t.Status.CanResolve() {
			return dErrors.New(dErrors.CodeInvalidState, "task in status "+string(t.Status)+" cannot be resolved")
		}
		now := s.now(ctx).UTC().Truncate(time.Microsecond)
		t.Status = status
		t.ResolutionAction = action
		t.ResolutionNotes = notes
		t.UpdatedAt = now
		if status.IsTerminal() {
			t.ResolvedAt = &now
		}
		if err := s.store.Update(ctx, t); err != nil {
			return err
		}
		if err := s.applySideEffects(ctx, t, action, notes, now); err != nil {
			return err
		}
		task = t
		_, err = s.audit.Record(ctx, auditmodels.Event{
			Action:     auditmodels.ActionTaskResolved,
			EntityType: auditmodels.EntityReviewTask,
			EntityID:   t.ID.String(),
			Actor:      middleware.ActorFrom(ctx).ID,
			Details: map[string]string{
				"action": string(action),
				"status": string(status),
				"notes":  notes,
			},
		})
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to resolve review task")
	}

	if s.metrics != nil {
		s.metrics.IncResolved(string(task.Type), string(action))
		if task.ResolvedAt != nil {
			s.metrics.ObserveTimeToResolve(task.ResolvedAt.Sub(task.CreatedAt).Seconds())
		}
	}
	s.logger.InfoContext(ctx, "review task resolved",
		"task_id", task.ID.String(),
		"type", task.Type,
		"action", action,
	)
	return task, nil
}

func (s *Service) applySideEffects(ctx context.Context, t *models.Task, action models.Action, notes string, now time.Time) error {
	if t.VoterID != nil {
		var status votermodels.Status
		reason := ""
		switch action {
		case models.ActionApproved:
			status = votermodels.StatusActive
		case models.ActionRejected:
			status = votermodels.StatusRejected
			reason = notes
			if reason == "" {
				reason = "rejected in review of " + string(t.Type)
			}
		}
		if status != "" {
			if err := s.voters.SetStatus(ctx, *t.VoterID, status, reason, now); err != nil {
				return err
			}
			_, err := s.audit.Record(ctx, auditmodels.Event{
				Action:     auditmodels.ActionVoterStatusChanged,
				EntityType: auditmodels.EntityVoter,
				EntityID:   t.VoterID.String(),
				Actor:      middleware.ActorFrom(ctx).ID,
				Details:    map[string]string{"status": string(status), "task_id": t.ID.String()},
			})
			if err != nil {
				return err
			}
		}
	}

	if t.ClusterFlagID != nil {
		var status clustermodels.Status
		switch action {
		case models.ActionApproved:
			status = clustermodels.StatusFalsePositive
		case models.ActionRejected:
			status = clustermodels.StatusResolved
		case models.ActionEscalated, models.ActionNeedsMoreInfo:
			status = clustermodels.StatusUnderReview
		}
		if err := s.clusters.SetStatus(ctx, *t.ClusterFlagID, status, now); err != nil {
			return err
		}
	}
	return nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	t, err := s.store.FindByID(ctx, taskID)
	if err != nil {
		return nil, translate(err, "review task not found")
	}
	return t, nil
}

// ListTasks returns tasks matching f, oldest first.
func (s *Service) ListTasks(ctx context.Context, f models.Filter) ([]*models.Task, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown task status")
	}
	if f.Type != "" && !f.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown task type")
	}
	tasks, err := s.store.List(ctx, f)
	if err != nil {
		return nil, translate(err, "failed to list review tasks")
	}
	return tasks, nil
}

// HasActiveForClusterFlag reports whether an unresolved task already
// reviews flagID.
func (s *Service) HasActiveForClusterFlag(ctx context.Context, flagID id.ClusterFlagID) (bool, error) {
	return s.store.HasActiveForClusterFlag(ctx, flagID)
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
