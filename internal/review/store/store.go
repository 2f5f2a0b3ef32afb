// Package store persists review tasks.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rollguard/internal/platform/database"
	"rollguard/internal/review/models"
	"rollguard/internal/sentinel"
	id "rollguard/pkg/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	taskColumns = `id, task_type, voter_id, cluster_flag_id, revision_flag_id, evidence, status, priority,
		assignee_id, assignee_role, resolution_action, resolution_notes, created_by, created_at, updated_at, resolved_at`
)

// Store reads and writes review_tasks. Every method joins the transaction
// carried by ctx.
type Store struct {
	pool *database.Pool
}

func New(pool *database.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, t *models.Task) error {
	evidence, err := json.Marshal(t.Evidence)
	if err != nil {
		return fmt.Errorf("encode task evidence: %w", err)
	}
	_, err = s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		INSERT INTO review_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		uuid.UUID(t.ID), string(t.Type), nullable(t.VoterID), nullable(t.ClusterFlagID), nullable(t.RevisionFlagID),
		string(evidence), string(t.Status), string(t.Priority), t.AssigneeID, t.AssigneeRole,
		string(t.ResolutionAction), t.ResolutionNotes, t.CreatedBy, t.CreatedAt, t.UpdatedAt, t.ResolvedAt,
	)
	if err != nil {
		if s.pool.Dialect().IsUniqueViolation(err) {
			return fmt.Errorf("review task %s: %w", t.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert review task: %w", err)
	}
	return nil
}

// FindByID returns the task or sentinel.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	return s.find(ctx, taskID, "")
}

// FindByIDForUpdate is FindByID holding the row lock until the surrounding
// transaction ends.
func (s *Store) FindByIDForUpdate(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	return s.find(ctx, taskID, s.pool.Dialect().ForUpdate())
}

func (s *Store) find(ctx context.Context, taskID id.TaskID, lock string) (*models.Task, error) {
	row := s.pool.Conn(ctx).QueryRowContext(ctx,
		s.pool.Q(`SELECT `+taskColumns+` FROM review_tasks WHERE id = ?`)+lock, uuid.UUID(taskID))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review task %s: %w", taskID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find review task: %w", err)
	}
	return t, nil
}

// Update persists the mutable fields of t.
func (s *Store) Update(ctx context.Context, t *models.Task) error {
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE review_tasks
		SET status = ?, assignee_id = ?, assignee_role = ?, resolution_action = ?, resolution_notes = ?,
		    updated_at = ?, resolved_at = ?
		WHERE id = ?`),
		string(t.Status), t.AssigneeID, t.AssigneeRole, string(t.ResolutionAction), t.ResolutionNotes,
		t.UpdatedAt, t.ResolvedAt, uuid.UUID(t.ID),
	)
	if err != nil {
		return fmt.Errorf("update review task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("review task %s: %w", t.ID, sentinel.ErrNotFound)
	}
	return nil
}

// List returns tasks matching f, oldest first.
func (s *Store) List(ctx context.Context, f models.Filter) ([]*models.Task, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "task_type = ?")
		args = append(args, string(f.Type))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	query := `SELECT ` + taskColumns + ` FROM review_tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list review tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review tasks: %w", err)
	}
	return tasks, nil
}

// HasActiveForClusterFlag reports whether a non-terminal task already
// reviews flagID.
func (s *Store) HasActiveForClusterFlag(ctx context.Context, flagID id.ClusterFlagID) (bool, error) {
	var n int
	err := s.pool.Conn(ctx).QueryRowContext(ctx, s.pool.Q(`
		SELECT COUNT(*) FROM review_tasks
		WHERE cluster_flag_id = ? AND status NOT IN (?, ?)`),
		uuid.UUID(flagID), string(models.StatusResolved), string(models.StatusRejected),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count active cluster tasks: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		t                              models.Task
		taskID                         uuid.UUID
		voterID, clusterID, revisionID uuid.NullUUID
		taskType, status, priority     string
		action, evidence               string
		resolvedAt                     sql.NullTime
	)
	err := row.Scan(&taskID, &taskType, &voterID, &clusterID, &revisionID, &evidence, &status, &priority,
		&t.AssigneeID, &t.AssigneeRole, &action, &t.ResolutionNotes, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(evidence), &t.Evidence); err != nil {
		return nil, fmt.Errorf("decode task evidence: %w", err)
	}
	t.ID = id.TaskID(taskID)
	t.Type = models.TaskType(taskType)
	t.Status = models.Status(status)
	t.Priority = models.Priority(priority)
	t.ResolutionAction = models.Action(action)
	if voterID.Valid {
		v := id.VoterID(voterID.UUID)
		t.VoterID = &v
	}
	if clusterID.Valid {
		c := id.ClusterFlagID(clusterID.UUID)
		t.ClusterFlagID = &c
	}
	if revisionID.Valid {
		r := id.RevisionFlagID(revisionID.UUID)
		t.RevisionFlagID = &r
	}
	if resolvedAt.Valid {
		ts := resolvedAt.Time
		t.ResolvedAt = &ts
	}
	return &t, nil
}

// nullable converts an optional typed ID into a driver value.
func nullable[T ~[16]byte](v *T) any {
	if v == nil {
		return nil
	}
	return uuid.UUID(*v)
}
