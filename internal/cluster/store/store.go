// Package store persists cluster flags and reads voter groups for detection.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollguard/internal/cluster/models"
	"rollguard/internal/platform/database"
	"rollguard/internal/sentinel"
	id "rollguard/pkg/domain"
)

const (
	flagColumns = `id, address_digest, voter_count, risk_score, risk_level, suspicious, status, factors,
		assignee, detected_at, updated_at`

	defaultListLimit = 100
	maxListLimit     = 1000
)

// Store reads and writes cluster_flags. Every method joins the transaction
// carried by ctx.
type Store struct {
	pool *database.Pool
}

func New(pool *database.Pool) *Store {
	return &Store{pool: pool}
}

// ActiveGroups returns every address digest shared by at least minSize
// active, non-rejected voters, with the members needed for scoring.
func (s *Store) ActiveGroups(ctx context.Context, minSize int) ([]models.Group, error) {
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(`
		SELECT address_digest, last_name, date_of_birth, registered_at
		FROM voters
		WHERE is_active = ? AND status <> ? AND address_digest IN (
			SELECT address_digest FROM voters
			WHERE is_active = ? AND status <> ?
			GROUP BY address_digest
			HAVING COUNT(*) >= ?
		)
		ORDER BY address_digest, registered_at, id`),
		true, "rejected", true, "rejected", minSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query voter groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var (
			digest string
			m      models.Member
		)
		if err := rows.Scan(&digest, &m.LastName, &m.DateOfBirth, &m.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		if len(groups) == 0 || groups[len(groups)-1].AddressDigest != digest {
			groups = append(groups, models.Group{AddressDigest: digest})
		}
		g := &groups[len(groups)-1]
		g.Members = append(g.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group members: %w", err)
	}
	return groups, nil
}

// FindByDigestForUpdate returns the flag for digest, locked until the
// surrounding transaction ends, or sentinel.ErrNotFound.
func (s *Store) FindByDigestForUpdate(ctx context.Context, digest string) (*models.Flag, error) {
	row := s.pool.Conn(ctx).QueryRowContext(ctx,
		s.pool.Q(`SELECT `+flagColumns+` FROM cluster_flags WHERE address_digest = ?`)+s.pool.Dialect().ForUpdate(), digest)
	f, err := scanFlag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster flag for %s: %w", digest, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find cluster flag: %w", err)
	}
	return f, nil
}

func (s *Store) FindByID(ctx context.Context, flagID id.ClusterFlagID) (*models.Flag, error) {
	return s.findByID(ctx, flagID, "")
}

func (s *Store) FindByIDForUpdate(ctx context.Context, flagID id.ClusterFlagID) (*models.Flag, error) {
	return s.findByID(ctx, flagID, s.pool.Dialect().ForUpdate())
}

func (s *Store) findByID(ctx context.Context, flagID id.ClusterFlagID, lock string) (*models.Flag, error) {
	row := s.pool.Conn(ctx).QueryRowContext(ctx,
		s.pool.Q(`SELECT `+flagColumns+` FROM cluster_flags WHERE id = ?`)+lock, uuid.UUID(flagID))
	f, err := scanFlag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster flag %s: %w", flagID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find cluster flag: %w", err)
	}
	return f, nil
}

// Insert writes a new flag. A second flag for the same digest yields
// sentinel.ErrConflict.
func (s *Store) Insert(ctx context.Context, f *models.Flag) error {
	factors, err := json.Marshal(f.Factors)
	if err != nil {
		return fmt.Errorf("encode factors: %w", err)
	}
	_, err = s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		INSERT INTO cluster_flags (`+flagColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		uuid.UUID(f.ID), f.AddressDigest, f.VoterCount, f.RiskScore, string(f.RiskLevel), f.Suspicious,
		string(f.Status), string(factors), f.Assignee, f.DetectedAt, f.UpdatedAt,
	)
	if err != nil {
		if s.pool.Dialect().IsUniqueViolation(err) {
			return fmt.Errorf("cluster flag for %s: %w", f.AddressDigest, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert cluster flag: %w", err)
	}
	return nil
}

// InsertIfAbsent writes f unless a flag for its digest already exists. It
// reports whether f was written. A concurrent insert of the same digest
// waits for the other transaction and then reports false.
func (s *Store) InsertIfAbsent(ctx context.Context, f *models.Flag) (bool, error) {
	factors, err := json.Marshal(f.Factors)
	if err != nil {
		return false, fmt.Errorf("encode factors: %w", err)
	}
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		INSERT INTO cluster_flags (`+flagColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address_digest) DO NOTHING`),
		uuid.UUID(f.ID), f.AddressDigest, f.VoterCount, f.RiskScore, string(f.RiskLevel), f.Suspicious,
		string(f.Status), string(factors), f.Assignee, f.DetectedAt, f.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert cluster flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n == 1, nil
}

// Update persists the assessment and review state of f.
func (s *Store) Update(ctx context.Context, f *models.Flag) error {
	factors, err := json.Marshal(f.Factors)
	if err != nil {
		return fmt.Errorf("encode factors: %w", err)
	}
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE cluster_flags
		SET voter_count = ?, risk_score = ?, risk_level = ?, suspicious = ?, status = ?, factors = ?,
		    assignee = ?, updated_at = ?
		WHERE id = ?`),
		f.VoterCount, f.RiskScore, string(f.RiskLevel), f.Suspicious, string(f.Status), string(factors),
		f.Assignee, f.UpdatedAt, uuid.UUID(f.ID),
	)
	if err != nil {
		return fmt.Errorf("update cluster flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("cluster flag %s: %w", f.ID, sentinel.ErrNotFound)
	}
	return nil
}

// List returns flags, optionally filtered by status, riskiest first.
func (s *Store) List(ctx context.Context, status models.Status, limit int) ([]*models.Flag, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	query := `SELECT ` + flagColumns + ` FROM cluster_flags`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY risk_score DESC, address_digest ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list cluster flags: %w", err)
	}
	defer rows.Close()

	var flags []*models.Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cluster flag: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster flags: %w", err)
	}
	return flags, nil
}

// Stale returns open and under-review flags whose address now has fewer
// than minSize active, non-rejected voters, each with that current count.
func (s *Store) Stale(ctx context.Context, minSize int) ([]models.StaleFlag, error) {
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(`
		SELECT `+flagColumns+`, active_count FROM (
			SELECT f.*, (
				SELECT COUNT(*) FROM voters v
				WHERE v.address_digest = f.address_digest AND v.is_active = ? AND v.status <> ?
			) AS active_count
			FROM cluster_flags f
			WHERE f.status IN (?, ?)
		) counted
		WHERE active_count < ?
		ORDER BY address_digest`),
		true, "rejected", string(models.StatusOpen), string(models.StatusUnderReview), minSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale cluster flags: %w", err)
	}
	defer rows.Close()

	var stale []models.StaleFlag
	for rows.Next() {
		var count int
		f, err := scanFlag(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("scan stale cluster flag: %w", err)
		}
		stale = append(stale, models.StaleFlag{Flag: f, ActiveVoters: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale cluster flags: %w", err)
	}
	return stale, nil
}

// AssignReviewer records who is reviewing a flag. An open flag moves to
// under_review; other statuses are kept.
func (s *Store) AssignReviewer(ctx context.Context, flagID id.ClusterFlagID, assignee string, now time.Time) error {
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE cluster_flags
		SET assignee = ?,
		    status = CASE WHEN status = ? THEN ? ELSE status END,
		    updated_at = ?
		WHERE id = ?`),
		assignee, string(models.StatusOpen), string(models.StatusUnderReview), now, uuid.UUID(flagID),
	)
	if err != nil {
		return fmt.Errorf("assign cluster flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("cluster flag %s: %w", flagID, sentinel.ErrNotFound)
	}
	return nil
}

// SetStatus moves a flag to status. Used by review resolutions.
func (s *Store) SetStatus(ctx context.Context, flagID id.ClusterFlagID, status models.Status, now time.Time) error {
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE cluster_flags SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), now, uuid.UUID(flagID),
	)
	if err != nil {
		return fmt.Errorf("set cluster flag status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("cluster flag %s: %w", flagID, sentinel.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanFlag reads flagColumns followed by any extra destinations.
func scanFlag(row scanner, extra ...any) (*models.Flag, error) {
	var (
		f                    models.Flag
		flagID               uuid.UUID
		level, status, facts string
	)
	dest := append([]any{&flagID, &f.AddressDigest, &f.VoterCount, &f.RiskScore, &level, &f.Suspicious, &status,
		&facts, &f.Assignee, &f.DetectedAt, &f.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(facts), &f.Factors); err != nil {
		return nil, fmt.Errorf("decode factors: %w", err)
	}
	f.ID = id.ClusterFlagID(flagID)
	f.RiskLevel = models.RiskLevel(level)
	f.Status = models.Status(status)
	return &f, nil
}
