// Package store persists revision batches, their flags and the death
// registry, and runs the dry-run scans.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollguard/internal/platform/database"
	"rollguard/internal/revision/models"
	"rollguard/internal/sentinel"
	id "rollguard/pkg/domain"
)

const (
	batchColumns = `id, region, range_from, range_to, scan_cap, status, integrity_digest, flags_applied,
		created_by, created_at, committed_at, cancelled_at`
	flagColumns = `id, batch_id, voter_id, related_voter_id, flag_type, reason, confidence, status, created_at, updated_at`
)

// Store reads and writes revision data. Every method joins the transaction
// carried by ctx.
type Store struct {
	pool *database.Pool
}

func New(pool *database.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InsertBatch(ctx context.Context, b *models.Batch) error {
	_, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		INSERT INTO revision_batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		uuid.UUID(b.ID), b.Region, b.RangeFrom, b.RangeTo, b.ScanCap, string(b.Status), b.IntegrityDigest,
		b.FlagsApplied, b.CreatedBy, b.CreatedAt, b.CommittedAt, b.CancelledAt,
	)
	if err != nil {
		if s.pool.Dialect().IsUniqueViolation(err) {
			return fmt.Errorf("revision batch %s: %w", b.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert revision batch: %w", err)
	}
	return nil
}

// FindBatch returns the batch or sentinel.ErrNotFound.
func (s *Store) FindBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	return s.findBatch(ctx, batchID, "")
}

// FindBatchForUpdate locks the batch row until the surrounding transaction
// ends.
func (s *Store) FindBatchForUpdate(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	return s.findBatch(ctx, batchID, s.pool.Dialect().ForUpdate())
}

func (s *Store) findBatch(ctx context.Context, batchID id.BatchID, lock string) (*models.Batch, error) {
	row := s.pool.Conn(ctx).QueryRowContext(ctx,
		s.pool.Q(`SELECT `+batchColumns+` FROM revision_batches WHERE id = ?`)+lock, uuid.UUID(batchID))
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revision batch %s: %w", batchID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find revision batch: %w", err)
	}
	return b, nil
}

// UpdateBatch persists the lifecycle fields of b.
func (s *Store) UpdateBatch(ctx context.Context, b *models.Batch) error {
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE revision_batches
		SET status = ?, flags_applied = ?, committed_at = ?, cancelled_at = ?
		WHERE id = ?`),
		string(b.Status), b.FlagsApplied, b.CommittedAt, b.CancelledAt, uuid.UUID(b.ID),
	)
	if err != nil {
		return fmt.Errorf("update revision batch: %w", err)
	}
	return expectOne(res, fmt.Sprintf("revision batch %s", b.ID))
}

// ListBatches returns batches newest first, optionally filtered by status.
func (s *Store) ListBatches(ctx context.Context, status models.BatchStatus, limit int) ([]*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM revision_batches`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list revision batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revision batches: %w", err)
	}
	return batches, nil
}

func (s *Store) InsertFlags(ctx context.Context, flags []*models.Flag) error {
	for _, f := range flags {
		var related any
		if f.RelatedVoterID != nil {
			related = uuid.UUID(*f.RelatedVoterID)
		}
		_, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
			INSERT INTO revision_flags (`+flagColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			uuid.UUID(f.ID), uuid.UUID(f.BatchID), uuid.UUID(f.VoterID), related, string(f.Type),
			f.Reason, f.Confidence, string(f.Status), f.CreatedAt, f.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert revision flag: %w", err)
		}
	}
	return nil
}

// ListFlags returns every flag of a batch in creation order.
func (s *Store) ListFlags(ctx context.Context, batchID id.BatchID) ([]*models.Flag, error) {
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(`
		SELECT `+flagColumns+` FROM revision_flags
		WHERE batch_id = ?
		ORDER BY created_at, id`),
		uuid.UUID(batchID),
	)
	if err != nil {
		return nil, fmt.Errorf("list revision flags: %w", err)
	}
	defer rows.Close()

	var flags []*models.Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision flag: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revision flags: %w", err)
	}
	return flags, nil
}

// FindFlagForUpdate returns the flag, locked, or sentinel.ErrNotFound.
func (s *Store) FindFlagForUpdate(ctx context.Context, flagID id.RevisionFlagID) (*models.Flag, error) {
	row := s.pool.Conn(ctx).QueryRowContext(ctx,
		s.pool.Q(`SELECT `+flagColumns+` FROM revision_flags WHERE id = ?`)+s.pool.Dialect().ForUpdate(),
		uuid.UUID(flagID))
	f, err := scanFlag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revision flag %s: %w", flagID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find revision flag: %w", err)
	}
	return f, nil
}

// SetFlagStatus moves a pending flag to status. A flag that is no longer
// pending yields sentinel.ErrInvalidState.
func (s *Store) SetFlagStatus(ctx context.Context, flagID id.RevisionFlagID, status models.FlagStatus, now time.Time) error {
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE revision_flags SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(status), now, uuid.UUID(flagID), string(models.FlagPending),
	)
	if err != nil {
		return fmt.Errorf("set revision flag status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("revision flag %s is not pending: %w", flagID, sentinel.ErrInvalidState)
	}
	return nil
}

// RejectPending closes every pending flag of a batch.
func (s *Store) RejectPending(ctx context.Context, batchID id.BatchID, now time.Time) (int, error) {
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE revision_flags SET status = ?, updated_at = ?
		WHERE batch_id = ? AND status = ?`),
		string(models.FlagRejected), now, uuid.UUID(batchID), string(models.FlagPending),
	)
	if err != nil {
		return 0, fmt.Errorf("reject pending revision flags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}

// duplicateFields are the voter columns a duplicate scan compares. Column
// names come from this fixed list only.
var duplicateFields = []string{"unique_identifier", "email", "phone"}

// ScanDuplicates finds pairs of distinct active voters sharing a unique
// identifier, email or phone. At most limit rows are read per field and at
// most limit pairs are returned.
func (s *Store) ScanDuplicates(ctx context.Context, scope models.Scope, limit int) ([]models.DuplicateMatch, error) {
	type pairKey struct{ a, b uuid.UUID }
	pairs := map[pairKey]*models.DuplicateMatch{}
	var order []pairKey

	for _, field := range duplicateFields {
		filter, args := scopeFilter("b", scope)
		query := `
			SELECT a.id, a.registered_at, b.id, b.registered_at
			FROM voters a
			JOIN voters b ON b.` + field + ` = a.` + field + ` AND a.id < b.id
			WHERE a.` + field + ` <> '' AND a.is_active = ? AND b.is_active = ?` + filter + `
			ORDER BY a.id, b.id
			LIMIT ?`
		args = append([]any{true, true}, args...)
		args = append(args, limit)

		rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(query), args...)
		if err != nil {
			return nil, fmt.Errorf("scan duplicate %s: %w", field, err)
		}
		for rows.Next() {
			var (
				aID, bID   uuid.UUID
				aReg, bReg time.Time
			)
			if err := rows.Scan(&aID, &aReg, &bID, &bReg); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan duplicate row: %w", err)
			}
			key := pairKey{aID, bID}
			m, ok := pairs[key]
			if !ok {
				m = &models.DuplicateMatch{VoterID: id.VoterID(bID), RelatedVoterID: id.VoterID(aID)}
				if aReg.After(bReg) {
					m.VoterID, m.RelatedVoterID = id.VoterID(aID), id.VoterID(bID)
				}
				pairs[key] = m
				order = append(order, key)
			}
			m.MatchedOn = append(m.MatchedOn, field)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate duplicate %s: %w", field, err)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return len(pairs[order[i]].MatchedOn) > len(pairs[order[j]].MatchedOn)
	})
	if len(order) > limit {
		order = order[:limit]
	}
	matches := make([]models.DuplicateMatch, 0, len(order))
	for _, k := range order {
		matches = append(matches, *pairs[k])
	}
	return matches, nil
}

// ScanDeceased joins active voters in scope against the death registry by
// unique identifier.
func (s *Store) ScanDeceased(ctx context.Context, scope models.Scope, limit int) ([]models.DeceasedMatch, error) {
	filter, args := scopeFilter("v", scope)
	query := `
		SELECT v.id, v.unique_identifier, v.last_name, v.date_of_birth,
		       d.full_name, d.last_name, d.date_of_birth, d.date_of_death, d.source
		FROM voters v
		JOIN death_registry d ON d.unique_identifier = v.unique_identifier
		WHERE v.is_active = ?` + filter + `
		ORDER BY v.registered_at, v.id
		LIMIT ?`
	args = append([]any{true}, args...)
	args = append(args, limit)

	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("scan deceased: %w", err)
	}
	defer rows.Close()

	var matches []models.DeceasedMatch
	for rows.Next() {
		var (
			m       models.DeceasedMatch
			voterID uuid.UUID
		)
		err := rows.Scan(&voterID, &m.UniqueIdentifier, &m.VoterLastName, &m.VoterDOB,
			&m.Death.FullName, &m.Death.LastName, &m.Death.DateOfBirth, &m.Death.DateOfDeath, &m.Death.Source)
		if err != nil {
			return nil, fmt.Errorf("scan deceased row: %w", err)
		}
		m.VoterID = id.VoterID(voterID)
		m.Death.UniqueIdentifier = m.UniqueIdentifier
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deceased: %w", err)
	}
	return matches, nil
}

// UpsertDeaths writes registry rows keyed by unique identifier.
func (s *Store) UpsertDeaths(ctx context.Context, records []models.DeathRecord, now time.Time) (int, error) {
	for _, r := range records {
		_, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
			INSERT INTO death_registry (unique_identifier, full_name, last_name, date_of_birth, date_of_death, source, imported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (unique_identifier) DO UPDATE SET
				full_name = excluded.full_name,
				last_name = excluded.last_name,
				date_of_birth = excluded.date_of_birth,
				date_of_death = excluded.date_of_death,
				source = excluded.source,
				imported_at = excluded.imported_at`),
			r.UniqueIdentifier, r.FullName, r.LastName, r.DateOfBirth, r.DateOfDeath, r.Source, now,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert death record: %w", err)
		}
	}
	return len(records), nil
}

// CountDeaths returns the size of the death registry.
func (s *Store) CountDeaths(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.Conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM death_registry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count death records: %w", err)
	}
	return n, nil
}

// scopeFilter builds the region and registration-range predicates for the
// voter alias.
func scopeFilter(alias string, scope models.Scope) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if scope.Region != "" {
		clauses = append(clauses, alias+".region = ?")
		args = append(args, scope.Region)
	}
	if scope.From != nil {
		clauses = append(clauses, alias+".registered_at >= ?")
		args = append(args, scope.From.UTC())
	}
	if scope.To != nil {
		clauses = append(clauses, alias+".registered_at < ?")
		args = append(args, scope.To.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return min(limit, 500)
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*models.Batch, error) {
	var (
		b                              models.Batch
		batchID                        uuid.UUID
		status                         string
		from, to, committed, cancelled sql.NullTime
	)
	err := row.Scan(&batchID, &b.Region, &from, &to, &b.ScanCap, &status, &b.IntegrityDigest, &b.FlagsApplied,
		&b.CreatedBy, &b.CreatedAt, &committed, &cancelled)
	if err != nil {
		return nil, err
	}
	b.ID = id.BatchID(batchID)
	b.Status = models.BatchStatus(status)
	b.RangeFrom = timePtr(from)
	b.RangeTo = timePtr(to)
	b.CommittedAt = timePtr(committed)
	b.CancelledAt = timePtr(cancelled)
	return &b, nil
}

func scanFlag(row scanner) (*models.Flag, error) {
	var (
		f                      models.Flag
		flagID, batchID, voter uuid.UUID
		related                uuid.NullUUID
		flagType, status       string
	)
	err := row.Scan(&flagID, &batchID, &voter, &related, &flagType, &f.Reason, &f.Confidence, &status,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.ID = id.RevisionFlagID(flagID)
	f.BatchID = id.BatchID(batchID)
	f.VoterID = id.VoterID(voter)
	if related.Valid {
		r := id.VoterID(related.UUID)
		f.RelatedVoterID = &r
	}
	f.Type = models.FlagType(flagType)
	f.Status = models.FlagStatus(status)
	return &f, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
