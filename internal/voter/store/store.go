// Package store persists voter records.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollguard/internal/platform/database"
	"rollguard/internal/sentinel"
	"rollguard/internal/voter/models"
	id "rollguard/pkg/domain"
)

const voterColumns = `id, unique_identifier, first_name, last_name, date_of_birth, gender, email, phone,
	house_number, street, locality, district, state, postal_code, normalized_address, address_digest,
	address_score, name_score, phonetic_code, region, status, rejection_reason, validation_flags,
	is_active, deactivated_at, deactivation_reason, registered_at, updated_at`

// Store reads and writes voters. Every method joins the transaction carried
// by ctx.
type Store struct {
	pool *database.Pool
}

func New(pool *database.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, v *models.Record) error {
	flags, err := json.Marshal(nonNil(v.ValidationFlags))
	if err != nil {
		return fmt.Errorf("encode validation flags: %w", err)
	}
	a := v.Address
	_, err = s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		INSERT INTO voters (`+voterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		uuid.UUID(v.ID), v.UniqueIdentifier, v.FirstName, v.LastName, v.DateOfBirth, v.Gender, v.Email, v.Phone,
		a.HouseNumber, a.Street, a.Locality, a.District, a.State, a.PostalCode, v.NormalizedAddress, v.AddressDigest,
		v.AddressScore, v.NameScore, v.PhoneticCode, v.Region, string(v.Status), v.RejectionReason, string(flags),
		v.IsActive, v.DeactivatedAt, v.DeactivationReason, v.RegisteredAt, v.UpdatedAt,
	)
	if err != nil {
		if s.pool.Dialect().IsUniqueViolation(err) {
			return fmt.Errorf("voter %s: %w", v.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert voter: %w", err)
	}
	return nil
}

// FindByID returns the voter or sentinel.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, voterID id.VoterID) (*models.Record, error) {
	row := s.pool.Conn(ctx).QueryRowContext(ctx,
		s.pool.Q(`SELECT `+voterColumns+` FROM voters WHERE id = ?`), uuid.UUID(voterID))
	v, err := scanVoter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("voter %s: %w", voterID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find voter: %w", err)
	}
	return v, nil
}

// ListByDigest returns the active records registered at an address.
func (s *Store) ListByDigest(ctx context.Context, digest string) ([]*models.Record, error) {
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(`
		SELECT `+voterColumns+` FROM voters
		WHERE address_digest = ? AND is_active = ?
		ORDER BY registered_at ASC, id ASC`), digest, true)
	if err != nil {
		return nil, fmt.Errorf("list voters by digest: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		v, err := scanVoter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voter: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voters: %w", err)
	}
	return out, nil
}

// SetStatus changes the registration status. reason is stored as the
// rejection reason and cleared for any other status.
func (s *Store) SetStatus(ctx context.Context, voterID id.VoterID, status models.Status, reason string, now time.Time) error {
	if status != models.StatusRejected {
		reason = ""
	}
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE voters SET status = ?, rejection_reason = ?, updated_at = ? WHERE id = ?`),
		string(status), reason, now, uuid.UUID(voterID),
	)
	return affectedOne(res, err, "set voter status", voterID)
}

// Deactivate marks an active voter inactive. An already inactive voter
// yields sentinel.ErrInvalidState.
func (s *Store) Deactivate(ctx context.Context, voterID id.VoterID, reason string, now time.Time) error {
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE voters
		SET is_active = ?, deactivated_at = ?, deactivation_reason = ?, updated_at = ?
		WHERE id = ? AND is_active = ?`),
		false, now, reason, now, uuid.UUID(voterID), true,
	)
	if err != nil {
		return fmt.Errorf("deactivate voter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, voterID); err != nil {
		return err
	}
	return fmt.Errorf("voter %s already inactive: %w", voterID, sentinel.ErrInvalidState)
}

// CountByStatus tallies active records per registration status.
func (s *Store) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(`
		SELECT status, COUNT(*) FROM voters WHERE is_active = ? GROUP BY status`), true)
	if err != nil {
		return nil, fmt.Errorf("count voters: %w", err)
	}
	defer rows.Close()

	counts := map[models.Status]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan voter count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVoter(row scanner) (*models.Record, error) {
	var (
		v             models.Record
		voterID       uuid.UUID
		status, flags string
		deactivatedAt sql.NullTime
	)
	a := &v.Address
	err := row.Scan(&voterID, &v.UniqueIdentifier, &v.FirstName, &v.LastName, &v.DateOfBirth, &v.Gender, &v.Email, &v.Phone,
		&a.HouseNumber, &a.Street, &a.Locality, &a.District, &a.State, &a.PostalCode, &v.NormalizedAddress, &v.AddressDigest,
		&v.AddressScore, &v.NameScore, &v.PhoneticCode, &v.Region, &status, &v.RejectionReason, &flags,
		&v.IsActive, &deactivatedAt, &v.DeactivationReason, &v.RegisteredAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(flags), &v.ValidationFlags); err != nil {
		return nil, fmt.Errorf("decode validation flags: %w", err)
	}
	v.ID = id.VoterID(voterID)
	v.Status = models.Status(status)
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		v.DeactivatedAt = &t
	}
	return &v, nil
}

func affectedOne(res sql.Result, err error, op string, voterID id.VoterID) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("voter %s: %w", voterID, sentinel.ErrNotFound)
	}
	return nil
}

func nonNil(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}
