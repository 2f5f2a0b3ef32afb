// Package store persists the role-scoped name-frequency corpus.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rollguard/internal/name/models"
	"rollguard/internal/platform/database"
	"rollguard/internal/sentinel"
)

// Store reads and writes name_frequencies.
type Store struct {
	pool *database.Pool
}

func New(pool *database.Pool) *Store {
	return &Store{pool: pool}
}

// Frequency returns how often name occurs in the role's corpus.
//
// Errors: sentinel.ErrNotFound when the name is absent.
func (s *Store) Frequency(ctx context.Context, role models.Role, name string) (int, error) {
	var freq int
	err := s.pool.Conn(ctx).QueryRowContext(ctx, s.pool.Q(`
		SELECT frequency FROM name_frequencies WHERE role = ? AND name = ?`), string(role), name,
	).Scan(&freq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find name frequency: %w", err)
	}
	return freq, nil
}

// Candidates returns up to limit names of the role's corpus starting with
// prefix, most frequent first. Names are stored lower-case.
func (s *Store) Candidates(ctx context.Context, role models.Role, prefix string, limit int) ([]string, error) {
	if prefix == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(`
		SELECT name FROM name_frequencies
		WHERE role = ? AND name LIKE ?
		ORDER BY frequency DESC, name ASC
		LIMIT ?`), string(role), prefix+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("list name candidates: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan name candidate: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate name candidates: %w", err)
	}
	return names, nil
}

// Upsert writes entries, replacing the frequency of names already present.
// It joins the transaction carried by ctx, if any.
func (s *Store) Upsert(ctx context.Context, entries []models.Frequency, now time.Time) (int, error) {
	conn := s.pool.Conn(ctx)
	query := s.pool.Q(`
		INSERT INTO name_frequencies (role, name, frequency, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (role, name) DO UPDATE SET
			frequency = EXCLUDED.frequency,
			updated_at = EXCLUDED.updated_at`)
	written := 0
	for _, e := range entries {
		if _, err := conn.ExecContext(ctx, query, string(e.Role), e.Name, e.Frequency, now.UTC()); err != nil {
			return written, fmt.Errorf("upsert name frequency %s/%s: %w", e.Role, e.Name, err)
		}
		written++
	}
	return written, nil
}

// Count returns the corpus size for role.
func (s *Store) Count(ctx context.Context, role models.Role) (int, error) {
	var n int
	err := s.pool.Conn(ctx).QueryRowContext(ctx, s.pool.Q(`
		SELECT COUNT(*) FROM name_frequencies WHERE role = ?`), string(role)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count name frequencies: %w", err)
	}
	return n, nil
}
