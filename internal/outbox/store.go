package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollguard/internal/platform/database"
	"rollguard/internal/sentinel"
)

const maxBatch = 1000

// Store persists outbox entries. Append joins the caller's transaction when
// one is carried by ctx.
type Store struct {
	pool *database.Pool
}

// NewStore constructs an SQL-backed outbox store.
func NewStore(pool *database.Pool) *Store {
	return &Store{pool: pool}
}

// Append adds a new entry to the outbox table.
func (s *Store) Append(ctx context.Context, entry *Entry) error {
	_, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.AggregateType, entry.AggregateID, entry.EventType, string(entry.Payload), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchUnprocessed returns up to limit pending entries, oldest first.
// On Postgres the rows are claimed with SKIP LOCKED when ctx carries a transaction.
func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxBatch {
		limit = maxBatch
	}
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(`
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, processed_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?`)+s.pool.Dialect().ForUpdateSkipLocked(), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e         Entry
			payload   string
			processed sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Payload = []byte(payload)
		if processed.Valid {
			t := processed.Time
			e.ProcessedAt = &t
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkProcessed marks an entry as successfully published.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		UPDATE outbox SET processed_at = ? WHERE id = ? AND processed_at IS NULL`),
		processedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox entry processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("outbox entry %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

// CountPending returns the number of unprocessed entries.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.Conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending entries: %w", err)
	}
	return n, nil
}

// DeleteProcessedBefore removes processed entries older than before.
func (s *Store) DeleteProcessedBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := s.pool.Conn(ctx).ExecContext(ctx, s.pool.Q(`
		DELETE FROM outbox WHERE processed_at IS NOT NULL AND processed_at < ?`), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete processed entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}
