package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollguard/internal/auditchain/models"
	"rollguard/internal/platform/database"
	"rollguard/internal/sentinel"
	id "rollguard/pkg/domain"
)

// Head is the tip of the chain as recorded in audit_chain_head.
type Head struct {
	LastSeq        int64
	LastHash       string
	LastOccurredAt time.Time // zero for an empty chain
}

// Store persists audit entries and verification blocks. Every method joins
// the transaction carried by ctx.
type Store struct {
	pool *database.Pool
}

func New(pool *database.Pool) *Store {
	return &Store{pool: pool}
}

// LockHead reads the chain head and holds its row lock until the caller's
// transaction ends, serializing appenders.
func (s *Store) LockHead(ctx context.Context) (*Head, error) {
	conn := s.pool.Conn(ctx)
	head := &Head{}
	err := conn.QueryRowContext(ctx,
		`SELECT last_seq, last_hash FROM audit_chain_head WHERE id = 1`+s.pool.Dialect().ForUpdate(),
	).Scan(&head.LastSeq, &head.LastHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit chain head: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock audit chain head: %w", err)
	}
	if head.LastSeq == 0 {
		return head, nil
	}

	err = conn.QueryRowContext(ctx, s.pool.Q(`SELECT occurred_at FROM audit_log WHERE seq = ?`), head.LastSeq).
		Scan(&head.LastOccurredAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read last audit entry: %w", err)
	}
	return head, nil
}

// ReadHead returns the recorded tip of the chain without locking it, for
// readers inside a snapshot.
func (s *Store) ReadHead(ctx context.Context) (*Head, error) {
	head := &Head{}
	err := s.pool.Conn(ctx).QueryRowContext(ctx,
		`SELECT last_seq, last_hash FROM audit_chain_head WHERE id = 1`,
	).Scan(&head.LastSeq, &head.LastHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit chain head: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read audit chain head: %w", err)
	}
	return head, nil
}

// Insert writes one entry and advances the head to it.
func (s *Store) Insert(ctx context.Context, e *models.Entry) error {
	conn := s.pool.Conn(ctx)
	_, err := conn.ExecContext(ctx, s.pool.Q(`
		INSERT INTO audit_log (seq, id, occurred_at, action, entity_type, entity_id, actor, details, previous_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.Seq, uuid.UUID(e.ID), e.OccurredAt, string(e.Action), string(e.EntityType),
		e.EntityID, e.Actor, e.Details, e.PreviousHash, e.EntryHash,
	)
	if err != nil {
		if s.pool.Dialect().IsUniqueViolation(err) {
			return fmt.Errorf("audit entry %d: %w", e.Seq, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}

	_, err = conn.ExecContext(ctx, s.pool.Q(`
		UPDATE audit_chain_head SET last_seq = ?, last_hash = ? WHERE id = 1`),
		e.Seq, e.EntryHash,
	)
	if err != nil {
		return fmt.Errorf("advance audit chain head: %w", err)
	}
	return nil
}

// ListOrdered returns the whole log in verification order.
func (s *Store) ListOrdered(ctx context.Context) ([]*models.Entry, error) {
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, `
		SELECT seq, id, occurred_at, action, entity_type, entity_id, actor, details, previous_hash, entry_hash
		FROM audit_log
		ORDER BY occurred_at ASC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}

// ListByEntity returns the entries about one entity, oldest first.
func (s *Store) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Entry, error) {
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(`
		SELECT seq, id, occurred_at, action, entity_type, entity_id, actor, details, previous_hash, entry_hash
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY seq ASC`), string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit log by entity: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (*models.Entry, error) {
	var (
		e          models.Entry
		entryID    uuid.UUID
		action     string
		entityType string
	)
	if err := rows.Scan(&e.Seq, &entryID, &e.OccurredAt, &action, &entityType,
		&e.EntityID, &e.Actor, &e.Details, &e.PreviousHash, &e.EntryHash); err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}
	e.ID = id.AuditEntryID(entryID)
	e.OccurredAt = e.OccurredAt.UTC()
	e.Action = models.Action(action)
	e.EntityType = models.EntityType(entityType)
	return &e, nil
}

// InsertBlocks persists the blocks of one verification pass.
func (s *Store) InsertBlocks(ctx context.Context, blocks []*models.Block) error {
	conn := s.pool.Conn(ctx)
	query := s.pool.Q(`
		INSERT INTO hash_chain_blocks (verification_id, entry_id, seq, previous_hash, stored_hash, computed_hash, is_valid, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, b := range blocks {
		if _, err := conn.ExecContext(ctx, query,
			uuid.UUID(b.VerificationID), uuid.UUID(b.EntryID), b.Seq,
			b.PreviousHash, b.StoredHash, b.ComputedHash, b.IsValid, b.VerifiedAt,
		); err != nil {
			return fmt.Errorf("insert hash chain block %d: %w", b.Seq, err)
		}
	}
	return nil
}

// ListBlocks returns the blocks written by one verification pass.
func (s *Store) ListBlocks(ctx context.Context, verificationID id.VerificationID) ([]*models.Block, error) {
	rows, err := s.pool.Conn(ctx).QueryContext(ctx, s.pool.Q(`
		SELECT verification_id, entry_id, seq, previous_hash, stored_hash, computed_hash, is_valid, verified_at
		FROM hash_chain_blocks
		WHERE verification_id = ?
		ORDER BY seq ASC`), uuid.UUID(verificationID))
	if err != nil {
		return nil, fmt.Errorf("query hash chain blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*models.Block
	for rows.Next() {
		var (
			b       models.Block
			verID   uuid.UUID
			entryID uuid.UUID
		)
		if err := rows.Scan(&verID, &entryID, &b.Seq, &b.PreviousHash, &b.StoredHash,
			&b.ComputedHash, &b.IsValid, &b.VerifiedAt); err != nil {
			return nil, fmt.Errorf("scan hash chain block: %w", err)
		}
		b.VerificationID = id.VerificationID(verID)
		b.EntryID = id.AuditEntryID(entryID)
		blocks = append(blocks, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hash chain blocks: %w", err)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("verification %s: %w", verificationID, sentinel.ErrNotFound)
	}
	return blocks, nil
}
