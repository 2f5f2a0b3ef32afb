package database

import (
	"context"
	"database/sql"
	"time"

	dErrors "rollguard/pkg/domain-errors"
	txcontext "rollguard/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// TxRunner opens one transaction per unit of work and publishes it through
// the context. Stores reached from fn join it via Pool.Conn.
type TxRunner struct {
	pool    *Pool
	timeout time.Duration
}

// NewTxRunner creates a runner; a zero timeout uses the default.
func NewTxRunner(pool *Pool, timeout time.Duration) *TxRunner {
	return &TxRunner{pool: pool, timeout: timeout}
}

// RunInTx executes fn inside a read-write transaction. A transaction already
// present in ctx is reused so services can compose.
func (t *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.run(ctx, nil, fn)
}

// RunInSnapshot executes fn inside a read-only transaction that sees one
// consistent view of the database.
func (t *TxRunner) RunInSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.run(ctx, t.pool.dialect.SnapshotTxOptions(), fn)
}

func (t *TxRunner) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.pool.db.BeginTx(ctx, opts)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}
