package service

import (
	"context"
	"log/slog"
	"time"

	"rollguard/internal/auditchain/metrics"
	"rollguard/internal/auditchain/models"
	"rollguard/internal/auditchain/store"
	"rollguard/internal/outbox"
	id "rollguard/pkg/domain"
	"rollguard/pkg/platform/middleware/requesttime"
)

// Store is the audit log persistence. Error contract: LockHead and ReadHead
// return sentinel.ErrNotFound when the schema was not seeded; Insert returns
// sentinel.ErrConflict when the sequence number is taken.
type Store interface {
	LockHead(ctx context.Context) (*store.Head, error)
	ReadHead(ctx context.Context) (*store.Head, error)
	Insert(ctx context.Context, e *models.Entry) error
	ListOrdered(ctx context.Context) ([]*models.Entry, error)
	ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Entry, error)
	InsertBlocks(ctx context.Context, blocks []*models.Block) error
	ListBlocks(ctx context.Context, verificationID id.VerificationID) ([]*models.Block, error)
}

// OutboxAppender queues an event in the caller's transaction.
type OutboxAppender interface {
	Append(ctx context.Context, entry *outbox.Entry) error
}

// TxRunner runs fn in a transaction published through ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	RunInSnapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	outbox  OutboxAppender
	now     func(ctx context.Context) time.Time
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithOutbox forwards every appended entry to the outbox in the same transaction.
func WithOutbox(ob OutboxAppender) Option {
	return func(o *options) {
		o.outbox = ob
	}
}

// WithNow overrides the clock; tests use it to pin timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = func(context.Context) time.Time { return now() }
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    requesttime.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
