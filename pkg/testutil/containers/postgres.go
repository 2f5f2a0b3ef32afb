//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"rollguard/internal/platform/database"
)

// moduleTables lists every table truncated between tests. audit_chain_head
// is reset rather than truncated so the genesis row survives.
var moduleTables = []string{
	"outbox",
	"hash_chain_blocks",
	"audit_log",
	"revision_flags",
	"revision_batches",
	"review_tasks",
	"cluster_flags",
	"death_registry",
	"name_frequencies",
	"address_cache",
	"voters",
}

// PostgresContainer wraps a testcontainers Postgres instance.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *database.Pool
}

// NewPostgresContainer starts Postgres and applies the embedded migrations.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("rollguard_test"),
		postgres.WithUsername("rollguard"),
		postgres.WithPassword("rollguard_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	cfg := database.DefaultConfig()
	cfg.URL = dsn
	pool, err := database.New(cfg)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	if err := database.Migrate(ctx, pool); err != nil {
		_ = pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	// The container is shared across suites; Ryuk removes it when the test
	// process exits.
	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		Pool:      pool,
	}
}

// DB returns the underlying *sql.DB.
func (p *PostgresContainer) DB() *sql.DB {
	return p.Pool.DB()
}

// Reset clears every module table and rewinds the audit chain head to genesis.
func (p *PostgresContainer) Reset(ctx context.Context) error {
	for _, table := range moduleTables {
		if _, err := p.DB().ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	_, err := p.DB().ExecContext(ctx, `
		UPDATE audit_chain_head
		SET last_seq = 0, last_hash = $1`, genesisHash)
	if err != nil {
		return fmt.Errorf("reset audit chain head: %w", err)
	}
	return nil
}

const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"
