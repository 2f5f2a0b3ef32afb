package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Dialect isolates the few places where Postgres and SQLite disagree.
// Queries are written once with '?' placeholders.
type Dialect interface {
	Name() string
	DriverName() string
	// Rebind converts '?' placeholders into the dialect's native form.
	Rebind(query string) string
	// ForUpdate is appended to SELECTs that must lock the rows they read.
	ForUpdate() string
	// ForUpdateSkipLocked lets concurrent pollers claim disjoint rows.
	ForUpdateSkipLocked() string
	// SnapshotTxOptions returns options for a consistent read-only view.
	SnapshotTxOptions() *sql.TxOptions
	IsUniqueViolation(err error) bool
	SingleWriter() bool
}

// DialectFor returns the dialect registered for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverPostgres, "postgres":
		return Postgres{}, nil
	case DriverSQLite:
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Postgres uses pgx through database/sql.
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return DriverPostgres }
func (Postgres) ForUpdate() string  { return " FOR UPDATE" }

func (Postgres) ForUpdateSkipLocked() string { return " FOR UPDATE SKIP LOCKED" }
func (Postgres) SingleWriter() bool { return false }

func (Postgres) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (Postgres) SnapshotTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

func (Postgres) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SQLite uses the pure-Go modernc driver for single-node deployments and tests.
// Its transactions are serializable, so row locks and snapshot options are no-ops.
type SQLite struct{}

func (SQLite) Name() string                      { return "sqlite" }
func (SQLite) DriverName() string                { return DriverSQLite }
func (SQLite) Rebind(query string) string        { return query }
func (SQLite) ForUpdate() string                 { return "" }
func (SQLite) ForUpdateSkipLocked() string       { return "" }
func (SQLite) SnapshotTxOptions() *sql.TxOptions { return nil }
func (SQLite) SingleWriter() bool                { return true }

func (SQLite) IsUniqueViolation(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	code := sqErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
