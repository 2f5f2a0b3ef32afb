package database

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRebindNumbersPlaceholdersInOrder(t *testing.T) {
	got := Postgres{}.Rebind("SELECT id FROM voters WHERE region = ? AND registered_at >= ? LIMIT ?")
	assert.Equal(t, "SELECT id FROM voters WHERE region = $1 AND registered_at >= $2 LIMIT $3", got)
}

func TestSQLiteRebindIsIdentity(t *testing.T) {
	q := "UPDATE voters SET status = ? WHERE id = ?"
	assert.Equal(t, q, SQLite{}.Rebind(q))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("pgx")
	require.NoError(t, err)
	assert.Equal(t, " FOR UPDATE", d.ForUpdate())
	assert.NotNil(t, d.SnapshotTxOptions())

	d, err = DialectFor("sqlite")
	require.NoError(t, err)
	assert.Empty(t, d.ForUpdate())
	assert.True(t, d.SingleWriter())

	_, err = DialectFor("oracle")
	require.Error(t, err)
}

func TestPostgresUniqueViolation(t *testing.T) {
	assert.True(t, Postgres{}.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, Postgres{}.IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, Postgres{}.IsUniqueViolation(errors.New("boom")))
}
