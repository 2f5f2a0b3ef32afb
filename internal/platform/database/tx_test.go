package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "rollguard/pkg/domain-errors"
	txcontext "rollguard/pkg/platform/tx"
)

type TxRunnerSuite struct {
	suite.Suite
	pool   *Pool
	runner *TxRunner
}

func TestTxRunnerSuite(t *testing.T) {
	suite.Run(t, new(TxRunnerSuite))
}

func (s *TxRunnerSuite) SetupTest() {
	db, err := sql.Open(DriverSQLite, "file::memory:")
	s.Require().NoError(err)
	db.SetMaxOpenConns(1)
	s.pool = Wrap(db, SQLite{})
	_, err = db.Exec("CREATE TABLE counters (name TEXT PRIMARY KEY, value INTEGER NOT NULL)")
	s.Require().NoError(err)
	s.runner = NewTxRunner(s.pool, 0)
}

func (s *TxRunnerSuite) TearDownTest() {
	s.Require().NoError(s.pool.Close())
}

func (s *TxRunnerSuite) count() int {
	var n int
	s.Require().NoError(s.pool.DB().QueryRow("SELECT COUNT(*) FROM counters").Scan(&n))
	return n
}

func (s *TxRunnerSuite) TestCommitsOnSuccess() {
	err := s.runner.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := s.pool.Conn(ctx).ExecContext(ctx, "INSERT INTO counters (name, value) VALUES (?, ?)", "a", 1)
		return err
	})
	s.Require().NoError(err)
	s.Equal(1, s.count())
}

func (s *TxRunnerSuite) TestRollsBackOnError() {
	boom := errors.New("boom")
	err := s.runner.RunInTx(context.Background(), func(ctx context.Context) error {
		if _, err := s.pool.Conn(ctx).ExecContext(ctx, "INSERT INTO counters (name, value) VALUES (?, ?)", "a", 1); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)
	s.Equal(0, s.count())
}

func (s *TxRunnerSuite) TestNestedCallsJoinOuterTransaction() {
	var outer, inner *sql.Tx
	err := s.runner.RunInTx(context.Background(), func(ctx context.Context) error {
		outer, _ = txcontext.From(ctx)
		return s.runner.RunInTx(ctx, func(ctx context.Context) error {
			inner, _ = txcontext.From(ctx)
			return nil
		})
	})
	s.Require().NoError(err)
	s.NotNil(outer)
	s.Same(outer, inner)
}

func (s *TxRunnerSuite) TestCancelledContextIsTimeout() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.runner.RunInTx(ctx, func(context.Context) error { return nil })
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}
