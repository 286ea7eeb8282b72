package dbpool

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

func newTestPool(t *testing.T) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, zerolog.Nop()), mock
}

func TestPool_Execute_Success(t *testing.T) {
	p, mock := newTestPool(t)
	mock.ExpectExec("INSERT INTO memories").WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := p.Execute(context.Background(), "INSERT INTO memories (id) VALUES ($1)", "abc")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_Execute_WrapsFailureAsDatabaseConnection(t *testing.T) {
	p, mock := newTestPool(t)
	p.retry.InitialDelay = time.Millisecond
	p.retry.MaxDelay = 5 * time.Millisecond
	// DatabaseRetry attempts 5 times; fail all of them.
	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT INTO memories").WillReturnError(context.DeadlineExceeded)
	}

	_, err := p.Execute(context.Background(), "INSERT INTO memories (id) VALUES ($1)", "abc")
	require.Error(t, err)
	require.Equal(t, sageerr.KindDatabaseConnection, sageerr.KindOf(err))
}

func TestPool_FetchVal_ScansScalar(t *testing.T) {
	p, mock := newTestPool(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	var count int
	err := p.FetchVal(context.Background(), &count, "SELECT COUNT(*) FROM memories")
	require.NoError(t, err)
	require.Equal(t, 42, count)
}
