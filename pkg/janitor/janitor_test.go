package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jetgogoing/sage-memory/pkg/dbpool"
	"github.com/jetgogoing/sage-memory/pkg/memorystore"
)

func TestNew_RejectsBadExpr(t *testing.T) {
	store := memorystore.New(dbpool.NewWithDB(nil, zerolog.Nop()), zerolog.Nop())
	_, err := New(Config{Expr: "not a cron expr"}, store, zerolog.Nop())
	require.Error(t, err)
}

func TestNew_DefaultsToHourly(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := memorystore.New(dbpool.NewWithDB(db, zerolog.Nop()), zerolog.Nop())

	j, err := New(Config{}, store, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, j.schedule)
}

func TestRunOnce_SkipsWhenRetentionDisabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := memorystore.New(dbpool.NewWithDB(db, zerolog.Nop()), zerolog.Nop())

	j, err := New(Config{Retention: 0}, store, zerolog.Nop())
	require.NoError(t, err)

	j.runOnce(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnce_PrunesWhenRetentionSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := memorystore.New(dbpool.NewWithDB(db, zerolog.Nop()), zerolog.Nop())

	mock.ExpectExec("delete from memories").WillReturnResult(sqlmock.NewResult(0, 3))

	j, err := New(Config{Retention: time.Hour}, store, zerolog.Nop())
	require.NoError(t, err)
	j.now = func() time.Time { return time.Unix(0, 0) }

	j.runOnce(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}
