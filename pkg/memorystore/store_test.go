package memorystore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jetgogoing/sage-memory/pkg/dbpool"
	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func() *require.Assertions) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	pool := dbpool.NewWithDB(db, zerolog.Nop())
	return New(pool, zerolog.Nop()), mock, func() *require.Assertions { return require.New(t) }
}

func testEmbedding() memorytypes.Embedding {
	v := make(memorytypes.Embedding, memorytypes.Dimension)
	for i := range v {
		v[i] = 0.01
	}
	return v
}

func TestStore_Save_RejectsEmptyInputs(t *testing.T) {
	st, _, _ := newTestStore(t)
	ctx := t.Context()

	_, err := st.Save(ctx, nil, SaveInput{Embedding: testEmbedding()})
	require.Error(t, err)
}

func TestStore_Save_RejectsWrongDimensionEmbedding(t *testing.T) {
	st, _, _ := newTestStore(t)
	ctx := t.Context()

	_, err := st.Save(ctx, nil, SaveInput{UserInput: "hi", Embedding: memorytypes.Embedding{1, 2, 3}})
	require.Error(t, err)
}

func TestStore_Save_RejectsEmptySessionID(t *testing.T) {
	st, _, _ := newTestStore(t)
	ctx := t.Context()
	empty := ""

	_, err := st.Save(ctx, nil, SaveInput{UserInput: "hi", Embedding: testEmbedding(), SessionID: &empty})
	require.Error(t, err)
}

func TestStore_Save_InsertsNewRecordWhenNoDuplicate(t *testing.T) {
	st, mock, _ := newTestStore(t)
	ctx := t.Context()

	mock.ExpectBegin()
	mock.ExpectQuery("select id, created_at, metadata from memories").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "metadata"}))
	mock.ExpectExec("insert into memories").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	db := st.pool.DB()
	tx, err := db.Begin()
	require.NoError(t, err)

	session := "sess-1"
	id, err := st.Save(ctx, tx, SaveInput{
		UserInput:         "hello",
		AssistantResponse: "hi there",
		Embedding:         testEmbedding(),
		SessionID:         &session,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Save_ReturnsExistingIDWhenDuplicateUnchanged(t *testing.T) {
	st, mock, _ := newTestStore(t)
	ctx := t.Context()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "created_at", "metadata"}).
		AddRow("existing-id", time.Now(), []byte(`{"messageCount":2,"thinkingContent":"","toolCalls":null}`))
	mock.ExpectQuery("select id, created_at, metadata from memories").WillReturnRows(rows)
	mock.ExpectCommit()

	db := st.pool.DB()
	tx, err := db.Begin()
	require.NoError(t, err)

	session := "sess-1"
	id, err := st.Save(ctx, tx, SaveInput{
		UserInput:         "hello",
		AssistantResponse: "hi there",
		Embedding:         testEmbedding(),
		SessionID:         &session,
		Metadata:          memorytypes.Metadata{MessageCount: 2},
	})
	require.NoError(t, err)
	require.Equal(t, "existing-id", id)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SearchVector_ReturnsOrderedRows(t *testing.T) {
	st, mock, _ := newTestStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "session_id", "user_input", "assistant_response", "metadata", "created_at", "similarity"}).
		AddRow("id-1", "sess-1", "q1", "a1", []byte(`{}`), time.Now(), 0.92).
		AddRow("id-2", "sess-1", "q2", "a2", []byte(`{}`), time.Now(), 0.81)
	mock.ExpectQuery("select id, session_id, user_input, assistant_response, metadata, created_at").
		WillReturnRows(rows)

	recs, err := st.SearchVector(ctx, testEmbedding(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.True(t, recs[0].HasSimilarity)
	require.InDelta(t, 0.92, recs[0].Similarity, 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetByID_ReturnsRecordWithAgentMetadata(t *testing.T) {
	st, mock, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "user_input", "assistant_response", "metadata",
		"is_agent_report", "agent_metadata", "created_at", "updated_at",
	}).AddRow("id-1", "sess-1", "q", "a", []byte(`{"messageCount":3}`),
		true, []byte(`{"agentName":"researcher"}`), now, now)
	mock.ExpectQuery("from memories where id").WillReturnRows(rows)

	rec, err := st.GetByID(ctx, "id-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "id-1", rec.ID)
	require.Equal(t, 3, rec.Metadata.MessageCount)
	require.True(t, rec.IsAgentReport)
	require.NotNil(t, rec.AgentMetadata)
	require.Equal(t, "researcher", rec.AgentMetadata.AgentName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetByID_ReturnsNilWhenMissing(t *testing.T) {
	st, mock, _ := newTestStore(t)
	ctx := context.Background()

	mock.ExpectQuery("from memories where id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "user_input", "assistant_response", "metadata",
			"is_agent_report", "agent_metadata", "created_at", "updated_at",
		}))

	rec, err := st.GetByID(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestStore_GlobalStats_ReturnsCounts(t *testing.T) {
	st, mock, _ := newTestStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"count", "count_distinct", "min", "max"}).
		AddRow(5, 2, time.Now(), time.Now())
	mock.ExpectQuery("select count\\(\\*\\), count\\(distinct session_id\\)").WillReturnRows(rows)

	stats, err := st.GlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, stats.Total)
	require.Equal(t, 2, stats.SessionCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
