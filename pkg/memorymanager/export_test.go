package memorymanager

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func sessionRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "session_id", "user_input", "assistant_response", "metadata", "created_at"}).
		AddRow("id-2", "sess-1", "第二个问题", "第二个回答", []byte(`{}`), now).
		AddRow("id-1", "sess-1", "first question", "first answer", []byte(`{}`), now.Add(-time.Minute))
}

func TestManager_ExportSession_JSON(t *testing.T) {
	m, mock := newTestManager(t)
	ctx := t.Context()

	mock.ExpectQuery("from memories where session_id").WillReturnRows(sessionRows(time.Now()))

	out, err := m.ExportSession(ctx, "sess-1", ExportJSON)
	require.NoError(t, err)
	require.Contains(t, out, "first question")
	require.Contains(t, out, "第二个回答")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_ExportSession_Markdown(t *testing.T) {
	m, mock := newTestManager(t)
	ctx := t.Context()

	mock.ExpectQuery("from memories where session_id").WillReturnRows(sessionRows(time.Now()))

	out, err := m.ExportSession(ctx, "sess-1", ExportMarkdown)
	require.NoError(t, err)
	require.Contains(t, out, "# Session sess-1")
	require.Contains(t, out, "## Memory 1")
	require.Contains(t, out, "- User: 第二个问题")
	require.Contains(t, out, "- Assistant: first answer")
}

func TestManager_ExportSession_RejectsUnknownFormat(t *testing.T) {
	m, mock := newTestManager(t)
	ctx := t.Context()

	mock.ExpectQuery("from memories where session_id").WillReturnRows(sessionRows(time.Now()))

	_, err := m.ExportSession(ctx, "sess-1", ExportFormat("csv"))
	require.Error(t, err)
}
