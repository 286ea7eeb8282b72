package memorystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

// SearchVector runs a cosine-distance KNN query, optionally scoped to a
// session, returning rows ordered by similarity descending (closest
// first). Similarity is reported as 1 - distance, in [0,1].
func (s *Store) SearchVector(ctx context.Context, embedding memorytypes.Embedding, sessionID string, limit int) ([]memorytypes.Record, error) {
	query := `
		select id, session_id, user_input, assistant_response, metadata, created_at,
		       1 - (embedding <=> $1::vector) as similarity
		from memories`
	args := []any{vectorLiteral(embedding)}
	if sessionID != "" {
		query += " where session_id = $2"
		args = append(args, sessionID)
	}
	query += fmt.Sprintf(" order by embedding <=> $1::vector limit %d", limit)

	rows, err := s.pool.Fetch(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memorytypes.Record
	for rows.Next() {
		var rec memorytypes.Record
		var sess sql.NullString
		var rawMeta []byte
		var similarity float64
		if err := rows.Scan(&rec.ID, &sess, &rec.UserInput, &rec.AssistantResponse, &rawMeta, &rec.CreatedAt, &similarity); err != nil {
			return nil, sageerr.Wrap(sageerr.KindDatabaseConnection, "scan vector search row", err)
		}
		rec.SessionID = sess.String
		if err := unmarshalMetadata(rawMeta, &rec.Metadata); err != nil {
			return nil, err
		}
		rec.Similarity = similarity
		rec.HasSimilarity = true
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SearchText runs a case-insensitive substring match against both the
// user input and assistant response columns, optionally session-scoped,
// newest first.
func (s *Store) SearchText(ctx context.Context, q, sessionID string, limit int) ([]memorytypes.Record, error) {
	pattern := "%" + q + "%"
	query := `
		select id, session_id, user_input, assistant_response, metadata, created_at
		from memories
		where (user_input ilike $1 or assistant_response ilike $1)`
	args := []any{pattern}
	if sessionID != "" {
		query += " and session_id = $2 order by created_at desc limit $3"
		args = append(args, sessionID, limit)
	} else {
		query += " order by created_at desc limit $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Fetch(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memorytypes.Record
	for rows.Next() {
		var rec memorytypes.Record
		var sess sql.NullString
		var rawMeta []byte
		if err := rows.Scan(&rec.ID, &sess, &rec.UserInput, &rec.AssistantResponse, &rawMeta, &rec.CreatedAt); err != nil {
			return nil, sageerr.Wrap(sageerr.KindDatabaseConnection, "scan text search row", err)
		}
		rec.SessionID = sess.String
		if err := unmarshalMetadata(rawMeta, &rec.Metadata); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetByID fetches a single record by primary key. Returns nil, nil if not found.
func (s *Store) GetByID(ctx context.Context, id string) (*memorytypes.Record, error) {
	const query = `
		select id, session_id, user_input, assistant_response, metadata,
		       is_agent_report, agent_metadata, created_at, updated_at
		from memories where id = $1`

	row := s.pool.FetchRow(ctx, query, id)
	if row == nil {
		return nil, sageerr.New(sageerr.KindDatabaseConnection, "pool not connected")
	}

	var rec memorytypes.Record
	var sess sql.NullString
	var rawMeta, rawAgentMeta []byte
	err := row.Scan(&rec.ID, &sess, &rec.UserInput, &rec.AssistantResponse, &rawMeta,
		&rec.IsAgentReport, &rawAgentMeta, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sageerr.Wrap(sageerr.KindDatabaseConnection, "get by id", err)
	}
	rec.SessionID = sess.String
	if err := unmarshalMetadata(rawMeta, &rec.Metadata); err != nil {
		return nil, err
	}
	if len(rawAgentMeta) > 0 {
		var am memorytypes.AgentMetadata
		if err := json.Unmarshal(rawAgentMeta, &am); err != nil {
			return nil, sageerr.Wrap(sageerr.KindInternal, "unmarshal agent metadata", err)
		}
		rec.AgentMetadata = &am
	}
	return &rec, nil
}

// GetBySession returns up to limit records for sessionID, newest first.
// limit <= 0 returns every record in the session (used by export).
func (s *Store) GetBySession(ctx context.Context, sessionID string, limit int) ([]memorytypes.Record, error) {
	query := `
		select id, session_id, user_input, assistant_response, metadata, created_at
		from memories where session_id = $1 order by created_at desc`
	args := []any{sessionID}
	if limit > 0 {
		query += " limit $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Fetch(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memorytypes.Record
	for rows.Next() {
		var rec memorytypes.Record
		var sess sql.NullString
		var rawMeta []byte
		if err := rows.Scan(&rec.ID, &sess, &rec.UserInput, &rec.AssistantResponse, &rawMeta, &rec.CreatedAt); err != nil {
			return nil, sageerr.Wrap(sageerr.KindDatabaseConnection, "scan session row", err)
		}
		rec.SessionID = sess.String
		if err := unmarshalMetadata(rawMeta, &rec.Metadata); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRecent returns the latest limit records across every session, newest
// first, for the "recent" search strategy with no session scope.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]memorytypes.Record, error) {
	const query = `
		select id, session_id, user_input, assistant_response, metadata, created_at
		from memories order by created_at desc limit $1`
	rows, err := s.pool.Fetch(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memorytypes.Record
	for rows.Next() {
		var rec memorytypes.Record
		var sess sql.NullString
		var rawMeta []byte
		if err := rows.Scan(&rec.ID, &sess, &rec.UserInput, &rec.AssistantResponse, &rawMeta, &rec.CreatedAt); err != nil {
			return nil, sageerr.Wrap(sageerr.KindDatabaseConnection, "scan recent row", err)
		}
		rec.SessionID = sess.String
		if err := unmarshalMetadata(rawMeta, &rec.Metadata); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListSessions returns the distinct session ids that have at least one record.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	const query = `select distinct session_id from memories where session_id is not null order by session_id`
	rows, err := s.pool.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, sageerr.Wrap(sageerr.KindDatabaseConnection, "scan session id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SessionStats returns total/first/last for one session.
func (s *Store) SessionStats(ctx context.Context, sessionID string) (memorytypes.SessionInfo, error) {
	const query = `
		select count(*), min(created_at), max(created_at)
		from memories where session_id = $1`
	row := s.pool.FetchRow(ctx, query, sessionID)
	if row == nil {
		return memorytypes.SessionInfo{}, sageerr.New(sageerr.KindDatabaseConnection, "pool not connected")
	}

	var info memorytypes.SessionInfo
	info.SessionID = sessionID
	var first, last sql.NullTime
	if err := row.Scan(&info.Total, &first, &last); err != nil {
		return info, sageerr.Wrap(sageerr.KindDatabaseConnection, "session stats", err)
	}
	if first.Valid {
		info.FirstMemory = &first.Time
	}
	if last.Valid {
		info.LastMemory = &last.Time
	}
	return info, nil
}

// GlobalStats returns total/sessionCount/first/last across all records.
func (s *Store) GlobalStats(ctx context.Context) (memorytypes.GlobalStats, error) {
	const query = `
		select count(*), count(distinct session_id), min(created_at), max(created_at)
		from memories`
	row := s.pool.FetchRow(ctx, query)
	if row == nil {
		return memorytypes.GlobalStats{}, sageerr.New(sageerr.KindDatabaseConnection, "pool not connected")
	}

	var stats memorytypes.GlobalStats
	var first, last sql.NullTime
	if err := row.Scan(&stats.Total, &stats.SessionCount, &first, &last); err != nil {
		return stats, sageerr.Wrap(sageerr.KindDatabaseConnection, "global stats", err)
	}
	if first.Valid {
		stats.FirstMemory = &first.Time
	}
	if last.Valid {
		stats.LastMemory = &last.Time
	}
	return stats, nil
}

func unmarshalMetadata(raw []byte, dst *memorytypes.Metadata) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return sageerr.Wrap(sageerr.KindInternal, "unmarshal metadata", err)
	}
	return nil
}
