package dbpool

import (
	"context"
	"database/sql"
)

// ensureSchema runs the idempotent DDL that creates the pgvector extension,
// the memories table, and its indexes. Every statement is CREATE ... IF
// NOT EXISTS so repeated calls are harmless.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS memories (
			id                 UUID PRIMARY KEY,
			session_id         TEXT,
			user_input         TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			embedding          VECTOR(4096),
			metadata           JSONB DEFAULT '{}',
			is_agent_report    BOOLEAN DEFAULT false,
			agent_metadata     JSONB,
			created_at         TIMESTAMPTZ DEFAULT now(),
			updated_at         TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS memories_session_id_idx ON memories (session_id)`,
		`CREATE INDEX IF NOT EXISTS memories_created_at_idx ON memories (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS memories_is_agent_report_idx ON memories (is_agent_report)`,
		`CREATE INDEX IF NOT EXISTS memories_agent_metadata_gin_idx ON memories USING GIN (agent_metadata)`,
		`CREATE INDEX IF NOT EXISTS memories_agent_name_idx ON memories ((agent_metadata->>'agent_name'))`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
