// Package memorystore implements the write and read paths against the
// memories table: fingerprinted, deduplicated, size-normalized inserts and
// vector/text/by-id/by-session/statistics reads.
package memorystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/dbpool"
	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

// Store is the storage layer bound to the pooled database connection. Read
// paths go through the pool; those using Fetch are retry/breaker wrapped,
// while GetByID and the stats reads use FetchRow, which is not. The write
// path's probe+insert runs against whatever *sql.Tx the caller threads
// through, so it can participate in the memory manager's transaction scope.
type Store struct {
	pool *dbpool.Pool
	log  zerolog.Logger
}

// New builds a Store bound to pool.
func New(pool *dbpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log.With().Str("component", "memorystore").Logger()}
}

// SaveInput carries the arguments to Save. SessionID is a pointer so a nil
// session (process has none yet) can be distinguished from the empty
// string, which is rejected outright.
type SaveInput struct {
	UserInput         string
	AssistantResponse string
	Embedding         memorytypes.Embedding
	Metadata          memorytypes.Metadata
	SessionID         *string
	IsAgentReport     bool
	AgentMetadata     *memorytypes.AgentMetadata
}

// Save validates, fingerprints, deduplicates, normalizes, and inserts one
// memory record within tx, returning its id. If a recent duplicate is
// found with unchanged essential fields, it returns the existing id
// without inserting.
func (s *Store) Save(ctx context.Context, tx *sql.Tx, in SaveInput) (string, error) {
	if err := validateSaveInput(in); err != nil {
		return "", err
	}

	now := time.Now()
	contentHash, timeAwareHash, timeWindow := computeFingerprint(in.UserInput, in.AssistantResponse, now)

	sessionID := ""
	if in.SessionID != nil {
		sessionID = *in.SessionID
	}

	existing, err := s.probeDuplicate(ctx, tx, contentHash, timeAwareHash, sessionID)
	if err != nil {
		return "", err
	}
	if existing != nil && !recordChanged(existing.Metadata, in.Metadata) {
		return existing.ID, nil
	}

	meta := in.Metadata
	meta.ContentHash = contentHash
	meta.TimeAwareHash = timeAwareHash
	meta.TimeWindow = timeWindow
	meta.SessionID = sessionID
	if len(meta.ToolCalls) > 0 {
		meta.ToolCallCount = len(meta.ToolCalls)
	}
	meta = normalizeMetadata(meta)

	isAgentReport, agentMetaJSON, err := resolveAgentReport(in)
	if err != nil {
		return "", err
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", sageerr.Wrap(sageerr.KindInternal, "marshal metadata", err)
	}

	id := uuid.NewString()
	const insertSQL = `
		insert into memories
			(id, session_id, user_input, assistant_response, embedding, metadata, is_agent_report, agent_metadata)
		values
			($1, $2, $3, $4, $5::vector, $6, $7, $8)`

	var sessionArg any
	if in.SessionID != nil {
		sessionArg = sessionID
	}

	_, err = tx.ExecContext(ctx, insertSQL,
		id, sessionArg, in.UserInput, in.AssistantResponse,
		vectorLiteral(in.Embedding), metaJSON, isAgentReport, agentMetaJSON,
	)
	if err != nil {
		return "", sageerr.Wrap(sageerr.KindDatabaseConnection, "insert memory record", err)
	}
	return id, nil
}

// SaveDirect opens its own standalone transaction around Save. It exists
// for the memory manager's degraded mode, when no transaction manager is
// wired and the probe+insert still needs atomicity even without scope
// registration or nesting support.
func (s *Store) SaveDirect(ctx context.Context, in SaveInput) (string, error) {
	db := s.pool.DB()
	if db == nil {
		return "", sageerr.New(sageerr.KindDatabaseConnection, "pool not connected")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", sageerr.Wrap(sageerr.KindDatabaseConnection, "begin direct transaction", err)
	}
	id, err := s.Save(ctx, tx, in)
	if err != nil {
		_ = tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", sageerr.Wrap(sageerr.KindDatabaseConnection, "commit direct transaction", err)
	}
	return id, nil
}

func validateSaveInput(in SaveInput) error {
	if strings.TrimSpace(in.UserInput) == "" && strings.TrimSpace(in.AssistantResponse) == "" {
		return sageerr.Validation("userInput and assistantResponse cannot both be empty")
	}
	if len(in.Embedding) != memorytypes.Dimension {
		return sageerr.Validation("embedding must be a numeric sequence of the configured dimension")
	}
	if in.SessionID != nil && *in.SessionID == "" {
		return sageerr.Validation("sessionId cannot be the empty string")
	}
	return nil
}

// resolveAgentReport implements the agent-report precedence: an explicit
// AgentMetadata argument always wins and forces isAgentReport true; a
// backward-compatible metadata.agent_metadata map is lifted out next;
// otherwise the explicit flag or metadata.isAgentReport decides.
func resolveAgentReport(in SaveInput) (bool, []byte, error) {
	if in.AgentMetadata != nil {
		b, err := json.Marshal(in.AgentMetadata)
		if err != nil {
			return false, nil, sageerr.Wrap(sageerr.KindInternal, "marshal agent metadata", err)
		}
		return true, b, nil
	}
	if in.Metadata.AgentMetadata != nil {
		b, err := json.Marshal(in.Metadata.AgentMetadata)
		if err != nil {
			return false, nil, sageerr.Wrap(sageerr.KindInternal, "marshal agent metadata", err)
		}
		return true, b, nil
	}
	isAgentReport := in.IsAgentReport
	if in.Metadata.IsAgentReport != nil {
		isAgentReport = isAgentReport || *in.Metadata.IsAgentReport
	}
	return isAgentReport, nil, nil
}

// recordChanged reports whether any of the {toolCalls, messageCount,
// thinkingContent} keys differ between an existing duplicate candidate and
// the incoming metadata, which is the dedup rule's "new information" test.
func recordChanged(existing, incoming memorytypes.Metadata) bool {
	if existing.MessageCount != incoming.MessageCount {
		return true
	}
	if existing.ThinkingContent != incoming.ThinkingContent {
		return true
	}
	if !reflect.DeepEqual(existing.ToolCalls, incoming.ToolCalls) {
		return true
	}
	return false
}

type duplicateCandidate struct {
	ID        string
	CreatedAt time.Time
	Metadata  memorytypes.Metadata
}

func (s *Store) probeDuplicate(ctx context.Context, tx *sql.Tx, contentHash, timeAwareHash, sessionID string) (*duplicateCandidate, error) {
	const probeSQL = `
		select id, created_at, metadata from memories
		where (metadata->>'contentHash' = $1 or metadata->>'timeAwareHash' = $2)
		  and session_id = $3
		  and created_at > now() - interval '2 hours'
		order by created_at desc limit 1`

	row := tx.QueryRowContext(ctx, probeSQL, contentHash, timeAwareHash, sessionID)
	var id string
	var createdAt time.Time
	var rawMeta []byte
	switch err := row.Scan(&id, &createdAt, &rawMeta); err {
	case nil:
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, sageerr.Wrap(sageerr.KindDatabaseConnection, "probe duplicate", err)
	}

	var meta memorytypes.Metadata
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return nil, sageerr.Wrap(sageerr.KindInternal, "unmarshal duplicate metadata", err)
		}
	}
	return &duplicateCandidate{ID: id, CreatedAt: createdAt, Metadata: meta}, nil
}
