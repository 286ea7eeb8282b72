// Package memorymanager composes the embedding client and the storage
// layer into the save/search/context/session operations exposed to the
// tool server.
package memorymanager

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/embedclient"
	"github.com/jetgogoing/sage-memory/pkg/memorystore"
	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
	"github.com/jetgogoing/sage-memory/pkg/txscope"
)

// SaveContent is the input to Manager.Save.
type SaveContent struct {
	UserInput         string
	AssistantResponse string
	SessionID         *string
	Metadata          memorytypes.Metadata
	IsAgentReport     bool
	AgentMetadata     *memorytypes.AgentMetadata
}

// Manager implements the memory manager component: it owns the
// process-local current session id and sequences embed-then-insert so
// that a failed embed never opens a transaction at all.
type Manager struct {
	store *memorystore.Store
	embed *embedclient.Client
	txMgr *txscope.Manager
	log   zerolog.Logger

	mu             sync.RWMutex
	currentSession string
}

// New builds a Manager. txMgr may be nil, in which case Save runs in
// degraded mode (Store.SaveDirect, a standalone transaction rather than a
// scope-registered one).
func New(store *memorystore.Store, embed *embedclient.Client, txMgr *txscope.Manager, log zerolog.Logger) *Manager {
	return &Manager{
		store:          store,
		embed:          embed,
		txMgr:          txMgr,
		log:            log.With().Str("component", "memorymanager").Logger(),
		currentSession: uuid.NewString(),
	}
}

// CurrentSession returns the process-local active session id.
func (m *Manager) CurrentSession() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentSession
}

// CreateSession mints a fresh session id, makes it current, and returns it.
func (m *Manager) CreateSession() string {
	id := uuid.NewString()
	m.mu.Lock()
	m.currentSession = id
	m.mu.Unlock()
	return id
}

// SwitchSession replaces the current session id with sessionID.
func (m *Manager) SwitchSession(sessionID string) {
	m.mu.Lock()
	m.currentSession = sessionID
	m.mu.Unlock()
}

// Save embeds the combined turn text, then inserts the record. The embed
// call happens strictly before any transaction opens: if it fails, there
// is nothing to roll back; if it succeeds and the subsequent insert
// fails, the transaction rolls back and the embedding cost is discarded.
func (m *Manager) Save(ctx context.Context, content SaveContent) (string, error) {
	combined := content.UserInput + "\n" + content.AssistantResponse
	vec, err := m.embed.Embed(ctx, combined, embedclient.DefaultOptions())
	if err != nil {
		return "", err
	}

	sessionID := content.SessionID
	if sessionID == nil {
		s := m.CurrentSession()
		sessionID = &s
	}

	in := memorystore.SaveInput{
		UserInput:         content.UserInput,
		AssistantResponse: content.AssistantResponse,
		Embedding:         vec,
		Metadata:          content.Metadata,
		SessionID:         sessionID,
		IsAgentReport:     content.IsAgentReport,
		AgentMetadata:     content.AgentMetadata,
	}

	if m.txMgr == nil {
		return m.store.SaveDirect(ctx, in)
	}

	var id string
	err = m.txMgr.Transactional(ctx, txscope.ReadCommitted, func(ctx context.Context, scope *txscope.Scope) error {
		savedID, saveErr := m.store.Save(ctx, scope.Tx(), in)
		if saveErr != nil {
			return saveErr
		}
		id = savedID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Search composes vector and text result sets per options.Strategy.
func (m *Manager) Search(ctx context.Context, query string, opts memorytypes.SearchOptions) ([]memorytypes.Record, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	switch opts.Strategy {
	case memorytypes.StrategySemantic:
		vec, err := m.embed.Embed(ctx, query, embedclient.DefaultOptions())
		if err != nil {
			return nil, err
		}
		return m.store.SearchVector(ctx, vec, opts.SessionID, opts.Limit)

	case memorytypes.StrategyRecent:
		if opts.SessionID != "" {
			return m.store.GetBySession(ctx, opts.SessionID, opts.Limit)
		}
		return m.recentGlobal(ctx, opts.Limit)

	default:
		return m.searchDefault(ctx, query, opts)
	}
}

// searchDefault runs a vector search for opts.Limit results, then adds up
// to limit/2 text matches not already present, sorts by similarity when
// available (falling back to created_at desc), and truncates to limit.
func (m *Manager) searchDefault(ctx context.Context, query string, opts memorytypes.SearchOptions) ([]memorytypes.Record, error) {
	vec, err := m.embed.Embed(ctx, query, embedclient.DefaultOptions())
	if err != nil {
		return nil, err
	}
	vectorHits, err := m.store.SearchVector(ctx, vec, opts.SessionID, opts.Limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(vectorHits))
	for _, r := range vectorHits {
		seen[r.ID] = true
	}

	textLimit := opts.Limit / 2
	merged := vectorHits
	if textLimit > 0 {
		textHits, err := m.store.SearchText(ctx, query, opts.SessionID, textLimit)
		if err != nil {
			return nil, err
		}
		for _, r := range textHits {
			if len(merged)-len(vectorHits) >= textLimit {
				break
			}
			if !seen[r.ID] {
				seen[r.ID] = true
				merged = append(merged, r)
			}
		}
	}

	sortResults(merged, len(vectorHits))

	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}
	return merged, nil
}

// sortResults keeps the first vectorCount rows (already similarity-ranked)
// in place and orders the appended text-only rows by created_at desc,
// preserving vector rank first with no interleaving.
func sortResults(records []memorytypes.Record, vectorCount int) {
	tail := records[vectorCount:]
	for i := 0; i < len(tail); i++ {
		for j := i + 1; j < len(tail); j++ {
			if tail[j].CreatedAt.After(tail[i].CreatedAt) {
				tail[i], tail[j] = tail[j], tail[i]
			}
		}
	}
}

func (m *Manager) recentGlobal(ctx context.Context, limit int) ([]memorytypes.Record, error) {
	return m.store.GetRecent(ctx, limit)
}

const noMemoriesMessage = "没有找到相关历史记忆。"

// GetContext runs the default search strategy scoped to the current
// session and formats the hits as the memory fusion context block.
func (m *Manager) GetContext(ctx context.Context, query string, max int) (string, error) {
	records, err := m.searchDefault(ctx, query, memorytypes.SearchOptions{
		Limit:     max,
		SessionID: m.CurrentSession(),
	})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return noMemoriesMessage, nil
	}

	var b strings.Builder
	b.WriteString("相关历史记忆：\n")
	for i, r := range records {
		fmt.Fprintf(&b, "[记忆 %d]\n", i+1)
		fmt.Fprintf(&b, "时间：%s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
		if r.HasSimilarity {
			fmt.Fprintf(&b, "相关度：%.2f\n", r.Similarity)
		}
		fmt.Fprintf(&b, "用户：%s\n", r.UserInput)
		fmt.Fprintf(&b, "助手：%s\n", r.AssistantResponse)
		b.WriteString("----------------------------------------\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ListSessions returns every session id with at least one record.
func (m *Manager) ListSessions(ctx context.Context) ([]string, error) {
	return m.store.ListSessions(ctx)
}

// GetSessionInfo returns stats for sessionID.
func (m *Manager) GetSessionInfo(ctx context.Context, sessionID string) (memorytypes.SessionInfo, error) {
	return m.store.SessionStats(ctx, sessionID)
}

// GlobalStats returns store-wide statistics.
func (m *Manager) GlobalStats(ctx context.Context) (memorytypes.GlobalStats, error) {
	return m.store.GlobalStats(ctx)
}
