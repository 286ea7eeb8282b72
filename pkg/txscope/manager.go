// Package txscope implements scoped, nestable database transactions with
// configurable isolation and an active-transaction registry, per the
// memory service's transaction manager component.
package txscope

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

// Isolation enumerates the supported transaction isolation levels.
type Isolation string

const (
	ReadUncommitted Isolation = "read-uncommitted"
	ReadCommitted   Isolation = "read-committed"
	RepeatableRead  Isolation = "repeatable-read"
	Serializable    Isolation = "serializable"
)

func (i Isolation) sql() sql.IsolationLevel {
	switch i {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}

// Scope is a single active transaction, registered in the Manager's active
// set for the lifetime of the call that opened it.
type Scope struct {
	id  string
	tx  *sql.Tx
	mgr *Manager
}

// Tx exposes the underlying *sql.Tx for statement execution.
func (s *Scope) Tx() *sql.Tx { return s.tx }

// Commit commits the transaction and removes it from the active set.
func (s *Scope) Commit() error {
	defer s.mgr.deregister(s.id)
	if err := s.tx.Commit(); err != nil {
		return sageerr.Wrap(sageerr.KindDatabaseConnection, "commit transaction", err)
	}
	return nil
}

// Rollback rolls the transaction back and removes it from the active set.
// Rollback failures are logged but never returned, so they never mask an
// original error a caller is already propagating.
func (s *Scope) Rollback() {
	defer s.mgr.deregister(s.id)
	if err := s.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		s.mgr.log.Warn().Err(err).Str("scope", s.id).Msg("rollback failed")
	}
}

type scopeContextKey struct{}

// Manager opens, tracks, and closes transaction scopes against a pool's
// underlying *sql.DB.
type Manager struct {
	db  *sql.DB
	log zerolog.Logger

	mu     sync.Mutex
	active map[string]*Scope
}

// New builds a Manager bound to db.
func New(db *sql.DB, log zerolog.Logger) *Manager {
	return &Manager{
		db:     db,
		log:    log.With().Str("component", "txscope").Logger(),
		active: make(map[string]*Scope),
	}
}

// Begin opens a new scope with the requested isolation level and registers
// it in the active set.
func (m *Manager) Begin(ctx context.Context, isolation Isolation) (*Scope, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: isolation.sql()})
	if err != nil {
		return nil, sageerr.Wrap(sageerr.KindDatabaseConnection, "begin transaction", err)
	}
	scope := &Scope{id: uuid.NewString(), tx: tx, mgr: m}
	m.mu.Lock()
	m.active[scope.id] = scope
	m.mu.Unlock()
	return scope, nil
}

func (m *Manager) deregister(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// FromContext returns the *Scope already threaded through ctx, if any.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	return s, ok
}

// WithScope returns a context carrying scope, for Transactional's reuse.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// Transactional runs fn within a transaction scope. If ctx already carries
// an open scope (nested call), it is reused and fn does not commit or roll
// it back itself; only the outermost Transactional call owns the
// commit/rollback decision.
func (m *Manager) Transactional(ctx context.Context, isolation Isolation, fn func(ctx context.Context, scope *Scope) error) error {
	if existing, ok := FromContext(ctx); ok {
		return fn(ctx, existing)
	}

	scope, err := m.Begin(ctx, isolation)
	if err != nil {
		return err
	}

	nestedCtx := WithScope(ctx, scope)
	if err := fn(nestedCtx, scope); err != nil {
		scope.Rollback()
		return err
	}
	if err := scope.Commit(); err != nil {
		return err
	}
	return nil
}

// WaitForAll blocks until the active set is empty or timeout elapses.
func (m *Manager) WaitForAll(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		m.mu.Lock()
		n := len(m.active)
		m.mu.Unlock()
		if n == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return sageerr.New(sageerr.KindTimeout, fmt.Sprintf("%d transactions still active after %s", n, timeout))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ActiveCount reports the number of open scopes, for status reporting.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
