// Package dbpool owns the pooled connection to the Postgres/pgvector
// backend and wraps every primitive operation in the resilience policies
// from pkg/resilience.
package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/resilience"
	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

const (
	minOpenConns   = 5
	maxOpenConns   = 20
	commandTimeout = 60 * time.Second
)

// Config describes how to reach the database.
type Config struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, sslMode,
	)
}

// Pool wraps *sql.DB with lazy, idempotent, mutex-guarded connection setup
// and breaker/retry-wrapped primitive operations.
type Pool struct {
	cfg Config
	log zerolog.Logger

	connectOnce sync.Once
	connectErr  error
	db          *sql.DB

	breakers *resilience.Registry
	retry    *resilience.RetryPolicy
}

// New builds a Pool; the connection is not opened until the first call
// that needs it (Execute/Fetch/FetchRow/FetchVal or an explicit Connect).
func New(cfg Config, log zerolog.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		log:      log.With().Str("component", "dbpool").Logger(),
		breakers: resilience.NewRegistry(),
		retry:    resilience.DatabaseRetry(),
	}
}

// NewWithDB wraps an already-open *sql.DB, skipping Connect's dial/ping/
// schema-bootstrap path. Used by tests that drive the pool against a
// sqlmock-backed *sql.DB.
func NewWithDB(db *sql.DB, log zerolog.Logger) *Pool {
	p := &Pool{
		log:      log.With().Str("component", "dbpool").Logger(),
		breakers: resilience.NewRegistry(),
		retry:    resilience.DatabaseRetry(),
		db:       db,
	}
	p.connectOnce.Do(func() {})
	return p
}

// Connect opens the pool and bootstraps the schema, exactly once. Safe to
// call concurrently and redundantly; subsequent calls reuse the result.
func (p *Pool) Connect(ctx context.Context) error {
	p.connectOnce.Do(func() {
		db, err := sql.Open("postgres", p.cfg.DSN())
		if err != nil {
			p.connectErr = sageerr.Wrap(sageerr.KindDatabaseConnection, "open postgres connection", err)
			return
		}
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(minOpenConns)
		db.SetConnMaxLifetime(0)

		pingCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			p.connectErr = sageerr.Wrap(sageerr.KindDatabaseConnection, "ping postgres", err)
			return
		}

		if err := ensureSchema(ctx, db); err != nil {
			p.connectErr = sageerr.Wrap(sageerr.KindDatabaseConnection, "bootstrap schema", err)
			return
		}

		p.db = db
		p.log.Info().Str("host", p.cfg.Host).Int("port", p.cfg.Port).Str("db", p.cfg.Name).Msg("database pool connected")
	})
	return p.connectErr
}

// DB returns the underlying *sql.DB once Connect has succeeded. Intended
// for the transaction manager, which needs to call BeginTx directly.
func (p *Pool) DB() *sql.DB { return p.db }

func (p *Pool) breaker(name string) *resilience.Breaker {
	return p.breakers.Get(name, resilience.DefaultBreakerConfig())
}

// Breakers exposes the pool's circuit-breaker registry so callers such as
// the tool server's reset_circuit_breaker handler can inspect or reset it.
func (p *Pool) Breakers() *resilience.Registry {
	return p.breakers
}

func (p *Pool) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, commandTimeout)
}

// Execute runs a statement with no result rows (INSERT/UPDATE/DELETE/DDL).
func (p *Pool) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	var result sql.Result
	err := resilience.Wrap(p.breaker("database_execute"), p.retry, ctx, func(ctx context.Context) error {
		cctx, cancel := p.withTimeout(ctx)
		defer cancel()
		res, execErr := p.db.ExecContext(cctx, query, args...)
		if execErr != nil {
			return sageerr.Wrap(sageerr.KindDatabaseConnection, "execute", execErr)
		}
		result = res
		return nil
	})
	return result, err
}

// Fetch runs a query and returns all matching rows. The caller must Close
// the returned *sql.Rows.
func (p *Pool) Fetch(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	var rows *sql.Rows
	err := resilience.Wrap(p.breaker("database_fetch"), p.retry, ctx, func(ctx context.Context) error {
		cctx, cancel := p.withTimeout(ctx)
		defer cancel()
		r, queryErr := p.db.QueryContext(cctx, query, args...)
		if queryErr != nil {
			return sageerr.Wrap(sageerr.KindDatabaseConnection, "fetch", queryErr)
		}
		rows = r
		return nil
	})
	return rows, err
}

// FetchRow runs a query expected to return at most one row.
func (p *Pool) FetchRow(ctx context.Context, query string, args ...any) *sql.Row {
	if err := p.Connect(ctx); err != nil {
		return nil
	}
	cctx, cancel := p.withTimeout(ctx)
	defer cancel()
	// QueryRow's error surfaces via the caller's Scan. FetchRow is not
	// wrapped in a breaker or the retry policy; FetchVal is the wrapped
	// single-scalar read.
	return p.db.QueryRowContext(cctx, query, args...)
}

// FetchVal runs a query and scans its single scalar result into dest.
func (p *Pool) FetchVal(ctx context.Context, dest any, query string, args ...any) error {
	if err := p.Connect(ctx); err != nil {
		return err
	}
	return resilience.Wrap(p.breaker("database_fetchval"), p.retry, ctx, func(ctx context.Context) error {
		cctx, cancel := p.withTimeout(ctx)
		defer cancel()
		row := p.db.QueryRowContext(cctx, query, args...)
		if err := row.Scan(dest); err != nil {
			if err == sql.ErrNoRows {
				return err
			}
			return sageerr.Wrap(sageerr.KindDatabaseConnection, "fetchval", err)
		}
		return nil
	})
}

// Close waits briefly for in-flight work to settle, then closes the pool.
// waitFn is normally txscope.Manager.WaitForAll; Close tolerates a nil
// waitFn for degraded-mode composition roots that never built one.
func (p *Pool) Close(ctx context.Context, waitFn func(context.Context, time.Duration) error) error {
	if waitFn != nil {
		if err := waitFn(ctx, 30*time.Second); err != nil {
			p.log.Warn().Err(err).Msg("timed out waiting for in-flight transactions before close")
		}
	}
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
