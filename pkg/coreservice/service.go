// Package coreservice implements the core service façade: lifecycle,
// config assembly, and status reporting over the memory manager, storage,
// and transaction layers. A *Service is a handle built by the composition
// root (cmd/sage-memory) rather than a hidden global; the package-level
// Get/Set accessor pair exists for callers that cannot have the handle
// threaded through, and is set exactly once at startup.
package coreservice

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/config"
	"github.com/jetgogoing/sage-memory/pkg/dbpool"
	"github.com/jetgogoing/sage-memory/pkg/embedclient"
	"github.com/jetgogoing/sage-memory/pkg/genclient"
	"github.com/jetgogoing/sage-memory/pkg/janitor"
	"github.com/jetgogoing/sage-memory/pkg/memorymanager"
	"github.com/jetgogoing/sage-memory/pkg/memorystore"
	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
	"github.com/jetgogoing/sage-memory/pkg/resilience"
	"github.com/jetgogoing/sage-memory/pkg/sageerr"
	"github.com/jetgogoing/sage-memory/pkg/txscope"
)

// Status reports initialization state for each component plus persistent
// statistics.
type Status struct {
	Initialized    bool                    `json:"initialized"`
	DBConnected    bool                    `json:"dbConnected"`
	EmbeddingReady bool                    `json:"embeddingReady"`
	GeneratorReady bool                    `json:"generatorReady"`
	CurrentSession string                  `json:"currentSession,omitempty"`
	Stats          memorytypes.GlobalStats `json:"stats"`
}

// Service is the core service façade. The zero value is not usable; build
// one with New and call Initialize before any other method.
type Service struct {
	cfg *config.Config
	log zerolog.Logger

	pool    *dbpool.Pool
	txMgr   *txscope.Manager
	store   *memorystore.Store
	embed   *embedclient.Client
	gen     *genclient.Client
	manager *memorymanager.Manager

	janitorCancel context.CancelFunc

	mu          sync.RWMutex
	initialized bool
}

// New builds an uninitialized Service bound to cfg.
func New(cfg *config.Config, log zerolog.Logger) *Service {
	return &Service{cfg: cfg, log: log.With().Str("component", "coreservice").Logger()}
}

// Initialize chains DB pool connect -> transaction manager and store ->
// embedding client -> generator client -> memory manager -> janitor. It is idempotent:
// a second call while already initialized is a no-op.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	s.pool = dbpool.New(s.cfg.DB, s.log)
	if err := s.pool.Connect(ctx); err != nil {
		return err
	}

	s.txMgr = txscope.New(s.pool.DB(), s.log)
	s.store = memorystore.New(s.pool, s.log)

	embed, err := embedclient.New(s.cfg.APIKey, s.cfg.EmbeddingBaseURL, s.cfg.EmbeddingModel, s.log)
	if err != nil {
		return err
	}
	s.embed = embed

	gen, err := genclient.New(s.cfg.APIKey, s.cfg.GeneratorBaseURL, s.cfg.GeneratorModel, s.log)
	if err != nil {
		return err
	}
	s.gen = gen

	s.manager = memorymanager.New(s.store, s.embed, s.txMgr, s.log)

	jCfg := janitor.Config{Expr: s.cfg.JanitorExpr, Retention: time.Duration(s.cfg.RetentionHours) * time.Hour}
	j, err := janitor.New(jCfg, s.store, s.log)
	if err != nil {
		return err
	}
	janitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.janitorCancel = cancel
	go j.Run(janitorCtx)

	s.initialized = true
	s.log.Info().Msg("core service initialized")
	return nil
}

// ready returns a KindAsyncRuntime "service not initialized" error until Initialize
// has succeeded.
func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return sageerr.New(sageerr.KindAsyncRuntime, "service not initialized")
	}
	return nil
}

// Manager returns the memory manager once initialized.
func (s *Service) Manager() (*memorymanager.Manager, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.manager, nil
}

// Generator returns the generator client once initialized.
func (s *Service) Generator() (*genclient.Client, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.gen, nil
}

// Status reports component health and global statistics. It tolerates a
// partially-initialized service (e.g. stats query failing) by reporting
// zero stats rather than erroring, since status reporting must never itself
// require the service to be fully healthy.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.RLock()
	initialized := s.initialized
	s.mu.RUnlock()

	st := Status{Initialized: initialized}
	if !initialized {
		return st
	}

	st.DBConnected = s.pool.DB() != nil
	st.EmbeddingReady = s.embed != nil
	st.GeneratorReady = s.gen != nil
	st.CurrentSession = s.manager.CurrentSession()

	if stats, err := s.manager.GlobalStats(ctx); err == nil {
		st.Stats = stats
	}
	return st
}

// BreakerRegistries returns every circuit-breaker registry in the service,
// used by the tool server's reset_circuit_breaker handler to reset one
// named breaker (wherever it lives) or all of them.
func (s *Service) BreakerRegistries() ([]*resilience.Registry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return []*resilience.Registry{s.pool.Breakers(), s.embed.Breakers(), s.gen.Breakers()}, nil
}

// Cleanup awaits in-flight transactions, then disconnects the DB pool.
func (s *Service) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	if s.janitorCancel != nil {
		s.janitorCancel()
	}
	var waitFn func(context.Context, time.Duration) error
	if s.txMgr != nil {
		waitFn = s.txMgr.WaitForAll
	}
	err := s.pool.Close(ctx, waitFn)
	s.initialized = false
	return err
}

var (
	instanceMu sync.Mutex
	instance   *Service
)

// Get returns the process-global Service instance, if Set has been called.
func Get() *Service {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// Set installs svc as the process-global Service instance. Called once by
// the composition root (cmd/sage-memory). The transports and the tool
// server receive the *Service as a constructor argument and do not call Get.
func Set(svc *Service) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = svc
}
