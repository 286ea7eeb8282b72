// Package httpsse implements the HTTP/SSE transport: a chi router exposing
// POST /mcp, GET /health, and GET /, with optional bearer auth and
// graceful shutdown.
package httpsse

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/coreservice"
	"github.com/jetgogoing/sage-memory/pkg/toolserver"
)

// Config controls the HTTP/SSE transport's bind address and auth gate.
type Config struct {
	Host         string
	Port         int
	RequireAuth  bool
	AuthToken    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sane development defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8765,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server wraps a chi router exposing the memory service's JSON-RPC
// endpoint plus health/discovery routes.
type Server struct {
	cfg     Config
	svc     *coreservice.Service
	tool    *toolserver.Server
	log     zerolog.Logger
	router  *chi.Mux
	httpSrv *http.Server
}

// New builds a Server bound to svc and tool.
func New(cfg Config, svc *coreservice.Service, tool *toolserver.Server, log zerolog.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		svc:  svc,
		tool: tool,
		log:  log.With().Str("component", "httpsse").Logger(),
	}
	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(xidRequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

// xidRequestID stamps every request with a compact sortable id (rather
// than chi's own counter-based one), set as the X-Request-Id response
// header and as chi's request id, which its access logger prints.
func xidRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := xid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/mcp", s.withAuth(s.handleMCP))
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.Info().Str("addr", addr).Msg("http/sse transport listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"endpoints": []string{"POST /mcp", "GET /health", "GET /"},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.svc.Status(r.Context())
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"sageCore":  status.Initialized,
	}
	w.Header().Set("Content-Type", "application/json")
	if !status.Initialized {
		body["status"] = "unavailable"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.RequireAuth {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" || token != s.cfg.AuthToken {
			writeJSONError(w, http.StatusUnauthorized, toolserver.CodeUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, toolserver.CodeParseError, "Parse error")
		return
	}

	var probe json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		writeJSONError(w, http.StatusBadRequest, toolserver.CodeParseError, "Parse error")
		return
	}

	resp := s.tool.Handle(r.Context(), body)

	if wantsSSE(r) {
		writeSSE(w, resp)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeJSONError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
