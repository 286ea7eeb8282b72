package httpsse

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jetgogoing/sage-memory/pkg/config"
	"github.com/jetgogoing/sage-memory/pkg/coreservice"
	"github.com/jetgogoing/sage-memory/pkg/toolserver"
)

func newTestServer(cfg Config) *Server {
	svc := coreservice.New(&config.Config{}, zerolog.Nop())
	tool := toolserver.New(svc, 10, zerolog.Nop())
	return New(cfg, svc, tool, zerolog.Nop())
}

func TestHandleMCP_JSONBody(t *testing.T) {
	s := newTestServer(DefaultConfig())
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "protocolVersion")
}

func TestHandleMCP_MalformedJSON(t *testing.T) {
	s := newTestServer(DefaultConfig())
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "-32700")
}

func TestHandleMCP_SSEFraming(t *testing.T) {
	s := newTestServer(DefaultConfig())
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.Contains(t, body, "data: ")
	require.Contains(t, body, "[DONE]")
}

func TestHandleMCP_RequiresAuthWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireAuth = true
	cfg.AuthToken = "secret"
	s := newTestServer(cfg)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "-32001")

	req2 := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	s.router.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestHandleHealth_UnavailableWhenNotInitialized(t *testing.T) {
	s := newTestServer(DefaultConfig())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"sageCore":false`)
}

func TestHandleIndex_EnumeratesEndpoints(t *testing.T) {
	s := newTestServer(DefaultConfig())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/mcp")
}
