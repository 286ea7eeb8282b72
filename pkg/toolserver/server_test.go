package toolserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jetgogoing/sage-memory/pkg/config"
	"github.com/jetgogoing/sage-memory/pkg/coreservice"
)

func newTestServer() *Server {
	svc := coreservice.New(&config.Config{}, zerolog.Nop())
	return New(svc, 10, zerolog.Nop())
}

func TestHandle_ParseError(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte("{not json"))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeParseError, resp.Error.Code)
}

func TestHandle_UnknownMethod(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"bogus"}`))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHandle_Initialize(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.Nil(t, resp.Error)
	require.Equal(t, "2.0", resp.JSONRPC)
	body, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.Contains(t, string(body), "protocolVersion")
}

func TestHandle_ToolsList(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.Nil(t, resp.Error)
	body, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.Contains(t, string(body), "save_conversation")
	require.Contains(t, string(body), "reset_circuit_breaker")
}

func TestHandle_ToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope","arguments":{}}}`))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHandle_ToolsCall_ValidationError(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"save_conversation","arguments":{"user_prompt":"","assistant_response":""}}}`))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestHandle_ToolsCall_ServiceNotInitialized(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_context","arguments":{"query":"hello"}}}`))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInternalError, resp.Error.Code)
}
