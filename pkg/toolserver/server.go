package toolserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/coreservice"
	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "sage-memory"
	serverVersion   = "1.0.0"
)

// Server dispatches JSON-RPC requests to the tool registry, sitting behind
// both the stdio and HTTP/SSE transports.
type Server struct {
	svc               *coreservice.Service
	log               zerolog.Logger
	defaultMaxResults int
	tools             *registry
}

// New builds a Server bound to svc. defaultMaxResults seeds get_context and
// search_memory when the caller omits an explicit limit.
func New(svc *coreservice.Service, defaultMaxResults int, log zerolog.Logger) *Server {
	if defaultMaxResults <= 0 {
		defaultMaxResults = 10
	}
	return &Server{
		svc:               svc,
		log:               log.With().Str("component", "toolserver").Logger(),
		defaultMaxResults: defaultMaxResults,
		tools:             buildRegistry(),
	}
}

// Handle decodes one JSON-RPC request, dispatches it, and returns the
// response for the transport to encode. A malformed envelope yields a parse-error response
// with a nil id rather than an error return, so transports can always
// write back a single frame.
func (s *Server) Handle(ctx context.Context, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return newError(nil, CodeParseError, "Parse error")
	}
	return s.dispatch(ctx, req)
}

func (s *Server) dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("method", req.Method).Msg("tool dispatch panicked")
			resp = newError(req.ID, CodeInternalError, fmt.Sprintf("panic: %v", r))
		}
	}()

	switch req.Method {
	case "initialize":
		return newResponse(req.ID, s.handleInitialize())
	case "tools/list":
		return newResponse(req.ID, map[string]any{"tools": s.tools.list()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return newResponse(req.ID, map[string]any{"resources": []any{}})
	case "resources/read":
		return newError(req.ID, CodeMethodNotFound, "no resources are exposed")
	default:
		return newError(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo":      map[string]string{"name": serverName, "version": serverVersion},
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, CodeInvalidParams, "malformed tools/call params: "+err.Error())
	}

	entry, ok := s.tools.get(params.Name)
	if !ok {
		return newError(req.ID, CodeMethodNotFound, "unknown tool: "+params.Name)
	}

	result, err := entry.handler(ctx, s, params.Arguments)
	if err != nil {
		return errToResponse(req.ID, err)
	}
	return newResponse(req.ID, result)
}

// errToResponse maps a handler error to its JSON-RPC code: validation
// failures are invalid params, everything else is an internal error, with
// the exception message carried through per the dispatch table's contract.
func errToResponse(id json.RawMessage, err error) Response {
	if sageerr.KindOf(err) == sageerr.KindValidation {
		return newError(id, CodeInvalidParams, err.Error())
	}
	return newError(id, CodeInternalError, err.Error())
}
