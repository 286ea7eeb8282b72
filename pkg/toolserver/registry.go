package toolserver

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// handlerFunc executes one tool call against raw JSON params and returns
// its text result.
type handlerFunc func(ctx context.Context, s *Server, params json.RawMessage) (CallToolResult, error)

// toolEntry pairs an mcp.Tool descriptor (name, description, input schema)
// with its handler, keeping metadata and behavior together per entry.
type toolEntry struct {
	tool    *mcp.Tool
	handler handlerFunc
}

// registry is the ordered set of tools this server exposes. Order matches
// their declaration below and is what tools/list reports.
type registry struct {
	order   []string
	entries map[string]toolEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]toolEntry)}
}

func (r *registry) register(tool *mcp.Tool, h handlerFunc) {
	r.order = append(r.order, tool.Name)
	r.entries[tool.Name] = toolEntry{tool: tool, handler: h}
}

func (r *registry) get(name string) (toolEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

func (r *registry) list() []*mcp.Tool {
	out := make([]*mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool)
	}
	return out
}

func strSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}

func intSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer"}
}

func boolSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean"}
}

func objectSchema(properties map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// buildRegistry declares every tool per the save_conversation/get_context/
// search_memory/manage_session/generate_prompt/get_status/
// reset_circuit_breaker surface.
func buildRegistry() *registry {
	r := newRegistry()

	r.register(&mcp.Tool{
		Name:        "save_conversation",
		Description: "Persist a user/assistant turn into long-term conversational memory.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"user_prompt":        strSchema(),
			"assistant_response": strSchema(),
			"metadata":           {Type: "object"},
		}, "user_prompt", "assistant_response"),
	}, handleSaveConversation)

	r.register(&mcp.Tool{
		Name:        "get_context",
		Description: "Fetch a formatted block of relevant historical memories for a query, scoped to the current session.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"query":       strSchema(),
			"max_results": intSchema(),
		}, "query"),
	}, handleGetContext)

	r.register(&mcp.Tool{
		Name:        "search_memory",
		Description: "Search stored memories by semantic similarity, text match, or recency.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"query":      strSchema(),
			"limit":      intSchema(),
			"strategy":   strSchema(),
			"session_id": strSchema(),
		}, "query"),
	}, handleSearchMemory)

	r.register(&mcp.Tool{
		Name:        "manage_session",
		Description: "Create, switch, describe, or list conversational memory sessions.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"action":     strSchema(),
			"session_id": strSchema(),
		}, "action"),
	}, handleManageSession)

	r.register(&mcp.Tool{
		Name:        "generate_prompt",
		Description: "Compress retrieved context through the generator model using the memory fusion prompt template.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"context": strSchema(),
			"style":   strSchema(),
		}, "context"),
	}, handleGeneratePrompt)

	r.register(&mcp.Tool{
		Name:        "get_status",
		Description: "Report component health and persistent memory statistics.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{}),
	}, handleGetStatus)

	r.register(&mcp.Tool{
		Name:        "reset_circuit_breaker",
		Description: "Reset one named circuit breaker, or all of them.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"all":          boolSchema(),
			"breaker_name": strSchema(),
		}),
	}, handleResetCircuitBreaker)

	return r
}
