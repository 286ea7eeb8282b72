package toolserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jetgogoing/sage-memory/pkg/genclient"
	"github.com/jetgogoing/sage-memory/pkg/memorymanager"
	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

// invalidParams wraps a decode/validation failure uniformly so Dispatch can
// map it to -32602.
func invalidParams(msg string) error {
	return sageerr.Validation(msg)
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return invalidParams("missing params")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams("malformed params: " + err.Error())
	}
	return nil
}

func handleSaveConversation(ctx context.Context, s *Server, raw json.RawMessage) (CallToolResult, error) {
	var p struct {
		UserPrompt        string          `json:"user_prompt"`
		AssistantResponse string          `json:"assistant_response"`
		Metadata          json.RawMessage `json:"metadata"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return CallToolResult{}, err
	}
	if p.UserPrompt == "" && p.AssistantResponse == "" {
		return CallToolResult{}, invalidParams("user_prompt and assistant_response cannot both be empty")
	}

	var meta memorytypes.Metadata
	if len(p.Metadata) > 0 {
		if err := json.Unmarshal(p.Metadata, &meta); err != nil {
			return CallToolResult{}, invalidParams("malformed metadata: " + err.Error())
		}
	}

	mgr, err := s.svc.Manager()
	if err != nil {
		return CallToolResult{}, err
	}
	id, err := mgr.Save(ctx, memorymanager.SaveContent{
		UserInput:         p.UserPrompt,
		AssistantResponse: p.AssistantResponse,
		Metadata:          meta,
	})
	if err != nil {
		return CallToolResult{}, err
	}
	return textResult(fmt.Sprintf("对话已保存，记忆ID: %s", id)), nil
}

func handleGetContext(ctx context.Context, s *Server, raw json.RawMessage) (CallToolResult, error) {
	var p struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return CallToolResult{}, err
	}
	if p.Query == "" {
		return CallToolResult{}, invalidParams("query is required")
	}
	max := p.MaxResults
	if max <= 0 {
		max = s.defaultMaxResults
	}

	mgr, err := s.svc.Manager()
	if err != nil {
		return CallToolResult{}, err
	}
	text, err := mgr.GetContext(ctx, p.Query, max)
	if err != nil {
		return CallToolResult{}, err
	}
	return textResult(text), nil
}

func handleSearchMemory(ctx context.Context, s *Server, raw json.RawMessage) (CallToolResult, error) {
	var p struct {
		Query     string `json:"query"`
		Limit     int    `json:"limit"`
		Strategy  string `json:"strategy"`
		SessionID string `json:"session_id"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return CallToolResult{}, err
	}
	if p.Query == "" {
		return CallToolResult{}, invalidParams("query is required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = s.defaultMaxResults
	}
	strategy := memorytypes.StrategyDefault
	switch p.Strategy {
	case "", string(memorytypes.StrategyDefault):
		strategy = memorytypes.StrategyDefault
	case string(memorytypes.StrategySemantic):
		strategy = memorytypes.StrategySemantic
	case string(memorytypes.StrategyRecent):
		strategy = memorytypes.StrategyRecent
	default:
		return CallToolResult{}, invalidParams("unknown strategy: " + p.Strategy)
	}

	mgr, err := s.svc.Manager()
	if err != nil {
		return CallToolResult{}, err
	}
	records, err := mgr.Search(ctx, p.Query, memorytypes.SearchOptions{
		Limit:     limit,
		Strategy:  strategy,
		SessionID: p.SessionID,
	})
	if err != nil {
		return CallToolResult{}, err
	}
	body, err := json.Marshal(records)
	if err != nil {
		return CallToolResult{}, sageerr.Wrap(sageerr.KindInternal, "marshal search results", err)
	}
	return textResult(string(body)), nil
}

func handleManageSession(ctx context.Context, s *Server, raw json.RawMessage) (CallToolResult, error) {
	var p struct {
		Action    string `json:"action"`
		SessionID string `json:"session_id"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return CallToolResult{}, err
	}

	mgr, err := s.svc.Manager()
	if err != nil {
		return CallToolResult{}, err
	}

	switch p.Action {
	case "create":
		id := mgr.CreateSession()
		return textResult(fmt.Sprintf(`{"session_id":%q}`, id)), nil
	case "switch":
		if p.SessionID == "" {
			return CallToolResult{}, invalidParams("session_id is required for switch")
		}
		mgr.SwitchSession(p.SessionID)
		return textResult(fmt.Sprintf(`{"session_id":%q}`, p.SessionID)), nil
	case "info":
		sessionID := p.SessionID
		if sessionID == "" {
			sessionID = mgr.CurrentSession()
		}
		info, err := mgr.GetSessionInfo(ctx, sessionID)
		if err != nil {
			return CallToolResult{}, err
		}
		body, err := json.Marshal(info)
		if err != nil {
			return CallToolResult{}, sageerr.Wrap(sageerr.KindInternal, "marshal session info", err)
		}
		return textResult(string(body)), nil
	case "list":
		sessions, err := mgr.ListSessions(ctx)
		if err != nil {
			return CallToolResult{}, err
		}
		body, err := json.Marshal(sessions)
		if err != nil {
			return CallToolResult{}, sageerr.Wrap(sageerr.KindInternal, "marshal session list", err)
		}
		return textResult(string(body)), nil
	default:
		return CallToolResult{}, invalidParams("unknown action: " + p.Action)
	}
}

func handleGeneratePrompt(ctx context.Context, s *Server, raw json.RawMessage) (CallToolResult, error) {
	var p struct {
		Context string `json:"context"`
		Style   string `json:"style"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return CallToolResult{}, err
	}
	if p.Context == "" {
		return CallToolResult{}, invalidParams("context is required")
	}

	gen, err := s.svc.Generator()
	if err != nil {
		return CallToolResult{}, err
	}
	opts := genclient.DefaultOptions()
	// style, when given, steers the model's tone via the user-turn message;
	// the system turn always carries the default memory fusion template.
	rendered := gen.Compress(ctx, "", []string{p.Context}, p.Style, opts)
	return textResult(rendered), nil
}

func handleGetStatus(ctx context.Context, s *Server, raw json.RawMessage) (CallToolResult, error) {
	status := s.svc.Status(ctx)
	body, err := json.Marshal(status)
	if err != nil {
		return CallToolResult{}, sageerr.Wrap(sageerr.KindInternal, "marshal status", err)
	}
	return textResult(string(body)), nil
}

func handleResetCircuitBreaker(ctx context.Context, s *Server, raw json.RawMessage) (CallToolResult, error) {
	var p struct {
		All         bool   `json:"all"`
		BreakerName string `json:"breaker_name"`
	}
	if len(raw) > 0 {
		if err := decodeParams(raw, &p); err != nil {
			return CallToolResult{}, err
		}
	}
	if !p.All && p.BreakerName == "" {
		return CallToolResult{}, invalidParams("either all or breaker_name must be set")
	}

	registries, err := s.svc.BreakerRegistries()
	if err != nil {
		return CallToolResult{}, err
	}

	if p.All {
		for _, reg := range registries {
			reg.ResetAll()
		}
		return textResult(`{"reset":"all"}`), nil
	}

	found := false
	for _, reg := range registries {
		if reg.Reset(p.BreakerName) {
			found = true
		}
	}
	if !found {
		return errorResult(fmt.Sprintf("breaker %q not found", p.BreakerName)), nil
	}
	return textResult(fmt.Sprintf(`{"reset":%q}`, p.BreakerName)), nil
}
