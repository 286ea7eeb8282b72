// Package memorytypes holds the data-model entities shared across the
// storage, manager, and transport layers.
package memorytypes

import (
	"encoding/json"
	"time"
)

// Dimension is the fixed embedding width every stored vector must have.
// The default embedding model emits 4096-wide vectors.
const Dimension = 4096

// Embedding is a dense vector of fixed Dimension length.
type Embedding []float32

// AgentMetadata is preserved separately from Metadata for records produced
// by an automated agent rather than a live conversation turn.
type AgentMetadata struct {
	AgentName   string         `json:"agentName,omitempty"`
	TaskID      string         `json:"taskId,omitempty"`
	ExecutionID string         `json:"executionId,omitempty"`
	Quality     float64        `json:"quality,omitempty"`
	Timings     map[string]any `json:"timings,omitempty"`
}

// Metadata models the record's free-form mapping with its reserved keys
// promoted to typed fields and everything else preserved in Extra.
type Metadata struct {
	ContentHash     string         `json:"contentHash,omitempty"`
	TimeAwareHash   string         `json:"timeAwareHash,omitempty"`
	TimeWindow      string         `json:"timeWindow,omitempty"`
	SessionID       string         `json:"sessionId,omitempty"`
	ToolCalls       []any          `json:"toolCalls,omitempty"`
	ToolCallsTrunc  int            `json:"toolCallsTruncated,omitempty"`
	ToolCallCount   int            `json:"toolCallCount,omitempty"`
	MessageCount    int            `json:"messageCount,omitempty"`
	ThinkingContent string         `json:"thinkingContent,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	IsAgentReport   *bool          `json:"isAgentReport,omitempty"`
	AgentMetadata   map[string]any `json:"agent_metadata,omitempty"`
	Extra           map[string]any `json:"-"`
}

// reservedMetadataKeys lists every field promoted out of Extra so
// MarshalJSON/UnmarshalJSON never duplicate them.
var reservedMetadataKeys = map[string]bool{
	"contentHash": true, "timeAwareHash": true, "timeWindow": true,
	"sessionId": true, "toolCalls": true, "toolCallsTruncated": true,
	"toolCallCount": true, "messageCount": true, "thinkingContent": true,
	"notes": true, "errorMessage": true, "isAgentReport": true,
	"agent_metadata": true,
}

// MarshalJSON flattens the typed reserved fields and Extra into a single
// JSON object, matching the free-form mapping shape the schema's JSONB
// metadata column stores.
func (m Metadata) MarshalJSON() ([]byte, error) {
	type alias Metadata
	base, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return base, nil
	}
	var flat map[string]any
	if err := json.Unmarshal(base, &flat); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if reservedMetadataKeys[k] {
			continue
		}
		flat[k] = v
	}
	return json.Marshal(flat)
}

// UnmarshalJSON loads the reserved fields and stashes every other key in
// Extra so round-tripping through storage never silently drops data.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type alias Metadata
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Metadata(a)

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	extra := make(map[string]any)
	for k, v := range flat {
		if !reservedMetadataKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		m.Extra = extra
	}
	return nil
}

// Size returns the JSON-serialized byte length of m, used to decide
// whether normalization must run.
func (m Metadata) Size() int {
	b, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	return len(b)
}

// Record is the atomic memory unit persisted in the `memories` table. The
// embedding never travels over the wire; the store's read paths do not
// select it.
type Record struct {
	ID                string         `json:"id"`
	SessionID         string         `json:"sessionId,omitempty"`
	UserInput         string         `json:"userInput"`
	AssistantResponse string         `json:"assistantResponse"`
	Embedding         Embedding      `json:"-"`
	Metadata          Metadata       `json:"metadata"`
	IsAgentReport     bool           `json:"isAgentReport,omitempty"`
	AgentMetadata     *AgentMetadata `json:"agentMetadata,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt,omitzero"`

	// Similarity is populated by vector-search reads only; HasSimilarity
	// marks whether it was set, and a zero value is omitted from JSON.
	Similarity    float64 `json:"similarity,omitzero"`
	HasSimilarity bool    `json:"-"`
}

// SearchStrategy selects how Manager.Search composes its result set.
type SearchStrategy string

const (
	StrategyDefault  SearchStrategy = "default"
	StrategySemantic SearchStrategy = "semantic"
	StrategyRecent   SearchStrategy = "recent"
)

// SearchOptions parameterizes Manager.Search.
type SearchOptions struct {
	Limit     int
	Strategy  SearchStrategy
	SessionID string
}

// SessionInfo summarizes a session for manage_session{action:"info"}.
type SessionInfo struct {
	SessionID   string     `json:"sessionId"`
	Total       int        `json:"total"`
	FirstMemory *time.Time `json:"firstMemory,omitempty"`
	LastMemory  *time.Time `json:"lastMemory,omitempty"`
}

// GlobalStats summarizes the whole store for manage_session-adjacent reads.
type GlobalStats struct {
	Total        int        `json:"total"`
	SessionCount int        `json:"sessionCount"`
	FirstMemory  *time.Time `json:"firstMemory,omitempty"`
	LastMemory   *time.Time `json:"lastMemory,omitempty"`
}
