package memorymanager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

// ExportFormat selects ExportSession's output shape.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
)

// ExportSession renders every record in sessionID as either the raw JSON
// array of memories or a Markdown document.
func (m *Manager) ExportSession(ctx context.Context, sessionID string, format ExportFormat) (string, error) {
	records, err := m.store.GetBySession(ctx, sessionID, 0)
	if err != nil {
		return "", err
	}
	if format == "" {
		format = ExportJSON
	}

	switch format {
	case ExportJSON:
		b, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return "", sageerr.Wrap(sageerr.KindInternal, "marshal session export", err)
		}
		return string(b), nil

	case ExportMarkdown:
		var b strings.Builder
		fmt.Fprintf(&b, "# Session %s\n\n", sessionID)
		for i, r := range records {
			fmt.Fprintf(&b, "## Memory %d\n\n", i+1)
			fmt.Fprintf(&b, "- Time: %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(&b, "- User: %s\n", r.UserInput)
			fmt.Fprintf(&b, "- Assistant: %s\n\n", r.AssistantResponse)
		}
		return b.String(), nil

	default:
		return "", sageerr.Validation(fmt.Sprintf("unknown export format %q", format))
	}
}
