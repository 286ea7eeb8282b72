package memorystore

import (
	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
)

const maxMetadataBytes = 100 * 1024 // 100 KiB

const truncatedSuffix = "...[truncated]"

// normalizeMetadata shrinks m in place when its serialized size exceeds
// maxMetadataBytes: it keeps only the essential reserved keys, caps
// ToolCalls at 10 entries (recording the original length), and truncates
// the free-text fields to 1000 characters.
func normalizeMetadata(m memorytypes.Metadata) memorytypes.Metadata {
	if m.Size() <= maxMetadataBytes {
		return m
	}

	out := memorytypes.Metadata{
		ContentHash:   m.ContentHash,
		TimeAwareHash: m.TimeAwareHash,
		TimeWindow:    m.TimeWindow,
		SessionID:     m.SessionID,
		MessageCount:  m.MessageCount,
		ToolCallCount: m.ToolCallCount,
	}

	if len(m.ToolCalls) > 10 {
		out.ToolCalls = append([]any(nil), m.ToolCalls[:10]...)
		out.ToolCallsTrunc = len(m.ToolCalls)
	} else {
		out.ToolCalls = m.ToolCalls
	}

	out.ThinkingContent = truncateText(m.ThinkingContent, 1000)
	out.ErrorMessage = truncateText(m.ErrorMessage, 1000)
	out.Notes = truncateText(m.Notes, 1000)

	return out
}

func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + truncatedSuffix
}
