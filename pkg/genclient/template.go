package genclient

import (
	"fmt"
	"strings"
)

// fragmentsPlaceholder is the literal token the generator template expects
// to be substituted with the numbered fragment blocks.
const fragmentsPlaceholder = "{retrieved_passages}"

// DefaultTemplate is the memory fusion system prompt. Retrieved fragments
// are inlined as numbered <fragment_NN> blocks tagged with their speaker
// role, matching the wire format documented for the context-fusion call.
const DefaultTemplate = `你是一个记忆融合助手。下面是与当前问题相关的历史对话片段，请结合这些片段回答用户的问题，保持回答简洁、准确，并在合适的地方引用相关片段中的信息。

相关历史记忆片段：
{retrieved_passages}`

// RenderTemplate inlines fragments into template's {retrieved_passages}
// placeholder, each wrapped in a numbered <fragment_NN> block. The whole
// rendered template is then trimmed to maxTokens*4 characters (a rough
// token-to-character ratio) to keep the system prompt within the
// generator's context window.
func RenderTemplate(template string, fragments []string, maxTokens int) string {
	if template == "" {
		template = DefaultTemplate
	}

	var b strings.Builder
	for i, frag := range fragments {
		role, content := splitRoleContent(frag)
		fmt.Fprintf(&b, "<fragment_%02d>\n[%s] %s\n</fragment_%02d>\n", i+1, role, content, i+1)
	}
	passages := strings.TrimRight(b.String(), "\n")

	rendered := strings.Replace(template, fragmentsPlaceholder, passages, 1)

	if maxTokens > 0 {
		limit := maxTokens * 4
		if len([]rune(rendered)) > limit {
			rendered = string([]rune(rendered)[:limit]) + "...[截断]"
		}
	}

	return rendered
}

// splitRoleContent pulls a leading "role: content" label off a fragment,
// defaulting to an unlabeled "历史" tag when none is present.
func splitRoleContent(frag string) (role, content string) {
	if idx := strings.Index(frag, ": "); idx > 0 && idx < 16 {
		return frag[:idx], frag[idx+2:]
	}
	return "历史", frag
}
