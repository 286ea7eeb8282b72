package embedclient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIntoChunks_ShortTextStaysWhole(t *testing.T) {
	chunks := splitIntoChunks("hello world", 100)
	require.Equal(t, []string{"hello world"}, chunks)
}

func TestSplitIntoChunks_RespectsParagraphBoundaries(t *testing.T) {
	text := strings.Repeat("a", 50) + "\n\n" + strings.Repeat("b", 50)
	chunks := splitIntoChunks(text, 60)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], strings.Repeat("a", 50))
	assert.Contains(t, chunks[1], strings.Repeat("b", 50))
}

func TestSplitIntoChunks_ForceSplitsSingleOversizedParagraph(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := splitIntoChunks(text, 100)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitIntoChunks_LargeInputProducesMultipleChunks(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString(strings.Repeat("中文内容和English mixed text. ", 20))
		b.WriteString("\n\n")
	}
	chunks := splitIntoChunks(b.String(), 8000)
	assert.GreaterOrEqual(t, len(chunks), 3)
}

func TestSplitSentences_KeepsTerminatorAttached(t *testing.T) {
	sentences := splitSentences("Hello there. How are you? I am fine!")
	require.Equal(t, []string{"Hello there.", " How are you?", " I am fine!"}, sentences)
}
