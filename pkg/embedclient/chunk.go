package embedclient

import (
	"regexp"
	"strings"
)

// sentenceBoundary matches runs of sentence-terminating punctuation in
// either English or Chinese/Japanese full-width forms.
var sentenceBoundary = regexp.MustCompile(`[.!?。！？]+`)

// splitIntoChunks splits text into pieces no longer than chunkSize,
// preserving paragraph and sentence boundaries where possible:
//
//  1. Split on blank lines ("\n\n"). If there's only one paragraph and it's
//     still too long, force-split by length.
//  2. Otherwise accumulate paragraphs up to chunkSize; any paragraph that
//     alone exceeds chunkSize is split by sentence boundary, and any
//     sentence that alone still exceeds chunkSize is force-split by length.
func splitIntoChunks(text string, chunkSize int) []string {
	paragraphs := strings.Split(text, "\n\n")

	if len(paragraphs) == 1 {
		if len(text) <= chunkSize {
			return []string{text}
		}
		return forceSplit(text, chunkSize)
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		if para == "" {
			continue
		}
		if len(para) > chunkSize {
			flush()
			chunks = append(chunks, splitParagraph(para, chunkSize)...)
			continue
		}
		if current.Len()+len(para)+2 > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	if len(chunks) == 0 {
		return forceSplit(text, chunkSize)
	}
	return chunks
}

// splitParagraph splits an oversized paragraph by sentence boundary,
// force-splitting any sentence that is itself still too long.
func splitParagraph(para string, chunkSize int) []string {
	sentences := splitSentences(para)

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, sentence := range sentences {
		if len(sentence) > chunkSize {
			flush()
			chunks = append(chunks, forceSplit(sentence, chunkSize)...)
			continue
		}
		if current.Len()+len(sentence) > chunkSize {
			flush()
		}
		current.WriteString(sentence)
	}
	flush()

	if len(chunks) == 0 {
		return forceSplit(para, chunkSize)
	}
	return chunks
}

// splitSentences splits text on sentence-terminating punctuation, keeping
// the terminator attached to the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	last := 0
	locs := sentenceBoundary.FindAllStringIndex(text, -1)
	for _, loc := range locs {
		end := loc[1]
		sentences = append(sentences, text[last:end])
		last = end
	}
	if last < len(text) {
		sentences = append(sentences, text[last:])
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

// forceSplit cuts text into fixed-size runes regardless of boundaries.
func forceSplit(text string, chunkSize int) []string {
	runes := []rune(text)
	if chunkSize <= 0 {
		return []string{text}
	}
	var chunks []string
	for i := 0; i < len(runes); i += chunkSize {
		end := min(i+chunkSize, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
