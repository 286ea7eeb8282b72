package memorystore

import (
	"strconv"
	"strings"

	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
)

// vectorLiteral renders an embedding as the "[v1,v2,...]" string pgvector's
// ::vector cast accepts. No native pgvector Go binding exists in the
// dependency set used here, so the string-literal path is the one the
// storage layer relies on for both inserts and similarity queries.
func vectorLiteral(v memorytypes.Embedding) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
