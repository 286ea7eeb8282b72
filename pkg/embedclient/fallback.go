package embedclient

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/jetgogoing/sage-memory/pkg/memorytypes"
)

// deterministicFallback produces a reproducible unit vector for text when
// the remote embedding endpoint is unreachable. The text hash seeds a
// PRNG (|hash| mod 2^32), Dimension standard normals are drawn, and the
// result is L2-normalized.
func deterministicFallback(text string) memorytypes.Embedding {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint32(sum[:4]))

	rng := rand.New(rand.NewSource(seed))

	vec := make(memorytypes.Embedding, memorytypes.Dimension)
	var sumSquares float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		sumSquares += v * v
	}

	mag := math.Sqrt(sumSquares)
	if mag < 1e-10 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / mag)
	}
	return vec
}
