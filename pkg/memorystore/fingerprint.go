package memorystore

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// computeFingerprint hashes userInput‖assistantResponse for dedup, and
// derives the hour-bucketed time-aware hash on top of it.
func computeFingerprint(userInput, assistantResponse string, now time.Time) (contentHash, timeAwareHash, timeWindow string) {
	contentHash = sha256Hex(userInput + assistantResponse)
	timeWindow = now.UTC().Format("2006010215")
	timeAwareHash = sha256Hex(contentHash + timeWindow)
	return
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
