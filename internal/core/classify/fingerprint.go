// Package classify turns an inbound message into a capability label with
// a confidence score, combining deterministic lexical rules with embedding
// similarity. Classification is side-effect-free: nothing here touches the
// capacity store.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintMaxInput bounds how much of the normalized message feeds the
// digest; messages identical up to this prefix share a fingerprint.
const fingerprintMaxInput = 512

// fingerprintLen is the hex length of the cache key.
const fingerprintLen = 32

// Fingerprint derives a stable cache key from the message text. The key
// identifies routing equivalence only, never content.
func Fingerprint(message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.Join(strings.Fields(normalized), " ")
	if len(normalized) > fingerprintMaxInput {
		normalized = normalized[:fingerprintMaxInput]
	}

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
