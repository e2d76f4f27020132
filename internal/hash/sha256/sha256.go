// Package sha256 produces the digests used for auth fingerprints and
// snapshot cache keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher computes hex-encoded SHA-256 digests.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data. Digests feed cache keys, so the
// encoding must stay stable across releases.
func (h *Hasher) Hash(data []byte) (string, error) {
	digest := sha256.New()
	if _, err := digest.Write(data); err != nil {
		return "", fmt.Errorf("hash write: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
