// Package sha256 computes the content digests used to detect dataset changes.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hasher implements covid.Hasher using SHA-256 over compact JSON.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Digest streams the JSON encoding of v into the hash. Map keys are sorted by
// encoding/json, so equal values always produce equal digests.
func (h *Hasher) Digest(v any) (string, error) {
	sum := sha256.New()
	if err := json.NewEncoder(sum).Encode(v); err != nil {
		return "", fmt.Errorf("encode digest input: %w", err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// Sum returns the hex digest of raw bytes.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
