package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the canonical content-addressed hash for raw bytes.
// It is the sole dedup key for ingested content and must stay stable across
// releases.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashText returns a short hash suitable for derived identifiers.
func HashText(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
