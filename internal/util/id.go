package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier, "prefix_hex" when a prefix is given.
// 12 random bytes keep IDs short enough for URLs and object keys.
func NewID(prefix string) string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewToken returns a 256-bit hex secret. Callers persist only its hash,
// never the value itself.
func NewToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
