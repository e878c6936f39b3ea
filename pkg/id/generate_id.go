package id

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID32 returns exactly 32 hex characters (no separators/prefixes).
func NewID32() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewLoanID returns a locally generated loan identifier. Once the on-chain
// coordinator assigns a 32-byte loan id, that id becomes the canonical key and
// the local one is kept only for lookups.
func NewLoanID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "loan-" + hex.EncodeToString(b)
}
