// Package hashing computes the content digests that bind stored evidence
// files to their database records.
package hashing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Sum returns the lowercase hex SHA-256 digest of b.
func Sum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether b hashes to expectedHex.
func Verify(b []byte, expectedHex string) bool {
	got := Sum(b)
	want := strings.ToLower(strings.TrimSpace(expectedHex))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Decode returns the raw digest bytes of a hex SHA-256 string.
func Decode(hexDigest string) ([]byte, bool) {
	b, err := hex.DecodeString(hexDigest)
	if err != nil || len(b) != sha256.Size {
		return nil, false
	}
	return b, true
}

// Short truncates a digest for display, e.g. "3a7bd3e2...7852b855".
func Short(hexDigest string) string {
	if len(hexDigest) <= 16 {
		return hexDigest
	}
	return hexDigest[:8] + "..." + hexDigest[len(hexDigest)-8:]
}
