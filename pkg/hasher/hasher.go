// Package hasher computes content fingerprints for duplicate detection.
//
// The digest algorithm is pinned to SHA-256. Every stored entry's hash was
// produced by it, so switching algorithms invalidates all existing duplicate
// comparisons and must be handled as a data migration, never a code edit.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestLength is the length of the hex-encoded digest returned by Sum.
const DigestLength = sha256.Size * 2

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
