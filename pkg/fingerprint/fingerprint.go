// Package fingerprint implements the content fingerprint used to address
// file parts in the Copy part store.
//
// A fingerprint is the lowercase hex MD5 digest of the data followed by the
// lowercase hex SHA-1 digest of the same data (72 characters). Two
// independent algorithms are concatenated so that a collision in one of
// them alone cannot produce a false dedup hit.
package fingerprint

import (
	"crypto/md5"  //nolint:gosec // mandated by the part store protocol
	"crypto/sha1" //nolint:gosec // mandated by the part store protocol
	"encoding/hex"
)

const (
	// Size is the length, in bytes, of a raw fingerprint digest (md5 + sha1).
	Size = md5.Size + sha1.Size

	// EncodedLen is the length of a hex-encoded fingerprint string.
	EncodedLen = Size * 2
)

// Sum returns the fingerprint string for data. It is pure and safe to call
// from any number of goroutines.
func Sum(data []byte) string {
	m := md5.Sum(data)  //nolint:gosec // protocol
	s := sha1.Sum(data) //nolint:gosec // protocol

	out := make([]byte, 0, EncodedLen)
	out = hex.AppendEncode(out, m[:])
	out = hex.AppendEncode(out, s[:])

	return string(out)
}

// Valid reports whether s has the shape of a fingerprint string: exactly
// EncodedLen lowercase hex characters.
func Valid(s string) bool {
	if len(s) != EncodedLen {
		return false
	}

	for i := range len(s) {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
