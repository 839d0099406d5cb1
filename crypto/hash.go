package crypto

import (
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// hashPrefix identifies the hash algorithm in encoded hashes, so that a
// future algorithm change is detectable on the wire.
const hashPrefix = "zQm"

// HashBytes returns the blake2b-256 digest of b, multibase-encoded.
func HashBytes(b []byte) string {
	digest := blake2b.Sum256(b)
	return hashPrefix + base58.Encode(digest[:])
}

// ValidHash reports whether s is a well-formed multibase hash string.
func ValidHash(s string) bool {
	if len(s) < len(hashPrefix) || s[:len(hashPrefix)] != hashPrefix {
		return false
	}
	raw, err := base58.Decode(s[len(hashPrefix):])
	return err == nil && len(raw) == blake2b.Size256
}
