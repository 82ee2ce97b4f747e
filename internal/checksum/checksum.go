// Package checksum provides the two content fingerprints used by the vault:
// a strong ETag for optimistic concurrency and a fast hash for index dedup.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns the strong, quoted entity tag for the exact bytes of a note.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// MatchETag reports whether a client-supplied If-Match value names the same
// entity as etag. Quotes are optional on the client side; weak validators
// never match.
func MatchETag(ifMatch, etag string) bool {
	ifMatch = strings.TrimSpace(ifMatch)
	if ifMatch == "" || strings.HasPrefix(ifMatch, "W/") {
		return false
	}
	return strings.Trim(ifMatch, `"`) == strings.Trim(etag, `"`)
}

// Fast returns the xxhash64 of data. It is only used to recognise bytes that
// were already sent to the index.
func Fast(data []byte) uint64 {
	return xxhash.Sum64(data)
}
