package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// CacheKey identifies a cached page: the partition (collector id) it belongs to
// and the exact request URL that produced it.
type CacheKey struct {
	// Partition is the collector id that scopes the entry.
	Partition string

	// URL is the request URL as sent. It is hashed verbatim: no case folding,
	// no query reordering, no trailing slash trimming.
	URL string
}

// Hash returns the hex encoded SHA-256 of the request URL. It is the on-disk
// name of the entry inside its partition.
func (k CacheKey) Hash() string {
	sum := sha256.Sum256([]byte(k.URL))
	return hex.EncodeToString(sum[:])
}

// String generates a deterministic cache key string.
// Format: <partition>/<hash>
//
// Example:
//
//	ABC123/9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
func (k CacheKey) String() string {
	return k.Partition + "/" + k.Hash()
}
