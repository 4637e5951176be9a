// Package restcache holds GET responses between the request engine and the
// transport. Entries live for a TTL and are validated lazily on lookup; there
// is no background sweep.
package restcache

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// DefaultTTL applies when a caller does not provide an explicit cache duration.
const DefaultTTL = 5 * time.Minute

// Entry is one cached response. Entries are replaced wholesale, never mutated.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Store is the response cache contract shared by the memory and valkey backends.
type Store interface {
	// Lookup returns the entry for key when present and unexpired. Expired
	// entries are deleted during the lookup.
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	// Set unconditionally overwrites the entry for key.
	Set(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) error
	// Invalidate deletes every key matching the regex pattern; an empty
	// pattern clears the whole cache.
	Invalidate(ctx context.Context, pattern string) error
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// RequestDescriptor identifies one request for cache key derivation. Signature
// is the id-stripped token-lookup signature; Endpoint and Params fold the full
// request back in so per-id GET responses occupy distinct cache entries.
type RequestDescriptor struct {
	Method    string
	Signature string
	Endpoint  string
	Params    url.Values
}

// CacheKey resolves the storage key for a descriptor. The signature alone is
// not enough: GET /products/1 and GET /products/2 share a signature by design,
// so the raw endpoint path and canonicalized query params are appended.
func CacheKey(d RequestDescriptor) string {
	var b strings.Builder
	b.WriteString(d.Signature)
	b.WriteString("#")
	b.WriteString(d.Endpoint)
	if len(d.Params) > 0 {
		b.WriteString("?")
		b.WriteString(d.Params.Encode())
	}
	return b.String()
}
