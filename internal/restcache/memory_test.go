package restcache

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestMemoryCacheSetLookup(t *testing.T) {
	cache := NewMemory(500 * time.Millisecond)
	ctx := context.Background()

	if err := cache.Set(ctx, "GET:/users>abc#/users", json.RawMessage(`[{"id":1}]`), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	entry, ok, err := cache.Lookup(ctx, "GET:/users>abc#/users")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if string(entry.Data) != `[{"id":1}]` {
		t.Fatalf("unexpected data: %s", entry.Data)
	}
	if !entry.ExpiresAt.After(entry.StoredAt) {
		t.Fatalf("expected expiry after store time: %#v", entry)
	}

	size, err := cache.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 1 {
		t.Fatalf("expected size 1, got %d", size)
	}

	if err := cache.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemory(10 * time.Millisecond)
	ctx := context.Background()

	if err := cache.Set(ctx, "key", json.RawMessage(`true`), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	_, ok, err := cache.Lookup(ctx, "key")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok {
		t.Fatalf("expected entry to expire")
	}
	size, err := cache.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected lazy expiry to delete the entry, size %d", size)
	}
}

func TestMemoryCacheDefaultTTL(t *testing.T) {
	cache := NewMemory(0)
	ctx := context.Background()

	if err := cache.Set(ctx, "key", json.RawMessage(`1`), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry, ok, err := cache.Lookup(ctx, "key")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	got := entry.ExpiresAt.Sub(entry.StoredAt)
	if got != DefaultTTL {
		t.Fatalf("expected default ttl %v, got %v", DefaultTTL, got)
	}
}

func TestMemoryCacheInvalidatePattern(t *testing.T) {
	cache := NewMemory(time.Minute)
	ctx := context.Background()

	for _, key := range []string{
		"GET:/products>a#/products",
		"GET:/products>a#/products/1",
		"GET:/users>b#/users",
	} {
		if err := cache.Set(ctx, key, json.RawMessage(`{}`), 0); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	if err := cache.Invalidate(ctx, "/products"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	size, err := cache.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 1 {
		t.Fatalf("expected only the users entry to survive, size %d", size)
	}
	if _, ok, _ := cache.Lookup(ctx, "GET:/users>b#/users"); !ok {
		t.Fatalf("expected unrelated entry to survive")
	}
}

func TestMemoryCacheInvalidateAll(t *testing.T) {
	cache := NewMemory(time.Minute)
	ctx := context.Background()

	_ = cache.Set(ctx, "a", json.RawMessage(`1`), 0)
	_ = cache.Set(ctx, "b", json.RawMessage(`2`), 0)

	if err := cache.Invalidate(ctx, ""); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	size, _ := cache.Size(ctx)
	if size != 0 {
		t.Fatalf("expected empty cache, size %d", size)
	}
}

func TestMemoryCacheInvalidateBadPattern(t *testing.T) {
	cache := NewMemory(time.Minute)
	if err := cache.Invalidate(context.Background(), "["); err == nil {
		t.Fatalf("expected error for malformed pattern")
	}
}

func TestCacheKeyFoldsEndpointAndParams(t *testing.T) {
	base := RequestDescriptor{
		Method:    "GET",
		Signature: "GET:/products>abc",
		Endpoint:  "/products/1",
	}
	key := CacheKey(base)
	if key != "GET:/products>abc#/products/1" {
		t.Fatalf("unexpected key: %s", key)
	}

	other := base
	other.Endpoint = "/products/2"
	if CacheKey(other) == key {
		t.Fatalf("expected distinct keys for distinct ids")
	}

	withParams := base
	withParams.Params = map[string][]string{"page": {"2"}, "sort": {"title"}}
	if CacheKey(withParams) != "GET:/products>abc#/products/1?page=2&sort=title" {
		t.Fatalf("unexpected key with params: %s", CacheKey(withParams))
	}
}
