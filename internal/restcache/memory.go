package restcache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"
)

type memoryCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemory builds the default in-process cache. Contents live for the process
// lifetime only; durable state belongs to the reactive store, not here.
func NewMemory(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &memoryCache{ttl: ttl, entries: make(map[string]Entry)}
}

func (c *memoryCache) Lookup(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, data json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := time.Now().UTC()
	entry := Entry{
		Data:      append(json.RawMessage(nil), data...),
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pattern == "" {
		c.entries = make(map[string]Entry)
		return nil
	}
	matcher, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("restcache: invalidate pattern: %w", err)
	}
	for key := range c.entries {
		if matcher.MatchString(key) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memoryCache) Size(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.entries)), nil
}

func (c *memoryCache) Close(context.Context) error {
	return nil
}

func cloneEntry(in Entry) Entry {
	return Entry{
		Data:      append(json.RawMessage(nil), in.Data...),
		StoredAt:  in.StoredAt,
		ExpiresAt: in.ExpiresAt,
	}
}
