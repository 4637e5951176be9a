package restcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/openshelf/openshelf-go/internal/metrics"
)

// Options controls caching for one request.
type Options struct {
	// Enabled defaults to true; only an explicit false bypasses the cache.
	// Authentication-sensitive calls (login, signup, existence checks) set it
	// so security-relevant reads are never served stale.
	Enabled *bool
	// TTL overrides the store default when positive.
	TTL time.Duration
	// Key overrides the derived cache key when set.
	Key string
}

// Disabled returns options that force the executor to run.
func Disabled() Options {
	enabled := false
	return Options{Enabled: &enabled}
}

// Cacher applies response caching at the boundary between the request engine
// and the transport. Business logic never bypasses it except through
// Options.Enabled.
type Cacher struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewCacher wires the cache store with logging and metrics. A nil store yields
// a pass-through cacher.
func NewCacher(store Store, logger *slog.Logger, recorder *metrics.Recorder) *Cacher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cacher{store: store, logger: logger.With(slog.String("component", "restcache")), metrics: recorder}
}

// Do serves desc from cache when possible, otherwise runs exec and stores the
// result. Caching only ever applies to GET requests; every other verb runs the
// executor unconditionally. Store failures degrade to uncached behavior.
func (c *Cacher) Do(ctx context.Context, desc RequestDescriptor, opts Options, exec func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if c == nil || c.store == nil || desc.Method != http.MethodGet || (opts.Enabled != nil && !*opts.Enabled) {
		return exec(ctx)
	}

	key := opts.Key
	if key == "" {
		key = CacheKey(desc)
	}

	lookupStart := time.Now()
	entry, hit, err := c.store.Lookup(ctx, key)
	switch {
	case err != nil:
		c.metrics.ObserveCacheLookup(metrics.CacheLookupError, time.Since(lookupStart))
		c.logger.Warn("cache lookup failed", slog.String("cache_key", key), slog.Any("error", err))
	case hit:
		c.metrics.ObserveCacheLookup(metrics.CacheLookupHit, time.Since(lookupStart))
		return entry.Data, nil
	default:
		c.metrics.ObserveCacheLookup(metrics.CacheLookupMiss, time.Since(lookupStart))
	}

	data, err := exec(ctx)
	if err != nil {
		return nil, err
	}

	storeStart := time.Now()
	if err := c.store.Set(ctx, key, data, opts.TTL); err != nil {
		c.metrics.ObserveCacheStore(metrics.CacheStoreError, time.Since(storeStart))
		c.logger.Warn("cache store failed", slog.String("cache_key", key), slog.Any("error", err))
	} else {
		c.metrics.ObserveCacheStore(metrics.CacheStoreStored, time.Since(storeStart))
	}
	return data, nil
}

// Invalidate forwards pattern invalidation to the underlying store.
func (c *Cacher) Invalidate(ctx context.Context, pattern string) error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Invalidate(ctx, pattern)
}
