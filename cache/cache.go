// Package cache is the read-side response cache: TTL and entry bounded, with
// collapsed concurrent loads and optional persistence across restarts.
package cache

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c0deZ3R0/go-offline-queue/logging"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 500
)

// Entry is one cached response
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

// Persister stores entries outside the process. Failures are logged by the
// cache and never fail a read.
type Persister interface {
	LoadCacheEntries(ctx context.Context) ([]Entry, error)
	SaveCacheEntry(ctx context.Context, e Entry) error
	DeleteCacheEntry(ctx context.Context, key string) error
	ClearCacheEntries(ctx context.Context) error
}

// Loader fetches a value on a cache miss
type Loader func(ctx context.Context) ([]byte, error)

// Cache is safe for concurrent use
type Cache struct {
	mu         sync.Mutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
	persister  Persister
	now        func() time.Time
	logger     *slog.Logger
	group      singleflight.Group
}

// Option configures a Cache
type Option func(*Cache)

// WithTTL sets the lifetime of new entries
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxEntries bounds the number of live entries
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithPersister mirrors writes into p
func WithPersister(p Persister) Option {
	return func(c *Cache) { c.persister = p }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the cache's logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = logging.For(l, "cache") }
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]Entry),
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.For(nil, "cache")
	}
	return c
}

// Signature builds the stable cache key for a read. Query parameters are
// encoded in sorted key order.
func Signature(collection, id string, query url.Values) string {
	sig := collection + "/" + id
	if len(query) > 0 {
		sig += "?" + query.Encode()
	}
	return sig
}

// Restore loads persisted entries, skipping expired ones and respecting the bound
func (c *Cache) Restore(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	entries, err := c.persister.LoadCacheEntries(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, e := range entries {
		if !e.ExpiresAt.After(now) {
			continue
		}
		c.insertLocked(e)
	}
	c.logger.Debug("cache restored", "entries", len(c.entries))
	return nil
}

// Get returns a live entry's value
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.ExpiresAt.After(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.Value, true
}

// Set stores value under key with the default TTL
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL
func (c *Cache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	e := Entry{Key: key, Value: value, ExpiresAt: c.now().Add(ttl)}

	c.mu.Lock()
	evicted := c.insertLocked(e)
	c.mu.Unlock()

	if c.persister == nil {
		return
	}
	for _, k := range evicted {
		if err := c.persister.DeleteCacheEntry(ctx, k); err != nil {
			c.logger.Warn("failed to delete persisted cache entry", "key", k, "error", err)
		}
	}
	if err := c.persister.SaveCacheEntry(ctx, e); err != nil {
		c.logger.Warn("failed to persist cache entry", "key", key, "error", err)
	}
}

// insertLocked adds e, evicting to stay within maxEntries. It returns the
// keys it evicted.
func (c *Cache) insertLocked(e Entry) []string {
	var evicted []string
	if _, exists := c.entries[e.Key]; !exists && len(c.entries) >= c.maxEntries {
		now := c.now()
		for k, old := range c.entries {
			if !old.ExpiresAt.After(now) {
				delete(c.entries, k)
				evicted = append(evicted, k)
			}
		}
		for len(c.entries) >= c.maxEntries {
			var victim string
			var soonest time.Time
			for k, old := range c.entries {
				if victim == "" || old.ExpiresAt.Before(soonest) {
					victim, soonest = k, old.ExpiresAt
				}
			}
			delete(c.entries, victim)
			evicted = append(evicted, victim)
		}
	}
	c.entries[e.Key] = e
	return evicted
}

// GetOrLoad returns the cached value or calls loader once for all concurrent
// callers of the same key. Loader errors are not cached.
func (c *Cache) GetOrLoad(ctx context.Context, key string, loader Loader) ([]byte, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Delete removes one key
func (c *Cache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.persister != nil {
		if err := c.persister.DeleteCacheEntry(ctx, key); err != nil {
			c.logger.Warn("failed to delete persisted cache entry", "key", key, "error", err)
		}
	}
}

// InvalidateDocument drops every cached read of one document, whatever its
// query parameters
func (c *Cache) InvalidateDocument(ctx context.Context, collection, id string) int {
	base := Signature(collection, id, nil)

	c.mu.Lock()
	var keys []string
	for k := range c.entries {
		if k == base || strings.HasPrefix(k, base+"?") {
			keys = append(keys, k)
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	if c.persister != nil {
		for _, k := range keys {
			if err := c.persister.DeleteCacheEntry(ctx, k); err != nil {
				c.logger.Warn("failed to delete persisted cache entry", "key", k, "error", err)
			}
		}
	}
	return len(keys)
}

// Clear empties the cache and its persister
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()

	if c.persister != nil {
		return c.persister.ClearCacheEntries(ctx)
	}
	return nil
}

// Len returns the number of held entries, including ones that expired but
// have not been purged yet
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxEntries returns the configured bound
func (c *Cache) MaxEntries() int {
	return c.maxEntries
}
