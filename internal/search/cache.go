package search

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"torrentstream/resolverservice/internal/domain"
	"torrentstream/resolverservice/internal/metrics"
)

const (
	defaultSuccessTTL      = time.Hour
	defaultEmptyTTL        = 5 * time.Minute
	defaultCacheMaxEntries = 2000
	backendTimeout         = 500 * time.Millisecond
)

// CacheBackend is an optional shared tier behind the in-memory map.
type CacheBackend interface {
	Get(ctx context.Context, key string) (BackendEntry, bool, error)
	Set(ctx context.Context, key string, response domain.StreamResponse, ttl time.Duration) error
}

// BackendEntry is a response read from a CacheBackend with the instant the
// backend will drop it. A zero ExpiresAt means the backend does not know.
type BackendEntry struct {
	Response  domain.StreamResponse
	ExpiresAt time.Time
}

type cacheEntry struct {
	response  domain.StreamResponse
	expiresAt time.Time
}

// ResultCache memoizes final responses. Entries are cloned on the way in and
// out and replaced whole under the lock, so readers never see a partial
// update.
type ResultCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	backend    CacheBackend
	successTTL time.Duration
	emptyTTL   time.Duration
	maxEntries int
	disabled   bool
	now        func() time.Time
	logger     *slog.Logger
}

type CacheOption func(*ResultCache)

func WithCacheBackend(backend CacheBackend) CacheOption {
	return func(c *ResultCache) {
		c.backend = backend
	}
}

func WithCacheTTLs(success, empty time.Duration) CacheOption {
	return func(c *ResultCache) {
		if success > 0 {
			c.successTTL = success
		}
		if empty > 0 {
			c.emptyTTL = empty
		}
	}
}

func WithCacheMaxEntries(n int) CacheOption {
	return func(c *ResultCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithCacheDisabled(disabled bool) CacheOption {
	return func(c *ResultCache) {
		c.disabled = disabled
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *ResultCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewResultCache(opts ...CacheOption) *ResultCache {
	c := &ResultCache{
		entries:    make(map[string]cacheEntry),
		successTTL: defaultSuccessTTL,
		emptyTTL:   defaultEmptyTTL,
		maxEntries: defaultCacheMaxEntries,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheKey joins the config fingerprint, media type, id and page.
func CacheKey(fingerprint string, mediaType domain.MediaType, mediaID string, page int) string {
	if page < 0 {
		page = 0
	}
	return strings.Join([]string{
		strings.TrimSpace(fingerprint),
		strings.ToLower(strings.TrimSpace(string(mediaType))),
		strings.ToLower(strings.TrimSpace(mediaID)),
		strconv.Itoa(page),
	}, "|")
}

// TTLFor gives ok responses the success TTL and every other status the
// short one.
func (c *ResultCache) TTLFor(status domain.StreamStatus) time.Duration {
	if status == domain.StreamStatusOK {
		return c.successTTL
	}
	return c.emptyTTL
}

func (c *ResultCache) Get(ctx context.Context, key string) (domain.StreamResponse, bool) {
	if c == nil || c.disabled {
		return domain.StreamResponse{}, false
	}
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		metrics.CacheHitsTotal.Inc()
		return entry.response.Clone(), true
	}

	if c.backend != nil {
		backendCtx, cancel := context.WithTimeout(ctx, backendTimeout)
		stored, found, err := c.backend.Get(backendCtx, key)
		cancel()
		if err != nil {
			c.logger.Debug("cache backend get failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		if err == nil && found {
			if expiresAt := c.hydrationExpiry(stored, now); now.Before(expiresAt) {
				metrics.CacheHitsTotal.Inc()
				c.storeMemory(key, stored.Response, expiresAt)
				return stored.Response.Clone(), true
			}
		}
	}

	metrics.CacheMissesTotal.Inc()
	return domain.StreamResponse{}, false
}

// hydrationExpiry keeps a backend entry in memory no longer than the backend
// itself keeps it.
func (c *ResultCache) hydrationExpiry(stored BackendEntry, now time.Time) time.Time {
	if !stored.ExpiresAt.IsZero() {
		return stored.ExpiresAt
	}
	ttl := time.Duration(stored.Response.CacheHintSeconds) * time.Second
	if ttl <= 0 {
		ttl = c.TTLFor(stored.Response.Status)
	}
	return now.Add(ttl)
}

func (c *ResultCache) Set(ctx context.Context, key string, response domain.StreamResponse) {
	if c == nil || c.disabled {
		return
	}
	ttl := c.TTLFor(response.Status)
	c.storeMemory(key, response, c.now().Add(ttl))

	if c.backend != nil {
		backendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backendTimeout)
		defer cancel()
		if err := c.backend.Set(backendCtx, key, response, ttl); err != nil {
			c.logger.Debug("cache backend set failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ResultCache) storeMemory(key string, response domain.StreamResponse, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{response: response.Clone(), expiresAt: expiresAt}
	c.trimLocked(c.now())
}

// trimLocked drops expired entries, then evicts the ones closest to expiry
// until the map fits maxEntries.
func (c *ResultCache) trimLocked(now time.Time) {
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	type pair struct {
		key       string
		expiresAt time.Time
	}
	items := make([]pair, 0, len(c.entries))
	for key, entry := range c.entries {
		items = append(items, pair{key: key, expiresAt: entry.expiresAt})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].expiresAt.Before(items[j].expiresAt)
	})
	for i := 0; i < len(items)-c.maxEntries; i++ {
		delete(c.entries, items[i].key)
	}
}
