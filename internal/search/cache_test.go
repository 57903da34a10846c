package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"torrentstream/resolverservice/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryBackend expires entries on the shared fake clock, like Redis would.
type memoryBackend struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries map[string]BackendEntry
	ttls    map[string]time.Duration
	gets    int
}

func newMemoryBackend(clock *fakeClock) *memoryBackend {
	return &memoryBackend{clock: clock, entries: map[string]BackendEntry{}, ttls: map[string]time.Duration{}}
}

func (b *memoryBackend) Get(_ context.Context, key string) (BackendEntry, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	entry, ok := b.entries[key]
	if !ok || !b.clock.Now().Before(entry.ExpiresAt) {
		return BackendEntry{}, false, nil
	}
	return entry, true, nil
}

func (b *memoryBackend) Set(_ context.Context, key string, resp domain.StreamResponse, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = BackendEntry{Response: resp, ExpiresAt: b.clock.Now().Add(ttl)}
	b.ttls[key] = ttl
	return nil
}

func newTestCache(clock *fakeClock, opts ...CacheOption) *ResultCache {
	c := NewResultCache(opts...)
	c.now = clock.Now
	return c
}

func okResponse(urls ...string) domain.StreamResponse {
	resp := domain.StreamResponse{Status: domain.StreamStatusOK}
	for _, u := range urls {
		resp.Streams = append(resp.Streams, domain.StreamRecord{DisplayTitle: u, URL: u})
	}
	return resp
}

func TestResultCacheHitAndExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(clock, WithCacheTTLs(time.Hour, time.Minute))

	if _, ok := cache.Get(context.Background(), "k"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	cache.Set(context.Background(), "k", okResponse("a"))

	got, ok := cache.Get(context.Background(), "k")
	if !ok || len(got.Streams) != 1 || got.Streams[0].URL != "a" {
		t.Fatalf("expected hit, got %+v %v", got, ok)
	}

	clock.Advance(59 * time.Minute)
	if _, ok := cache.Get(context.Background(), "k"); !ok {
		t.Fatalf("expected hit inside TTL")
	}
	clock.Advance(2 * time.Minute)
	if _, ok := cache.Get(context.Background(), "k"); ok {
		t.Fatalf("expected miss after success TTL")
	}
}

func TestResultCacheShortTTLForEmptyOutcomes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(clock, WithCacheTTLs(time.Hour, 5*time.Minute))

	for _, status := range []domain.StreamStatus{domain.StreamStatusNoResults, domain.StreamStatusNotFound, domain.StreamStatusPartial} {
		key := string(status)
		cache.Set(context.Background(), key, domain.StreamResponse{Status: status})
	}
	clock.Advance(6 * time.Minute)
	for _, status := range []domain.StreamStatus{domain.StreamStatusNoResults, domain.StreamStatusNotFound, domain.StreamStatusPartial} {
		if _, ok := cache.Get(context.Background(), string(status)); ok {
			t.Fatalf("%s must use the short TTL", status)
		}
	}
	if cache.TTLFor(domain.StreamStatusOK) != time.Hour {
		t.Fatalf("unexpected success TTL")
	}
}

func TestResultCacheClonesPayloads(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(clock)

	resp := okResponse("a", "b")
	cache.Set(context.Background(), "k", resp)
	resp.Streams[0].URL = "mutated"

	first, _ := cache.Get(context.Background(), "k")
	first.Streams[1].URL = "mutated too"
	second, _ := cache.Get(context.Background(), "k")
	if second.Streams[0].URL != "a" || second.Streams[1].URL != "b" {
		t.Fatalf("cache entry shares memory with callers: %+v", second.Streams)
	}
}

func TestResultCacheTrimEvictsSoonestExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newTestCache(clock, WithCacheMaxEntries(2), WithCacheTTLs(time.Hour, time.Minute))

	cache.Set(context.Background(), "empty", domain.StreamResponse{Status: domain.StreamStatusNoResults})
	cache.Set(context.Background(), "ok1", okResponse("a"))
	cache.Set(context.Background(), "ok2", okResponse("b"))

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	if _, ok := cache.Get(context.Background(), "empty"); ok {
		t.Fatalf("entry closest to expiry should be evicted first")
	}
}

func TestResultCacheBackendReadThrough(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	backend := newMemoryBackend(clock)
	writer := newTestCache(clock, WithCacheBackend(backend), WithCacheTTLs(time.Hour, time.Minute))

	resp := okResponse("a")
	resp.CacheHintSeconds = 3600
	writer.Set(context.Background(), "k", resp)
	if backend.ttls["k"] != time.Hour {
		t.Fatalf("expected write-through with success TTL, got %s", backend.ttls["k"])
	}

	reader := newTestCache(clock, WithCacheBackend(backend))
	got, ok := reader.Get(context.Background(), "k")
	if !ok || got.Streams[0].URL != "a" {
		t.Fatalf("expected backend hit, got %+v %v", got, ok)
	}
	gets := backend.gets
	if _, ok := reader.Get(context.Background(), "k"); !ok {
		t.Fatalf("expected memory hit after hydration")
	}
	if backend.gets != gets {
		t.Fatalf("hydrated entry must be served from memory")
	}
}

func TestResultCacheHydratedEntryExpiresWithBackend(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	backend := newMemoryBackend(clock)
	writer := newTestCache(clock, WithCacheBackend(backend), WithCacheTTLs(time.Hour, time.Minute))

	resp := okResponse("a")
	resp.CacheHintSeconds = 3600
	writer.Set(context.Background(), "k", resp)

	clock.Advance(50 * time.Minute)
	reader := newTestCache(clock, WithCacheBackend(backend), WithCacheTTLs(time.Hour, time.Minute))
	if _, ok := reader.Get(context.Background(), "k"); !ok {
		t.Fatalf("expected backend hit before expiry")
	}

	clock.Advance(11 * time.Minute)
	gets := backend.gets
	if got, ok := reader.Get(context.Background(), "k"); ok {
		t.Fatalf("hydrated entry outlived the backend entry: %+v", got)
	}
	if backend.gets != gets+1 {
		t.Fatalf("expected the expired memory copy to fall through to the backend")
	}
}

func TestResultCacheIgnoresExpiredBackendEntry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	backend := &staleBackend{entry: BackendEntry{Response: okResponse("a"), ExpiresAt: clock.Now().Add(-time.Second)}}
	cache := newTestCache(clock, WithCacheBackend(backend))
	if _, ok := cache.Get(context.Background(), "k"); ok {
		t.Fatalf("entry already past its backend expiry must miss")
	}
	if cache.Len() != 0 {
		t.Fatalf("expired backend entry must not be stored in memory")
	}
}

type staleBackend struct {
	entry BackendEntry
}

func (b *staleBackend) Get(context.Context, string) (BackendEntry, bool, error) {
	return b.entry, true, nil
}

func (b *staleBackend) Set(context.Context, string, domain.StreamResponse, time.Duration) error {
	return nil
}

func TestDecodeRedisEntry(t *testing.T) {
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := json.Marshal(redisCacheEntry{Version: redisCacheVersion, ExpiresAt: expires, Response: okResponse("a")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	entry, ok, err := decodeRedisEntry(data)
	if err != nil || !ok {
		t.Fatalf("decodeRedisEntry = %v, %v", ok, err)
	}
	if !entry.ExpiresAt.Equal(expires) || entry.Response.Streams[0].URL != "a" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	if _, ok, err := decodeRedisEntry([]byte(`{"v":1,"response":{"status":"ok"}}`)); ok || err != nil {
		t.Fatalf("older entry version must read as a miss, got ok=%v err=%v", ok, err)
	}
	if _, _, err := decodeRedisEntry([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestResultCacheDisabled(t *testing.T) {
	cache := NewResultCache(WithCacheDisabled(true))
	cache.Set(context.Background(), "k", okResponse("a"))
	if _, ok := cache.Get(context.Background(), "k"); ok {
		t.Fatalf("disabled cache must never hit")
	}
}

func TestResultCacheConcurrentAccess(t *testing.T) {
	cache := NewResultCache(WithCacheMaxEntries(16))
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%24)
				cache.Set(context.Background(), key, okResponse(fmt.Sprintf("u%d-%d", w, i)))
				if got, ok := cache.Get(context.Background(), key); ok && len(got.Streams) != 1 {
					t.Errorf("torn entry for %s: %+v", key, got)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	if cache.Len() > 16 {
		t.Fatalf("cache exceeded max entries: %d", cache.Len())
	}
}

func TestCacheKeyNormalizesFields(t *testing.T) {
	a := CacheKey("fp", domain.MediaTypeSeries, " TT0944947:1:1 ", 0)
	b := CacheKey("fp", "SERIES", "tt0944947:1:1", 0)
	if a != b {
		t.Fatalf("expected equal keys, got %q and %q", a, b)
	}
	if a == CacheKey("other", domain.MediaTypeSeries, "tt0944947:1:1", 0) {
		t.Fatalf("fingerprint must be part of the key")
	}
	if a == CacheKey("fp", domain.MediaTypeSeries, "tt0944947:1:1", 2) {
		t.Fatalf("page must be part of the key")
	}
}
