package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"torrentstream/resolverservice/internal/domain"
)

const (
	redisCachePrefix = "resolver:cache:"
	// redisCacheVersion is bumped whenever the stored response shape changes;
	// entries written by another version read as misses.
	redisCacheVersion = 2
)

type redisCacheEntry struct {
	Version   int                   `json:"v"`
	ExpiresAt time.Time             `json:"exp"`
	Response  domain.StreamResponse `json:"response"`
}

// RedisCacheBackend shares resolved responses between replicas. Redis drops
// keys at their TTL; the same instant travels in the entry so readers can
// bound their in-memory copy.
type RedisCacheBackend struct {
	client redis.UniversalClient
	now    func() time.Time
}

var _ CacheBackend = (*RedisCacheBackend)(nil)

func NewRedisCacheBackend(client redis.UniversalClient) *RedisCacheBackend {
	return &RedisCacheBackend{client: client, now: time.Now}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) (BackendEntry, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return BackendEntry{}, false, nil
	}
	if err != nil {
		return BackendEntry{}, false, fmt.Errorf("redis get: %w", err)
	}

	return decodeRedisEntry(data)
}

func decodeRedisEntry(data []byte) (BackendEntry, bool, error) {
	var entry redisCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return BackendEntry{}, false, fmt.Errorf("decode cached response: %w", err)
	}
	if entry.Version != redisCacheVersion {
		return BackendEntry{}, false, nil
	}
	return BackendEntry{Response: entry.Response, ExpiresAt: entry.ExpiresAt}, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, response domain.StreamResponse, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(redisCacheEntry{
		Version:   redisCacheVersion,
		ExpiresAt: r.now().Add(ttl).UTC(),
		Response:  response,
	})
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	if err := r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
