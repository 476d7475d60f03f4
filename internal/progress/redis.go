package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/study-tracker/internal/platform/cache"
)

// RedisStore keeps each record as a JSON string under the cache prefix.
type RedisStore struct {
	cache *cache.Cache
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(c *cache.Cache) (*RedisStore, error) {
	if c == nil || c.Client == nil {
		return nil, fmt.Errorf("cache client is nil")
	}
	return &RedisStore{cache: c}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	data, err := s.cache.Client.Get(ctx, s.cache.Key("ledger", key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get progress record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode progress record: %w", err)
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode progress record: %w", err)
	}
	if err := s.cache.Client.Set(ctx, s.cache.Key("ledger", key), data, 0).Err(); err != nil {
		return fmt.Errorf("set progress record: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.cache.HealthCheck(ctx)
}

// Close is a no-op: the client belongs to cache.Cache.
func (s *RedisStore) Close() error { return nil }
