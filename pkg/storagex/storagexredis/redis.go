package storagexredis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/gardenledger/fieldsync/pkg/errx"
)

// DefaultPattern matches the keys this module caches derived data under.
const DefaultPattern = "fieldsync:cache:*"

var redisErrors = errx.NewRegistry("STORAGEX_REDIS")

var (
	ErrScan   = redisErrors.Register("SCAN_FAILED", errx.TypeExternal, 500, "Failed to scan cache keys")
	ErrDelete = redisErrors.Register("DELETE_FAILED", errx.TypeExternal, 500, "Failed to delete cache keys")
)

// CacheStore implements storagex.CacheStore over a Redis keyspace slice.
// Everything under the pattern is derived data and safe to drop.
type CacheStore struct {
	rdb     *redis.Client
	pattern string
}

// NewCacheStore creates a cache store scanning keys under pattern. An empty
// pattern uses DefaultPattern.
func NewCacheStore(rdb *redis.Client, pattern string) *CacheStore {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &CacheStore{rdb: rdb, pattern: pattern}
}

func (s *CacheStore) Usage(ctx context.Context) (int, int64, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(keys) == 0 {
		return 0, 0, nil
	}

	pipe := s.rdb.Pipeline()
	sizes := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		sizes[i] = pipe.MemoryUsage(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, redisErrors.NewWithCause(ErrScan, err)
	}

	var bytes int64
	for _, cmd := range sizes {
		if n, err := cmd.Result(); err == nil {
			bytes += n
		}
	}
	return len(keys), bytes, nil
}

func (s *CacheStore) Clear(ctx context.Context) (int, int64, error) {
	items, bytes, err := s.Usage(ctx)
	if err != nil {
		return 0, 0, err
	}
	if items == 0 {
		return 0, 0, nil
	}

	keys, err := s.keys(ctx)
	if err != nil {
		return 0, 0, err
	}

	pipe := s.rdb.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, redisErrors.NewWithCause(ErrDelete, err)
	}
	return items, bytes, nil
}

func (s *CacheStore) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, redisErrors.NewWithCause(ErrScan, err)
	}
	return keys, nil
}
