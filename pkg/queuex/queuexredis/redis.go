package queuexredis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/gardenledger/fieldsync/pkg/queuex"
)

// RedisStore implements queuex.Store backed by Redis. Each job lives under
// its own key; two sets index jobs by the synced flag so filtered scans do
// not touch every record.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Key helpers
func jobKey(id string) string { return fmt.Sprintf("fieldsync:job:%s", id) }

const (
	pendingSetKey = "fieldsync:jobs:pending"
	syncedSetKey  = "fieldsync:jobs:synced"
)

func indexKey(synced bool) string {
	if synced {
		return syncedSetKey
	}
	return pendingSetKey
}

func (s *RedisStore) Put(ctx context.Context, job queuex.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.SAdd(ctx, indexKey(job.Synced), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErrors.NewWithCause(ErrPut, err).WithDetail("job_id", job.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*queuex.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, queuex.NotFound(id)
		}
		return nil, redisErrors.NewWithCause(ErrGet, err).WithDetail("job_id", id)
	}

	var job queuex.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("job_id", id)
	}
	return &job, nil
}

func (s *RedisStore) List(ctx context.Context, filter queuex.Filter) ([]queuex.Job, error) {
	var ids []string
	var err error

	switch {
	case filter.Synced == nil:
		ids, err = s.rdb.SUnion(ctx, pendingSetKey, syncedSetKey).Result()
	default:
		ids, err = s.rdb.SMembers(ctx, indexKey(*filter.Synced)).Result()
	}
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrList, err)
	}

	jobs := make([]queuex.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			// Index entry without a record: the key expired or was deleted
			// out of band. Drop the stale index member and move on.
			s.rdb.SRem(ctx, pendingSetKey, id)
			s.rdb.SRem(ctx, syncedSetKey, id)
			continue
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *RedisStore) Update(ctx context.Context, job queuex.Job) error {
	exists, err := s.rdb.Exists(ctx, jobKey(job.ID)).Result()
	if err != nil {
		return redisErrors.NewWithCause(ErrUpdate, err).WithDetail("job_id", job.ID)
	}
	if exists == 0 {
		return queuex.NotFound(job.ID)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job_id", job.ID)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.SRem(ctx, indexKey(!job.Synced), job.ID)
	pipe.SAdd(ctx, indexKey(job.Synced), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErrors.NewWithCause(ErrUpdate, err).WithDetail("job_id", job.ID)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, jobKey(id))
	pipe.SRem(ctx, pendingSetKey, id)
	pipe.SRem(ctx, syncedSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErrors.NewWithCause(ErrDelete, err).WithDetail("job_id", id)
	}
	return nil
}

func (s *RedisStore) DeleteSynced(ctx context.Context) (int, error) {
	ids, err := s.rdb.SMembers(ctx, syncedSetKey).Result()
	if err != nil {
		return 0, redisErrors.NewWithCause(ErrList, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.rdb.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, jobKey(id))
	}
	pipe.Del(ctx, syncedSetKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, redisErrors.NewWithCause(ErrDelete, err)
	}
	return len(ids), nil
}
