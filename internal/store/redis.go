package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the seen-set in a Redis SET, for deployments that already
// run Redis and don't want local files. Save overwrites the key wholesale
// inside one pipeline so a reader never observes a half-written set.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(addr string, db int, key string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		key: key,
	}
}

func (s *RedisStore) Load(ctx context.Context) (map[string]struct{}, error) {
	fingerprints, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}

	seen := make(map[string]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		seen[fp] = struct{}{}
	}
	return seen, nil
}

func (s *RedisStore) Save(ctx context.Context, fingerprints map[string]struct{}) error {
	members := make([]interface{}, 0, len(fingerprints))
	for fp := range fingerprints {
		members = append(members, fp)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(members) > 0 {
		pipe.SAdd(ctx, s.key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
