package cache

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "reagent:cache:"

// RedisStore persists cache records in Redis so cached searches survive
// restarts and are shared across instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore namespaces every key with prefix; an empty prefix
// selects the default.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefix + key
	}
	values, err := s.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for i, value := range values {
		str, ok := value.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(str)
	}
	return out, nil
}

func (s *RedisStore) Set(ctx context.Context, records map[string][]byte) error {
	if len(records) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(records)*2)
	for key, value := range records {
		pairs = append(pairs, s.prefix+key, value)
	}
	return s.client.MSet(ctx, pairs...).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefix + key
	}
	return s.client.Del(ctx, prefixed...).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
