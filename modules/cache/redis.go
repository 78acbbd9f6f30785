package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisEnvelope carries the creation time so the absolute ceiling survives TTL refreshes.
type redisEnvelope struct {
	Created  int64  `json:"created"`
	Sliding  int64  `json:"sliding"`
	Absolute int64  `json:"absolute"`
	Data     []byte `json:"data"`
}

// RedisStore keeps entries in Redis. Each hit resets the key TTL to the smaller of
// the sliding window and the time left before the absolute ceiling.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store using client with keys namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// Get returns a live entry and refreshes its TTL.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	fullKey := s.prefix + key

	raw, err := s.client.Get(ctx, fullKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get error: %w", err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal error: %w", err)
	}

	p := Policy{Sliding: time.Duration(env.Sliding), Absolute: time.Duration(env.Absolute)}
	created := time.Unix(0, env.Created)
	now := s.now()
	left := p.remaining(created, now)
	if left <= 0 {
		s.client.Del(ctx, fullKey)
		return nil, false, nil
	}

	if err := s.client.PExpire(ctx, fullKey, left).Err(); err != nil {
		return nil, false, fmt.Errorf("cache expire error: %w", err)
	}
	return env.Data, true, nil
}

// Set stores value under key.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, p Policy) error {
	now := s.now()
	raw, err := json.Marshal(redisEnvelope{
		Created:  now.UnixNano(),
		Sliding:  int64(p.Sliding),
		Absolute: int64(p.Absolute),
		Data:     value,
	})
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+key, raw, p.remaining(now, now)).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
