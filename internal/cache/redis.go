package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Cache[struct{}] = (*RedisCache[struct{}])(nil)

// RedisCache implements Cache interface backed by Redis.
// Values are JSON-encoded; TTL is enforced by the Redis server, so entries
// survive process restarts and are shared across instances.
type RedisCache[T any] struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed cache. prefix namespaces all keys
// so multiple deployments can share one Redis instance.
func NewRedisCache[T any](addr, password string, db int, prefix string) (*RedisCache[T], error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	return &RedisCache[T]{client: client, prefix: prefix}, nil
}

func (r *RedisCache[T]) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// Get retrieves a value from cache.
func (r *RedisCache[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrCacheMiss
		}
		return zero, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return value, nil
}

// Set stores a value in cache with TTL.
func (r *RedisCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Delete removes a key from cache.
func (r *RedisCache[T]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisCache[T]) Close() error {
	return r.client.Close()
}

// Health pings the Redis server.
func (r *RedisCache[T]) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
