package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// RedisConfig holds the options for a Redis-backed store.
type RedisConfig struct {
	// Prefix is prepended to every key ("app:" style). Optional.
	Prefix string

	// Expiry is set on every written key so Redis drops abandoned
	// entries on its own. 0 disables server-side expiry.
	Expiry time.Duration
}

// RedisStore is a Store on top of a Redis client.
// The store takes ownership of the client and closes it on Close.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	expiry time.Duration
}

// NewRedisStore creates a new store with Redis backend.
func NewRedisStore(redisClient *redis.Client, cfg RedisConfig) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
		expiry: cfg.Expiry,
	}
}

// RedisOpener returns an Opener that pings Redis before handing out the store.
func RedisOpener(opts *redis.Options, cfg RedisConfig) Opener {
	return func(ctx context.Context) (Store, error) {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			StorageErrors.WithLabelValues("open", backendRedis).Inc()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisStore(client, cfg), nil
	}
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

// Get returns the value stored under key, or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.redis.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		StorageErrors.WithLabelValues("get", backendRedis).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Put stores value under key.
func (r *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := r.redis.Set(ctx, r.key(key), value, r.expiry).Err(); err != nil {
		StorageErrors.WithLabelValues("put", backendRedis).Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		StorageErrors.WithLabelValues("delete", backendRedis).Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.redis.Close()
}
