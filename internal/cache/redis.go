package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisConfig configures the shared Redis cache.
type RedisConfig struct {
	URL        string
	DefaultTTL time.Duration
	PoolSize   int
	MaxRetries int
}

// RedisStore caches JSON values in Redis. Read errors degrade to cache
// misses so a Redis outage slows the engine down instead of stopping it.
type RedisStore struct {
	client     *redis.Client
	defaultTTL time.Duration
	log        *logrus.Entry
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, log *logrus.Entry) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, defaultTTL: ttl, log: log}, nil
}

// Get implements Store. Corrupted entries are deleted and treated as misses.
func (s *RedisStore) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return false, nil
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		s.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

// Set implements Store. A zero ttl uses the configured default.
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
