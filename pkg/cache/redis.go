package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/tmplhub/pkg/logger"
)

// RedisConfig configures the distributed memory backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisBackend implements Backend using Redis
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	logger logger.Logger
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig, log logger.Logger) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	b := NewRedisBackendWithClient(rdb, cfg.Prefix, log)
	b.logger.Debug("Redis cache initialized", "addr", cfg.Addr, "db", cfg.DB)
	return b, nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client redis.UniversalClient, prefix string, log logger.Logger) *RedisBackend {
	if prefix == "" {
		prefix = "tmplhub:"
	}
	return &RedisBackend{client: client, prefix: prefix, logger: logger.OrDiscard(log)}
}

func (b *RedisBackend) namespacePrefix(namespace string) string {
	return b.prefix + hashName(namespace) + ":"
}

// Get retrieves cached content from Redis
func (b *RedisBackend) Get(ctx context.Context, namespace, key string) (string, error) {
	result, err := b.client.Get(ctx, b.namespacePrefix(namespace)+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		b.logger.Error("Redis GET failed", "namespace", namespace, "key", key, "error", err)
		return "", fmt.Errorf("redis get error: %w", err)
	}

	b.logger.Debug("Redis cache hit", "namespace", namespace, "key", key, "size", len(result))

	return result, nil
}

// Set stores content in Redis with ttl
func (b *RedisBackend) Set(ctx context.Context, namespace, key, content string, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.namespacePrefix(namespace)+key, content, ttl).Err(); err != nil {
		b.logger.Error("Redis SET failed", "namespace", namespace, "key", key, "error", err)
		return fmt.Errorf("redis set error: %w", err)
	}

	b.logger.Debug("Redis cache set", "namespace", namespace, "key", key, "ttl", ttl, "size", len(content))

	return nil
}

// Delete removes cached content from Redis
func (b *RedisBackend) Delete(ctx context.Context, namespace, key string) error {
	if err := b.client.Del(ctx, b.namespacePrefix(namespace)+key).Err(); err != nil {
		b.logger.Error("Redis DEL failed", "namespace", namespace, "key", key, "error", err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Clear removes every key of namespace
func (b *RedisBackend) Clear(ctx context.Context, namespace string) error {
	var keys []string
	iter := b.client.Scan(ctx, 0, b.namespacePrefix(namespace)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		b.logger.Error("Redis SCAN failed", "error", err)
		return fmt.Errorf("redis scan error: %w", err)
	}

	if len(keys) > 0 {
		result := b.client.Del(ctx, keys...)
		if err := result.Err(); err != nil {
			b.logger.Error("Redis bulk DEL failed", "error", err)
			return fmt.Errorf("redis bulk delete error: %w", err)
		}
		b.logger.Debug("Redis cache cleared", "namespace", namespace, "keys_deleted", result.Val())
	}

	return nil
}

// Close gracefully shuts down the Redis connection
func (b *RedisBackend) Close() error {
	if err := b.client.Close(); err != nil {
		b.logger.Error("Failed to close Redis connection", "error", err)
		return fmt.Errorf("redis close error: %w", err)
	}
	return nil
}
