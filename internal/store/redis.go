// Package store provides storage backends for TicketPipe.
//
// This file implements a Redis-backed key-value store.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a KVStore backed by a Redis server. Counter increments use
// the native INCR command, which is atomic on the server.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a new Redis store based on provided options and
// verifies connectivity with a ping.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewRedisStore invoked", "addr_set", cfg.RedisAddr != "", "db", cfg.RedisDB)

	if cfg.RedisAddr == "" {
		slog.Error("RedisStore address not set")
		return nil, fmt.Errorf("redis address not set")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err, "addr", cfg.RedisAddr)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Debug("Redis ping successful", "addr", cfg.RedisAddr)

	return &RedisStore{rdb: rdb}, nil
}

// Get returns the stored value for key, or (nil, nil) when absent.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		slog.Debug("RedisStore Get key absent", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore Get failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any existing value.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		slog.Error("RedisStore Set failed", "error", err, "key", key)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	slog.Debug("RedisStore Set succeeded", "key", key)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		slog.Error("RedisStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	slog.Debug("RedisStore Delete succeeded", "key", key)
	return nil
}

// IncrAndGet atomically increments the counter under key via INCR and
// returns the new value.
func (s *RedisStore) IncrAndGet(ctx context.Context, key string) (int64, error) {
	value, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		slog.Error("RedisStore IncrAndGet failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	slog.Debug("RedisStore IncrAndGet succeeded", "key", key, "value", value)
	return value, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	slog.Debug("Closing Redis connection")
	err := s.rdb.Close()
	if err != nil {
		slog.Error("Failed to close Redis connection", "error", err)
	}
	return err
}
