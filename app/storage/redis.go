package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)

	return &RedisStore{client: client}, nil
}

// SnapshotKey maps a cache key to its Redis key.
func SnapshotKey(key string) string {
	return "snapshot:" + key
}

func (r *RedisStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, SnapshotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	snapshot, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return snapshot, nil
}

// Save stores the snapshot without expiry; stale snapshots stay as fallback.
func (r *RedisStore) Save(ctx context.Context, key string, snapshot Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", key, err)
	}

	if err := r.client.Set(ctx, SnapshotKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
