package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"iphone-alarms-sync/internal/domain"
)

// DefaultKeyPrefix namespaces entry keys in a shared Redis database.
const DefaultKeyPrefix = "iphone_alarms_sync:entry:"

// RedisStore implements domain.OptionsStore with one string key per entry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient builds a client from connection settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStore wraps an existing client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(entryID string) string {
	return r.prefix + entryID
}

func (r *RedisStore) Load(ctx context.Context, entryID string) (domain.Options, error) {
	data, err := r.client.Get(ctx, r.key(entryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Options{}, domain.ErrOptionsNotFound
	}
	if err != nil {
		return domain.Options{}, fmt.Errorf("get options %s: %w", entryID, err)
	}

	var opts domain.Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return domain.Options{}, fmt.Errorf("unmarshal options %s: %w", entryID, err)
	}
	return opts, nil
}

func (r *RedisStore) Save(ctx context.Context, entryID string, opts domain.Options) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	if err := r.client.Set(ctx, r.key(entryID), data, 0).Err(); err != nil {
		return fmt.Errorf("set options %s: %w", entryID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, entryID string) error {
	if err := r.client.Del(ctx, r.key(entryID)).Err(); err != nil {
		return fmt.Errorf("delete options %s: %w", entryID, err)
	}
	return nil
}
