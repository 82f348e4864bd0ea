package repository

import (
	"context"
	"fmt"

	"iphone-alarms-sync/internal/config"
	"iphone-alarms-sync/internal/domain"
)

// Open returns the options store selected by the storage section, plus a
// close function for whatever connection it holds.
func Open(ctx context.Context, cfg config.StorageConfig) (domain.OptionsStore, func() error, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		store := NewRedisStore(NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), cfg.Redis.KeyPrefix)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return store, store.Close, nil
	case config.BackendFile, "":
		store, err := NewFileStore(config.ExpandPath(cfg.Dir))
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
