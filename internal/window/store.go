package window

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"dexindexer/internal/config"
	rdb "dexindexer/internal/stores/redis"
)

// SnapshotStore keeps the latest window snapshot under one Redis key
type SnapshotStore struct {
	rdb *rdb.Client
	key string
}

func NewSnapshotStore(cfg *config.WindowConfig, rdb *rdb.Client) (*SnapshotStore, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the window snapshot store")
	}
	if rdb == nil {
		return nil, errors.New("redis client is required to the window snapshot store")
	}

	key := cfg.SnapshotKey
	if key == "" {
		key = "dexindexer:window:snapshot"
	}

	return &SnapshotStore{rdb: rdb, key: key}, nil
}

// Persist writes the engine snapshot
func (s *SnapshotStore) Persist(ctx context.Context, engine WindowEngine) error {
	data, err := engine.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err = s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save window snapshot %s: %w", s.key, err)
	}
	return nil
}

// Warm restores the engine from the stored snapshot; false when there is none
func (s *SnapshotStore) Warm(ctx context.Context, engine WindowEngine) (bool, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load window snapshot %s: %w", s.key, err)
	}

	if err = engine.Restore(ctx, data); err != nil {
		return false, err
	}
	return true, nil
}
