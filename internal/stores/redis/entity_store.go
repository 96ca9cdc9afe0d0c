package redis

import (
	"context"
	"errors"
	"fmt"

	"dexindexer/internal/store"

	goredis "github.com/redis/go-redis/v9"
)

const defaultEntityPrefix = "dexindexer:entity:"

// EntityStore keeps entity documents as plain string keys
type EntityStore struct {
	rdb    *Client
	prefix string
}

func NewEntityStore(rdb *Client, prefix string) (*EntityStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the entity store")
	}
	if prefix == "" {
		prefix = defaultEntityPrefix
	}

	return &EntityStore{rdb: rdb, prefix: prefix}, nil
}

var _ store.Backend = (*EntityStore)(nil)

func (s *EntityStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return b, nil
}

// PutMany writes all documents in one MULTI/EXEC
func (s *EntityStore) PutMany(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range items {
			if k == "" {
				return store.ErrInvalidInput
			}
			pipe.Set(ctx, s.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis MULTI put of %d keys: %w", len(items), err)
	}

	return nil
}

func (s *EntityStore) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
