package redis

import (
	"context"
	"errors"
	"fmt"

	"dexindexer/internal/config"
	rdb "dexindexer/internal/stores/redis"
)

/*
Bloom is a probabilistic "seen / not seen" prefilter in front of the SETNX marks.
It needs the RedisBloom module:
	- "definitely not seen" goes straight to SETNX;
	- "probably seen" is confirmed against the mark key, since forgotten ids stay in the filter
*/

type Bloom struct {
	rdb       *rdb.Client
	Key       string
	Capacity  int64
	ErrorRate float64
}

func NewBloom(cfg *config.BloomConfig, rdb *rdb.Client) (*Bloom, error) {
	if cfg == nil {
		return nil, errors.New("bloom config is required to the bloom")
	}
	if rdb == nil {
		return nil, errors.New("redis client is required to the bloom")
	}

	key := cfg.Key
	if key == "" {
		key = "dexindexer:bf:events"
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1_000_000
	}

	errRate := cfg.ErrorRate
	if errRate <= 0 {
		errRate = 0.001
	}

	return &Bloom{
		rdb:       rdb,
		Key:       key,
		Capacity:  capacity,
		ErrorRate: errRate,
	}, nil
}

// Ensure reserves the filter if it is missing; repeated calls are safe
func (b *Bloom) Ensure(ctx context.Context) error {
	exists, err := b.rdb.Exists(ctx, b.Key).Result()
	if err != nil {
		return fmt.Errorf("failed to check bloom key %s: %w", b.Key, err)
	}
	if exists > 0 {
		return nil
	}

	if err = b.rdb.Do(ctx, "BF.RESERVE", b.Key, b.ErrorRate, b.Capacity).Err(); err != nil {
		return fmt.Errorf("BF.RESERVE failed: %w", err) // unknown command when the module is not loaded
	}

	return nil
}

// Add puts item into the filter; true when it was definitely absent before
func (b *Bloom) Add(ctx context.Context, item string) (bool, error) {
	res := b.rdb.Do(ctx, "BF.ADD", b.Key, item)
	if err := res.Err(); err != nil {
		return false, fmt.Errorf("failed to add item to bloom: %w", err)
	}

	v, err := res.Int()
	return v == 1, err
}

// Exists reports true when item is probably in the filter
func (b *Bloom) Exists(ctx context.Context, item string) (bool, error) {
	res := b.rdb.Do(ctx, "BF.EXISTS", b.Key, item)
	if err := res.Err(); err != nil {
		return false, fmt.Errorf("failed to check item in bloom: %w", err)
	}

	v, err := res.Int()
	return v == 1, err
}
