package redis

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	"dexindexer/internal/dedupe"
	rdb "dexindexer/internal/stores/redis"
)

var _ dedupe.Deduper = (*RedisDedupe)(nil)

type RedisDedupe struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
	bloom  *Bloom // optional
}

// NewRedisDeduper marks ids across indexer instances with SETNX + TTL.
// prefix example "dexindexer:dedupe:"
func NewRedisDeduper(log logger.Logger, cfg *config.DedupeConfig, rdb *rdb.Client, bloom *Bloom) (*RedisDedupe, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the redis deduper")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the redis deduper")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dedupe:"
	}

	return &RedisDedupe{
		log:    log,
		rdb:    rdb,
		ttl:    cfg.TTL,
		prefix: prefix,
		bloom:  bloom,
	}, nil
}

func (d *RedisDedupe) Seen(ctx context.Context, id string) (bool, error) {
	key := d.key(id)

	if d.bloom != nil {
		exists, err := d.bloom.Exists(ctx, id)
		if err != nil {
			d.log.Warnf("Bloom check failed, falling back to SETNX: %v", err)
		}
		if err == nil && exists {
			n, err := d.rdb.Exists(ctx, key).Result()
			if err != nil {
				return false, fmt.Errorf("redis EXISTS %s: %w", key, err)
			}
			if n > 0 {
				return true, nil
			}
		}
	}

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.log.Errorf("Redis SetNX error=%v", err)
		return false, fmt.Errorf("redis SETNX %s: %w", key, err)
	}

	seen := !ok
	if !seen && d.bloom != nil {
		if _, err = d.bloom.Add(ctx, id); err != nil {
			d.log.Warnf("Failed to add id %s to bloom: %v", id, err)
		}
	}

	return seen, nil
}

// Forget deletes the mark; the bloom keeps the id, Seen re-checks the key on a bloom hit
func (d *RedisDedupe) Forget(ctx context.Context, id string) error {
	if err := d.rdb.Del(ctx, d.key(id)).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", d.key(id), err)
	}
	return nil
}

func (d *RedisDedupe) key(id string) string {
	return d.prefix + id
}
