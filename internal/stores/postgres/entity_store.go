package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"dexindexer/internal/store"
)

// EntityStore implements store.Backend on a single JSONB table.
type EntityStore struct {
	pool *Pool
}

func NewEntityStore(pool *Pool) (*EntityStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required to the postgres entity store")
	}
	return &EntityStore{pool: pool}, nil
}

// Compile-time interface check.
var _ store.Backend = (*EntityStore)(nil)

func (s *EntityStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM entities WHERE key = $1`, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select entity %s: %w", key, err)
	}
	return body, nil
}

// PutMany upserts all documents inside one transaction
func (s *EntityStore) PutMany(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for k, v := range items {
		if k == "" {
			return store.ErrInvalidInput
		}
		batch.Queue(`
			INSERT INTO entities (key, kind, body, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
		`, k, kindOf(k), string(v))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d entities: %w", len(items), err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (s *EntityStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CountByKind is used by the stats job
func (s *EntityStore) CountByKind(ctx context.Context, kind string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM entities WHERE kind = $1`, kind).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

func kindOf(key string) string {
	kind, _, _ := strings.Cut(key, ":")
	return kind
}
