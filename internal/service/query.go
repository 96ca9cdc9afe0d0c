package service

import (
	"context"
	"fmt"
	"strings"

	"dexindexer/internal/domain"
	"dexindexer/internal/store"
)

// lookup reads one committed entity outside the write path
func lookup[T any, PT interface {
	*T
	domain.Entity
}](ctx context.Context, ix *Indexer, id string) (PT, error) {
	e, err := store.Load[T, PT](ctx, store.NewSession(ix.backend), id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (ix *Indexer) Bundle(ctx context.Context) (*domain.Bundle, error) {
	return lookup[domain.Bundle](ctx, ix, domain.BundleID)
}

func (ix *Indexer) Factory(ctx context.Context) (*domain.Factory, error) {
	return lookup[domain.Factory](ctx, ix, ix.handler.Chain().FactoryAddress)
}

func (ix *Indexer) Pool(ctx context.Context, id string) (*domain.Pool, error) {
	return lookup[domain.Pool](ctx, ix, strings.ToLower(id))
}

// PoolDayData returns the day bucket with index day (unix seconds / 86400)
func (ix *Indexer) PoolDayData(ctx context.Context, poolID string, day int64) (*domain.PoolDayData, error) {
	return lookup[domain.PoolDayData](ctx, ix, domain.BucketID(strings.ToLower(poolID), day))
}

func (ix *Indexer) Token(ctx context.Context, id string) (*domain.Token, error) {
	return lookup[domain.Token](ctx, ix, strings.ToLower(id))
}

func (ix *Indexer) LMPool(ctx context.Context, pid string) (*domain.LMPool, error) {
	return lookup[domain.LMPool](ctx, ix, pid)
}

// TokenWindows returns the rolling 5m/1h/24h activity of a token
func (ix *Indexer) TokenWindows(ctx context.Context, id string) (*domain.Windows, error) {
	if ix.window == nil {
		return nil, fmt.Errorf("%w: windows disabled", ErrNotFound)
	}
	w, ok := ix.window.GetWindows(ctx, strings.ToLower(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return w, nil
}

// WindowTokens lists tokens with rolling activity
func (ix *Indexer) WindowTokens() []string {
	if ix.window == nil {
		return nil
	}
	return ix.window.Tokens()
}
