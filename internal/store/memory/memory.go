package memory

import (
	"context"
	"strings"
	"sync"

	"dexindexer/internal/store"
)

// Backend is an in-memory implementation of store.Backend
type Backend struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func New() *Backend {
	return &Backend{items: make(map[string][]byte, 1024)}
}

var _ store.Backend = (*Backend)(nil)

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.items[key]
	if !ok {
		return nil, store.ErrNotFound
	}

	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *Backend) PutMany(_ context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for k := range items {
		if k == "" {
			return store.ErrInvalidInput
		}
	}
	for k, v := range items {
		cp := make([]byte, len(v))
		copy(cp, v)
		b.items[k] = cp
	}

	return nil
}

func (b *Backend) Health(_ context.Context) error {
	return nil
}

// Count returns how many keys start with prefix
func (b *Backend) Count(prefix string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for k := range b.items {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}
