package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by a backend when the key does not exist
	ErrNotFound = errors.New("not found")

	ErrInvalidInput = errors.New("invalid input")
)

// Backend is the raw keyed document store behind a Session.
// PutMany must apply all items atomically.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	PutMany(ctx context.Context, items map[string][]byte) error
	Health(ctx context.Context) error
}
