package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexindexer/internal/domain"
	"dexindexer/internal/store"
	"dexindexer/internal/store/memory"
)

type failingBackend struct {
	*memory.Backend
	putErr error
}

func (f *failingBackend) PutMany(ctx context.Context, items map[string][]byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Backend.PutMany(ctx, items)
}

// ========== Load ==========

func TestLoad_MissingReturnsNil(t *testing.T) {
	sess := store.NewSession(memory.New())

	pool, err := store.Load[domain.Pool](context.Background(), sess, "0xabc")
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestLoad_SamePointerWithinSession(t *testing.T) {
	ctx := context.Background()
	sess := store.NewSession(memory.New())

	sess.Save(&domain.Bundle{ID: domain.BundleID, NativePriceUSD: decimal.NewFromInt(2400)})

	a, err := store.Load[domain.Bundle](ctx, sess, domain.BundleID)
	require.NoError(t, err)
	b, err := store.Load[domain.Bundle](ctx, sess, domain.BundleID)
	require.NoError(t, err)

	assert.Same(t, a, b)
}

// ========== Commit ==========

func TestCommit_PersistsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	sess := store.NewSession(backend)
	pool := domain.NewPool("0xpool", "0xt0", "0xt1", 3000)
	pool.TotalValueLockedUSD = decimal.RequireFromString("123.456")
	sess.Save(pool)
	sess.Save(pool)

	changed, err := sess.Commit(ctx)
	require.NoError(t, err)
	assert.Len(t, changed, 1)

	next := store.NewSession(backend)
	got, err := store.Load[domain.Pool](ctx, next, "0xpool")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3000), got.FeeTier)
	assert.True(t, got.TotalValueLockedUSD.Equal(decimal.RequireFromString("123.456")))
	assert.Nil(t, got.Tick)
}

func TestCommit_Empty(t *testing.T) {
	changed, err := store.NewSession(memory.New()).Commit(context.Background())
	require.NoError(t, err)
	assert.Nil(t, changed)
}

func TestCommit_BackendErrorKeepsNothing(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{Backend: memory.New(), putErr: errors.New("boom")}

	sess := store.NewSession(backend)
	sess.Save(domain.NewToken("0xt0"))

	_, err := sess.Commit(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, backend.Count(string(domain.KindToken)))
}

func TestSave_AfterMissingLoad(t *testing.T) {
	ctx := context.Background()
	sess := store.NewSession(memory.New())

	tok, err := store.Load[domain.Token](ctx, sess, "0xt0")
	require.NoError(t, err)
	require.Nil(t, tok)

	sess.Save(domain.NewToken("0xt0"))
	tok, err = store.Load[domain.Token](ctx, sess, "0xt0")
	require.NoError(t, err)
	assert.NotNil(t, tok)
}

// ========== Memory backend ==========

func TestMemoryBackend_CopyOnRead(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	require.NoError(t, b.PutMany(ctx, map[string][]byte{"k": []byte("v")}))

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'x'

	again, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), again)

	_, err = b.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, b.PutMany(ctx, map[string][]byte{"": nil}), store.ErrInvalidInput)
}
