package window

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexindexer/internal/config"
	"dexindexer/internal/domain"
	rdb "dexindexer/internal/stores/redis"
	"dexindexer/internal/testutil"
)

const (
	tokenA = "0x00000000000000000000000000000000000000aa"
	tokenB = "0x00000000000000000000000000000000000000bb"

	base = int64(1_700_000_000) // minute aligned: 1_700_000_000 / 60 has remainder 20
)

func newEngine(t *testing.T) *Window {
	t.Helper()
	w, err := NewWindowEngine(testutil.Logger(), &config.WindowConfig{Grace: 2 * time.Minute})
	require.NoError(t, err)
	return w
}

// swapAt builds a swap where the pool received token A and paid out token B
func swapAt(ts int64, usd string) *domain.Swap {
	return &domain.Swap{
		ID:        "0xabc-1",
		Timestamp: ts,
		Token0:    tokenA,
		Token1:    tokenB,
		Amount0:   decimal.RequireFromString("10"),
		Amount1:   decimal.RequireFromString("-5"),
		AmountUSD: decimal.RequireFromString(usd),
	}
}

// ========== Constructor ==========

func TestNewWindowEngine_NilConfig(t *testing.T) {
	w, err := NewWindowEngine(testutil.Logger(), nil)
	assert.Nil(t, w)
	assert.ErrorContains(t, err, "config is required")
}

func TestNewWindowEngine_DefaultGrace(t *testing.T) {
	w, err := NewWindowEngine(testutil.Logger(), &config.WindowConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, w.grace)
}

// ========== Apply ==========

func TestApply_CountsBothLegs(t *testing.T) {
	w := newEngine(t)

	patches, err := w.Apply(context.Background(), swapAt(base, "100"))
	require.NoError(t, err)
	require.Len(t, patches, 2)

	assert.Equal(t, "token:"+tokenA, patches[0].Topic)
	assert.Equal(t, tokenA, patches[0].Token)
	assert.True(t, patches[0].Windows.W5m.VolumeUSD.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(1), patches[0].Windows.W5m.Sells)
	assert.Equal(t, int64(0), patches[0].Windows.W5m.Buys)

	assert.Equal(t, int64(1), patches[1].Windows.W24h.Buys)
	assert.Equal(t, int64(1), patches[1].Windows.W24h.Trades)
}

func TestApply_WindowsShiftWithTime(t *testing.T) {
	w := newEngine(t)
	ctx := context.Background()

	_, err := w.Apply(ctx, swapAt(base, "100"))
	require.NoError(t, err)
	_, err = w.Apply(ctx, swapAt(base+10*60, "50"))
	require.NoError(t, err)

	got, ok := w.GetWindows(ctx, tokenA)
	require.True(t, ok)
	assert.True(t, got.W5m.VolumeUSD.Equal(decimal.NewFromInt(50)), "first swap left the 5m window")
	assert.True(t, got.W1h.VolumeUSD.Equal(decimal.NewFromInt(150)))
	assert.True(t, got.W24h.VolumeUSD.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, int64(1), got.W5m.Trades)
	assert.Equal(t, int64(2), got.W1h.Trades)

	_, err = w.Apply(ctx, swapAt(base+2*3600, "1"))
	require.NoError(t, err)

	got, ok = w.GetWindows(ctx, tokenA)
	require.True(t, ok)
	assert.True(t, got.W1h.VolumeUSD.Equal(decimal.NewFromInt(1)))
	assert.True(t, got.W24h.VolumeUSD.Equal(decimal.NewFromInt(151)))
}

func TestApply_LateWithinGraceAccepted(t *testing.T) {
	w := newEngine(t)
	ctx := context.Background()

	_, err := w.Apply(ctx, swapAt(base, "100"))
	require.NoError(t, err)

	_, err = w.Apply(ctx, swapAt(base-60, "10"))
	require.NoError(t, err)

	got, _ := w.GetWindows(ctx, tokenA)
	assert.True(t, got.W5m.VolumeUSD.Equal(decimal.NewFromInt(110)))
}

func TestApply_TooLate(t *testing.T) {
	w := newEngine(t)
	ctx := context.Background()

	_, err := w.Apply(ctx, swapAt(base, "100"))
	require.NoError(t, err)

	_, err = w.Apply(ctx, swapAt(base-600, "10"))
	assert.ErrorIs(t, err, ErrTooLate)

	got, _ := w.GetWindows(ctx, tokenA)
	assert.True(t, got.W24h.VolumeUSD.Equal(decimal.NewFromInt(100)))
}

func TestApply_RingSlotReuseAfterADay(t *testing.T) {
	w := newEngine(t)
	ctx := context.Background()

	_, err := w.Apply(ctx, swapAt(base, "100"))
	require.NoError(t, err)
	_, err = w.Apply(ctx, swapAt(base+24*3600, "7"))
	require.NoError(t, err)

	got, _ := w.GetWindows(ctx, tokenA)
	assert.True(t, got.W24h.VolumeUSD.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, int64(1), got.W24h.Trades)
}

func TestGetWindows_Unknown(t *testing.T) {
	w := newEngine(t)
	_, ok := w.GetWindows(context.Background(), "0xmissing")
	assert.False(t, ok)
}

// ========== Tick ==========

func TestTick_ExpiresWindowsAndTokens(t *testing.T) {
	w := newEngine(t)
	ctx := context.Background()

	_, err := w.Apply(ctx, swapAt(base, "100"))
	require.NoError(t, err)

	w.Tick(time.Unix(base+30*60, 0))
	got, ok := w.GetWindows(ctx, tokenA)
	require.True(t, ok)
	assert.True(t, got.W5m.VolumeUSD.IsZero())
	assert.True(t, got.W1h.VolumeUSD.Equal(decimal.NewFromInt(100)))

	w.Tick(time.Unix(base+25*3600, 0))
	_, ok = w.GetWindows(ctx, tokenA)
	assert.False(t, ok)
	assert.Empty(t, w.Tokens())
}

func TestTick_MovesWatermark(t *testing.T) {
	w := newEngine(t)

	w.Tick(time.Unix(base, 0))

	_, err := w.Apply(context.Background(), swapAt(base-3600, "1"))
	assert.ErrorIs(t, err, ErrTooLate)
}

// ========== Snapshot ==========

func TestSnapshot_RoundTripKeepsWindows(t *testing.T) {
	w := newEngine(t)
	ctx := context.Background()

	_, err := w.Apply(ctx, swapAt(base, "100.123456789012345678"))
	require.NoError(t, err)
	_, err = w.Apply(ctx, swapAt(base+120, "1"))
	require.NoError(t, err)

	data, err := w.Snapshot(ctx)
	require.NoError(t, err)

	restored := newEngine(t)
	require.NoError(t, restored.Restore(ctx, data))

	want, _ := w.GetWindows(ctx, tokenA)
	got, ok := restored.GetWindows(ctx, tokenA)
	require.True(t, ok)
	assert.True(t, want.W24h.VolumeUSD.Equal(got.W24h.VolumeUSD))
	assert.Equal(t, want.W5m.Trades, got.W5m.Trades)
	assert.Equal(t, []string{tokenA, tokenB}, restored.Tokens())

	_, err = restored.Apply(ctx, swapAt(base-600, "1"))
	assert.ErrorIs(t, err, ErrTooLate, "watermark survives restore")
}

func TestRestore_Empty(t *testing.T) {
	w := newEngine(t)
	assert.ErrorIs(t, w.Restore(context.Background(), nil), ErrEmptySnapshot)
}

func TestRestore_Garbage(t *testing.T) {
	w := newEngine(t)
	assert.Error(t, w.Restore(context.Background(), []byte("not gob")))
}

func TestSnapshot_CanceledContext(t *testing.T) {
	w := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// ========== SnapshotStore ==========

func TestSnapshotStore_PersistAndWarm(t *testing.T) {
	mr := miniredis.RunT(t)
	client := &rdb.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	defer client.Close()

	store, err := NewSnapshotStore(&config.WindowConfig{SnapshotKey: "test:window"}, client)
	require.NoError(t, err)

	ctx := context.Background()
	fresh := newEngine(t)
	warmed, err := store.Warm(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, warmed)

	w := newEngine(t)
	_, err = w.Apply(ctx, swapAt(base, "42"))
	require.NoError(t, err)
	require.NoError(t, store.Persist(ctx, w))
	assert.True(t, mr.Exists("test:window"))

	warmed, err = store.Warm(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, warmed)

	got, ok := fresh.GetWindows(ctx, tokenB)
	require.True(t, ok)
	assert.True(t, got.W24h.VolumeUSD.Equal(decimal.NewFromInt(42)))
}

func TestNewSnapshotStore_Validation(t *testing.T) {
	_, err := NewSnapshotStore(nil, &rdb.Client{})
	assert.ErrorContains(t, err, "config is required")

	_, err = NewSnapshotStore(&config.WindowConfig{}, nil)
	assert.ErrorContains(t, err, "redis client is required")
}
