package interval

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexindexer/internal/domain"
	"dexindexer/internal/store"
	"dexindexer/internal/store/memory"
	tu "dexindexer/internal/testutil"
)

// ========== Test Helpers ==========
func testPool(price int64) *domain.Pool {
	p := domain.NewPool(tu.USDCWIPPool, tu.USDCAddress, tu.WIPAddress, tu.FeeTier03)
	tick := int32(194071)
	p.Tick = &tick
	p.Liquidity = big.NewInt(100)
	p.SqrtPrice = big.NewInt(42)
	p.Token0Price = decimal.NewFromInt(price)
	p.Token1Price = decimal.NewFromInt(1).Div(decimal.NewFromInt(price))
	p.TotalValueLockedUSD = decimal.NewFromInt(1000)
	return p
}

// ========== Index ==========

func TestIndex(t *testing.T) {
	assert.Equal(t, int64(0), Index(86399, Day))
	assert.Equal(t, int64(1), Index(86400, Day))
	assert.Equal(t, int64(23), Index(86399, Hour))
	assert.Equal(t, int64(1439), Index(86399, Minute))
}

// ========== Pool buckets ==========

func TestUpdatePoolDayData_SeedsAndTracksOHLC(t *testing.T) {
	ctx := context.Background()
	sess := store.NewSession(memory.New())
	pool := testPool(10)

	d, err := UpdatePoolDayData(ctx, sess, pool, 100)
	require.NoError(t, err)
	assert.Equal(t, tu.USDCWIPPool+"-0", d.ID)
	assert.Equal(t, int64(0), d.PeriodStart)
	assert.True(t, d.Open.Equal(decimal.NewFromInt(10)))
	assert.True(t, d.High.Equal(decimal.NewFromInt(10)))
	assert.True(t, d.Low.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(0), d.TxCount, "counters belong to callers")

	pool.Token0Price = decimal.NewFromInt(15)
	_, err = UpdatePoolDayData(ctx, sess, pool, 200)
	require.NoError(t, err)
	pool.Token0Price = decimal.NewFromInt(7)
	pool.Liquidity = big.NewInt(555)
	d, err = UpdatePoolDayData(ctx, sess, pool, 300)
	require.NoError(t, err)

	assert.True(t, d.Open.Equal(decimal.NewFromInt(10)))
	assert.True(t, d.High.Equal(decimal.NewFromInt(15)))
	assert.True(t, d.Low.Equal(decimal.NewFromInt(7)))
	assert.True(t, d.Close.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, int64(555), d.Liquidity.Int64())
	assert.Equal(t, int32(194071), d.Tick)
	assert.True(t, d.TVLUSD.Equal(decimal.NewFromInt(1000)))

	// snapshot is a copy
	pool.Liquidity.SetInt64(1)
	assert.Equal(t, int64(555), d.Liquidity.Int64())
}

func TestUpdatePoolDayData_BoundarySplitsBuckets(t *testing.T) {
	ctx := context.Background()
	sess := store.NewSession(memory.New())
	pool := testPool(10)

	first, err := UpdatePoolDayData(ctx, sess, pool, 86399)
	require.NoError(t, err)
	second, err := UpdatePoolDayData(ctx, sess, pool, 86400)
	require.NoError(t, err)

	assert.Equal(t, tu.USDCWIPPool+"-0", first.ID)
	assert.Equal(t, tu.USDCWIPPool+"-1", second.ID)
	assert.Equal(t, int64(86400), second.PeriodStart)
}

func TestUpdatePoolHourData(t *testing.T) {
	ctx := context.Background()
	sess := store.NewSession(memory.New())

	h, err := UpdatePoolHourData(ctx, sess, testPool(3), 7300)
	require.NoError(t, err)
	assert.Equal(t, tu.USDCWIPPool+"-2", h.ID)
	assert.Equal(t, int64(7200), h.PeriodStart)
	assert.Equal(t, domain.KindPoolHourData, h.EntityKind())
}

func TestUpdatePoolDayData_PersistsThroughCommit(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	sess := store.NewSession(backend)
	pool := testPool(10)

	_, err := UpdatePoolDayData(ctx, sess, pool, 10)
	require.NoError(t, err)
	_, err = sess.Commit(ctx)
	require.NoError(t, err)

	next := store.NewSession(backend)
	pool.Token0Price = decimal.NewFromInt(20)
	d, err := UpdatePoolDayData(ctx, next, pool, 20)
	require.NoError(t, err)
	assert.True(t, d.Open.Equal(decimal.NewFromInt(10)), "open survives reload")
	assert.True(t, d.High.Equal(decimal.NewFromInt(20)))
}

// ========== Token buckets ==========

func TestUpdateTokenBuckets(t *testing.T) {
	ctx := context.Background()
	sess := store.NewSession(memory.New())

	token := tu.USDC.Token()
	token.DerivedNative = tu.USDCDerivedNative
	token.TotalValueLocked = decimal.NewFromInt(50)
	token.TotalValueLockedUSD = decimal.NewFromInt(60)

	day, err := UpdateTokenDayData(ctx, sess, token, tu.NativePriceUSD, 90000)
	require.NoError(t, err)
	hour, err := UpdateTokenHourData(ctx, sess, token, tu.NativePriceUSD, 90000)
	require.NoError(t, err)
	minute, err := UpdateTokenMinuteData(ctx, sess, token, tu.NativePriceUSD, 90000)
	require.NoError(t, err)

	assert.Equal(t, tu.USDCAddress+"-1", day.ID)
	assert.Equal(t, tu.USDCAddress+"-25", hour.ID)
	assert.Equal(t, tu.USDCAddress+"-1500", minute.ID)

	price := decimal.RequireFromString("1.2")
	for _, b := range []*domain.TokenBucket{&day.TokenBucket, &hour.TokenBucket, &minute.TokenBucket} {
		assert.True(t, b.Open.Equal(price))
		assert.True(t, b.PriceUSD.Equal(price))
		assert.True(t, b.TotalValueLocked.Equal(decimal.NewFromInt(50)))
		assert.True(t, b.TotalValueLockedUSD.Equal(decimal.NewFromInt(60)))
	}

	token.DerivedNative = decimal.RequireFromString("0.001")
	day, err = UpdateTokenDayData(ctx, sess, token, tu.NativePriceUSD, 90001)
	require.NoError(t, err)
	assert.True(t, day.High.Equal(decimal.RequireFromString("2.4")))
	assert.True(t, day.Low.Equal(price))
	assert.True(t, day.Close.Equal(decimal.RequireFromString("2.4")))
}

// ========== Global day ==========

func TestUpdateDexDayData(t *testing.T) {
	ctx := context.Background()
	sess := store.NewSession(memory.New())
	factory := &domain.Factory{ID: tu.FactoryAddress, TxCount: 4, TotalValueLockedUSD: decimal.NewFromInt(99)}

	d, err := UpdateDexDayData(ctx, sess, factory, 2*86400+5)
	require.NoError(t, err)
	assert.Equal(t, "2", d.ID)
	assert.Equal(t, int64(2*86400), d.Date)
	assert.Equal(t, int64(4), d.TxCount)
	assert.True(t, d.TVLUSD.Equal(decimal.NewFromInt(99)))
}

// ========== Market cap ==========

func TestUpdateTokenMarketCap(t *testing.T) {
	token := tu.WIP.Token()
	token.TotalSupply = new(big.Int).Mul(big.NewInt(1000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	token.TotalValueLocked = decimal.NewFromInt(10)
	token.TotalValueLockedUSD = decimal.NewFromInt(24000)

	UpdateTokenMarketCap(token)
	assert.True(t, token.MarketCap.Equal(decimal.NewFromInt(2_400_000)))

	token.TotalValueLocked = decimal.Zero
	UpdateTokenMarketCap(token)
	assert.True(t, token.MarketCap.IsZero())
}
