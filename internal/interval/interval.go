package interval

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"dexindexer/internal/domain"
	"dexindexer/internal/numeric"
	"dexindexer/internal/store"
)

// Bucket lengths in seconds
const (
	Minute int64 = 60
	Hour   int64 = 3600
	Day    int64 = 86400
)

// Index = floor(ts / length) for non-negative block times
func Index(ts, length int64) int64 {
	return ts / length
}

// UpdateDexDayData snapshots the factory into the global day bucket; volumes are added by callers
func UpdateDexDayData(ctx context.Context, sess *store.Session, factory *domain.Factory, ts int64) (*domain.DexDayData, error) {
	dayID := Index(ts, Day)
	id := strconv.FormatInt(dayID, 10)

	d, err := store.Load[domain.DexDayData](ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = &domain.DexDayData{ID: id, Date: dayID * Day}
	}

	d.TVLUSD = factory.TotalValueLockedUSD
	d.TxCount = factory.TxCount
	sess.Save(d)

	return d, nil
}

func UpdatePoolDayData(ctx context.Context, sess *store.Session, pool *domain.Pool, ts int64) (*domain.PoolDayData, error) {
	return updatePoolBucket[domain.PoolDayData](ctx, sess, pool, ts, Day)
}

func UpdatePoolHourData(ctx context.Context, sess *store.Session, pool *domain.Pool, ts int64) (*domain.PoolHourData, error) {
	return updatePoolBucket[domain.PoolHourData](ctx, sess, pool, ts, Hour)
}

func UpdateTokenDayData(ctx context.Context, sess *store.Session, token *domain.Token, nativePriceUSD decimal.Decimal, ts int64) (*domain.TokenDayData, error) {
	return updateTokenBucket[domain.TokenDayData](ctx, sess, token, nativePriceUSD, ts, Day)
}

func UpdateTokenHourData(ctx context.Context, sess *store.Session, token *domain.Token, nativePriceUSD decimal.Decimal, ts int64) (*domain.TokenHourData, error) {
	return updateTokenBucket[domain.TokenHourData](ctx, sess, token, nativePriceUSD, ts, Hour)
}

func UpdateTokenMinuteData(ctx context.Context, sess *store.Session, token *domain.Token, nativePriceUSD decimal.Decimal, ts int64) (*domain.TokenMinuteData, error) {
	return updateTokenBucket[domain.TokenMinuteData](ctx, sess, token, nativePriceUSD, ts, Minute)
}

func updatePoolBucket[T any, PT interface {
	*T
	domain.Entity
	Bucket() *domain.PoolBucket
}](ctx context.Context, sess *store.Session, pool *domain.Pool, ts, length int64) (PT, error) {
	idx := Index(ts, length)
	id := domain.BucketID(pool.ID, idx)

	e, err := store.Load[T, PT](ctx, sess, id)
	if err != nil {
		return nil, err
	}

	price := pool.Token0Price
	if e == nil {
		e = PT(new(T))
		b := e.Bucket()
		b.ID = id
		b.PeriodStart = idx * length
		b.Pool = pool.ID
		b.Seed(price)
	}

	b := e.Bucket()
	b.Observe(price)
	b.Liquidity = numeric.CloneInt(pool.Liquidity)
	b.SqrtPrice = numeric.CloneInt(pool.SqrtPrice)
	b.Token0Price = pool.Token0Price
	b.Token1Price = pool.Token1Price
	b.Tick = pool.CurrentTick()
	b.TVLUSD = pool.TotalValueLockedUSD
	sess.Save(e)

	return e, nil
}

func updateTokenBucket[T any, PT interface {
	*T
	domain.Entity
	Bucket() *domain.TokenBucket
}](ctx context.Context, sess *store.Session, token *domain.Token, nativePriceUSD decimal.Decimal, ts, length int64) (PT, error) {
	idx := Index(ts, length)
	id := domain.BucketID(token.ID, idx)

	e, err := store.Load[T, PT](ctx, sess, id)
	if err != nil {
		return nil, err
	}

	price := token.DerivedNative.Mul(nativePriceUSD)
	if e == nil {
		e = PT(new(T))
		b := e.Bucket()
		b.ID = id
		b.PeriodStart = idx * length
		b.Token = token.ID
		b.Seed(price)
	}

	b := e.Bucket()
	b.Observe(price)
	b.PriceUSD = price
	b.TotalValueLocked = token.TotalValueLocked
	b.TotalValueLockedUSD = token.TotalValueLockedUSD
	sess.Save(e)

	return e, nil
}

// UpdateTokenMarketCap sets marketCap = supply/10^decimals * tvlUSD/tvl
func UpdateTokenMarketCap(token *domain.Token) {
	supply := numeric.ConvertTokenToDecimal(token.TotalSupply, token.Decimals)
	ratio := numeric.SafeDiv(token.TotalValueLockedUSD, token.TotalValueLocked)
	token.MarketCap = supply.Mul(ratio)
}
