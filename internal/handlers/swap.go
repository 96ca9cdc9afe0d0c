package handlers

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"dexindexer/internal/apr"
	"dexindexer/internal/domain"
	"dexindexer/internal/interval"
	"dexindexer/internal/numeric"
	"dexindexer/internal/pricing"
	"dexindexer/internal/store"
)

// swapAmounts holds the notional figures of one swap
type swapAmounts struct {
	amount0, amount1       decimal.Decimal // signed, pool perspective
	amount0Abs, amount1Abs decimal.Decimal
	trackedUSD             decimal.Decimal
	trackedNative          decimal.Decimal
	untrackedUSD           decimal.Decimal
	feesUSD                decimal.Decimal
	feesNative             decimal.Decimal
}

// HandleSwap applies a swap to pool, token and factory aggregates and records it
func (h *Handler) HandleSwap(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.SwapEvent) error {
	pc, err := h.loadPoolContext(ctx, sess, meta.Address)
	if err != nil {
		return err
	}
	if pc == nil {
		h.log.Debugf("Swap for unknown pool %s skipped", meta.Address)
		return nil
	}

	pool, token0, token1, factory, bundle := pc.pool, pc.token0, pc.token1, pc.factory, pc.bundle
	ts := meta.Timestamp

	// prices implied by the post-swap state, screened before any volume is counted
	price0, price1 := pricing.SqrtPriceX96ToTokenPrices(ev.SqrtPriceX96, token0, token1)
	filtered := h.screenSwap(pool, price0, ts)

	amt := h.swapAmounts(pc, ev, filtered)

	factory.TxCount++
	factory.TotalVolumeNative = factory.TotalVolumeNative.Add(amt.trackedNative)
	factory.TotalVolumeUSD = factory.TotalVolumeUSD.Add(amt.trackedUSD)
	factory.UntrackedVolumeUSD = factory.UntrackedVolumeUSD.Add(amt.untrackedUSD)
	factory.TotalFeesNative = factory.TotalFeesNative.Add(amt.feesNative)
	factory.TotalFeesUSD = factory.TotalFeesUSD.Add(amt.feesUSD)
	factory.TotalValueLockedNative = factory.TotalValueLockedNative.Sub(pool.TotalValueLockedNative)

	pool.VolumeToken0 = pool.VolumeToken0.Add(amt.amount0Abs)
	pool.VolumeToken1 = pool.VolumeToken1.Add(amt.amount1Abs)
	pool.VolumeUSD = pool.VolumeUSD.Add(amt.trackedUSD)
	pool.UntrackedVolumeUSD = pool.UntrackedVolumeUSD.Add(amt.untrackedUSD)
	pool.FeesNative = pool.FeesNative.Add(amt.feesNative)
	pool.FeesUSD = pool.FeesUSD.Add(amt.feesUSD)
	pool.TxCount++

	tick := ev.Tick
	pool.Liquidity = numeric.CloneInt(ev.Liquidity)
	pool.Tick = &tick
	pool.SqrtPrice = numeric.CloneInt(ev.SqrtPriceX96)
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Add(amt.amount0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Add(amt.amount1)

	applyTokenSwap(token0, amt.amount0, amt.amount0Abs, amt)
	applyTokenSwap(token1, amt.amount1, amt.amount1Abs, amt)

	pool.Token0Price, pool.Token1Price = price0, price1
	sess.Save(pool)

	nativePrice, err := pricing.GetNativePriceInUSD(ctx, sess, h.chain)
	if err != nil {
		return fmt.Errorf("failed to get native price: %w", err)
	}
	bundle.NativePriceUSD = h.clampNativePrice(pool, nativePrice, ts)
	sess.Save(bundle)

	if err = pricing.RefreshDerivedNative(ctx, sess, h.chain, token0, token1); err != nil {
		return err
	}

	pc.refreshPoolTVL()
	factory.TotalValueLockedNative = factory.TotalValueLockedNative.Add(pool.TotalValueLockedNative)
	pc.refreshFactoryUSD()
	pc.refreshTokenTVLUSD()
	interval.UpdateTokenMarketCap(token0)
	interval.UpdateTokenMarketCap(token1)

	sess.Save(&domain.Swap{
		ID:           domain.RecordID(meta.TxHash, meta.LogIndex),
		Transaction:  meta.TxHash,
		Timestamp:    ts,
		Pool:         pool.ID,
		Token0:       token0.ID,
		Token1:       token1.ID,
		Sender:       lower(ev.Sender),
		Recipient:    lower(ev.Recipient),
		Origin:       meta.TxFrom,
		Amount0:      amt.amount0,
		Amount1:      amt.amount1,
		AmountUSD:    amt.trackedUSD,
		SqrtPriceX96: numeric.CloneInt(ev.SqrtPriceX96),
		Tick:         ev.Tick,
		LogIndex:     meta.LogIndex,
		Filtered:     filtered,
	})

	if _, err = loadTransaction(ctx, sess, meta, pool.ID); err != nil {
		return err
	}

	if err = h.updateSwapIntervals(ctx, sess, pc, amt, ts); err != nil {
		return err
	}

	pc.save(sess)
	return nil
}

// swapAmounts prices the swap with the derived prices in force before it
func (h *Handler) swapAmounts(pc *poolContext, ev *domain.SwapEvent, filtered bool) swapAmounts {
	var a swapAmounts
	a.amount0 = numeric.ConvertTokenToDecimal(ev.Amount0, pc.token0.Decimals)
	a.amount1 = numeric.ConvertTokenToDecimal(ev.Amount1, pc.token1.Decimals)
	a.amount0Abs = a.amount0.Abs()
	a.amount1Abs = a.amount1.Abs()

	nativePrice := pc.bundle.NativePriceUSD
	amount0USD := a.amount0Abs.Mul(pc.token0.DerivedNative).Mul(nativePrice)
	amount1USD := a.amount1Abs.Mul(pc.token1.DerivedNative).Mul(nativePrice)
	a.untrackedUSD = numeric.SafeDiv(amount0USD.Add(amount1USD), numeric.Two)

	if filtered {
		a.trackedUSD, a.trackedNative = decimal.Zero, decimal.Zero
		a.feesUSD, a.feesNative = decimal.Zero, decimal.Zero
		return a
	}

	tracked := pricing.GetTrackedAmountUSD(a.amount0Abs, pc.token0, a.amount1Abs, pc.token1, nativePrice, h.chain.WhitelistTokens)
	a.trackedUSD = numeric.SafeDiv(tracked, numeric.Two)
	a.trackedNative = numeric.SafeDiv(a.trackedUSD, nativePrice)

	feeRate := numeric.SafeDiv(decimal.NewFromInt(pc.pool.FeeTier), numeric.Million)
	a.feesNative = a.trackedNative.Mul(feeRate)
	a.feesUSD = a.trackedUSD.Mul(feeRate)
	return a
}

func applyTokenSwap(t *domain.Token, signed, abs decimal.Decimal, a swapAmounts) {
	t.Volume = t.Volume.Add(abs)
	t.TotalValueLocked = t.TotalValueLocked.Add(signed)
	t.VolumeUSD = t.VolumeUSD.Add(a.trackedUSD)
	t.UntrackedVolumeUSD = t.UntrackedVolumeUSD.Add(a.untrackedUSD)
	t.FeesUSD = t.FeesUSD.Add(a.feesUSD)
	t.TxCount++
}

func (h *Handler) updateSwapIntervals(ctx context.Context, sess *store.Session, pc *poolContext, a swapAmounts, ts int64) error {
	pool, bundle := pc.pool, pc.bundle

	dexDay, err := interval.UpdateDexDayData(ctx, sess, pc.factory, ts)
	if err != nil {
		return fmt.Errorf("failed to update dex day data: %w", err)
	}
	dexDay.VolumeNative = dexDay.VolumeNative.Add(a.trackedNative)
	dexDay.VolumeUSD = dexDay.VolumeUSD.Add(a.trackedUSD)
	dexDay.VolumeUSDUntracked = dexDay.VolumeUSDUntracked.Add(a.untrackedUSD)
	dexDay.FeesUSD = dexDay.FeesUSD.Add(a.feesUSD)

	poolDay, err := interval.UpdatePoolDayData(ctx, sess, pool, ts)
	if err != nil {
		return fmt.Errorf("failed to update pool day data: %w", err)
	}
	poolHour, err := interval.UpdatePoolHourData(ctx, sess, pool, ts)
	if err != nil {
		return fmt.Errorf("failed to update pool hour data: %w", err)
	}
	for _, b := range []*domain.PoolBucket{poolDay.Bucket(), poolHour.Bucket()} {
		b.VolumeUSD = b.VolumeUSD.Add(a.trackedUSD)
		b.VolumeToken0 = b.VolumeToken0.Add(a.amount0Abs)
		b.VolumeToken1 = b.VolumeToken1.Add(a.amount1Abs)
		b.FeesUSD = b.FeesUSD.Add(a.feesUSD)
		b.TxCount++
	}

	// fee APR reads the day volume including this swap
	dailyVolumeNative := numeric.SafeDiv(poolDay.VolumeUSD, bundle.NativePriceUSD)
	pool.FeeAPRUSD = apr.FeeAPR(pool.TotalValueLockedUSD, pool.FeeTier, poolDay.VolumeUSD)
	pool.FeeAPRNative = apr.FeeAPR(pool.TotalValueLockedNative, pool.FeeTier, dailyVolumeNative)

	tokens := []struct {
		token *domain.Token
		abs   decimal.Decimal
	}{
		{pc.token0, a.amount0Abs},
		{pc.token1, a.amount1Abs},
	}
	for _, t := range tokens {
		buckets, err := updateTokenIntervals(ctx, sess, t.token, bundle.NativePriceUSD, ts)
		if err != nil {
			return err
		}
		for _, b := range buckets {
			b.Volume = b.Volume.Add(t.abs)
			b.VolumeUSD = b.VolumeUSD.Add(a.trackedUSD)
			b.UntrackedVolumeUSD = b.UntrackedVolumeUSD.Add(a.untrackedUSD)
			b.FeesUSD = b.FeesUSD.Add(a.feesUSD)
		}
	}

	return nil
}

// updateTokenIntervals touches the day, hour and minute bucket of a token
func updateTokenIntervals(ctx context.Context, sess *store.Session, token *domain.Token, nativePriceUSD decimal.Decimal, ts int64) ([]*domain.TokenBucket, error) {
	day, err := interval.UpdateTokenDayData(ctx, sess, token, nativePriceUSD, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to update token day data: %w", err)
	}
	hour, err := interval.UpdateTokenHourData(ctx, sess, token, nativePriceUSD, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to update token hour data: %w", err)
	}
	minute, err := interval.UpdateTokenMinuteData(ctx, sess, token, nativePriceUSD, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to update token minute data: %w", err)
	}
	return []*domain.TokenBucket{day.Bucket(), hour.Bucket(), minute.Bucket()}, nil
}
