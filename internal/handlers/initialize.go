package handlers

import (
	"context"
	"fmt"

	"dexindexer/internal/domain"
	"dexindexer/internal/interval"
	"dexindexer/internal/numeric"
	"dexindexer/internal/pricing"
	"dexindexer/internal/store"
)

// HandleInitialize sets the first price of a pool and gives its tokens their first derived price
func (h *Handler) HandleInitialize(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.InitializeEvent) error {
	pc, err := h.loadPoolContext(ctx, sess, meta.Address)
	if err != nil {
		return err
	}
	if pc == nil {
		h.log.Debugf("Initialize for unknown pool %s skipped", meta.Address)
		return nil
	}

	pool := pc.pool
	tick := ev.Tick
	pool.SqrtPrice = numeric.CloneInt(ev.SqrtPriceX96)
	pool.Tick = &tick
	pool.Token0Price, pool.Token1Price = pricing.SqrtPriceX96ToTokenPrices(pool.SqrtPrice, pc.token0, pc.token1)
	sess.Save(pool)

	nativePrice, err := pricing.GetNativePriceInUSD(ctx, sess, h.chain)
	if err != nil {
		return fmt.Errorf("failed to get native price: %w", err)
	}
	pc.bundle.NativePriceUSD = nativePrice
	sess.Save(pc.bundle)

	if _, err = interval.UpdatePoolDayData(ctx, sess, pool, meta.Timestamp); err != nil {
		return fmt.Errorf("failed to update pool day data: %w", err)
	}
	if _, err = interval.UpdatePoolHourData(ctx, sess, pool, meta.Timestamp); err != nil {
		return fmt.Errorf("failed to update pool hour data: %w", err)
	}

	if err = pricing.RefreshDerivedNative(ctx, sess, h.chain, pc.token0, pc.token1); err != nil {
		return err
	}
	interval.UpdateTokenMarketCap(pc.token0)
	interval.UpdateTokenMarketCap(pc.token1)

	pc.save(sess)
	return nil
}
