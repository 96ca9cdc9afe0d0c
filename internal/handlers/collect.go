package handlers

import (
	"context"

	"dexindexer/internal/domain"
	"dexindexer/internal/numeric"
	"dexindexer/internal/pricing"
	"dexindexer/internal/store"
)

// HandleCollect withdraws owed fees; locked value only goes down
func (h *Handler) HandleCollect(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.CollectEvent) error {
	pc, err := h.loadPoolContext(ctx, sess, meta.Address)
	if err != nil {
		return err
	}
	if pc == nil {
		h.log.Debugf("Collect for unknown pool %s skipped", meta.Address)
		return nil
	}

	pool, token0, token1, factory, bundle := pc.pool, pc.token0, pc.token1, pc.factory, pc.bundle

	amount0 := numeric.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := numeric.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)
	trackedUSD := pricing.GetTrackedAmountUSD(amount0, token0, amount1, token1, bundle.NativePriceUSD, h.chain.WhitelistTokens)

	factory.TotalValueLockedNative = factory.TotalValueLockedNative.Sub(pool.TotalValueLockedNative)
	factory.TxCount++

	token0.TxCount++
	token0.TotalValueLocked = token0.TotalValueLocked.Sub(amount0)
	token1.TxCount++
	token1.TotalValueLocked = token1.TotalValueLocked.Sub(amount1)

	pool.TxCount++
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Sub(amount0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Sub(amount1)
	pool.CollectedFeesToken0 = pool.CollectedFeesToken0.Add(amount0)
	pool.CollectedFeesToken1 = pool.CollectedFeesToken1.Add(amount1)
	pool.CollectedFeesUSD = pool.CollectedFeesUSD.Add(trackedUSD)

	pc.refreshPoolTVL()
	factory.TotalValueLockedNative = factory.TotalValueLockedNative.Add(pool.TotalValueLockedNative)
	pc.refreshFactoryUSD()
	pc.refreshTokenTVLUSD()

	sess.Save(&domain.Collect{
		ID:          domain.RecordID(meta.TxHash, meta.LogIndex),
		Transaction: meta.TxHash,
		Timestamp:   meta.Timestamp,
		Pool:        pool.ID,
		Owner:       lower(ev.Owner),
		Origin:      meta.TxFrom,
		Amount0:     amount0,
		Amount1:     amount1,
		AmountUSD:   trackedUSD,
		TickLower:   ev.TickLower,
		TickUpper:   ev.TickUpper,
		LogIndex:    meta.LogIndex,
	})

	if _, err = loadTransaction(ctx, sess, meta, pool.ID); err != nil {
		return err
	}
	if err = h.touchIntervals(ctx, sess, pc, meta.Timestamp); err != nil {
		return err
	}

	pc.save(sess)
	return nil
}
