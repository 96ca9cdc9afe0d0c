package handlers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"dexindexer/internal/domain"
	"dexindexer/internal/interval"
	"dexindexer/internal/numeric"
	"dexindexer/internal/store"
)

// liquidityChange is the common shape of mint and burn events; amounts are positive
type liquidityChange struct {
	owner     string
	sender    string
	tickLower int32
	tickUpper int32
	amount    *big.Int
	amount0   *big.Int
	amount1   *big.Int
}

// HandleMint adds liquidity to a position range
func (h *Handler) HandleMint(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.MintEvent) error {
	change := liquidityChange{
		owner:     lower(ev.Owner),
		sender:    lower(ev.Sender),
		tickLower: ev.TickLower,
		tickUpper: ev.TickUpper,
		amount:    ev.Amount,
		amount0:   ev.Amount0,
		amount1:   ev.Amount1,
	}

	rec, err := h.applyLiquidity(ctx, sess, meta, change, 1)
	if err != nil || rec == nil {
		return err
	}
	sess.Save(&domain.Mint{LiquidityRecord: *rec})
	return nil
}

// HandleBurn removes liquidity from a position range
func (h *Handler) HandleBurn(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.BurnEvent) error {
	change := liquidityChange{
		owner:     lower(ev.Owner),
		tickLower: ev.TickLower,
		tickUpper: ev.TickUpper,
		amount:    ev.Amount,
		amount0:   ev.Amount0,
		amount1:   ev.Amount1,
	}

	rec, err := h.applyLiquidity(ctx, sess, meta, change, -1)
	if err != nil || rec == nil {
		return err
	}
	sess.Save(&domain.Burn{LiquidityRecord: *rec})
	return nil
}

// applyLiquidity moves pool, token and factory state by sign*change.
// Active liquidity changes only when the range holds the current tick; TVL and ticks always change.
func (h *Handler) applyLiquidity(ctx context.Context, sess *store.Session, meta domain.EventMeta, c liquidityChange, sign int64) (*domain.LiquidityRecord, error) {
	pc, err := h.loadPoolContext(ctx, sess, meta.Address)
	if err != nil {
		return nil, err
	}
	if pc == nil {
		h.log.Debugf("Liquidity event for unknown pool %s skipped", meta.Address)
		return nil, nil
	}

	pool, token0, token1, factory, bundle := pc.pool, pc.token0, pc.token1, pc.factory, pc.bundle
	signDec := decimal.NewFromInt(sign)

	amount0 := numeric.ConvertTokenToDecimal(c.amount0, token0.Decimals)
	amount1 := numeric.ConvertTokenToDecimal(c.amount1, token1.Decimals)
	amountUSD := amount0.Mul(token0.DerivedNative).Mul(bundle.NativePriceUSD).
		Add(amount1.Mul(token1.DerivedNative).Mul(bundle.NativePriceUSD))
	delta := new(big.Int).Mul(numeric.CloneInt(c.amount), big.NewInt(sign))

	factory.TotalValueLockedNative = factory.TotalValueLockedNative.Sub(pool.TotalValueLockedNative)
	factory.TxCount++

	token0.TxCount++
	token0.TotalValueLocked = token0.TotalValueLocked.Add(amount0.Mul(signDec))
	token1.TxCount++
	token1.TotalValueLocked = token1.TotalValueLocked.Add(amount1.Mul(signDec))

	pool.TxCount++
	if pool.InRange(c.tickLower, c.tickUpper) {
		pool.Liquidity = new(big.Int).Add(numeric.CloneInt(pool.Liquidity), delta)
	}
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Add(amount0.Mul(signDec))
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Add(amount1.Mul(signDec))

	pc.refreshPoolTVL()
	factory.TotalValueLockedNative = factory.TotalValueLockedNative.Add(pool.TotalValueLockedNative)
	pc.refreshFactoryUSD()
	pc.refreshTokenTVLUSD()

	rec := &domain.LiquidityRecord{
		ID:          domain.RecordID(meta.TxHash, meta.LogIndex),
		Transaction: meta.TxHash,
		Timestamp:   meta.Timestamp,
		Pool:        pool.ID,
		Token0:      token0.ID,
		Token1:      token1.ID,
		Owner:       c.owner,
		Sender:      c.sender,
		Origin:      meta.TxFrom,
		Amount:      numeric.CloneInt(c.amount),
		Amount0:     amount0,
		Amount1:     amount1,
		AmountUSD:   amountUSD,
		TickLower:   c.tickLower,
		TickUpper:   c.tickUpper,
		LogIndex:    meta.LogIndex,
	}

	if err = applyTickRange(ctx, sess, pool.ID, c.tickLower, c.tickUpper, delta, meta); err != nil {
		return nil, err
	}
	if _, err = loadTransaction(ctx, sess, meta, pool.ID); err != nil {
		return nil, err
	}
	if err = h.touchIntervals(ctx, sess, pc, meta.Timestamp); err != nil {
		return nil, err
	}

	pc.save(sess)
	return rec, nil
}

// touchIntervals refreshes every bucket of a non-swap pool event and counts it once per pool bucket
func (h *Handler) touchIntervals(ctx context.Context, sess *store.Session, pc *poolContext, ts int64) error {
	if _, err := interval.UpdateDexDayData(ctx, sess, pc.factory, ts); err != nil {
		return fmt.Errorf("failed to update dex day data: %w", err)
	}

	poolDay, err := interval.UpdatePoolDayData(ctx, sess, pc.pool, ts)
	if err != nil {
		return fmt.Errorf("failed to update pool day data: %w", err)
	}
	poolHour, err := interval.UpdatePoolHourData(ctx, sess, pc.pool, ts)
	if err != nil {
		return fmt.Errorf("failed to update pool hour data: %w", err)
	}
	poolDay.TxCount++
	poolHour.TxCount++

	for _, t := range []*domain.Token{pc.token0, pc.token1} {
		if _, err = updateTokenIntervals(ctx, sess, t, pc.bundle.NativePriceUSD, ts); err != nil {
			return err
		}
	}
	return nil
}
