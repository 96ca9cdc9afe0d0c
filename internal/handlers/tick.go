package handlers

import (
	"context"
	"fmt"
	"math/big"

	"dexindexer/internal/domain"
	"dexindexer/internal/numeric"
	"dexindexer/internal/store"
)

// loadTick returns the tick at idx, creating it with its 1.0001^idx prices
func loadTick(ctx context.Context, sess *store.Session, poolID string, idx int32, meta domain.EventMeta) (*domain.Tick, error) {
	id := domain.TickID(poolID, idx)

	t, err := store.Load[domain.Tick](ctx, sess, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load tick %s: %w", id, err)
	}
	if t != nil {
		return t, nil
	}

	price0 := numeric.TickToPrice(int(idx))
	t = &domain.Tick{
		ID:                   id,
		Pool:                 poolID,
		TickIdx:              idx,
		LiquidityGross:       new(big.Int),
		LiquidityNet:         new(big.Int),
		Price0:               price0,
		Price1:               numeric.SafeDiv(numeric.One, price0),
		CreatedAtTimestamp:   meta.Timestamp,
		CreatedAtBlockNumber: meta.BlockNumber,
	}
	return t, nil
}

// applyTickRange moves gross/net liquidity of both range ends by delta (negative on burn)
func applyTickRange(ctx context.Context, sess *store.Session, poolID string, lowerIdx, upperIdx int32, delta *big.Int, meta domain.EventMeta) error {
	lowerTick, err := loadTick(ctx, sess, poolID, lowerIdx, meta)
	if err != nil {
		return err
	}
	upperTick, err := loadTick(ctx, sess, poolID, upperIdx, meta)
	if err != nil {
		return err
	}

	lowerTick.LiquidityGross = new(big.Int).Add(lowerTick.LiquidityGross, delta)
	lowerTick.LiquidityNet = new(big.Int).Add(lowerTick.LiquidityNet, delta)
	upperTick.LiquidityGross = new(big.Int).Add(upperTick.LiquidityGross, delta)
	upperTick.LiquidityNet = new(big.Int).Sub(upperTick.LiquidityNet, delta)

	sess.Save(lowerTick)
	sess.Save(upperTick)
	return nil
}
