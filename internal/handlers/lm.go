package handlers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"dexindexer/internal/apr"
	"dexindexer/internal/domain"
	"dexindexer/internal/numeric"
	"dexindexer/internal/store"
)

const defaultRewardDecimals int64 = 18

// HandleLMAddPool registers a farm pool and adds its weight to the emitter total
func (h *Handler) HandleLMAddPool(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.LMAddPoolEvent) error {
	emitter, err := h.loadOrCreateEmitter(ctx, sess, meta)
	if err != nil {
		return err
	}

	pid := ev.Pid.String()
	lmPool, err := store.Load[domain.LMPool](ctx, sess, pid)
	if err != nil {
		return fmt.Errorf("failed to load lm pool %s: %w", pid, err)
	}
	if lmPool != nil {
		h.log.Warnf("LM pool %s already registered, add ignored", pid)
		return nil
	}

	poolID := lower(ev.V3Pool)
	alloc := numeric.CloneInt(ev.AllocPoint)
	lmPool = &domain.LMPool{
		ID:         pid,
		Emitter:    emitter.ID,
		Pool:       poolID,
		AllocPoint: alloc,
	}
	sess.Save(lmPool)

	pool, err := store.Load[domain.Pool](ctx, sess, poolID)
	if err != nil {
		return fmt.Errorf("failed to load pool %s: %w", poolID, err)
	}
	if pool != nil {
		pool.LMPool = &pid
		sess.Save(pool)
	}

	emitter.TotalAllocPoint = new(big.Int).Add(emitter.TotalAllocPoint, alloc)
	emitter.PoolIDs = append(emitter.PoolIDs, pid)
	sess.Save(emitter)

	return h.refreshEmitterAPR(ctx, sess, emitter, meta.Timestamp)
}

// HandleLMSetPool replaces the weight of a farm pool
func (h *Handler) HandleLMSetPool(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.LMSetPoolEvent) error {
	pid := ev.Pid.String()
	lmPool, err := store.Load[domain.LMPool](ctx, sess, pid)
	if err != nil {
		return fmt.Errorf("failed to load lm pool %s: %w", pid, err)
	}
	if lmPool == nil {
		h.log.Debugf("Set for unknown LM pool %s skipped", pid)
		return nil
	}

	emitter, err := h.loadOrCreateEmitter(ctx, sess, meta)
	if err != nil {
		return err
	}

	alloc := numeric.CloneInt(ev.AllocPoint)
	total := new(big.Int).Sub(emitter.TotalAllocPoint, lmPool.AllocPoint)
	emitter.TotalAllocPoint = total.Add(total, alloc)
	lmPool.AllocPoint = alloc

	sess.Save(lmPool)
	sess.Save(emitter)

	return h.refreshEmitterAPR(ctx, sess, emitter, meta.Timestamp)
}

// HandleLMDeposit stakes a position
func (h *Handler) HandleLMDeposit(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.LMDepositEvent) error {
	pid := ev.Pid.String()
	lmPool, err := store.Load[domain.LMPool](ctx, sess, pid)
	if err != nil {
		return fmt.Errorf("failed to load lm pool %s: %w", pid, err)
	}
	if lmPool == nil {
		h.log.Debugf("Deposit into unknown LM pool %s skipped", pid)
		return nil
	}

	from := lower(ev.From)
	position, err := loadOrCreatePosition(ctx, sess, ev.TokenID, from)
	if err != nil {
		return err
	}

	liquidity := numeric.BigIntToDecimal(ev.Liquidity)
	staked := lmPool.StakedLiquidity
	if position.IsStaked && position.LMPool == pid {
		// re-stake replaces the previous amount
		staked = numeric.FloorZero(staked.Sub(numeric.BigIntToDecimal(position.Liquidity)))
	}
	lmPool.StakedLiquidity = staked.Add(liquidity)

	position.Staker = &from
	position.IsStaked = true
	position.Pool = lmPool.Pool
	position.LMPool = pid
	position.TickLower = ev.TickLower
	position.TickUpper = ev.TickUpper
	position.Liquidity = numeric.CloneInt(ev.Liquidity)

	sess.Save(position)
	sess.Save(lmPool)
	sess.Save(&domain.LMTransaction{
		ID:        domain.RecordID(meta.TxHash, meta.LogIndex),
		Type:      domain.LMTxStake,
		User:      from,
		Pool:      pid,
		Amount:    liquidity,
		Timestamp: meta.Timestamp,
	})

	return h.refreshLMPoolAPR(ctx, sess, lmPool, meta.Timestamp)
}

// HandleLMWithdraw unstakes a position; staked liquidity never goes below zero
func (h *Handler) HandleLMWithdraw(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.LMWithdrawEvent) error {
	pid := ev.Pid.String()
	lmPool, err := store.Load[domain.LMPool](ctx, sess, pid)
	if err != nil {
		return fmt.Errorf("failed to load lm pool %s: %w", pid, err)
	}
	if lmPool == nil {
		h.log.Debugf("Withdraw from unknown LM pool %s skipped", pid)
		return nil
	}

	tokenID := ev.TokenID.String()
	position, err := store.Load[domain.Position](ctx, sess, tokenID)
	if err != nil {
		return fmt.Errorf("failed to load position %s: %w", tokenID, err)
	}
	if position == nil {
		h.log.Debugf("Withdraw of unknown position %s skipped", tokenID)
		return nil
	}

	amount := numeric.BigIntToDecimal(position.Liquidity)
	if position.IsStaked && position.LMPool == pid {
		lmPool.StakedLiquidity = numeric.FloorZero(lmPool.StakedLiquidity.Sub(amount))
	}

	position.Staker = nil
	position.IsStaked = false
	if to := lower(ev.To); to != "" {
		position.Owner = to
	}

	sess.Save(position)
	sess.Save(lmPool)
	sess.Save(&domain.LMTransaction{
		ID:        domain.RecordID(meta.TxHash, meta.LogIndex),
		Type:      domain.LMTxUnstake,
		User:      lower(ev.From),
		Pool:      pid,
		Amount:    amount,
		Timestamp: meta.Timestamp,
	})

	return h.refreshLMPoolAPR(ctx, sess, lmPool, meta.Timestamp)
}

// HandleLMHarvest accrues the paid reward on the position
func (h *Handler) HandleLMHarvest(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.LMHarvestEvent) error {
	rewardToken := h.chain.RewardToken
	decimals, err := h.rewardDecimals(ctx, sess)
	if err != nil {
		return err
	}
	reward := numeric.ConvertTokenToDecimal(ev.Reward, decimals)

	tokenID := ev.TokenID.String()
	id := tokenID + "-" + rewardToken
	pr, err := store.Load[domain.PositionReward](ctx, sess, id)
	if err != nil {
		return fmt.Errorf("failed to load position reward %s: %w", id, err)
	}
	if pr == nil {
		pr = &domain.PositionReward{ID: id, Position: tokenID, Token: rewardToken}
	}
	pr.Earned = pr.Earned.Add(reward)
	sess.Save(pr)

	sess.Save(&domain.LMTransaction{
		ID:        domain.RecordID(meta.TxHash, meta.LogIndex),
		Type:      domain.LMTxHarvest,
		User:      lower(ev.To),
		Pool:      ev.Pid.String(),
		Reward:    reward,
		Timestamp: meta.Timestamp,
	})
	return nil
}

// HandleLMUpdateLiquidity applies a signed liquidity delta of a staked position
func (h *Handler) HandleLMUpdateLiquidity(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.LMUpdateLiquidityEvent) error {
	pid := ev.Pid.String()
	lmPool, err := store.Load[domain.LMPool](ctx, sess, pid)
	if err != nil {
		return fmt.Errorf("failed to load lm pool %s: %w", pid, err)
	}
	if lmPool == nil {
		h.log.Debugf("Liquidity update in unknown LM pool %s skipped", pid)
		return nil
	}

	position, err := loadOrCreatePosition(ctx, sess, ev.TokenID, lower(ev.From))
	if err != nil {
		return err
	}

	delta := numeric.BigIntToDecimal(ev.Liquidity)
	lmPool.StakedLiquidity = numeric.FloorZero(lmPool.StakedLiquidity.Add(delta))

	next := new(big.Int).Add(numeric.CloneInt(position.Liquidity), numeric.CloneInt(ev.Liquidity))
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	position.Liquidity = next
	position.TickLower = ev.TickLower
	position.TickUpper = ev.TickUpper
	position.LMPool = pid
	position.Pool = lmPool.Pool

	sess.Save(position)
	sess.Save(lmPool)

	return h.refreshLMPoolAPR(ctx, sess, lmPool, meta.Timestamp)
}

// HandleLMNewUpkeepPeriod opens an emission period of the reward token
func (h *Handler) HandleLMNewUpkeepPeriod(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.LMNewUpkeepPeriodEvent) error {
	emitter, err := h.loadOrCreateEmitter(ctx, sess, meta)
	if err != nil {
		return err
	}
	decimals, err := h.rewardDecimals(ctx, sess)
	if err != nil {
		return err
	}

	periodID := ev.PeriodNumber.String()
	sess.Save(&domain.RewardPeriod{
		ID:           periodID,
		Emitter:      emitter.ID,
		PeriodNumber: numeric.CloneInt(ev.PeriodNumber),
	})

	rate := numeric.ConvertTokenToDecimal(ev.RewardPerSecond, decimals)
	if rate.IsZero() && ev.RewardAmount != nil {
		amount := numeric.ConvertTokenToDecimal(ev.RewardAmount, decimals)
		rate = apr.RederiveRate(decimal.Zero, amount, ev.EndTime-ev.StartTime)
	}

	sess.Save(&domain.RewardToken{
		ID:           rewardTokenID(h.chain.RewardToken, periodID),
		RewardPeriod: periodID,
		Token:        h.chain.RewardToken,
		RewardRate:   rate,
		StartTime:    ev.StartTime,
		EndTime:      ev.EndTime,
	})

	emitter.CurrentPeriod = periodID
	sess.Save(emitter)

	return h.refreshEmitterAPR(ctx, sess, emitter, meta.Timestamp)
}

// HandleLMUpdateUpkeepPeriod moves the end of a period and spreads the leftover over the new remainder
func (h *Handler) HandleLMUpdateUpkeepPeriod(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.LMUpdateUpkeepPeriodEvent) error {
	periodID := ev.PeriodNumber.String()
	id := rewardTokenID(h.chain.RewardToken, periodID)

	rt, err := store.Load[domain.RewardToken](ctx, sess, id)
	if err != nil {
		return fmt.Errorf("failed to load reward token %s: %w", id, err)
	}
	if rt == nil {
		h.log.Debugf("Update of unknown reward period %s skipped", periodID)
		return nil
	}

	from := max(meta.Timestamp, rt.StartTime)
	oldEnd := rt.EndTime
	if ev.OldEndTime > 0 {
		oldEnd = ev.OldEndTime
	}

	var leftover decimal.Decimal
	if ev.RemainingAmount != nil {
		decimals, err := h.rewardDecimals(ctx, sess)
		if err != nil {
			return err
		}
		leftover = numeric.ConvertTokenToDecimal(ev.RemainingAmount, decimals)
	} else {
		leftover = numeric.FloorZero(rt.RewardRate.Mul(decimal.NewFromInt(oldEnd - from)))
	}

	rt.RewardRate = apr.RederiveRate(rt.RewardRate, leftover, ev.NewEndTime-from)
	rt.EndTime = ev.NewEndTime
	sess.Save(rt)

	emitter, err := h.loadOrCreateEmitter(ctx, sess, meta)
	if err != nil {
		return err
	}
	sess.Save(emitter)

	return h.refreshEmitterAPR(ctx, sess, emitter, meta.Timestamp)
}

func (h *Handler) loadOrCreateEmitter(ctx context.Context, sess *store.Session, meta domain.EventMeta) (*domain.LMEmitter, error) {
	id := meta.Address
	emitter, err := store.Load[domain.LMEmitter](ctx, sess, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load lm emitter %s: %w", id, err)
	}
	if emitter == nil {
		emitter = &domain.LMEmitter{
			ID:              id,
			TotalAllocPoint: new(big.Int),
			PoolIDs:         []string{},
		}
	}
	emitter.Timestamp = meta.Timestamp
	emitter.Block = meta.BlockNumber
	return emitter, nil
}

func loadOrCreatePosition(ctx context.Context, sess *store.Session, tokenID *big.Int, owner string) (*domain.Position, error) {
	id := tokenID.String()
	position, err := store.Load[domain.Position](ctx, sess, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", id, err)
	}
	if position == nil {
		position = &domain.Position{ID: id, Owner: owner, Liquidity: new(big.Int)}
	}
	return position, nil
}

// rewardDecimals falls back to 18 until the reward token is seen in a pool
func (h *Handler) rewardDecimals(ctx context.Context, sess *store.Session) (int64, error) {
	token, err := store.Load[domain.Token](ctx, sess, h.chain.RewardToken)
	if err != nil {
		return 0, fmt.Errorf("failed to load reward token %s: %w", h.chain.RewardToken, err)
	}
	if token == nil || token.Decimals == 0 {
		return defaultRewardDecimals, nil
	}
	return token.Decimals, nil
}

func rewardTokenID(token, period string) string {
	return token + "-" + period
}

func (h *Handler) refreshEmitterAPR(ctx context.Context, sess *store.Session, emitter *domain.LMEmitter, ts int64) error {
	for _, pid := range emitter.PoolIDs {
		lmPool, err := store.Load[domain.LMPool](ctx, sess, pid)
		if err != nil {
			return fmt.Errorf("failed to load lm pool %s: %w", pid, err)
		}
		if lmPool == nil {
			continue
		}
		if err = h.refreshLMPoolAPR(ctx, sess, lmPool, ts); err != nil {
			return err
		}
	}
	return nil
}

// refreshLMPoolAPR recomputes the pool emission rate, staked USD value and reward APR
func (h *Handler) refreshLMPoolAPR(ctx context.Context, sess *store.Session, lmPool *domain.LMPool, ts int64) error {
	emitter, err := store.Load[domain.LMEmitter](ctx, sess, lmPool.Emitter)
	if err != nil {
		return fmt.Errorf("failed to load lm emitter %s: %w", lmPool.Emitter, err)
	}

	periodRate := decimal.Zero
	if emitter != nil && emitter.CurrentPeriod != "" {
		rt, err := store.Load[domain.RewardToken](ctx, sess, rewardTokenID(h.chain.RewardToken, emitter.CurrentPeriod))
		if err != nil {
			return fmt.Errorf("failed to load reward token: %w", err)
		}
		if rt != nil && rt.Active(ts) {
			periodRate = rt.RewardRate
		}
	}

	total := decimal.Zero
	if emitter != nil {
		total = numeric.BigIntToDecimal(emitter.TotalAllocPoint)
	}
	lmPool.RewardRate = apr.PoolRewardRate(periodRate, numeric.BigIntToDecimal(lmPool.AllocPoint), total)

	lmPool.StakedLiquidityUSD = decimal.Zero
	pool, err := store.Load[domain.Pool](ctx, sess, lmPool.Pool)
	if err != nil {
		return fmt.Errorf("failed to load pool %s: %w", lmPool.Pool, err)
	}
	if pool != nil {
		share := numeric.SafeDiv(lmPool.StakedLiquidity, numeric.BigIntToDecimal(pool.Liquidity))
		lmPool.StakedLiquidityUSD = share.Mul(pool.TotalValueLockedUSD)
	}

	rewardPriceUSD := decimal.Zero
	bundle, err := store.Load[domain.Bundle](ctx, sess, domain.BundleID)
	if err != nil {
		return fmt.Errorf("failed to load bundle: %w", err)
	}
	token, err := store.Load[domain.Token](ctx, sess, h.chain.RewardToken)
	if err != nil {
		return fmt.Errorf("failed to load reward token %s: %w", h.chain.RewardToken, err)
	}
	if bundle != nil && token != nil {
		rewardPriceUSD = token.DerivedNative.Mul(bundle.NativePriceUSD)
	}

	lmPool.APR = apr.RewardAPR(lmPool.RewardRate, rewardPriceUSD, lmPool.StakedLiquidity, lmPool.StakedLiquidityUSD)
	sess.Save(lmPool)
	return nil
}
