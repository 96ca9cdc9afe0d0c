package apr

import (
	"github.com/shopspring/decimal"

	"dexindexer/internal/numeric"
)

const SecondsPerYear int64 = 31_536_000

var (
	daysPerYear    = decimal.NewFromInt(365)
	secondsPerYear = decimal.NewFromInt(SecondsPerYear)
)

// FeeAPR = (tvl * feeTier/1e6 * 365 / dailyVolumeUSD) * 100, zero on an empty day
func FeeAPR(tvl decimal.Decimal, feeTier int64, dailyVolumeUSD decimal.Decimal) decimal.Decimal {
	if dailyVolumeUSD.IsZero() {
		return decimal.Zero
	}
	feePercent := decimal.NewFromInt(feeTier).Div(numeric.Million)
	yearly := tvl.Mul(feePercent).Mul(daysPerYear)
	return numeric.SafeDiv(yearly, dailyVolumeUSD).Mul(numeric.Hundred)
}

// RewardAPR = rate * secondsPerYear * priceUSD / stakedUSD * 100, zero while nothing is staked.
// rate is in reward token units per second.
func RewardAPR(rate, rewardPriceUSD, stakedLiquidity, stakedLiquidityUSD decimal.Decimal) decimal.Decimal {
	if stakedLiquidity.IsZero() {
		return decimal.Zero
	}
	yearlyUSD := rate.Mul(secondsPerYear).Mul(rewardPriceUSD)
	return numeric.SafeDiv(yearlyUSD, stakedLiquidityUSD).Mul(numeric.Hundred)
}

// PoolRewardRate is the share of the emitter rate assigned to one pool by alloc points
func PoolRewardRate(periodRate, allocPoint, totalAllocPoint decimal.Decimal) decimal.Decimal {
	return numeric.SafeDiv(periodRate.Mul(allocPoint), totalAllocPoint)
}

// RederiveRate spreads leftover reward tokens over the new remaining duration.
// Returns the old rate when either side is not positive.
func RederiveRate(oldRate, leftover decimal.Decimal, remainingSeconds int64) decimal.Decimal {
	if remainingSeconds <= 0 || !leftover.IsPositive() {
		return oldRate
	}
	return numeric.SafeDiv(leftover, decimal.NewFromInt(remainingSeconds))
}
