package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// OHLC price of a bucket
type OHLC struct {
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// Seed sets open/high/low/close to the first observed price
func (o *OHLC) Seed(price decimal.Decimal) {
	o.Open, o.High, o.Low, o.Close = price, price, price, price
}

// Observe moves high/low/close
func (o *OHLC) Observe(price decimal.Decimal) {
	if price.GreaterThan(o.High) {
		o.High = price
	}
	if price.LessThan(o.Low) {
		o.Low = price
	}
	o.Close = price
}

// DexDayData is the global per-day rollup, id = day index
type DexDayData struct {
	ID                 string          `json:"id"`
	Date               int64           `json:"date"`
	VolumeNative       decimal.Decimal `json:"volume_native"`
	VolumeUSD          decimal.Decimal `json:"volume_usd"`
	VolumeUSDUntracked decimal.Decimal `json:"volume_usd_untracked"`
	FeesUSD            decimal.Decimal `json:"fees_usd"`
	TxCount            int64           `json:"tx_count"`
	TVLUSD             decimal.Decimal `json:"tvl_usd"`
}

func (d *DexDayData) EntityKind() Kind { return KindDexDayData }
func (d *DexDayData) EntityID() string { return d.ID }

// PoolBucket carries the fields shared by pool day and hour data
type PoolBucket struct {
	ID           string          `json:"id"`
	PeriodStart  int64           `json:"period_start"`
	Pool         string          `json:"pool"`
	Liquidity    *big.Int        `json:"liquidity"`
	SqrtPrice    *big.Int        `json:"sqrt_price"`
	Token0Price  decimal.Decimal `json:"token0_price"`
	Token1Price  decimal.Decimal `json:"token1_price"`
	Tick         int32           `json:"tick"`
	TVLUSD       decimal.Decimal `json:"tvl_usd"`
	VolumeToken0 decimal.Decimal `json:"volume_token0"`
	VolumeToken1 decimal.Decimal `json:"volume_token1"`
	VolumeUSD    decimal.Decimal `json:"volume_usd"`
	FeesUSD      decimal.Decimal `json:"fees_usd"`
	TxCount      int64           `json:"tx_count"`
	OHLC
}

type PoolDayData struct {
	PoolBucket
}

func (p *PoolDayData) EntityKind() Kind { return KindPoolDayData }
func (p *PoolDayData) EntityID() string { return p.ID }

type PoolHourData struct {
	PoolBucket
}

func (p *PoolHourData) EntityKind() Kind { return KindPoolHourData }
func (p *PoolHourData) EntityID() string { return p.ID }

// TokenBucket carries the fields shared by token day, hour and minute data
type TokenBucket struct {
	ID                  string          `json:"id"`
	PeriodStart         int64           `json:"period_start"`
	Token               string          `json:"token"`
	Volume              decimal.Decimal `json:"volume"`
	VolumeUSD           decimal.Decimal `json:"volume_usd"`
	UntrackedVolumeUSD  decimal.Decimal `json:"untracked_volume_usd"`
	FeesUSD             decimal.Decimal `json:"fees_usd"`
	TotalValueLocked    decimal.Decimal `json:"total_value_locked"`
	TotalValueLockedUSD decimal.Decimal `json:"total_value_locked_usd"`
	PriceUSD            decimal.Decimal `json:"price_usd"`
	OHLC
}

type TokenDayData struct {
	TokenBucket
}

func (t *TokenDayData) EntityKind() Kind { return KindTokenDayData }
func (t *TokenDayData) EntityID() string { return t.ID }

type TokenHourData struct {
	TokenBucket
}

func (t *TokenHourData) EntityKind() Kind { return KindTokenHourData }
func (t *TokenHourData) EntityID() string { return t.ID }

type TokenMinuteData struct {
	TokenBucket
}

func (t *TokenMinuteData) EntityKind() Kind { return KindTokenMinuteData }
func (t *TokenMinuteData) EntityID() string { return t.ID }

// Bucket exposes the shared fields to generic bucket updaters
func (b *PoolBucket) Bucket() *PoolBucket { return b }

func (b *TokenBucket) Bucket() *TokenBucket { return b }
