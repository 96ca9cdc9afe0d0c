package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Bundle holds the USD price of the wrapped native asset
type Bundle struct {
	ID             string          `json:"id"`
	NativePriceUSD decimal.Decimal `json:"native_price_usd"`
}

func (b *Bundle) EntityKind() Kind { return KindBundle }
func (b *Bundle) EntityID() string { return b.ID }

// Factory keeps global rollups of all pools of one deployment
type Factory struct {
	ID                     string          `json:"id"`
	PoolCount              int64           `json:"pool_count"`
	TxCount                int64           `json:"tx_count"`
	TotalVolumeNative      decimal.Decimal `json:"total_volume_native"`
	TotalVolumeUSD         decimal.Decimal `json:"total_volume_usd"`
	UntrackedVolumeUSD     decimal.Decimal `json:"untracked_volume_usd"`
	TotalFeesNative        decimal.Decimal `json:"total_fees_native"`
	TotalFeesUSD           decimal.Decimal `json:"total_fees_usd"`
	TotalValueLockedNative decimal.Decimal `json:"total_value_locked_native"`
	TotalValueLockedUSD    decimal.Decimal `json:"total_value_locked_usd"`
	Owner                  string          `json:"owner"`
}

func (f *Factory) EntityKind() Kind { return KindFactory }
func (f *Factory) EntityID() string { return f.ID }

type Token struct {
	ID                  string          `json:"id"` // lowercase address
	Symbol              string          `json:"symbol"`
	Name                string          `json:"name"`
	Decimals            int64           `json:"decimals"`
	TotalSupply         *big.Int        `json:"total_supply"`
	DerivedNative       decimal.Decimal `json:"derived_native"`
	TotalValueLocked    decimal.Decimal `json:"total_value_locked"`
	TotalValueLockedUSD decimal.Decimal `json:"total_value_locked_usd"`
	Volume              decimal.Decimal `json:"volume"`
	VolumeUSD           decimal.Decimal `json:"volume_usd"`
	UntrackedVolumeUSD  decimal.Decimal `json:"untracked_volume_usd"`
	FeesUSD             decimal.Decimal `json:"fees_usd"`
	TxCount             int64           `json:"tx_count"`
	PoolCount           int64           `json:"pool_count"`
	WhitelistPools      []string        `json:"whitelist_pools"`
	MarketCap           decimal.Decimal `json:"market_cap"`
}

func (t *Token) EntityKind() Kind { return KindToken }
func (t *Token) EntityID() string { return t.ID }

// NewToken returns a token with every counter zeroed
func NewToken(id string) *Token {
	return &Token{
		ID:             id,
		TotalSupply:    new(big.Int),
		WhitelistPools: []string{},
	}
}

type Pool struct {
	ID                     string          `json:"id"` // lowercase address
	Token0                 string          `json:"token0"`
	Token1                 string          `json:"token1"`
	FeeTier                int64           `json:"fee_tier"` // parts per million
	TickSpacing            int32           `json:"tick_spacing"`
	Liquidity              *big.Int        `json:"liquidity"`
	SqrtPrice              *big.Int        `json:"sqrt_price"`
	Tick                   *int32          `json:"tick,omitempty"` // absent until initialized
	Token0Price            decimal.Decimal `json:"token0_price"`
	Token1Price            decimal.Decimal `json:"token1_price"`
	TotalValueLockedToken0 decimal.Decimal `json:"total_value_locked_token0"`
	TotalValueLockedToken1 decimal.Decimal `json:"total_value_locked_token1"`
	TotalValueLockedNative decimal.Decimal `json:"total_value_locked_native"`
	TotalValueLockedUSD    decimal.Decimal `json:"total_value_locked_usd"`
	VolumeToken0           decimal.Decimal `json:"volume_token0"`
	VolumeToken1           decimal.Decimal `json:"volume_token1"`
	VolumeUSD              decimal.Decimal `json:"volume_usd"`
	UntrackedVolumeUSD     decimal.Decimal `json:"untracked_volume_usd"`
	FeesNative             decimal.Decimal `json:"fees_native"`
	FeesUSD                decimal.Decimal `json:"fees_usd"`
	FeeAPRNative           decimal.Decimal `json:"fee_apr_native"`
	FeeAPRUSD              decimal.Decimal `json:"fee_apr_usd"`
	CollectedFeesToken0    decimal.Decimal `json:"collected_fees_token0"`
	CollectedFeesToken1    decimal.Decimal `json:"collected_fees_token1"`
	CollectedFeesUSD       decimal.Decimal `json:"collected_fees_usd"`
	ReferencePrice         decimal.Decimal `json:"reference_price"`
	CreatedAtTimestamp     int64           `json:"created_at_timestamp"`
	CreatedAtBlockNumber   uint64          `json:"created_at_block_number"`
	TxCount                int64           `json:"tx_count"`
	LMPool                 *string         `json:"lm_pool,omitempty"`
}

func (p *Pool) EntityKind() Kind { return KindPool }
func (p *Pool) EntityID() string { return p.ID }

// NewPool returns an uninitialized pool
func NewPool(id, token0, token1 string, feeTier int64) *Pool {
	return &Pool{
		ID:        id,
		Token0:    token0,
		Token1:    token1,
		FeeTier:   feeTier,
		Liquidity: new(big.Int),
		SqrtPrice: new(big.Int),
	}
}

// CurrentTick returns the pool tick, zero before initialization
func (p *Pool) CurrentTick() int32 {
	if p.Tick == nil {
		return 0
	}
	return *p.Tick
}

// InRange reports whether lower <= tick < upper
func (p *Pool) InRange(lower, upper int32) bool {
	if p.Tick == nil {
		return false
	}
	return lower <= *p.Tick && *p.Tick < upper
}

type Tick struct {
	ID                   string          `json:"id"` // pool#tickIdx
	Pool                 string          `json:"pool"`
	TickIdx              int32           `json:"tick_idx"`
	LiquidityGross       *big.Int        `json:"liquidity_gross"`
	LiquidityNet         *big.Int        `json:"liquidity_net"`
	Price0               decimal.Decimal `json:"price0"`
	Price1               decimal.Decimal `json:"price1"`
	CreatedAtTimestamp   int64           `json:"created_at_timestamp"`
	CreatedAtBlockNumber uint64          `json:"created_at_block_number"`
}

func (t *Tick) EntityKind() Kind { return KindTick }
func (t *Tick) EntityID() string { return t.ID }

type Transaction struct {
	ID          string   `json:"id"` // tx hash
	BlockNumber uint64   `json:"block_number"`
	Timestamp   int64    `json:"timestamp"`
	GasPrice    *big.Int `json:"gas_price"`
	From        string   `json:"from"`
	PoolID      string   `json:"pool_id,omitempty"`
}

func (t *Transaction) EntityKind() Kind { return KindTransaction }
func (t *Transaction) EntityID() string { return t.ID }
