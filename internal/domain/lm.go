package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

type LMTxType string

const (
	LMTxStake   LMTxType = "Stake"
	LMTxUnstake LMTxType = "Unstake"
	LMTxHarvest LMTxType = "Harvest"
)

// LMEmitter is the reward-emitting contract; TotalAllocPoint == sum of its pools' AllocPoint
type LMEmitter struct {
	ID              string   `json:"id"` // emitter contract address
	TotalAllocPoint *big.Int `json:"total_alloc_point"`
	PoolIDs         []string `json:"pool_ids"`
	CurrentPeriod   string   `json:"current_period,omitempty"`
	Timestamp       int64    `json:"timestamp"`
	Block           uint64   `json:"block"`
}

func (e *LMEmitter) EntityKind() Kind { return KindLMEmitter }
func (e *LMEmitter) EntityID() string { return e.ID }

type LMPool struct {
	ID                 string          `json:"id"` // pid
	Emitter            string          `json:"emitter"`
	Pool               string          `json:"pool"`
	AllocPoint         *big.Int        `json:"alloc_point"`
	StakedLiquidity    decimal.Decimal `json:"staked_liquidity"`
	StakedLiquidityUSD decimal.Decimal `json:"staked_liquidity_usd"`
	RewardRate         decimal.Decimal `json:"reward_rate"` // reward tokens per second for this pool
	APR                decimal.Decimal `json:"apr"`
}

func (p *LMPool) EntityKind() Kind { return KindLMPool }
func (p *LMPool) EntityID() string { return p.ID }

type RewardPeriod struct {
	ID           string   `json:"id"`
	Emitter      string   `json:"emitter"`
	PeriodNumber *big.Int `json:"period_number"`
}

func (r *RewardPeriod) EntityKind() Kind { return KindRewardPeriod }
func (r *RewardPeriod) EntityID() string { return r.ID }

// RewardToken is the emission schedule of one token in one period, id = "<token>-<period>"
type RewardToken struct {
	ID           string          `json:"id"`
	RewardPeriod string          `json:"reward_period"`
	Token        string          `json:"token"`
	RewardRate   decimal.Decimal `json:"reward_rate"`
	StartTime    int64           `json:"start_time"`
	EndTime      int64           `json:"end_time"`
}

func (r *RewardToken) EntityKind() Kind { return KindRewardToken }
func (r *RewardToken) EntityID() string { return r.ID }

// Active reports whether ts falls inside [start, end)
func (r *RewardToken) Active(ts int64) bool {
	return r.StartTime <= ts && ts < r.EndTime
}

type Position struct {
	ID        string   `json:"id"` // nft token id
	Owner     string   `json:"owner"`
	Pool      string   `json:"pool,omitempty"`
	Liquidity *big.Int `json:"liquidity"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
	Staker    *string  `json:"staker,omitempty"` // absent when not staked
	IsStaked  bool     `json:"is_staked"`
	LMPool    string   `json:"lm_pool,omitempty"`
}

func (p *Position) EntityKind() Kind { return KindPosition }
func (p *Position) EntityID() string { return p.ID }

// StakerAddress renders the staker for external consumers, zero address when absent
func (p *Position) StakerAddress() string {
	if p.Staker == nil {
		return ZeroAddress
	}
	return *p.Staker
}

// PositionReward id = "<token_id>-<reward_token>"
type PositionReward struct {
	ID       string          `json:"id"`
	Position string          `json:"position"`
	Token    string          `json:"token"`
	Earned   decimal.Decimal `json:"earned"`
}

func (p *PositionReward) EntityKind() Kind { return KindPositionReward }
func (p *PositionReward) EntityID() string { return p.ID }

type LMTransaction struct {
	ID        string          `json:"id"`
	Type      LMTxType        `json:"type"`
	User      string          `json:"user"`
	Pool      string          `json:"pool"`
	Amount    decimal.Decimal `json:"amount"`
	Reward    decimal.Decimal `json:"reward"`
	Timestamp int64           `json:"timestamp"`
}

func (t *LMTransaction) EntityKind() Kind { return KindLMTransaction }
func (t *LMTransaction) EntityID() string { return t.ID }
