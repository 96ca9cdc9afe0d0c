package domain

import "strconv"

// Kind names an entity collection in the store
type Kind string

const (
	KindBundle          Kind = "bundle"
	KindFactory         Kind = "factory"
	KindToken           Kind = "token"
	KindPool            Kind = "pool"
	KindTick            Kind = "tick"
	KindTransaction     Kind = "transaction"
	KindSwap            Kind = "swap"
	KindMint            Kind = "mint"
	KindBurn            Kind = "burn"
	KindCollect         Kind = "collect"
	KindDexDayData      Kind = "dex_day_data"
	KindPoolDayData     Kind = "pool_day_data"
	KindPoolHourData    Kind = "pool_hour_data"
	KindTokenDayData    Kind = "token_day_data"
	KindTokenHourData   Kind = "token_hour_data"
	KindTokenMinuteData Kind = "token_minute_data"
	KindLMEmitter       Kind = "lm_emitter"
	KindLMPool          Kind = "lm_pool"
	KindRewardPeriod    Kind = "reward_period"
	KindRewardToken     Kind = "reward_token"
	KindPosition        Kind = "position"
	KindPositionReward  Kind = "position_reward"
	KindLMTransaction   Kind = "lm_transaction"
	KindNFTToken        Kind = "nft_token"
	KindNFTHolder       Kind = "nft_holder"
	KindNFTTransfer     Kind = "nft_transfer"
	KindCreatedToken    Kind = "created_token"
)

// BundleID is the id of the singleton Bundle
const BundleID = "1"

// Entity is any keyed record kept in the entity store
type Entity interface {
	EntityKind() Kind
	EntityID() string
}

// Appendable marks immutable audit records (swap/mint/burn/collect)
type Appendable interface {
	Entity
	AuditRow() AuditRow
}

// StoreKey = "<kind>:<id>"
func StoreKey(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// RecordID = "<tx_hash>-<log_index>"
func RecordID(txHash string, logIndex uint32) string {
	return txHash + "-" + strconv.FormatUint(uint64(logIndex), 10)
}

// BucketID = "<parent>-<bucket_index>"
func BucketID(parent string, bucket int64) string {
	return parent + "-" + strconv.FormatInt(bucket, 10)
}

// TickID = "<pool>#<tick_idx>"
func TickID(pool string, tickIdx int32) string {
	return pool + "#" + strconv.FormatInt(int64(tickIdx), 10)
}

// EntityPatch is the committed state of one entity pushed to subscribers
type EntityPatch struct {
	Kind      Kind   `json:"kind"`
	ID        string `json:"id"`
	Block     uint64 `json:"block"`
	Timestamp int64  `json:"timestamp"`
	Data      Entity `json:"data"`
}

// Topic is the broadcast subject of the patch
func (p *EntityPatch) Topic() string {
	return "entity." + string(p.Kind)
}
