package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrEmptyPayload     = errors.New("empty event payload")
	ErrMalformedEvent   = errors.New("malformed event")
)

type EventKind string

const (
	EventPoolCreated        EventKind = "pool_created"
	EventInitialize         EventKind = "initialize"
	EventSwap               EventKind = "swap"
	EventMint               EventKind = "mint"
	EventBurn               EventKind = "burn"
	EventCollect            EventKind = "collect"
	EventLMAddPool          EventKind = "lm_add_pool"
	EventLMSetPool          EventKind = "lm_set_pool"
	EventLMDeposit          EventKind = "lm_deposit"
	EventLMWithdraw         EventKind = "lm_withdraw"
	EventLMHarvest          EventKind = "lm_harvest"
	EventLMUpdateLiquidity  EventKind = "lm_update_liquidity"
	EventLMNewUpkeepPeriod  EventKind = "lm_new_upkeep_period"
	EventLMUpdateUpkeep     EventKind = "lm_update_upkeep_period"
	EventNFTTransfer        EventKind = "nft_transfer"
	EventLaunchpadTokenMade EventKind = "launchpad_token_created"
)

// EventMeta is the log context delivered with every decoded event
type EventMeta struct {
	ChainID     uint32   `json:"chain_id"`
	Address     string   `json:"address"` // emitting contract
	BlockNumber uint64   `json:"block_number"`
	Timestamp   int64    `json:"timestamp"` // block time, unix seconds
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint32   `json:"log_index"`
	TxFrom      string   `json:"tx_from"`
	GasPrice    *big.Int `json:"gas_price,omitempty"`
}

func (m *EventMeta) EventID() string {
	return MakeEventID(m.ChainID, m.TxHash, m.LogIndex)
}

// Normalize lowercases every address-like field
func (m *EventMeta) Normalize() {
	m.Address = strings.ToLower(m.Address)
	m.TxHash = strings.ToLower(m.TxHash)
	m.TxFrom = strings.ToLower(m.TxFrom)
}

// Envelope is the wire form of one decoded chain event
type Envelope struct {
	ID      string          `json:"id,omitempty"` // producer event id, checked against Meta when set
	Kind    EventKind       `json:"kind"`
	Meta    EventMeta       `json:"meta"`
	Payload json.RawMessage `json:"payload"`
}

type Event interface {
	Kind() EventKind
}

type PoolCreatedEvent struct {
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         int64  `json:"fee"`
	TickSpacing int32  `json:"tick_spacing"`
	Pool        string `json:"pool"`
}

type InitializeEvent struct {
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96"`
	Tick         int32    `json:"tick"`
}

type SwapEvent struct {
	Sender       string   `json:"sender"`
	Recipient    string   `json:"recipient"`
	Amount0      *big.Int `json:"amount0"`
	Amount1      *big.Int `json:"amount1"`
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96"`
	Liquidity    *big.Int `json:"liquidity"`
	Tick         int32    `json:"tick"`
}

type MintEvent struct {
	Sender    string   `json:"sender"`
	Owner     string   `json:"owner"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
	Amount    *big.Int `json:"amount"`
	Amount0   *big.Int `json:"amount0"`
	Amount1   *big.Int `json:"amount1"`
}

type BurnEvent struct {
	Owner     string   `json:"owner"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
	Amount    *big.Int `json:"amount"`
	Amount0   *big.Int `json:"amount0"`
	Amount1   *big.Int `json:"amount1"`
}

type CollectEvent struct {
	Owner     string   `json:"owner"`
	Recipient string   `json:"recipient"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
	Amount0   *big.Int `json:"amount0"`
	Amount1   *big.Int `json:"amount1"`
}

type LMAddPoolEvent struct {
	Pid        *big.Int `json:"pid"`
	AllocPoint *big.Int `json:"alloc_point"`
	V3Pool     string   `json:"v3_pool"`
}

type LMSetPoolEvent struct {
	Pid        *big.Int `json:"pid"`
	AllocPoint *big.Int `json:"alloc_point"`
}

type LMDepositEvent struct {
	From      string   `json:"from"`
	Pid       *big.Int `json:"pid"`
	TokenID   *big.Int `json:"token_id"`
	Liquidity *big.Int `json:"liquidity"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
}

type LMWithdrawEvent struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Pid     *big.Int `json:"pid"`
	TokenID *big.Int `json:"token_id"`
}

type LMHarvestEvent struct {
	Sender  string   `json:"sender"`
	To      string   `json:"to"`
	Pid     *big.Int `json:"pid"`
	TokenID *big.Int `json:"token_id"`
	Reward  *big.Int `json:"reward"`
}

type LMUpdateLiquidityEvent struct {
	From      string   `json:"from"`
	Pid       *big.Int `json:"pid"`
	TokenID   *big.Int `json:"token_id"`
	Liquidity *big.Int `json:"liquidity"` // signed delta
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
}

type LMNewUpkeepPeriodEvent struct {
	PeriodNumber    *big.Int `json:"period_number"`
	StartTime       int64    `json:"start_time"`
	EndTime         int64    `json:"end_time"`
	RewardPerSecond *big.Int `json:"reward_per_second"`
	RewardAmount    *big.Int `json:"reward_amount,omitempty"`
}

type LMUpdateUpkeepPeriodEvent struct {
	PeriodNumber    *big.Int `json:"period_number"`
	OldEndTime      int64    `json:"old_end_time"`
	NewEndTime      int64    `json:"new_end_time"`
	RemainingAmount *big.Int `json:"remaining_amount,omitempty"` // leftover reward tokens if the emitter reports it
}

type NFTTransferEvent struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	TokenID *big.Int `json:"token_id"`
}

type LaunchpadTokenCreatedEvent struct {
	TokenAddress  string   `json:"token_address"`
	Name          string   `json:"name"`
	Symbol        string   `json:"symbol"`
	InitialSupply *big.Int `json:"initial_supply"`
	Owner         string   `json:"owner"`
}

func (*PoolCreatedEvent) Kind() EventKind           { return EventPoolCreated }
func (*InitializeEvent) Kind() EventKind            { return EventInitialize }
func (*SwapEvent) Kind() EventKind                  { return EventSwap }
func (*MintEvent) Kind() EventKind                  { return EventMint }
func (*BurnEvent) Kind() EventKind                  { return EventBurn }
func (*CollectEvent) Kind() EventKind               { return EventCollect }
func (*LMAddPoolEvent) Kind() EventKind             { return EventLMAddPool }
func (*LMSetPoolEvent) Kind() EventKind             { return EventLMSetPool }
func (*LMDepositEvent) Kind() EventKind             { return EventLMDeposit }
func (*LMWithdrawEvent) Kind() EventKind            { return EventLMWithdraw }
func (*LMHarvestEvent) Kind() EventKind             { return EventLMHarvest }
func (*LMUpdateLiquidityEvent) Kind() EventKind     { return EventLMUpdateLiquidity }
func (*LMNewUpkeepPeriodEvent) Kind() EventKind     { return EventLMNewUpkeepPeriod }
func (*LMUpdateUpkeepPeriodEvent) Kind() EventKind  { return EventLMUpdateUpkeep }
func (*NFTTransferEvent) Kind() EventKind           { return EventNFTTransfer }
func (*LaunchpadTokenCreatedEvent) Kind() EventKind { return EventLaunchpadTokenMade }

func newEvent(kind EventKind) (Event, error) {
	switch kind {
	case EventPoolCreated:
		return &PoolCreatedEvent{}, nil
	case EventInitialize:
		return &InitializeEvent{}, nil
	case EventSwap:
		return &SwapEvent{}, nil
	case EventMint:
		return &MintEvent{}, nil
	case EventBurn:
		return &BurnEvent{}, nil
	case EventCollect:
		return &CollectEvent{}, nil
	case EventLMAddPool:
		return &LMAddPoolEvent{}, nil
	case EventLMSetPool:
		return &LMSetPoolEvent{}, nil
	case EventLMDeposit:
		return &LMDepositEvent{}, nil
	case EventLMWithdraw:
		return &LMWithdrawEvent{}, nil
	case EventLMHarvest:
		return &LMHarvestEvent{}, nil
	case EventLMUpdateLiquidity:
		return &LMUpdateLiquidityEvent{}, nil
	case EventLMNewUpkeepPeriod:
		return &LMNewUpkeepPeriodEvent{}, nil
	case EventLMUpdateUpkeep:
		return &LMUpdateUpkeepPeriodEvent{}, nil
	case EventNFTTransfer:
		return &NFTTransferEvent{}, nil
	case EventLaunchpadTokenMade:
		return &LaunchpadTokenCreatedEvent{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventKind, kind)
	}
}

// Decode unpacks the typed payload of the envelope
func (e *Envelope) Decode() (Event, error) {
	ev, err := newEvent(e.Kind)
	if err != nil {
		return nil, err
	}
	if len(e.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if err = json.Unmarshal(e.Payload, ev); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, e.Kind, err)
	}
	e.Meta.Normalize()
	if err = e.checkID(); err != nil {
		return nil, err
	}
	return ev, nil
}

// checkID rejects envelopes whose producer id names another log
func (e *Envelope) checkID() error {
	if e.ID == "" {
		return nil
	}
	parsed, err := ParseEventID(e.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !parsed.Matches(e.Meta) {
		return fmt.Errorf("%w: id %s does not match meta %s", ErrMalformedEvent, e.ID, e.Meta.EventID())
	}
	return nil
}

// ParseEnvelope decodes the wire form of one event
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformedEvent, err)
	}
	return &env, nil
}

// IsPermanent reports errors that no redelivery can fix
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedEvent) || errors.Is(err, ErrUnknownEventKind) || errors.Is(err, ErrEmptyPayload)
}

// NewEnvelope packs a typed event, used by tools and tests
func NewEnvelope(meta EventMeta, ev Event) (*Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", ev.Kind(), err)
	}
	return &Envelope{ID: meta.EventID(), Kind: ev.Kind(), Meta: meta, Payload: payload}, nil
}
