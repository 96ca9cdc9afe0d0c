package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// AuditRow is the flat form of an append-only record shipped to the audit store
type AuditRow struct {
	Kind      string
	ID        string
	EventTime time.Time
	TxHash    string
	LogIndex  uint32
	Pool      string
	Token0    string
	Token1    string
	Actor     string // sender for swaps, owner otherwise
	Origin    string
	Amount    string // liquidity delta, empty for swaps
	Amount0   string
	Amount1   string
	AmountUSD string
	TickLower int32
	TickUpper int32
}

type Swap struct {
	ID           string          `json:"id"`
	Transaction  string          `json:"transaction"`
	Timestamp    int64           `json:"timestamp"`
	Pool         string          `json:"pool"`
	Token0       string          `json:"token0"`
	Token1       string          `json:"token1"`
	Sender       string          `json:"sender"`
	Recipient    string          `json:"recipient"`
	Origin       string          `json:"origin"`
	Amount0      decimal.Decimal `json:"amount0"`
	Amount1      decimal.Decimal `json:"amount1"`
	AmountUSD    decimal.Decimal `json:"amount_usd"`
	SqrtPriceX96 *big.Int        `json:"sqrt_price_x96"`
	Tick         int32           `json:"tick"`
	LogIndex     uint32          `json:"log_index"`
	Filtered     bool            `json:"filtered"` // excluded from tracked volume by the price guard
}

func (s *Swap) EntityKind() Kind { return KindSwap }
func (s *Swap) EntityID() string { return s.ID }

func (s *Swap) AuditRow() AuditRow {
	return AuditRow{
		Kind:      string(KindSwap),
		ID:        s.ID,
		EventTime: time.Unix(s.Timestamp, 0).UTC(),
		TxHash:    s.Transaction,
		LogIndex:  s.LogIndex,
		Pool:      s.Pool,
		Token0:    s.Token0,
		Token1:    s.Token1,
		Actor:     s.Sender,
		Origin:    s.Origin,
		Amount0:   s.Amount0.String(),
		Amount1:   s.Amount1.String(),
		AmountUSD: s.AmountUSD.String(),
		TickLower: s.Tick,
		TickUpper: s.Tick,
	}
}

// LiquidityRecord is shared by Mint and Burn
type LiquidityRecord struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   int64           `json:"timestamp"`
	Pool        string          `json:"pool"`
	Token0      string          `json:"token0"`
	Token1      string          `json:"token1"`
	Owner       string          `json:"owner"`
	Sender      string          `json:"sender,omitempty"`
	Origin      string          `json:"origin"`
	Amount      *big.Int        `json:"amount"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	TickLower   int32           `json:"tick_lower"`
	TickUpper   int32           `json:"tick_upper"`
	LogIndex    uint32          `json:"log_index"`
}

func (r *LiquidityRecord) auditRow(kind Kind) AuditRow {
	amount := ""
	if r.Amount != nil {
		amount = r.Amount.String()
	}
	return AuditRow{
		Kind:      string(kind),
		ID:        r.ID,
		EventTime: time.Unix(r.Timestamp, 0).UTC(),
		TxHash:    r.Transaction,
		LogIndex:  r.LogIndex,
		Pool:      r.Pool,
		Token0:    r.Token0,
		Token1:    r.Token1,
		Actor:     r.Owner,
		Origin:    r.Origin,
		Amount:    amount,
		Amount0:   r.Amount0.String(),
		Amount1:   r.Amount1.String(),
		AmountUSD: r.AmountUSD.String(),
		TickLower: r.TickLower,
		TickUpper: r.TickUpper,
	}
}

type Mint struct {
	LiquidityRecord
}

func (m *Mint) EntityKind() Kind   { return KindMint }
func (m *Mint) EntityID() string   { return m.ID }
func (m *Mint) AuditRow() AuditRow { return m.auditRow(KindMint) }

type Burn struct {
	LiquidityRecord
}

func (b *Burn) EntityKind() Kind   { return KindBurn }
func (b *Burn) EntityID() string   { return b.ID }
func (b *Burn) AuditRow() AuditRow { return b.auditRow(KindBurn) }

type Collect struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   int64           `json:"timestamp"`
	Pool        string          `json:"pool"`
	Owner       string          `json:"owner"`
	Origin      string          `json:"origin"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	TickLower   int32           `json:"tick_lower"`
	TickUpper   int32           `json:"tick_upper"`
	LogIndex    uint32          `json:"log_index"`
}

func (c *Collect) EntityKind() Kind { return KindCollect }
func (c *Collect) EntityID() string { return c.ID }

func (c *Collect) AuditRow() AuditRow {
	return AuditRow{
		Kind:      string(KindCollect),
		ID:        c.ID,
		EventTime: time.Unix(c.Timestamp, 0).UTC(),
		TxHash:    c.Transaction,
		LogIndex:  c.LogIndex,
		Pool:      c.Pool,
		Actor:     c.Owner,
		Origin:    c.Origin,
		Amount0:   c.Amount0.String(),
		Amount1:   c.Amount1.String(),
		AmountUSD: c.AmountUSD.String(),
		TickLower: c.TickLower,
		TickUpper: c.TickUpper,
	}
}
