package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Agg is the rolling activity of one token over a window
type Agg struct {
	VolumeUSD decimal.Decimal `json:"volume_usd"`
	Trades    int64           `json:"trades"`
	Buys      int64           `json:"buys"`
	Sells     int64           `json:"sells"`
}

type Windows struct {
	W5m  Agg `json:"w5m"`
	W1h  Agg `json:"w1h"`
	W24h Agg `json:"w24h"`
}

// TokenWindowsPatch is pushed to subscribers after a swap moved a token's windows
type TokenWindowsPatch struct {
	Topic       string    `json:"topic"`
	Token       string    `json:"token"`
	Windows     Windows   `json:"windows"`
	GeneratedAt time.Time `json:"generated_at"`
}
