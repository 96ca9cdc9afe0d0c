package window

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrEmptySnapshot = errors.New("empty snapshot data")

const snapshotVersion = 2

// Snapshot is the gob form of every token window kept in Redis
type Snapshot struct {
	Version int
	TakenAt time.Time
	GraceMs int64
	WM      time.Time
	Head    int64
	Tokens  map[string]snapshotToken
}

type snapshotToken struct {
	Token       string
	Slots       []snapshotSlot // non-empty slots only
	LastUpdated time.Time
}

type snapshotSlot struct {
	Minute int64 // absolute unix minute
	VolUSD decimal.Decimal
	Trades int64
	Buys   int64
	Sells  int64
}

func marshalSnapshot(state map[string]*tokenState, watermark time.Time, head int64, grace time.Duration) ([]byte, error) {
	snap := Snapshot{
		Version: snapshotVersion,
		TakenAt: time.Now().UTC(),
		GraceMs: grace.Milliseconds(),
		WM:      watermark,
		Head:    head,
		Tokens:  make(map[string]snapshotToken, len(state)),
	}

	for key, ts := range state {
		if ts == nil {
			continue
		}

		compact := make([]snapshotSlot, 0, 64)
		for i := range ts.slots {
			s := &ts.slots[i]
			if s.empty() {
				continue
			}
			compact = append(compact, snapshotSlot{
				Minute: s.minute,
				VolUSD: s.volUSD,
				Trades: s.trades,
				Buys:   s.buys,
				Sells:  s.sells,
			})
		}

		snap.Tokens[key] = snapshotToken{
			Token:       ts.token,
			Slots:       compact,
			LastUpdated: ts.lastUpdated,
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return buf.Bytes(), nil
}

func unmarshalSnapshot(data []byte) (map[string]*tokenState, time.Time, int64, error) {
	if len(data) == 0 {
		return nil, time.Time{}, 0, ErrEmptySnapshot
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, time.Time{}, 0, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if snap.Version != snapshotVersion {
		return nil, time.Time{}, 0, fmt.Errorf("unsupported snapshot version: %d", snap.Version)
	}

	state := make(map[string]*tokenState, len(snap.Tokens))
	for key, st := range snap.Tokens {
		ts := newTokenState(st.Token)
		ts.lastUpdated = st.LastUpdated

		for _, s := range st.Slots {
			if s.Minute < 0 {
				continue
			}
			ts.slots[s.Minute%minutesPerDay] = slot{
				minute: s.Minute,
				volUSD: s.VolUSD,
				trades: s.Trades,
				buys:   s.Buys,
				sells:  s.Sells,
			}
		}

		ts.recompute(snap.Head)
		state[key] = ts
	}

	return state, snap.WM, snap.Head, nil
}
