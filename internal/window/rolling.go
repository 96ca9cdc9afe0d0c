package window

import (
	"time"

	"github.com/shopspring/decimal"

	"dexindexer/internal/domain"
)

const minutesPerDay = 1440

// slot is one minute of activity; minute is the absolute unix minute so a reused ring slot is detected
type slot struct {
	minute int64
	volUSD decimal.Decimal
	trades int64
	buys   int64
	sells  int64
}

func (s *slot) empty() bool {
	return s.trades == 0 && s.volUSD.IsZero()
}

type agg struct {
	volUSD decimal.Decimal
	trades int64
	buys   int64
	sells  int64
}

func (a *agg) add(s *slot) {
	a.volUSD = a.volUSD.Add(s.volUSD)
	a.trades += s.trades
	a.buys += s.buys
	a.sells += s.sells
}

func (a *agg) toDomain() domain.Agg {
	return domain.Agg{
		VolumeUSD: a.volUSD,
		Trades:    a.trades,
		Buys:      a.buys,
		Sells:     a.sells,
	}
}

// tokenState is a 24h ring of minute slots plus the cached window sums at computedAt
type tokenState struct {
	token string
	slots []slot

	w5m, w1h, w24h agg
	computedAt     int64 // head minute the sums are valid for

	lastUpdated time.Time
}

func newTokenState(token string) *tokenState {
	return &tokenState{
		token:      token,
		slots:      make([]slot, minutesPerDay),
		computedAt: -1,
	}
}

// apply adds delta at minute; the caller guarantees minute <= head
func (ts *tokenState) apply(minute int64, delta *slot, head int64, eventTime time.Time) {
	if ts.computedAt != head {
		ts.recompute(head)
	}

	s := &ts.slots[minute%minutesPerDay]
	if s.minute != minute {
		*s = slot{minute: minute}
	}
	s.volUSD = s.volUSD.Add(delta.volUSD)
	s.trades += delta.trades
	s.buys += delta.buys
	s.sells += delta.sells

	dist := head - minute
	if dist < minutesPerDay {
		ts.w24h.add(delta)
	}
	if dist < 60 {
		ts.w1h.add(delta)
	}
	if dist < 5 {
		ts.w5m.add(delta)
	}

	if eventTime.After(ts.lastUpdated) {
		ts.lastUpdated = eventTime
	}
}

func (ts *tokenState) recompute(head int64) {
	ts.w5m, ts.w1h, ts.w24h = agg{}, agg{}, agg{}

	for i := range ts.slots {
		s := &ts.slots[i]
		if s.empty() {
			continue
		}
		dist := head - s.minute
		if dist < 0 || dist >= minutesPerDay {
			continue
		}
		ts.w24h.add(s)
		if dist < 60 {
			ts.w1h.add(s)
		}
		if dist < 5 {
			ts.w5m.add(s)
		}
	}
	ts.computedAt = head
}

func (ts *tokenState) windows(head int64) domain.Windows {
	if ts.computedAt != head {
		ts.recompute(head)
	}
	return domain.Windows{
		W5m:  ts.w5m.toDomain(),
		W1h:  ts.w1h.toDomain(),
		W24h: ts.w24h.toDomain(),
	}
}

// expired is true once no slot can fall inside the 24h window any more
func (ts *tokenState) expired(head int64) bool {
	return head-ts.lastUpdated.Unix()/60 >= minutesPerDay
}
