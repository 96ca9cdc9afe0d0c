package window

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	"dexindexer/internal/domain"
)

/*
	Engine keeps "live" 5m/1h/24h windows per token on top of minute buckets.
	Time is driven by the swaps themselves (block time) and by Tick from the scheduler.
*/

type WindowEngine interface {
	Apply(ctx context.Context, swap *domain.Swap) ([]*domain.TokenWindowsPatch, error)
	GetWindows(ctx context.Context, token string) (*domain.Windows, bool)
	Tokens() []string
	Snapshot(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, data []byte) error
	Tick(now time.Time)
}

var (
	// ErrTooLate is returned for a swap older than the watermark
	ErrTooLate = errors.New("event older than watermark")
)

var _ WindowEngine = (*Window)(nil)

type Window struct {
	log   logger.Logger
	grace time.Duration

	mw        sync.Mutex
	state     map[string]*tokenState // key = token address
	watermark *Watermark
	head      int64 // latest unix minute seen
}

func NewWindowEngine(log logger.Logger, cfg *config.WindowConfig) (*Window, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the window engine")
	}

	grace := cfg.Grace
	if grace <= 0 {
		grace = 2 * time.Minute
	}

	return &Window{
		log:       log,
		grace:     grace,
		state:     make(map[string]*tokenState, 1024),
		watermark: newWatermark(grace),
	}, nil
}

// Apply counts a swap for both of its tokens and returns one patch per token
func (w *Window) Apply(_ context.Context, swap *domain.Swap) ([]*domain.TokenWindowsPatch, error) {
	eventTime := time.Unix(swap.Timestamp, 0).UTC()

	w.mw.Lock()
	defer w.mw.Unlock()

	if w.watermark.IsLate(eventTime) {
		w.log.Debugf("Swap %s is too late (ts=%s, watermark=%s)", swap.ID, eventTime, w.watermark.Current())
		return nil, ErrTooLate
	}
	w.watermark.Advance(eventTime)

	minute := swap.Timestamp / 60
	w.head = max(w.head, minute)

	legs := []struct {
		token  string
		amount int // sign of the pool side amount
	}{
		{swap.Token0, swap.Amount0.Sign()},
		{swap.Token1, swap.Amount1.Sign()},
	}

	now := time.Now().UTC()
	patches := make([]*domain.TokenWindowsPatch, 0, len(legs))
	for _, leg := range legs {
		if leg.token == "" {
			continue
		}

		delta := &slot{minute: minute, volUSD: swap.AmountUSD, trades: 1}
		switch {
		case leg.amount > 0: // the pool received the token, the trader sold it
			delta.sells = 1
		case leg.amount < 0:
			delta.buys = 1
		}

		ts, ok := w.state[leg.token]
		if !ok {
			ts = newTokenState(leg.token)
			w.state[leg.token] = ts
		}
		ts.apply(minute, delta, w.head, eventTime)

		patches = append(patches, &domain.TokenWindowsPatch{
			Topic:       topicFor(leg.token),
			Token:       leg.token,
			Windows:     ts.windows(w.head),
			GeneratedAt: now,
		})
	}

	return patches, nil
}

// GetWindows returns the current windows of a token
func (w *Window) GetWindows(_ context.Context, token string) (*domain.Windows, bool) {
	w.mw.Lock()
	defer w.mw.Unlock()

	ts, ok := w.state[token]
	if !ok {
		return nil, false
	}

	out := ts.windows(w.head)
	return &out, true
}

// Tokens lists tracked tokens in address order
func (w *Window) Tokens() []string {
	w.mw.Lock()
	defer w.mw.Unlock()

	out := make([]string, 0, len(w.state))
	for k := range w.state {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot serializes the state for a warm start after restart
func (w *Window) Snapshot(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context canceled: %w", ctx.Err())
	default:
	}

	w.mw.Lock()
	defer w.mw.Unlock()

	var wm time.Time
	if w.watermark.initted {
		wm = w.watermark.current
	}

	data, err := marshalSnapshot(w.state, wm, w.head, w.grace)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	w.log.Infof("Created window snapshot: %d tokens, %d bytes", len(w.state), len(data))
	return data, nil
}

// Restore replaces the state with a snapshot
func (w *Window) Restore(_ context.Context, data []byte) error {
	if len(data) == 0 {
		return ErrEmptySnapshot
	}

	state, wm, head, err := unmarshalSnapshot(data)
	if err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	w.mw.Lock()
	defer w.mw.Unlock()

	w.state = state
	w.head = max(w.head, head)
	if !wm.IsZero() {
		w.watermark.current = wm
		w.watermark.initted = true
	}

	w.log.Infof("Restored window snapshot: %d tokens, watermark=%s", len(state), wm)
	return nil
}

// Tick moves the clock to now, drops idle tokens and refreshes the sums
func (w *Window) Tick(now time.Time) {
	now = now.UTC()

	w.mw.Lock()
	defer w.mw.Unlock()

	w.watermark.Advance(now)
	w.head = max(w.head, now.Unix()/60)

	for k, ts := range w.state {
		if ts.expired(w.head) {
			delete(w.state, k)
			continue
		}
		ts.recompute(w.head)
	}

	w.log.Debugf("Window tick: watermark=%s, tokens=%d", w.watermark.current, len(w.state))
}

func topicFor(token string) string {
	return "token:" + token
}
