package window

import "time"

// Watermark only moves forward and sets the lower limit of an acceptable event time
type Watermark struct {
	grace   time.Duration
	current time.Time
	initted bool
}

func newWatermark(grace time.Duration) *Watermark {
	return &Watermark{grace: grace}
}

func (w *Watermark) Advance(now time.Time) {
	next := now.UTC().Add(-w.grace)
	if !w.initted || next.After(w.current) {
		w.current = next
		w.initted = true
	}
}

func (w *Watermark) IsLate(t time.Time) bool {
	if !w.initted {
		return false
	}
	return t.UTC().Before(w.current)
}

func (w *Watermark) Current() time.Time {
	return w.current
}
