package dedupe

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

var _ Deduper = (*MemoryDedupe)(nil)

type memEntry struct {
	expireAt int64 // unix nano
}

type MemoryDedupe struct {
	log     logger.Logger
	ttl     time.Duration
	mu      sync.RWMutex
	items   map[string]memEntry
	stopCh  chan struct{}
	stopped bool
}

// NewInMemoryDedupe is meant for a single indexer instance.
// ttl is how long an id stays marked; janitorEvery is the sweep period of expired ids, 0 disables the sweep
func NewInMemoryDedupe(log logger.Logger, ttl, janitorEvery time.Duration) *MemoryDedupe {
	m := &MemoryDedupe{
		log:    log,
		ttl:    ttl,
		items:  make(map[string]memEntry, 1024),
		stopCh: make(chan struct{}),
	}

	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	}

	return m
}

func (m *MemoryDedupe) Seen(_ context.Context, id string) (bool, error) {
	now := time.Now().UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[id]; ok && e.expireAt > now {
		return true, nil
	}

	m.items[id] = memEntry{expireAt: now + m.ttl.Nanoseconds()}
	m.log.Debugf("Marked event id=%s", id)

	return false, nil
}

func (m *MemoryDedupe) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// Len counts marked ids, expired ones not yet swept included
func (m *MemoryDedupe) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryDedupe) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.sweep(time.Now().UnixNano())
		}
	}
}

func (m *MemoryDedupe) sweep(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, e := range m.items {
		if e.expireAt <= now {
			delete(m.items, k)
		}
	}
}

// Close stops the janitor (if running)
func (m *MemoryDedupe) Close() {
	m.mu.Lock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
	m.mu.Unlock()
}
