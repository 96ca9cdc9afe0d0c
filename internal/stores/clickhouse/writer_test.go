package clickhouse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexindexer/internal/config"
	"dexindexer/internal/domain"
	"dexindexer/internal/testutil"
)

type sink struct {
	mu      sync.Mutex
	batches [][]domain.AuditRow
	err     error
}

func (s *sink) insert(_ context.Context, rows []domain.AuditRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]domain.AuditRow(nil), rows...))
	return s.err
}

func (s *sink) rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func newTestWriter(t *testing.T, cfg config.ClickHouseConfig, s *sink) *Writer {
	t.Helper()
	w := newWriter(testutil.Logger(), cfg)
	w.insert = s.insert
	w.start()
	return w
}

func row(id string) domain.AuditRow {
	return domain.AuditRow{Kind: "swap", ID: id, EventTime: time.Unix(1_700_000_000, 0).UTC(), AmountUSD: "1.5"}
}

// ========== Constructor ==========

func TestNewWriter_Validation(t *testing.T) {
	_, err := NewWriter(testutil.Logger(), nil, &Conn{})
	assert.ErrorContains(t, err, "config is required")

	_, err = NewWriter(testutil.Logger(), &config.ClickHouseConfig{}, nil)
	assert.ErrorContains(t, err, "clickhouse connection is required")
}

func TestNewWriter_Defaults(t *testing.T) {
	w := newWriter(testutil.Logger(), config.ClickHouseConfig{Writer: config.ClickHouseWriterConfig{MaxRetries: -1}})

	assert.Equal(t, 1000, w.cfg.Writer.BatchMaxRows)
	assert.Equal(t, 200*time.Millisecond, w.cfg.Writer.BatchMaxInterval)
	assert.Equal(t, 0, w.cfg.Writer.MaxRetries)
	assert.Contains(t, w.query, "INSERT INTO audit_events")
}

// ========== Batching ==========

func TestWriter_FlushesBySize(t *testing.T) {
	s := &sink{}
	w := newTestWriter(t, config.ClickHouseConfig{Writer: config.ClickHouseWriterConfig{
		BatchMaxRows:     2,
		BatchMaxInterval: time.Hour,
	}}, s)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, w.Enqueue(row(id)))
	}

	assert.Eventually(t, func() bool { return s.rows() == 4 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Close(context.Background()))

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.batches, 2)
	assert.Equal(t, "a", s.batches[0][0].ID)
	assert.Equal(t, "d", s.batches[1][1].ID)
}

func TestWriter_FlushesByInterval(t *testing.T) {
	s := &sink{}
	w := newTestWriter(t, config.ClickHouseConfig{Writer: config.ClickHouseWriterConfig{
		BatchMaxRows:     100,
		BatchMaxInterval: 10 * time.Millisecond,
	}}, s)
	defer w.Close(context.Background())

	require.NoError(t, w.Enqueue(row("a")))

	assert.Eventually(t, func() bool { return s.rows() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWriter_CloseFlushesPending(t *testing.T) {
	s := &sink{}
	w := newTestWriter(t, config.ClickHouseConfig{Writer: config.ClickHouseWriterConfig{
		BatchMaxRows:     100,
		BatchMaxInterval: time.Hour,
	}}, s)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, w.Enqueue(row(id)))
	}
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, 3, s.rows())
	assert.ErrorIs(t, w.Enqueue(row("late")), ErrWriterClosed)
	assert.NoError(t, w.Close(context.Background()), "second close is a noop")
}

func TestWriter_ReportsFlushErrors(t *testing.T) {
	s := &sink{err: errors.New("clickhouse down")}
	w := newWriter(testutil.Logger(), config.ClickHouseConfig{Writer: config.ClickHouseWriterConfig{
		BatchMaxRows:     1,
		BatchMaxInterval: time.Hour,
	}})
	w.insert = s.insert

	var (
		mu     sync.Mutex
		failed int
	)
	w.OnFlush = func(rows int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed += rows
		}
	}
	w.start()

	require.NoError(t, w.Enqueue(row("a")))
	require.NoError(t, w.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, failed)
}

func TestDecimalOrZero(t *testing.T) {
	assert.Equal(t, "1.5", decimalOrZero("1.5").String())
	assert.True(t, decimalOrZero("").IsZero())
}
