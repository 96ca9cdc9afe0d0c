package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	"dexindexer/internal/domain"
)

var ErrWriterClosed = errors.New("clickhouse writer closed")

// AuditWriter ships append-only records to the audit store
type AuditWriter interface {
	Enqueue(row domain.AuditRow) error
	Close(ctx context.Context) error
}

var _ AuditWriter = (*Writer)(nil)

// Writer batches audit rows by size or interval and inserts them with retries
type Writer struct {
	log logger.Logger

	conn  ch.Conn
	cfg   config.ClickHouseConfig
	query string

	// insert sends one batch; replaced in tests
	insert func(ctx context.Context, rows []domain.AuditRow) error
	// OnFlush observes every flush outcome (rows, error)
	OnFlush func(rows int, err error)

	inCh      chan domain.AuditRow
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWriter(log logger.Logger, cfg *config.ClickHouseConfig, conn *Conn) (*Writer, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the clickhouse writer")
	}
	if conn == nil {
		return nil, errors.New("clickhouse connection is required to the clickhouse writer")
	}

	w := newWriter(log, *cfg)
	w.conn = conn.Native
	w.insert = w.insertBatch
	w.start()

	return w, nil
}

func newWriter(log logger.Logger, cfg config.ClickHouseConfig) *Writer {
	if cfg.Writer.BatchMaxRows <= 0 {
		cfg.Writer.BatchMaxRows = 1000
	}
	if cfg.Writer.BatchMaxInterval <= 0 {
		cfg.Writer.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.Writer.MaxRetries < 0 {
		cfg.Writer.MaxRetries = 0
	}
	if cfg.Writer.RetryBackoff <= 0 {
		cfg.Writer.RetryBackoff = 200 * time.Millisecond
	}

	return &Writer{
		log:      log,
		cfg:      cfg,
		query:    fmt.Sprintf(insertQuery, tableName(cfg.Table)),
		inCh:     make(chan domain.AuditRow, 8192),
		closedCh: make(chan struct{}),
	}
}

func (w *Writer) start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Writer) Enqueue(row domain.AuditRow) error {
	select {
	case <-w.closedCh:
		return ErrWriterClosed
	default:
	}

	select {
	case w.inCh <- row:
		return nil
	case <-w.closedCh:
		return ErrWriterClosed
	}
}

// Close flushes queued rows and stops the loop
func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]domain.AuditRow, 0, w.cfg.Writer.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.Writer.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		err := w.insert(context.Background(), batch)
		if err != nil {
			w.log.Errorf("Failed to insert %d audit rows to clickhouse, error=%v", len(batch), err)
		}
		if w.OnFlush != nil {
			w.OnFlush(len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-w.inCh:
			batch = append(batch, row)
			if len(batch) >= w.cfg.Writer.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.closedCh:
			for {
				select {
				case row := <-w.inCh:
					batch = append(batch, row)
					if len(batch) >= w.cfg.Writer.BatchMaxRows {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) insertBatch(ctx context.Context, rows []domain.AuditRow) error {
	backoff := w.cfg.Writer.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= w.cfg.Writer.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		if lastErr = w.sendOnce(ctx, rows); lastErr == nil {
			return nil
		}
	}

	return lastErr
}

func (w *Writer) sendOnce(ctx context.Context, rows []domain.AuditRow) error {
	batch, err := w.conn.PrepareBatch(ctx, w.query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i := range rows {
		r := &rows[i]
		if err = batch.Append(
			r.Kind,
			r.ID,
			r.EventTime,
			r.TxHash,
			r.LogIndex,
			r.Pool,
			r.Token0,
			r.Token1,
			r.Actor,
			r.Origin,
			r.Amount,
			decimalOrZero(r.Amount0),
			decimalOrZero(r.Amount1),
			decimalOrZero(r.AmountUSD),
			r.TickLower,
			r.TickUpper,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append row %s: %w", r.ID, err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

const insertQuery = `
INSERT INTO %s (
	kind, id, event_time, tx_hash, log_index, pool, token0, token1,
	actor, origin, amount, amount0, amount1, amount_usd, tick_lower, tick_upper
)`
