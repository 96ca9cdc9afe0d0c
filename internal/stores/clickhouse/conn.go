package clickhouse

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"dexindexer/internal/config"
)

type Conn struct {
	Native ch.Conn
}

func New(ctx context.Context, cfg *config.ClickHouseConfig) (*Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the clickhouse client")
	}
	opts, err := ch.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse clickhouse DSN: %w", err)
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	if opts.Compression == nil {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}

	opts.ClientInfo = ch.ClientInfo{
		Products: []struct{ Name, Version string }{
			{Name: "dexindexer", Version: "0.1.0"},
		},
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err = conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return &Conn{Native: conn}, nil
}

// EnsureSchema creates the audit table when missing
func (c *Conn) EnsureSchema(ctx context.Context, table string) error {
	if err := c.Native.Exec(ctx, fmt.Sprintf(auditTableDDL, tableName(table))); err != nil {
		return fmt.Errorf("failed to create clickhouse table %s: %w", tableName(table), err)
	}
	return nil
}

func (c *Conn) Health(ctx context.Context) error {
	return c.Native.Ping(ctx)
}

func (c *Conn) Close() error {
	return c.Native.Close()
}

const auditTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
	kind        LowCardinality(String),
	id          String,
	event_time  DateTime,
	tx_hash     String,
	log_index   UInt32,
	pool        String,
	token0      String,
	token1      String,
	actor       String,
	origin      String,
	amount      String,
	amount0     Decimal(76, 36),
	amount1     Decimal(76, 36),
	amount_usd  Decimal(76, 36),
	tick_lower  Int32,
	tick_upper  Int32
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(event_time)
ORDER BY (kind, pool, event_time, id)`

func tableName(t string) string {
	if t == "" {
		return "audit_events"
	}
	return t
}
