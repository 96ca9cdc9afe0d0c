package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	Window    WindowConfig    `yaml:"window"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// IndexerConfig selects the chain and tunes the core
type IndexerConfig struct {
	Network string `yaml:"network"` // story-testnet|odyssey-testnet
	Store   string `yaml:"store"`   // memory|redis|postgres

	// token metadata is read over eth_call when set
	RPCURL     string        `yaml:"rpc_url"`
	RPCTimeout time.Duration `yaml:"rpc_timeout"`

	// optional per-deployment additions on top of the built-in chain config
	FactoryAddress                     string          `yaml:"factory_address"`
	StablecoinWrappedNativePoolAddress string          `yaml:"stablecoin_wrapped_native_pool_address"`
	StablecoinIsToken0                 *bool           `yaml:"stablecoin_is_token0"`
	WrappedNativeAddress               string          `yaml:"wrapped_native_address"`
	MinimumNativeLocked                string          `yaml:"minimum_native_locked"`
	ExtraWhitelist                     []string        `yaml:"extra_whitelist"`
	ExtraStablecoins                   []string        `yaml:"extra_stablecoins"`
	PoolsToSkip                        []string        `yaml:"pools_to_skip"`
	TokenOverrides                     []TokenOverride `yaml:"token_overrides"`
	RewardToken                        string          `yaml:"reward_token"`

	Guard GuardConfig `yaml:"guard"`
}

// TokenOverride replaces metadata that would otherwise be fetched from the chain
type TokenOverride struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals int64  `yaml:"decimals"`
}

type GuardConfig struct {
	UnstablePeriod         time.Duration `yaml:"unstable_period"`
	MaxNativePriceUSD      string        `yaml:"max_native_price_usd"`
	FallbackNativePriceUSD string        `yaml:"fallback_native_price_usd"`
	MaxPriceDeviation      string        `yaml:"max_price_deviation"`
}

type JWTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Alg            string        `yaml:"alg"` // RS256
	PublicKeyPath  string        `yaml:"public_key_path"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Audience       string        `yaml:"audience"`
	Issuer         string        `yaml:"issuer"`
	Leeway         time.Duration `yaml:"leeway"`
	RequiredScope  string        `yaml:"required_scope"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// RateBucket is one redis token bucket
type RateBucket struct {
	RefillPerSec int           `yaml:"refill_per_sec"`
	Burst        int           `yaml:"burst"`
	TTL          time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	Enabled            bool       `yaml:"enabled"`
	ByJWT              RateBucket `yaml:"by_jwt"`
	ByIP               RateBucket `yaml:"by_ip"`
	TrustedProxiesList []string   `yaml:"trusted_proxies"`
}

type IngestConfig struct {
	BrokerType string     `yaml:"broker_type"` // nats|amqp
	NATS       NATSIngest `yaml:"nats"`
	AMQP       AMQPIngest `yaml:"amqp"`
}

type NATSIngest struct {
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

type AMQPIngest struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
	Key      string `yaml:"routing_key"`
	Prefetch int    `yaml:"prefetch"`
}

type DedupeConfig struct {
	Backend      string        `yaml:"backend"` // memory|redis
	TTL          time.Duration `yaml:"ttl"`
	Prefix       string        `yaml:"prefix"`
	JanitorEvery time.Duration `yaml:"janitor_every"`
	Bloom        BloomConfig   `yaml:"bloom"`
}

type BloomConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Key       string  `yaml:"key"`
	ErrorRate float64 `yaml:"error_rate"`
	Capacity  int64   `yaml:"capacity"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type PostgresConfig struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Table   string                 `yaml:"table"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL             string `yaml:"url"`
	Name            string `yaml:"name"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type WindowConfig struct {
	SnapshotKey      string        `yaml:"snapshot_key"`
	Grace            time.Duration `yaml:"grace"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// SchedulerConfig holds cron specs, seconds field included
type SchedulerConfig struct {
	WindowTick     string `yaml:"window_tick"`
	WindowSnapshot string `yaml:"window_snapshot"`
	StatsReport    string `yaml:"stats_report"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
}

type WSConfig struct {
	MaxConn           int           `yaml:"max_conn"`
	ReadLimitBytes    int64         `yaml:"read_limit_bytes"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SendBuffer        int           `yaml:"send_buffer"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
	WS   WSConfig   `yaml:"ws"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Path      string          `yaml:"path"` // prometheus scrape path, default /metrics
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return &cfg, nil
}
