package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	api "dexindexer/internal/api/http"
	"dexindexer/internal/api/http/handlers"
	"dexindexer/internal/api/http/mw"
	"dexindexer/internal/api/ws"
	"dexindexer/internal/chain"
	"dexindexer/internal/config"
	"dexindexer/internal/dedupe"
	rdbdedupe "dexindexer/internal/dedupe/redis"
	evhandlers "dexindexer/internal/handlers"
	"dexindexer/internal/ingest"
	"dexindexer/internal/metrics"
	"dexindexer/internal/pubsub"
	"dexindexer/internal/pubsub/nats"
	"dexindexer/internal/scheduler"
	"dexindexer/internal/security"
	"dexindexer/internal/service"
	"dexindexer/internal/store"
	"dexindexer/internal/store/memory"
	"dexindexer/internal/stores/clickhouse"
	"dexindexer/internal/stores/postgres"
	"dexindexer/internal/stores/redis"
	"dexindexer/internal/window"
)

const cleanupTimeout = 10 * time.Second

type Container struct {
	app *App
	log logger.Logger

	indexer *service.Indexer
	httpSrv *api.Server
	hub     *ws.Hub
}

func (c *Container) Start() error {
	return c.app.Start()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

func (c *Container) Indexer() *service.Indexer {
	return c.indexer
}

// closers runs registered cleanups in reverse order
type closers struct {
	log logger.Logger
	fns []func(ctx context.Context)
}

func (c *closers) add(fn func(ctx context.Context)) {
	c.fns = append(c.fns, fn)
}

func (c *closers) run() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i](ctx)
	}
	c.fns = nil
	c.log.Info("Successfully cleaned up dependency")
}

// Build constructs the whole indexer; the returned func releases everything Build opened
func Build(ctx context.Context, cfg *config.Config) (c *Container, cleanup func(), err error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required to build the app")
	}

	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	cl := &closers{log: lg}
	defer func() {
		if err != nil {
			cl.run()
		}
	}()

	m := metrics.New()

	profiler, err := metrics.InitPProf(cfg.App.InstanceID, &cfg.Metrics.Pyroscope)
	if err != nil {
		return nil, nil, fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.Metrics.Pyroscope.AppName)
		cl.add(func(context.Context) {
			if err := profiler.Stop(); err != nil {
				lg.Errorf("Failed to stop profiler: %v", err)
			}
		})
	}

	chainCfg, err := config.ResolveChain(&cfg.Indexer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve chain config: %w", err)
	}
	lg.Infof("Successfully resolve chain %s, factory=%s", cfg.Indexer.Network, chainCfg.FactoryAddress)

	// Redis client, shared by entity store, dedupe, window snapshots and rate limit
	var rdb *redis.Client
	if cfg.Stores.Redis.Addr != "" {
		if rdb, err = redis.New(ctx, &cfg.Stores.Redis); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis client: %w", err)
		}
		lg.Infof("Successfully initialize redis client, addr=%s", cfg.Stores.Redis.Addr)
		cl.add(func(context.Context) {
			if err := rdb.Close(); err != nil {
				lg.Errorf("Failed to close redis client: %v", err)
			}
		})
	}

	backend, err := buildBackend(ctx, lg, cfg, rdb, cl)
	if err != nil {
		return nil, nil, err
	}

	deduper, err := buildDeduper(ctx, lg, cfg, rdb, cl)
	if err != nil {
		return nil, nil, err
	}

	// Window engine, warmed from the last snapshot
	windowEngine, err := window.NewWindowEngine(lg, &cfg.Window)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize window engine: %w", err)
	}
	var snapshots *window.SnapshotStore
	if rdb != nil {
		if snapshots, err = window.NewSnapshotStore(&cfg.Window, rdb); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize window snapshot store: %w", err)
		}
		warmed, werr := snapshots.Warm(ctx, windowEngine)
		if werr != nil {
			lg.Warnf("Failed to warm window engine from snapshot: %v", werr)
		} else if warmed {
			lg.Infof("Successfully warm window engine, tokens=%d", len(windowEngine.Tokens()))
		}
		cl.add(func(ctx context.Context) {
			if err := snapshots.Persist(ctx, windowEngine); err != nil {
				lg.Errorf("Failed to persist window snapshot: %v", err)
			}
		})
	}
	lg.Info("Successfully initialize Window Engine")

	// Broadcasters: websocket hub always, NATS when configured
	hub, err := ws.NewHub(lg, &cfg.API.WS, m)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize websocket hub: %w", err)
	}
	cl.add(func(context.Context) { hub.Close() })
	fanout := pubsub.Fanout{hub}

	var natsCl *nats.Client
	if cfg.PubSub.NATS.URL != "" {
		if natsCl, err = nats.New(lg, &cfg.PubSub.NATS); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize nats client: %w", err)
		}
		cl.add(func(context.Context) {
			if err := natsCl.Close(); err != nil {
				lg.Errorf("Failed to close nats client: %v", err)
			}
		})
		fanout = append(fanout, natsCl)
	}

	// ClickHouse audit trail
	var audit clickhouse.AuditWriter
	if cfg.Stores.ClickHouse.Enabled {
		if audit, err = buildAudit(ctx, lg, cfg, m, cl); err != nil {
			return nil, nil, err
		}
	}

	// Token metadata over RPC
	var fetcher evhandlers.MetadataFetcher
	if cfg.Indexer.RPCURL != "" {
		ec, err := chain.Dial(ctx, cfg.Indexer.RPCURL)
		if err != nil {
			return nil, nil, err
		}
		cl.add(func(context.Context) { ec.Close() })
		if fetcher, err = chain.NewERC20Fetcher(ec, cfg.Indexer.RPCTimeout); err != nil {
			return nil, nil, err
		}
		lg.Info("Successfully initialize token metadata fetcher")
	}

	evHandler, err := evhandlers.New(lg, chainCfg, fetcher)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize event handler: %w", err)
	}

	indexer, err := service.NewIndexer(&service.Deps{
		Log:         lg,
		Backend:     backend,
		Handler:     evHandler,
		Deduper:     deduper,
		Broadcaster: fanout,
		Audit:       audit,
		Window:      windowEngine,
		Metrics:     m,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}
	lg.Info("Successfully initialize Indexer")

	consumer, err := ingest.New(lg, &cfg.Ingest, natsCl, indexer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize ingest consumer: %w", err)
	}
	lg.Infof("Successfully initialize %s consumer", brokerName(cfg.Ingest.BrokerType))

	jobs := scheduler.Jobs{
		WindowTick: func(context.Context) { windowEngine.Tick(time.Now()) },
		StatsReport: func(context.Context) {
			s := indexer.Stats()
			lg.Infof("Indexer stats: processed=%d duplicates=%d failed=%d last_block=%d ws_clients=%d",
				s.Processed, s.Duplicates, s.Failed, s.LastBlock, hub.Clients())
		},
	}
	if snapshots != nil {
		jobs.WindowSnapshot = func(ctx context.Context) error { return snapshots.Persist(ctx, windowEngine) }
	}
	sched, err := scheduler.New(lg, &cfg.Scheduler, jobs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	lg.Infof("Successfully initialize scheduler, jobs=%d", sched.Len())

	httpSrv, err := buildHTTP(lg, cfg, rdb, m, indexer, hub)
	if err != nil {
		return nil, nil, err
	}
	lg.Info("Successfully initialize HTTP server")

	c = &Container{
		app:     New(lg, httpSrv, consumer, sched),
		log:     lg,
		indexer: indexer,
		httpSrv: httpSrv,
		hub:     hub,
	}

	lg.Info("Successfully initialize Wiring")
	return c, cl.run, nil
}

func buildBackend(ctx context.Context, lg logger.Logger, cfg *config.Config, rdb *redis.Client, cl *closers) (store.Backend, error) {
	switch strings.ToLower(cfg.Indexer.Store) {
	case "", "memory":
		lg.Info("Successfully initialize in-memory entity store")
		return memory.New(), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis entity store requires stores.redis.addr")
		}
		s, err := redis.NewEntityStore(rdb, cfg.Stores.Redis.Prefix)
		if err != nil {
			return nil, err
		}
		lg.Info("Successfully initialize redis entity store")
		return s, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Stores.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres pool: %w", err)
		}
		cl.add(func(context.Context) { pool.Close() })
		if cfg.Stores.Postgres.Migrate {
			if err = pool.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("failed to migrate postgres: %w", err)
			}
		}
		s, err := postgres.NewEntityStore(pool)
		if err != nil {
			return nil, err
		}
		lg.Info("Successfully initialize postgres entity store")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown entity store %q", cfg.Indexer.Store)
	}
}

func buildDeduper(ctx context.Context, lg logger.Logger, cfg *config.Config, rdb *redis.Client, cl *closers) (dedupe.Deduper, error) {
	switch strings.ToLower(cfg.Dedupe.Backend) {
	case "", "memory":
		d := dedupe.NewInMemoryDedupe(lg, cfg.Dedupe.TTL, cfg.Dedupe.JanitorEvery)
		cl.add(func(context.Context) { d.Close() })
		lg.Info("Successfully initialize in-memory deduper")
		return d, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis deduper requires stores.redis.addr")
		}

		var bloom *rdbdedupe.Bloom
		if cfg.Dedupe.Bloom.Enabled {
			b, err := rdbdedupe.NewBloom(&cfg.Dedupe.Bloom, rdb)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize bloom: %w", err)
			}
			if err = b.Ensure(ctx); err != nil {
				lg.Warnf("Bloom filter unavailable, dedupe falls back to SETNX only: %v", err)
			} else {
				bloom = b
				lg.Infof("Successfully initialize Bloom by key=%s, cap=%d, errRate=%f", b.Key, b.Capacity, b.ErrorRate)
			}
		}

		d, err := rdbdedupe.NewRedisDeduper(lg, &cfg.Dedupe, rdb, bloom)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis deduper: %w", err)
		}
		lg.Infof("Successfully initialize redis deduper by prefix %s", cfg.Dedupe.Prefix)
		return d, nil
	default:
		return nil, fmt.Errorf("unknown dedupe backend %q", cfg.Dedupe.Backend)
	}
}

func buildAudit(ctx context.Context, lg logger.Logger, cfg *config.Config, m *metrics.Metrics, cl *closers) (clickhouse.AuditWriter, error) {
	ch, err := clickhouse.New(ctx, &cfg.Stores.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize clickhouse client: %w", err)
	}
	cl.add(func(context.Context) {
		if err := ch.Close(); err != nil {
			lg.Errorf("Failed to close clickhouse client: %v", err)
		}
	})
	lg.Infof("Successfully initialize clickhouse client, url=%s", strings.Split(cfg.Stores.ClickHouse.DSN, "?")[0])

	if err = ch.EnsureSchema(ctx, cfg.Stores.ClickHouse.Table); err != nil {
		return nil, fmt.Errorf("failed to ensure clickhouse schema: %w", err)
	}

	w, err := clickhouse.NewWriter(lg, &cfg.Stores.ClickHouse, ch)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize clickhouse writer: %w", err)
	}
	w.OnFlush = m.ObserveAuditFlush
	cl.add(func(ctx context.Context) {
		if err := w.Close(ctx); err != nil {
			lg.Errorf("Failed to close clickhouse writer: %v", err)
		}
	})
	lg.Info("Successfully initialize clickhouse writer")
	return w, nil
}

func buildHTTP(lg logger.Logger, cfg *config.Config, rdb *redis.Client, m *metrics.Metrics, ix *service.Indexer, hub *ws.Hub) (*api.Server, error) {
	var mws api.Middlewares
	mws.Log = mw.NewLogging(lg, m)
	mws.Gzip = mw.NewGzip(0, lg)
	if cfg.API.HTTP.CORS.Enabled {
		mws.CORS = mw.NewCORS(&cfg.API.HTTP.CORS)
	}

	var verifier security.Verifier
	if cfg.Security.JWT.Enabled {
		v, err := security.NewRS256Verifier(&cfg.Security.JWT)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT verifier: %w", err)
		}
		verifier = v
		if mws.JWT, err = mw.NewJWTMiddleware(v); err != nil {
			return nil, err
		}
		lg.Info("Successfully initialize JWT-Verifier")
	}

	if cfg.RateLimit.Enabled {
		if rdb == nil {
			lg.Warn("Rate limit enabled without redis, skipping")
		} else {
			mws.RateLimit = mw.NewRateLimit(&cfg.RateLimit, rdb, verifier)
			mws.RateLimit.Log = lg
		}
	}

	router := api.BuildRouter(handlers.NewHandler(lg, ix), m.Handler(), hub, mws)

	return api.NewServer(&api.ServerDeps{
		Logger:  lg,
		Cfg:     &cfg.API.HTTP,
		Handler: router,
	})
}

func brokerName(t string) string {
	if t == "" {
		return "nats"
	}
	return t
}
