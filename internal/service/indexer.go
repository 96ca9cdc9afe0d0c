package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/dedupe"
	"dexindexer/internal/domain"
	"dexindexer/internal/handlers"
	"dexindexer/internal/metrics"
	"dexindexer/internal/pubsub"
	"dexindexer/internal/store"
	"dexindexer/internal/stores/clickhouse"
	"dexindexer/internal/window"
)

var (
	ErrNotFound = errors.New("entity not found")
)

// Deps wires the indexer; everything except Log, Backend and Handler is optional
type Deps struct {
	Log         logger.Logger
	Backend     store.Backend
	Handler     *handlers.Handler
	Deduper     dedupe.Deduper
	Broadcaster pubsub.Broadcaster
	Audit       clickhouse.AuditWriter
	Window      window.WindowEngine
	Metrics     *metrics.Metrics
}

// Stats is a point-in-time view of the processing counters
type Stats struct {
	Processed  uint64 `json:"processed"`
	Duplicates uint64 `json:"duplicates"`
	Failed     uint64 `json:"failed"`
	LastBlock  uint64 `json:"last_block"`
}

// Indexer is the only write path of the dataset:
// dedupe -> decode -> session -> handlers -> commit -> broadcast -> audit -> windows.
// Events are applied one at a time in arrival order.
type Indexer struct {
	log         logger.Logger
	backend     store.Backend
	handler     *handlers.Handler
	deduper     dedupe.Deduper
	broadcaster pubsub.Broadcaster
	audit       clickhouse.AuditWriter
	window      window.WindowEngine
	metrics     *metrics.Metrics

	mu sync.Mutex

	processed  atomic.Uint64
	duplicates atomic.Uint64
	failed     atomic.Uint64
	lastBlock  atomic.Uint64
}

func NewIndexer(deps *Deps) (*Indexer, error) {
	if deps == nil || deps.Log == nil {
		return nil, errors.New("logger is required to the indexer")
	}
	if deps.Backend == nil {
		return nil, errors.New("entity backend is required to the indexer")
	}
	if deps.Handler == nil {
		return nil, errors.New("event handler is required to the indexer")
	}

	return &Indexer{
		log:         deps.Log,
		backend:     deps.Backend,
		handler:     deps.Handler,
		deduper:     deps.Deduper,
		broadcaster: deps.Broadcaster,
		audit:       deps.Audit,
		window:      deps.Window,
		metrics:     deps.Metrics,
	}, nil
}

// ProcessRaw decodes the wire envelope and processes it
func (ix *Indexer) ProcessRaw(ctx context.Context, data []byte) error {
	env, err := domain.ParseEnvelope(data)
	if err != nil {
		ix.failed.Add(1)
		ix.observe("unknown", metrics.StatusMalformed, time.Now())
		return err
	}
	return ix.Process(ctx, env)
}

// Process applies one event; a failed event is forgotten by the deduper so it can be redelivered
func (ix *Indexer) Process(ctx context.Context, env *domain.Envelope) (err error) {
	started := time.Now()
	kind := string(env.Kind)
	id := env.Meta.EventID()

	if ix.deduper != nil {
		seen, err := ix.deduper.Seen(ctx, id)
		if err != nil {
			ix.failed.Add(1)
			ix.observe(kind, metrics.StatusFailed, started)
			return fmt.Errorf("dedupe check failed for %s: %w", id, err)
		}
		if seen {
			ix.duplicates.Add(1)
			ix.observe(kind, metrics.StatusDuplicate, started)
			ix.log.Debugf("Duplicate event ignored: %s", id)
			return nil
		}
	}

	defer func() {
		if err == nil {
			return
		}
		ix.failed.Add(1)
		status := metrics.StatusFailed
		if domain.IsPermanent(err) {
			status = metrics.StatusMalformed
		}
		ix.observe(kind, status, started)

		if ix.deduper != nil && !domain.IsPermanent(err) {
			if ferr := ix.deduper.Forget(context.WithoutCancel(ctx), id); ferr != nil {
				ix.log.Errorf("Failed to forget event %s: %v", id, ferr)
			}
		}
	}()

	ev, err := env.Decode()
	if err != nil {
		return fmt.Errorf("event %s: %w", id, err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	sess := store.NewSession(ix.backend)
	if err = ix.handler.Dispatch(ctx, sess, env.Meta, ev); err != nil {
		return fmt.Errorf("failed to apply %s %s: %w", kind, id, err)
	}

	changed, err := sess.Commit(ctx)
	if err != nil {
		return fmt.Errorf("failed to commit %s %s: %w", kind, id, err)
	}

	ix.publish(ctx, env.Meta, changed)

	ix.processed.Add(1)
	ix.lastBlock.Store(env.Meta.BlockNumber)
	if ix.metrics != nil {
		ix.metrics.EntitiesCommitted.Add(float64(len(changed)))
		ix.metrics.LastBlock.Set(float64(env.Meta.BlockNumber))
	}
	ix.observe(kind, metrics.StatusOK, started)

	ix.log.Debugf("Event processed: %s %s, %d entities", kind, id, len(changed))
	return nil
}

// publish fans committed entities out; failures here never fail the event
func (ix *Indexer) publish(ctx context.Context, meta domain.EventMeta, changed []domain.Entity) {
	for _, e := range changed {
		if ix.broadcaster != nil {
			patch := &domain.EntityPatch{
				Kind:      e.EntityKind(),
				ID:        e.EntityID(),
				Block:     meta.BlockNumber,
				Timestamp: meta.Timestamp,
				Data:      e,
			}
			ix.broadcast(ctx, patch.Topic(), patch)
		}

		if rec, ok := e.(domain.Appendable); ok && ix.audit != nil {
			if err := ix.audit.Enqueue(rec.AuditRow()); err != nil {
				ix.log.Errorf("Failed to enqueue audit row %s: %v", rec.EntityID(), err)
			}
		}

		if swap, ok := e.(*domain.Swap); ok && ix.window != nil {
			ix.applyWindow(ctx, swap)
		}
	}
}

func (ix *Indexer) applyWindow(ctx context.Context, swap *domain.Swap) {
	patches, err := ix.window.Apply(ctx, swap)
	if errors.Is(err, window.ErrTooLate) {
		if ix.metrics != nil {
			ix.metrics.WindowLate.Inc()
		}
		return
	}
	if err != nil {
		ix.log.Errorf("Failed to apply swap %s to windows: %v", swap.ID, err)
		return
	}

	if ix.broadcaster == nil {
		return
	}
	for _, p := range patches {
		ix.broadcast(ctx, "window."+p.Topic, p)
	}
}

func (ix *Indexer) broadcast(ctx context.Context, subject string, data interface{}) {
	if err := ix.broadcaster.Publish(ctx, subject, data); err != nil {
		if ix.metrics != nil {
			ix.metrics.BroadcastErrors.Inc()
		}
		ix.log.Warnf("Failed to broadcast %s: %v", subject, err)
	}
}

func (ix *Indexer) observe(kind, status string, started time.Time) {
	if ix.metrics != nil {
		ix.metrics.ObserveEvent(kind, status, started)
	}
}

func (ix *Indexer) Stats() Stats {
	return Stats{
		Processed:  ix.processed.Load(),
		Duplicates: ix.duplicates.Load(),
		Failed:     ix.failed.Load(),
		LastBlock:  ix.lastBlock.Load(),
	}
}

// CheckDependency pings the store and the broadcaster
func (ix *Indexer) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, 2)

	if err := ix.backend.Health(ctx); err != nil {
		errDependency = append(errDependency, fmt.Sprintf("store: %v", err))
	}

	if ix.broadcaster != nil {
		if err := ix.broadcaster.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("broadcaster: %v", err))
		}
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %s", strings.Join(errDependency, "; "))
	}
	return nil
}
