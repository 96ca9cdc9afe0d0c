package handlers

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	"dexindexer/internal/domain"
	"dexindexer/internal/store"
)

// TokenMetadata is the static ERC-20 data read from the token contract
type TokenMetadata struct {
	Symbol      string
	Name        string
	Decimals    int64
	TotalSupply *big.Int
}

// MetadataFetcher reads token metadata from the chain
type MetadataFetcher interface {
	FetchToken(ctx context.Context, address string) (*TokenMetadata, error)
}

// Handler applies decoded chain events to the entities of one session.
// It never commits; the caller owns the unit of work.
type Handler struct {
	log     logger.Logger
	chain   *config.ChainConfig
	fetcher MetadataFetcher
}

// New builds a Handler; fetcher may be nil, then unknown tokens fall back to overrides or defaults
func New(log logger.Logger, chain *config.ChainConfig, fetcher MetadataFetcher) (*Handler, error) {
	if chain == nil {
		return nil, fmt.Errorf("config is required to the event handler")
	}

	return &Handler{
		log:     log,
		chain:   chain,
		fetcher: fetcher,
	}, nil
}

func (h *Handler) Chain() *config.ChainConfig {
	return h.chain
}

// Dispatch routes ev to its handler
func (h *Handler) Dispatch(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev domain.Event) error {
	switch e := ev.(type) {
	case *domain.PoolCreatedEvent:
		return h.HandlePoolCreated(ctx, sess, meta, e)
	case *domain.InitializeEvent:
		return h.HandleInitialize(ctx, sess, meta, e)
	case *domain.SwapEvent:
		return h.HandleSwap(ctx, sess, meta, e)
	case *domain.MintEvent:
		return h.HandleMint(ctx, sess, meta, e)
	case *domain.BurnEvent:
		return h.HandleBurn(ctx, sess, meta, e)
	case *domain.CollectEvent:
		return h.HandleCollect(ctx, sess, meta, e)
	case *domain.LMAddPoolEvent:
		return h.HandleLMAddPool(ctx, sess, meta, e)
	case *domain.LMSetPoolEvent:
		return h.HandleLMSetPool(ctx, sess, meta, e)
	case *domain.LMDepositEvent:
		return h.HandleLMDeposit(ctx, sess, meta, e)
	case *domain.LMWithdrawEvent:
		return h.HandleLMWithdraw(ctx, sess, meta, e)
	case *domain.LMHarvestEvent:
		return h.HandleLMHarvest(ctx, sess, meta, e)
	case *domain.LMUpdateLiquidityEvent:
		return h.HandleLMUpdateLiquidity(ctx, sess, meta, e)
	case *domain.LMNewUpkeepPeriodEvent:
		return h.HandleLMNewUpkeepPeriod(ctx, sess, meta, e)
	case *domain.LMUpdateUpkeepPeriodEvent:
		return h.HandleLMUpdateUpkeepPeriod(ctx, sess, meta, e)
	case *domain.NFTTransferEvent:
		return h.HandleNFTTransfer(ctx, sess, meta, e)
	case *domain.LaunchpadTokenCreatedEvent:
		return h.HandleLaunchpadTokenCreated(ctx, sess, meta, e)
	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownEventKind, ev)
	}
}

// poolContext is the entity set touched by every pool event
type poolContext struct {
	factory *domain.Factory
	bundle  *domain.Bundle
	pool    *domain.Pool
	token0  *domain.Token
	token1  *domain.Token
}

// loadPoolContext returns nil when any referenced entity is still absent
func (h *Handler) loadPoolContext(ctx context.Context, sess *store.Session, poolID string) (*poolContext, error) {
	pool, err := store.Load[domain.Pool](ctx, sess, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pool %s: %w", poolID, err)
	}
	if pool == nil {
		return nil, nil
	}

	factory, err := store.Load[domain.Factory](ctx, sess, h.chain.FactoryAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to load factory: %w", err)
	}
	bundle, err := store.Load[domain.Bundle](ctx, sess, domain.BundleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}
	token0, err := store.Load[domain.Token](ctx, sess, pool.Token0)
	if err != nil {
		return nil, fmt.Errorf("failed to load token %s: %w", pool.Token0, err)
	}
	token1, err := store.Load[domain.Token](ctx, sess, pool.Token1)
	if err != nil {
		return nil, fmt.Errorf("failed to load token %s: %w", pool.Token1, err)
	}
	if factory == nil || bundle == nil || token0 == nil || token1 == nil {
		return nil, nil
	}

	return &poolContext{
		factory: factory,
		bundle:  bundle,
		pool:    pool,
		token0:  token0,
		token1:  token1,
	}, nil
}

// refreshPoolTVL recomputes tvlNative from the token legs and their derived prices
func (pc *poolContext) refreshPoolTVL() {
	p := pc.pool
	p.TotalValueLockedNative = p.TotalValueLockedToken0.Mul(pc.token0.DerivedNative).
		Add(p.TotalValueLockedToken1.Mul(pc.token1.DerivedNative))
	p.TotalValueLockedUSD = p.TotalValueLockedNative.Mul(pc.bundle.NativePriceUSD)
}

func (pc *poolContext) refreshTokenTVLUSD() {
	for _, t := range []*domain.Token{pc.token0, pc.token1} {
		t.TotalValueLockedUSD = t.TotalValueLocked.Mul(t.DerivedNative).Mul(pc.bundle.NativePriceUSD)
	}
}

func (pc *poolContext) refreshFactoryUSD() {
	pc.factory.TotalValueLockedUSD = pc.factory.TotalValueLockedNative.Mul(pc.bundle.NativePriceUSD)
}

func (pc *poolContext) save(sess *store.Session) {
	sess.Save(pc.factory)
	sess.Save(pc.bundle)
	sess.Save(pc.pool)
	sess.Save(pc.token0)
	sess.Save(pc.token1)
}

func lower(addr string) string {
	return strings.ToLower(addr)
}
