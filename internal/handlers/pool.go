package handlers

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"dexindexer/internal/domain"
	"dexindexer/internal/store"
)

const unknownTokenLabel = "unknown"

// HandlePoolCreated registers a new pool and its tokens; the factory and bundle are created lazily
func (h *Handler) HandlePoolCreated(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.PoolCreatedEvent) error {
	poolID := lower(ev.Pool)
	if h.chain.ShouldSkipPool(poolID) {
		h.log.Debugf("Pool %s is in the skip list", poolID)
		return nil
	}

	existing, err := store.Load[domain.Pool](ctx, sess, poolID)
	if err != nil {
		return fmt.Errorf("failed to load pool %s: %w", poolID, err)
	}
	if existing != nil {
		h.log.Warnf("Pool %s already exists, creation event ignored", poolID)
		return nil
	}

	factory, err := store.Load[domain.Factory](ctx, sess, h.chain.FactoryAddress)
	if err != nil {
		return fmt.Errorf("failed to load factory: %w", err)
	}
	if factory == nil {
		factory = &domain.Factory{ID: h.chain.FactoryAddress, Owner: domain.ZeroAddress}

		bundle, err := store.Load[domain.Bundle](ctx, sess, domain.BundleID)
		if err != nil {
			return fmt.Errorf("failed to load bundle: %w", err)
		}
		if bundle == nil {
			sess.Save(&domain.Bundle{ID: domain.BundleID})
		}
	}
	factory.PoolCount++

	token0, err := h.loadOrCreateToken(ctx, sess, lower(ev.Token0))
	if err != nil {
		return err
	}
	token1, err := h.loadOrCreateToken(ctx, sess, lower(ev.Token1))
	if err != nil {
		return err
	}

	if h.chain.IsWhitelisted(token0.ID) && !slices.Contains(token1.WhitelistPools, poolID) {
		token1.WhitelistPools = append(token1.WhitelistPools, poolID)
	}
	if h.chain.IsWhitelisted(token1.ID) && !slices.Contains(token0.WhitelistPools, poolID) {
		token0.WhitelistPools = append(token0.WhitelistPools, poolID)
	}
	token0.PoolCount++
	token1.PoolCount++

	pool := domain.NewPool(poolID, token0.ID, token1.ID, ev.Fee)
	pool.TickSpacing = ev.TickSpacing
	pool.CreatedAtTimestamp = meta.Timestamp
	pool.CreatedAtBlockNumber = meta.BlockNumber

	sess.Save(factory)
	sess.Save(token0)
	sess.Save(token1)
	sess.Save(pool)

	h.log.Infof("Pool %s created: %s/%s fee=%d", poolID, token0.Symbol, token1.Symbol, ev.Fee)
	return nil
}

// loadOrCreateToken fills metadata from the chain; overrides win over fetched values
func (h *Handler) loadOrCreateToken(ctx context.Context, sess *store.Session, address string) (*domain.Token, error) {
	token, err := store.Load[domain.Token](ctx, sess, address)
	if err != nil {
		return nil, fmt.Errorf("failed to load token %s: %w", address, err)
	}
	if token != nil {
		return token, nil
	}

	token = domain.NewToken(address)
	token.Symbol = unknownTokenLabel
	token.Name = unknownTokenLabel

	if h.fetcher != nil {
		md, err := h.fetcher.FetchToken(ctx, address)
		if err != nil {
			h.log.Warnf("Failed to fetch metadata of token %s: %v", address, err)
		} else if md != nil {
			if md.Symbol != "" {
				token.Symbol = md.Symbol
			}
			if md.Name != "" {
				token.Name = md.Name
			}
			token.Decimals = md.Decimals
			if md.TotalSupply != nil {
				token.TotalSupply = new(big.Int).Set(md.TotalSupply)
			}
		}
	}

	if o, ok := h.chain.Override(address); ok {
		if o.Symbol != "" {
			token.Symbol = o.Symbol
		}
		if o.Name != "" {
			token.Name = o.Name
		}
		if o.Decimals > 0 {
			token.Decimals = o.Decimals
		}
	}

	return token, nil
}
