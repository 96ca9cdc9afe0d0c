package handlers

import (
	"context"
	"fmt"

	"dexindexer/internal/domain"
	"dexindexer/internal/numeric"
	"dexindexer/internal/store"
)

const launchpadDecimals int64 = 18

// HandleLaunchpadTokenCreated records a token deployed by the launchpad
func (h *Handler) HandleLaunchpadTokenCreated(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.LaunchpadTokenCreatedEvent) error {
	id := lower(ev.TokenAddress)

	existing, err := store.Load[domain.CreatedToken](ctx, sess, id)
	if err != nil {
		return fmt.Errorf("failed to load created token %s: %w", id, err)
	}
	if existing != nil {
		return nil
	}

	sess.Save(&domain.CreatedToken{
		ID:            id,
		Name:          ev.Name,
		Symbol:        ev.Symbol,
		InitialSupply: numeric.CloneInt(ev.InitialSupply),
		Decimals:      launchpadDecimals,
		Owner:         lower(ev.Owner),
		CreatedAt:     meta.Timestamp,
	})

	h.log.Infof("Launchpad token created: %s (%s) at %s", ev.Name, ev.Symbol, id)
	return nil
}
