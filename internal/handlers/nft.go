package handlers

import (
	"context"
	"fmt"

	"dexindexer/internal/domain"
	"dexindexer/internal/numeric"
	"dexindexer/internal/store"
)

// HandleNFTTransfer moves a collection token between holders and keeps holder counts
func (h *Handler) HandleNFTTransfer(ctx context.Context, sess *store.Session, meta domain.EventMeta, ev *domain.NFTTransferEvent) error {
	from, to := lower(ev.From), lower(ev.To)
	tokenID := ev.TokenID.String()

	token, err := store.Load[domain.NFTToken](ctx, sess, tokenID)
	if err != nil {
		return fmt.Errorf("failed to load nft %s: %w", tokenID, err)
	}
	if token == nil {
		token = &domain.NFTToken{
			ID:       tokenID,
			TokenID:  numeric.CloneInt(ev.TokenID),
			MintedAt: meta.Timestamp,
			MintedBy: from,
		}
	}

	if from != domain.ZeroAddress {
		if err = h.moveHolderCount(ctx, sess, from, -1, meta.Timestamp); err != nil {
			return err
		}
	}
	if err = h.moveHolderCount(ctx, sess, to, 1, meta.Timestamp); err != nil {
		return err
	}

	token.Owner = to
	sess.Save(token)

	sess.Save(&domain.NFTTransfer{
		ID:          domain.RecordID(meta.TxHash, meta.LogIndex),
		Token:       tokenID,
		From:        from,
		To:          to,
		Timestamp:   meta.Timestamp,
		Transaction: meta.TxHash,
		BlockNumber: meta.BlockNumber,
	})

	_, err = loadTransaction(ctx, sess, meta, "")
	return err
}

func (h *Handler) moveHolderCount(ctx context.Context, sess *store.Session, address string, delta, ts int64) error {
	holder, err := store.Load[domain.NFTHolder](ctx, sess, address)
	if err != nil {
		return fmt.Errorf("failed to load nft holder %s: %w", address, err)
	}
	if holder == nil {
		holder = &domain.NFTHolder{ID: address, FirstOwnedAt: ts}
	}

	holder.TokenCount += delta
	if holder.TokenCount < 0 {
		h.log.Warnf("NFT holder %s count went negative, clamped", address)
		holder.TokenCount = 0
	}
	holder.LastUpdatedAt = ts
	sess.Save(holder)
	return nil
}
