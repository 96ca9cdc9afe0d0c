package handlers

import (
	"context"
	"fmt"

	"dexindexer/internal/domain"
	"dexindexer/internal/numeric"
	"dexindexer/internal/store"
)

// loadTransaction returns the Transaction of meta, creating it on first sight
func loadTransaction(ctx context.Context, sess *store.Session, meta domain.EventMeta, poolID string) (*domain.Transaction, error) {
	tx, err := store.Load[domain.Transaction](ctx, sess, meta.TxHash)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", meta.TxHash, err)
	}
	if tx == nil {
		tx = &domain.Transaction{ID: meta.TxHash}
	}

	tx.BlockNumber = meta.BlockNumber
	tx.Timestamp = meta.Timestamp
	tx.GasPrice = numeric.CloneInt(meta.GasPrice)
	tx.From = meta.TxFrom
	if poolID != "" {
		tx.PoolID = poolID
	}
	sess.Save(tx)

	return tx, nil
}
