package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"dexindexer/internal/domain"
	"dexindexer/internal/numeric"
)

// inUnstablePeriod reports whether the pool is still young enough for the price guard
func (h *Handler) inUnstablePeriod(pool *domain.Pool, ts int64) bool {
	period := int64(h.chain.Guard.UnstablePeriod / time.Second)
	if period <= 0 {
		return false
	}
	return ts-pool.CreatedAtTimestamp < period
}

// screenSwap compares the observed token0 price with the pool reference price.
// Returns true when the swap must not count toward tracked volume and fees.
// The reference absorbs only accepted observations.
func (h *Handler) screenSwap(pool *domain.Pool, observed decimal.Decimal, ts int64) bool {
	if !h.inUnstablePeriod(pool, ts) {
		return false
	}

	ref := pool.ReferencePrice
	if ref.IsZero() {
		pool.ReferencePrice = observed
		return false
	}

	deviation := numeric.SafeDiv(observed.Sub(ref).Abs(), ref)
	if deviation.GreaterThan(h.chain.Guard.MaxPriceDeviation) {
		h.log.Warnf("Swap on pool %s filtered: price %s deviates %s from reference %s",
			pool.ID, observed.String(), deviation.StringFixed(4), ref.String())
		return true
	}

	pool.ReferencePrice = numeric.SafeDiv(ref.Add(observed), numeric.Two)
	return false
}

// clampNativePrice replaces an implausible native price while the pool is unstable
func (h *Handler) clampNativePrice(pool *domain.Pool, price decimal.Decimal, ts int64) decimal.Decimal {
	ceiling := h.chain.Guard.MaxNativePriceUSD
	if ceiling.IsZero() || !h.inUnstablePeriod(pool, ts) {
		return price
	}
	if price.GreaterThan(ceiling) {
		h.log.Warnf("Native price %s above ceiling %s during unstable period of pool %s, using %s",
			price.String(), ceiling.String(), pool.ID, h.chain.Guard.FallbackNativePriceUSD.String())
		return h.chain.Guard.FallbackNativePriceUSD
	}
	return price
}
