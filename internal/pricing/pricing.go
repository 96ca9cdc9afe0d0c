package pricing

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/shopspring/decimal"

	"dexindexer/internal/config"
	"dexindexer/internal/domain"
	"dexindexer/internal/numeric"
	"dexindexer/internal/store"
)

// Q192 = 2^192, the denominator of a squared Q96 price
var Q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// SqrtPriceX96ToTokenPrices returns (price0, price1) where price1 is token1 per token0
// in human units and price0 its safe inverse.
func SqrtPriceX96ToTokenPrices(sqrtPriceX96 *big.Int, token0, token1 *domain.Token) (decimal.Decimal, decimal.Decimal) {
	sqrt := numeric.BigIntToDecimal(sqrtPriceX96)
	num := sqrt.Mul(sqrt).Mul(numeric.ExponentToBigDecimal(token0.Decimals))
	denom := Q192.Mul(numeric.ExponentToBigDecimal(token1.Decimals))

	price1 := numeric.SafeDiv(num, denom)
	price0 := numeric.SafeDiv(numeric.One, price1)

	return price0, price1
}

// GetNativePriceInUSD reads the stablecoin/wrapped-native reference pool, zero while it is absent
func GetNativePriceInUSD(ctx context.Context, sess *store.Session, chain *config.ChainConfig) (decimal.Decimal, error) {
	if chain.StablecoinWrappedNativePoolAddress == "" {
		return decimal.Zero, nil
	}

	pool, err := store.Load[domain.Pool](ctx, sess, chain.StablecoinWrappedNativePoolAddress)
	if err != nil {
		return decimal.Zero, err
	}
	if pool == nil {
		return decimal.Zero, nil
	}

	if chain.StablecoinIsToken0 {
		return pool.Token0Price, nil
	}
	return pool.Token1Price, nil
}

// FindNativePerToken derives the price of token in native units through its deepest whitelisted pool.
// Returns zero for an unpriced token.
func FindNativePerToken(ctx context.Context, sess *store.Session, token *domain.Token, chain *config.ChainConfig) (decimal.Decimal, error) {
	if token.ID == chain.WrappedNativeAddress {
		return numeric.One, nil
	}

	if chain.IsStablecoin(token.ID) {
		bundle, err := store.Load[domain.Bundle](ctx, sess, domain.BundleID)
		if err != nil {
			return decimal.Zero, err
		}
		if bundle == nil {
			return decimal.Zero, nil
		}
		return numeric.SafeDiv(numeric.One, bundle.NativePriceUSD), nil
	}

	largestLocked := decimal.Zero
	priceSoFar := decimal.Zero
	visited := make(map[string]struct{}, len(token.WhitelistPools))

	for _, poolID := range token.WhitelistPools {
		if _, ok := visited[poolID]; ok {
			continue
		}
		visited[poolID] = struct{}{}

		pool, err := store.Load[domain.Pool](ctx, sess, poolID)
		if err != nil {
			return decimal.Zero, err
		}
		if pool == nil || pool.Liquidity == nil || pool.Liquidity.Sign() <= 0 {
			continue
		}

		var (
			counterpartID    string
			counterpartTVL   decimal.Decimal
			counterpartPrice decimal.Decimal
		)
		switch token.ID {
		case pool.Token0:
			counterpartID, counterpartTVL, counterpartPrice = pool.Token1, pool.TotalValueLockedToken1, pool.Token1Price
		case pool.Token1:
			counterpartID, counterpartTVL, counterpartPrice = pool.Token0, pool.TotalValueLockedToken0, pool.Token0Price
		default:
			continue
		}

		counterpart, err := store.Load[domain.Token](ctx, sess, counterpartID)
		if err != nil {
			return decimal.Zero, err
		}
		if counterpart == nil {
			continue
		}

		nativeLocked := counterpartTVL.Mul(counterpart.DerivedNative)
		if nativeLocked.GreaterThan(largestLocked) && nativeLocked.GreaterThan(chain.MinimumNativeLocked) {
			largestLocked = nativeLocked
			priceSoFar = counterpartPrice.Mul(counterpart.DerivedNative)
		}
	}

	return priceSoFar, nil
}

// GetTrackedAmountUSD values a two-legged amount using only whitelisted legs.
// Both legs whitelisted returns the full sum; callers halve it for swaps.
func GetTrackedAmountUSD(
	amount0 decimal.Decimal, token0 *domain.Token,
	amount1 decimal.Decimal, token1 *domain.Token,
	nativePriceUSD decimal.Decimal, whitelist []string,
) decimal.Decimal {
	price0USD := token0.DerivedNative.Mul(nativePriceUSD)
	price1USD := token1.DerivedNative.Mul(nativePriceUSD)

	white0 := slices.Contains(whitelist, token0.ID)
	white1 := slices.Contains(whitelist, token1.ID)

	switch {
	case white0 && white1:
		return amount0.Mul(price0USD).Add(amount1.Mul(price1USD))
	case white0:
		return amount0.Mul(price0USD).Mul(numeric.Two)
	case white1:
		return amount1.Mul(price1USD).Mul(numeric.Two)
	default:
		return decimal.Zero
	}
}

// TokenPriceUSD = derivedNative * nativePriceUSD
func TokenPriceUSD(token *domain.Token, bundle *domain.Bundle) decimal.Decimal {
	if token == nil || bundle == nil {
		return decimal.Zero
	}
	return token.DerivedNative.Mul(bundle.NativePriceUSD)
}

// RefreshDerivedNative recomputes and stores derivedNative of every given token
func RefreshDerivedNative(ctx context.Context, sess *store.Session, chain *config.ChainConfig, tokens ...*domain.Token) error {
	for _, t := range tokens {
		derived, err := FindNativePerToken(ctx, sess, t, chain)
		if err != nil {
			return fmt.Errorf("failed to price token %s: %w", t.ID, err)
		}
		t.DerivedNative = derived
		sess.Save(t)
	}
	return nil
}
