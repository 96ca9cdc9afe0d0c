package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrInvalidAddress     = errors.New("invalid address")
)

const (
	NetworkStoryTestnet   = "story-testnet"
	NetworkOdysseyTestnet = "odyssey-testnet"
)

const (
	defaultUnstablePeriod    = 12 * time.Hour
	defaultMaxPriceDeviation = "0.5"
)

// Guard parametrises the unstable-period price filter of young pools
type Guard struct {
	UnstablePeriod         time.Duration
	MaxNativePriceUSD      decimal.Decimal // zero disables the ceiling
	FallbackNativePriceUSD decimal.Decimal
	MaxPriceDeviation      decimal.Decimal
}

// ChainConfig is the immutable per-deployment parameter set handed to the core.
// All addresses are lowercase.
type ChainConfig struct {
	Network                            string
	ChainID                            uint32
	FactoryAddress                     string
	StablecoinWrappedNativePoolAddress string
	StablecoinIsToken0                 bool
	WrappedNativeAddress               string
	MinimumNativeLocked                decimal.Decimal
	StablecoinAddresses                []string
	WhitelistTokens                    []string
	TokenOverrides                     map[string]TokenOverride
	PoolsToSkip                        []string
	RewardToken                        string
	Guard                              Guard
}

func builtinChain(network string) (*ChainConfig, bool) {
	switch network {
	case NetworkStoryTestnet:
		// addresses of this network are supplied by the deployment yaml
		return &ChainConfig{
			Network:             NetworkStoryTestnet,
			ChainID:             1513,
			MinimumNativeLocked: decimal.NewFromInt(1),
		}, true
	case NetworkOdysseyTestnet:
		return &ChainConfig{
			Network:              NetworkOdysseyTestnet,
			ChainID:              1516,
			FactoryAddress:       "0x2344C1448E528dD0e4094c92966A7f68f45aa4e4",
			WrappedNativeAddress: "0x1516000000000000000000000000000000000000",
			MinimumNativeLocked:  decimal.NewFromInt(1),
			StablecoinAddresses: []string{
				"0xF1815bd50389c46847f0Bda824eC8da914045D14", // USDC
			},
			WhitelistTokens: []string{
				"0x1516000000000000000000000000000000000000", // WIP
				"0xF1815bd50389c46847f0Bda824eC8da914045D14", // USDC
				"0x181c610790F508F281b48Ca29ddc1DFfff9B0D80", // FATE
			},
		}, true
	default:
		return nil, false
	}
}

// ChainConfigFor returns the built-in parameters of a supported network
func ChainConfigFor(network string) (*ChainConfig, error) {
	c, ok := builtinChain(network)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveChain merges the built-in network parameters with the yaml overrides and validates the result
func ResolveChain(cfg *IndexerConfig) (*ChainConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the chain config")
	}

	c, ok := builtinChain(cfg.Network)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, cfg.Network)
	}

	if cfg.FactoryAddress != "" {
		c.FactoryAddress = cfg.FactoryAddress
	}
	if cfg.StablecoinWrappedNativePoolAddress != "" {
		c.StablecoinWrappedNativePoolAddress = cfg.StablecoinWrappedNativePoolAddress
	}
	if cfg.StablecoinIsToken0 != nil {
		c.StablecoinIsToken0 = *cfg.StablecoinIsToken0
	}
	if cfg.WrappedNativeAddress != "" {
		c.WrappedNativeAddress = cfg.WrappedNativeAddress
	}
	if cfg.MinimumNativeLocked != "" {
		v, err := decimal.NewFromString(cfg.MinimumNativeLocked)
		if err != nil {
			return nil, fmt.Errorf("failed to parse minimum_native_locked: %w", err)
		}
		c.MinimumNativeLocked = v
	}
	c.WhitelistTokens = append(c.WhitelistTokens, cfg.ExtraWhitelist...)
	c.StablecoinAddresses = append(c.StablecoinAddresses, cfg.ExtraStablecoins...)
	c.PoolsToSkip = append(c.PoolsToSkip, cfg.PoolsToSkip...)
	c.RewardToken = cfg.RewardToken

	if len(cfg.TokenOverrides) > 0 {
		c.TokenOverrides = make(map[string]TokenOverride, len(cfg.TokenOverrides))
		for _, o := range cfg.TokenOverrides {
			c.TokenOverrides[strings.ToLower(o.Address)] = o
		}
	}

	guard, err := parseGuard(cfg.Guard)
	if err != nil {
		return nil, err
	}
	c.Guard = guard

	if err = c.normalize(); err != nil {
		return nil, err
	}
	if c.FactoryAddress == "" || c.WrappedNativeAddress == "" {
		return nil, fmt.Errorf("%w: factory and wrapped native addresses are required for %s", ErrInvalidAddress, c.Network)
	}

	return c, nil
}

func parseGuard(g GuardConfig) (Guard, error) {
	out := Guard{
		UnstablePeriod:    g.UnstablePeriod,
		MaxPriceDeviation: decimal.RequireFromString(defaultMaxPriceDeviation),
	}
	if out.UnstablePeriod <= 0 {
		out.UnstablePeriod = defaultUnstablePeriod
	}

	parse := func(name, raw string, dst *decimal.Decimal) error {
		if raw == "" {
			return nil
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("failed to parse guard.%s: %w", name, err)
		}
		*dst = v
		return nil
	}
	if err := parse("max_native_price_usd", g.MaxNativePriceUSD, &out.MaxNativePriceUSD); err != nil {
		return out, err
	}
	if err := parse("fallback_native_price_usd", g.FallbackNativePriceUSD, &out.FallbackNativePriceUSD); err != nil {
		return out, err
	}
	if err := parse("max_price_deviation", g.MaxPriceDeviation, &out.MaxPriceDeviation); err != nil {
		return out, err
	}

	return out, nil
}

// normalize validates every configured address and lowercases it
func (c *ChainConfig) normalize() error {
	one := func(addr *string) error {
		if *addr == "" {
			return nil
		}
		if !common.IsHexAddress(*addr) {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, *addr)
		}
		*addr = strings.ToLower(common.HexToAddress(*addr).Hex())
		return nil
	}
	many := func(addrs []string) ([]string, error) {
		out := make([]string, 0, len(addrs))
		for i := range addrs {
			if err := one(&addrs[i]); err != nil {
				return nil, err
			}
			if addrs[i] != "" && !slices.Contains(out, addrs[i]) {
				out = append(out, addrs[i])
			}
		}
		return out, nil
	}

	for _, addr := range []*string{&c.FactoryAddress, &c.StablecoinWrappedNativePoolAddress, &c.WrappedNativeAddress, &c.RewardToken} {
		if err := one(addr); err != nil {
			return err
		}
	}

	var err error
	if c.StablecoinAddresses, err = many(c.StablecoinAddresses); err != nil {
		return err
	}
	if c.WhitelistTokens, err = many(c.WhitelistTokens); err != nil {
		return err
	}
	if c.PoolsToSkip, err = many(c.PoolsToSkip); err != nil {
		return err
	}
	if c.RewardToken == "" {
		c.RewardToken = c.WrappedNativeAddress
	}

	return nil
}

func (c *ChainConfig) IsWhitelisted(token string) bool {
	return slices.Contains(c.WhitelistTokens, token)
}

func (c *ChainConfig) IsStablecoin(token string) bool {
	return slices.Contains(c.StablecoinAddresses, token)
}

func (c *ChainConfig) ShouldSkipPool(pool string) bool {
	return slices.Contains(c.PoolsToSkip, pool)
}

func (c *ChainConfig) Override(token string) (TokenOverride, bool) {
	o, ok := c.TokenOverrides[token]
	return o, ok
}
