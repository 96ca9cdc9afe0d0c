package testutil

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"dexindexer/internal/config"
	"dexindexer/internal/domain"
)

const (
	FactoryAddress = "0x2344c1448e528dd0e4094c92966a7f68f45aa4e4"
	USDCAddress    = "0xf1815bd50389c46847f0bda824ec8da914045d14"
	WIPAddress     = "0x1516000000000000000000000000000000000000"
	WBTCAddress    = "0x00000000000000000000000000000000000b7c01"
	USDCWIPPool    = "0x00000000000000000000000000000000000a0001"
	WBTCWIPPool    = "0x00000000000000000000000000000000000a0002"
	FeeTier03      = 3000
	TxHash         = "0xa16081f360e3847006db660bae1c6d1b2e17ec2a000000000000000000000001"
	Sender         = "0x6f1cdbbb4d53d226cf4b917bf768b94acbab6168"
)

var (
	NativePriceUSD    = decimal.NewFromInt(2400)
	USDCDerivedNative = decimal.NewFromInt(1).Div(decimal.NewFromInt(2000))
	WIPDerivedNative  = decimal.NewFromInt(1)
	DefaultDeviance   = decimal.RequireFromString("0.5")
)

type TokenFixture struct {
	Address     string
	Symbol      string
	Name        string
	TotalSupply int64
	Decimals    int64
}

var (
	USDC = TokenFixture{Address: USDCAddress, Symbol: "USDC", Name: "USD Coin", TotalSupply: 300, Decimals: 6}
	WIP  = TokenFixture{Address: WIPAddress, Symbol: "WIP", Name: "Wrapped IP", TotalSupply: 100, Decimals: 18}
	WBTC = TokenFixture{Address: WBTCAddress, Symbol: "WBTC", Name: "Wrapped Bitcoin", TotalSupply: 200, Decimals: 8}
)

// TestChain mirrors a deployment where the stablecoin is token0 of the reference pool
func TestChain() *config.ChainConfig {
	return &config.ChainConfig{
		Network:                            config.NetworkOdysseyTestnet,
		ChainID:                            1516,
		FactoryAddress:                     FactoryAddress,
		StablecoinWrappedNativePoolAddress: USDCWIPPool,
		StablecoinIsToken0:                 true,
		WrappedNativeAddress:               WIPAddress,
		MinimumNativeLocked:                decimal.Zero,
		StablecoinAddresses:                []string{USDCAddress},
		WhitelistTokens:                    []string{WIPAddress, USDCAddress},
		RewardToken:                        WIPAddress,
		Guard: config.Guard{
			UnstablePeriod:    12 * time.Hour,
			MaxPriceDeviation: DefaultDeviance,
		},
	}
}

func (f TokenFixture) Token() *domain.Token {
	t := domain.NewToken(f.Address)
	t.Symbol = f.Symbol
	t.Name = f.Name
	t.Decimals = f.Decimals
	t.TotalSupply = big.NewInt(f.TotalSupply)
	return t
}

// Meta returns event metadata at the given block time
func Meta(address string, ts int64, logIndex uint32) domain.EventMeta {
	return domain.EventMeta{
		ChainID:     1516,
		Address:     address,
		BlockNumber: uint64(ts / 2),
		Timestamp:   ts,
		TxHash:      TxHash,
		LogIndex:    logIndex,
		TxFrom:      Sender,
		GasPrice:    big.NewInt(1_000_000_000),
	}
}

// BigInt parses a base-10 integer and panics on bad input
func BigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return v
}
