package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tu "dexindexer/internal/testutil"
)

// fakeCaller answers eth_call by method name; absent methods revert
type fakeCaller struct {
	out   map[string][]byte
	calls int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	m, err := erc20ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	out, ok := f.out[m.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func pack(t *testing.T, method string, v any) []byte {
	t.Helper()

	b, err := erc20ABI.Methods[method].Outputs.Pack(v)
	require.NoError(t, err)
	return b
}

func TestNewERC20Fetcher(t *testing.T) {
	_, err := NewERC20Fetcher(nil, 0)
	assert.Error(t, err)

	f, err := NewERC20Fetcher(&fakeCaller{}, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultRPCTimeout, f.timeout)
}

func TestFetchToken(t *testing.T) {
	supply, _ := new(big.Int).SetString("300000000000000", 10)

	t.Run("full_metadata", func(t *testing.T) {
		c := &fakeCaller{out: map[string][]byte{
			"decimals":    pack(t, "decimals", uint8(6)),
			"symbol":      pack(t, "symbol", "USDC"),
			"name":        pack(t, "name", "USD Coin"),
			"totalSupply": pack(t, "totalSupply", supply),
		}}
		f, err := NewERC20Fetcher(c, 0)
		require.NoError(t, err)

		md, err := f.FetchToken(context.Background(), tu.USDCAddress)
		require.NoError(t, err)
		assert.Equal(t, "USDC", md.Symbol)
		assert.Equal(t, "USD Coin", md.Name)
		assert.Equal(t, int64(6), md.Decimals)
		assert.Equal(t, 0, supply.Cmp(md.TotalSupply))
		assert.Equal(t, 4, c.calls)
	})

	t.Run("bytes32_symbol", func(t *testing.T) {
		raw := make([]byte, 32)
		copy(raw, "MKR")
		c := &fakeCaller{out: map[string][]byte{
			"decimals": pack(t, "decimals", uint8(18)),
			"symbol":   raw,
			"name":     raw,
		}}
		f, err := NewERC20Fetcher(c, 0)
		require.NoError(t, err)

		md, err := f.FetchToken(context.Background(), tu.WIPAddress)
		require.NoError(t, err)
		assert.Equal(t, "MKR", md.Symbol)
		assert.Equal(t, "MKR", md.Name)
		assert.Nil(t, md.TotalSupply)
	})

	t.Run("missing_decimals_fails", func(t *testing.T) {
		c := &fakeCaller{out: map[string][]byte{"symbol": pack(t, "symbol", "X")}}
		f, err := NewERC20Fetcher(c, 0)
		require.NoError(t, err)

		_, err = f.FetchToken(context.Background(), tu.WBTCAddress)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decimals")
	})

	t.Run("invalid_address", func(t *testing.T) {
		f, err := NewERC20Fetcher(&fakeCaller{}, 0)
		require.NoError(t, err)

		_, err = f.FetchToken(context.Background(), "not-an-address")
		assert.Error(t, err)
	})
}

func TestUnpackText_Garbage(t *testing.T) {
	assert.Equal(t, "", unpackText([]byte{1, 2, 3}, "symbol"))
}

func TestDial_RequiresURL(t *testing.T) {
	_, err := Dial(context.Background(), "")
	assert.Error(t, err)
}
