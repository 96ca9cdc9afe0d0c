package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"dexindexer/internal/handlers"
)

const defaultRPCTimeout = 10 * time.Second

const erc20JSON = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20JSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 abi: %v", err))
	}
	return parsed
}

// Caller is the eth_call subset of ethclient.Client
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20Fetcher reads token metadata with plain eth_call against the latest block
type ERC20Fetcher struct {
	client  Caller
	timeout time.Duration
}

var _ handlers.MetadataFetcher = (*ERC20Fetcher)(nil)

func NewERC20Fetcher(client Caller, timeout time.Duration) (*ERC20Fetcher, error) {
	if client == nil {
		return nil, errors.New("eth client is required to the erc20 fetcher")
	}
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	return &ERC20Fetcher{client: client, timeout: timeout}, nil
}

// Dial connects an RPC client for NewERC20Fetcher
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	if url == "" {
		return nil, errors.New("rpc url is required")
	}
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", url, err)
	}
	return c, nil
}

// FetchToken fails only when decimals cannot be read; missing symbol, name
// or supply are left empty for the caller to default
func (f *ERC20Fetcher) FetchToken(ctx context.Context, address string) (*handlers.TokenMetadata, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid token address %q", address)
	}
	to := common.HexToAddress(address)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	decRaw, err := f.call(ctx, to, "decimals")
	if err != nil {
		return nil, err
	}
	decimals, err := unpackUint(decRaw, "decimals")
	if err != nil {
		return nil, err
	}

	md := &handlers.TokenMetadata{Decimals: decimals.Int64()}

	if raw, err := f.call(ctx, to, "symbol"); err == nil {
		md.Symbol = unpackText(raw, "symbol")
	}
	if raw, err := f.call(ctx, to, "name"); err == nil {
		md.Name = unpackText(raw, "name")
	}
	if raw, err := f.call(ctx, to, "totalSupply"); err == nil {
		if supply, err := unpackUint(raw, "totalSupply"); err == nil {
			md.TotalSupply = supply
		}
	}

	return md, nil
}

func (f *ERC20Fetcher) call(ctx context.Context, to common.Address, method string) ([]byte, error) {
	data, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call for %s failed: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("eth_call for %s returned no data", method)
	}
	return out, nil
}

func unpackUint(raw []byte, method string) (*big.Int, error) {
	vals, err := erc20ABI.Unpack(method, raw)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("failed to unpack %s: %v", method, err)
	}

	switch v := vals[0].(type) {
	case uint8:
		return big.NewInt(int64(v)), nil
	case *big.Int:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected %s type %T", method, v)
	}
}

// unpackText decodes a string return, falling back to the bytes32 layout some older tokens use
func unpackText(raw []byte, method string) string {
	if vals, err := erc20ABI.Unpack(method, raw); err == nil && len(vals) == 1 {
		if s, ok := vals[0].(string); ok {
			return s
		}
	}
	if len(raw) == 32 {
		return string(bytes.TrimRight(raw, "\x00"))
	}
	return ""
}
