package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const erc20ABIJSON = `[
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// TokenInfo holds the on-chain ERC-20 metadata of a token.
type TokenInfo struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
	Name     string
}

// UnknownToken is the placeholder used when a token contract does not answer
// the metadata calls. 18 decimals is the overwhelmingly common default.
func UnknownToken(address common.Address) TokenInfo {
	return TokenInfo{
		Address:  address,
		Decimals: 18,
		Symbol:   "UNKNOWN",
		Name:     "Unknown Token",
	}
}

type tokenEntry struct {
	done chan struct{}
	info TokenInfo
	err  error
}

// TokenReader resolves ERC-20 metadata with per-address memoization. A token
// that fails any metadata call resolves to the UNKNOWN placeholder; the
// placeholder is cached so broken contracts are probed once per run.
type TokenReader struct {
	client *Client
	abi    abi.ABI
	native TokenInfo
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[common.Address]*tokenEntry
}

func NewTokenReader(client *Client, nativeSymbol string, nativeDecimals uint8, logger zerolog.Logger) (*TokenReader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &TokenReader{
		client: client,
		abi:    parsed,
		native: TokenInfo{
			Decimals: nativeDecimals,
			Symbol:   nativeSymbol,
			Name:     nativeSymbol,
		},
		logger: logger,
		cache:  make(map[common.Address]*tokenEntry),
	}, nil
}

// Seed preloads the cache, used for tokens whose metadata is already known
// from configuration.
func (r *TokenReader) Seed(info TokenInfo) {
	entry := &tokenEntry{done: make(chan struct{}), info: info}
	close(entry.done)
	r.mu.Lock()
	r.cache[info.Address] = entry
	r.mu.Unlock()
}

// Info resolves a token's metadata. The zero address resolves to the chain's
// native asset. When the contract does not answer, the UNKNOWN placeholder is
// returned together with a non-nil error so callers can audit the
// degradation; the placeholder is still safe to use.
func (r *TokenReader) Info(ctx context.Context, token common.Address) (TokenInfo, error) {
	if token == (common.Address{}) {
		info := r.native
		info.Address = token
		return info, nil
	}

	r.mu.Lock()
	entry, ok := r.cache[token]
	if !ok {
		entry = &tokenEntry{done: make(chan struct{})}
		r.cache[token] = entry
		r.mu.Unlock()

		entry.info, entry.err = r.fetch(ctx, token)
		close(entry.done)
		return entry.info, entry.err
	}
	r.mu.Unlock()

	select {
	case <-entry.done:
		return entry.info, entry.err
	case <-ctx.Done():
		return UnknownToken(token), ctx.Err()
	}
}

func (r *TokenReader) fetch(ctx context.Context, token common.Address) (TokenInfo, error) {
	info := TokenInfo{Address: token}

	decimals, err := r.call(ctx, token, "decimals")
	if err == nil {
		if d, ok := decimals.(uint8); ok {
			info.Decimals = d
		} else {
			err = fmt.Errorf("decimals returned unexpected type %T", decimals)
		}
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("token", token.Hex()).Msg("Token metadata lookup failed, using placeholder")
		return UnknownToken(token), fmt.Errorf("metadata for %s: %w", token.Hex(), err)
	}

	if symbol, err := r.call(ctx, token, "symbol"); err == nil {
		if s, ok := symbol.(string); ok {
			info.Symbol = s
		}
	}
	if info.Symbol == "" {
		info.Symbol = "UNKNOWN"
	}

	if name, err := r.call(ctx, token, "name"); err == nil {
		if n, ok := name.(string); ok {
			info.Name = n
		}
	}
	if info.Name == "" {
		info.Name = info.Symbol
	}

	r.logger.Debug().
		Str("token", token.Hex()).
		Str("symbol", info.Symbol).
		Uint8("decimals", info.Decimals).
		Msg("Resolved token metadata")

	return info, nil
}

func (r *TokenReader) call(ctx context.Context, target common.Address, method string) (interface{}, error) {
	input, err := r.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: input})
	if err != nil {
		return nil, err
	}

	results, err := r.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return results[0], nil
}
