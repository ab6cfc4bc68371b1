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

const poolABIJSON = `[
	{"name":"token0","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"token1","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// PoolTokens is the token pair a pool contract reports about itself.
type PoolTokens struct {
	Token0 common.Address
	Token1 common.Address
}

type poolEntry struct {
	done   chan struct{}
	tokens PoolTokens
	err    error
}

// PoolReader resolves a pool contract's token pair via eth_call. Results are
// memoized per address; concurrent lookups for the same address share one
// in-flight call.
type PoolReader struct {
	client *Client
	abi    abi.ABI
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[common.Address]*poolEntry
}

func NewPoolReader(client *Client, logger zerolog.Logger) (*PoolReader, error) {
	parsed, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	return &PoolReader{
		client: client,
		abi:    parsed,
		logger: logger,
		cache:  make(map[common.Address]*poolEntry),
	}, nil
}

// Tokens returns the token0/token1 pair of a pool contract. Failures are
// memoized too, so a contract without these accessors is probed once per run.
func (r *PoolReader) Tokens(ctx context.Context, pool common.Address) (PoolTokens, error) {
	r.mu.Lock()
	entry, ok := r.cache[pool]
	if !ok {
		entry = &poolEntry{done: make(chan struct{})}
		r.cache[pool] = entry
		r.mu.Unlock()

		entry.tokens, entry.err = r.fetch(ctx, pool)
		close(entry.done)
		return entry.tokens, entry.err
	}
	r.mu.Unlock()

	select {
	case <-entry.done:
		return entry.tokens, entry.err
	case <-ctx.Done():
		return PoolTokens{}, ctx.Err()
	}
}

func (r *PoolReader) fetch(ctx context.Context, pool common.Address) (PoolTokens, error) {
	token0, err := r.callAddress(ctx, pool, "token0")
	if err != nil {
		return PoolTokens{}, fmt.Errorf("token0() on %s: %w", pool.Hex(), err)
	}
	token1, err := r.callAddress(ctx, pool, "token1")
	if err != nil {
		return PoolTokens{}, fmt.Errorf("token1() on %s: %w", pool.Hex(), err)
	}

	r.logger.Debug().
		Str("pool", pool.Hex()).
		Str("token0", token0.Hex()).
		Str("token1", token1.Hex()).
		Msg("Resolved pool tokens")

	return PoolTokens{Token0: token0, Token1: token1}, nil
}

func (r *PoolReader) callAddress(ctx context.Context, target common.Address, method string) (common.Address, error) {
	input, err := r.abi.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: input})
	if err != nil {
		return common.Address{}, err
	}
	if len(output) < 32 {
		return common.Address{}, fmt.Errorf("%s returned %d bytes", method, len(output))
	}

	results, err := r.abi.Unpack(method, output)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	addr, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s returned unexpected type %T", method, results[0])
	}
	return addr, nil
}
