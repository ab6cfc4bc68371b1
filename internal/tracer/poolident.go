package tracer

import (
	"bytes"
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wronghand/evmtracer/internal/events"
)

// ErrUnresolvedPool means no token pair could be derived for a pool; swaps
// referencing it are skipped rather than guessed.
var ErrUnresolvedPool = errors.New("pool identity unresolved")

// IdentitySource records where a pool's token pair came from, in decreasing
// order of trust.
type IdentitySource string

const (
	SourceCreationEvent IdentitySource = "creation_event"
	SourceContractCall  IdentitySource = "contract_call"
	SourceHeuristic     IdentitySource = "transfer_heuristic"
)

// PoolIdentity is a resolved token pair for one pool, scoped to a single
// transaction's analysis.
type PoolIdentity struct {
	Token0        common.Address
	Token1        common.Address
	Source        IdentitySource
	LowConfidence bool
}

// poolResolver resolves pool→token-pair identity for one transaction. It is
// seeded with any creation/initialize events found in the receipt, which take
// priority over contract calls, and falls back to a transfer heuristic for
// hash-identified pools with no initialize event at hand.
type poolResolver struct {
	reader        PoolSource
	wrappedNative common.Address

	byAddress map[common.Address]PoolIdentity
	byPoolID  map[common.Hash]PoolIdentity
}

func newPoolResolver(reader PoolSource, wrappedNative common.Address) *poolResolver {
	return &poolResolver{
		reader:        reader,
		wrappedNative: wrappedNative,
		byAddress:     make(map[common.Address]PoolIdentity),
		byPoolID:      make(map[common.Hash]PoolIdentity),
	}
}

// seed records identities sourced from the receipt's own creation events.
func (p *poolResolver) seed(decoded []events.Decoded) {
	for _, ev := range decoded {
		switch e := ev.(type) {
		case *events.PairCreated:
			p.byAddress[e.Pair] = PoolIdentity{Token0: e.Token0, Token1: e.Token1, Source: SourceCreationEvent}
		case *events.PoolCreated:
			p.byAddress[e.Pool] = PoolIdentity{Token0: e.Token0, Token1: e.Token1, Source: SourceCreationEvent}
		case *events.PoolInitialize:
			p.byPoolID[e.PoolID] = PoolIdentity{Token0: e.Currency0, Token1: e.Currency1, Source: SourceCreationEvent}
		}
	}
}

// resolveAddress resolves a deployed pool contract: creation event first,
// then the memoized token0()/token1() contract calls.
func (p *poolResolver) resolveAddress(ctx context.Context, pool common.Address) (PoolIdentity, error) {
	if id, ok := p.byAddress[pool]; ok {
		return id, nil
	}

	tokens, err := p.reader.Tokens(ctx, pool)
	if err != nil {
		return PoolIdentity{}, err
	}
	id := PoolIdentity{Token0: tokens.Token0, Token1: tokens.Token1, Source: SourceContractCall}
	p.byAddress[pool] = id
	return id, nil
}

// resolvePoolID resolves a hash-identified pool: an Initialize event in this
// receipt is authoritative; otherwise the transfer heuristic applies.
func (p *poolResolver) resolvePoolID(poolID common.Hash, transfers []*events.Transfer, txNativeValue *big.Int) (PoolIdentity, error) {
	if id, ok := p.byPoolID[poolID]; ok {
		return id, nil
	}

	id, ok := p.infer(transfers, txNativeValue)
	if !ok {
		return PoolIdentity{}, ErrUnresolvedPool
	}
	p.byPoolID[poolID] = id
	return id, nil
}

// infer guesses a token pair from the receipt's own ERC-20 transfers. The
// single-token-no-native branch pairs with wrapped native and is flagged low
// confidence; anything outside the three shapes stays unresolved.
func (p *poolResolver) infer(transfers []*events.Transfer, txNativeValue *big.Int) (PoolIdentity, bool) {
	seen := make(map[common.Address]struct{})
	var tokens []common.Address
	for _, t := range transfers {
		if _, ok := seen[t.Token]; ok {
			continue
		}
		seen[t.Token] = struct{}{}
		tokens = append(tokens, t.Token)
	}

	hasNativeValue := txNativeValue != nil && txNativeValue.Sign() > 0

	switch len(tokens) {
	case 1:
		if hasNativeValue {
			t0, t1 := sortPair(events.NativeAsset, tokens[0])
			return PoolIdentity{Token0: t0, Token1: t1, Source: SourceHeuristic}, true
		}
		if tokens[0] == p.wrappedNative {
			// The only transfer is the wrapped-native token itself: pairing
			// it with itself would be degenerate, so pair against the native
			// sentinel instead.
			t0, t1 := sortPair(events.NativeAsset, tokens[0])
			return PoolIdentity{Token0: t0, Token1: t1, Source: SourceHeuristic, LowConfidence: true}, true
		}
		t0, t1 := sortPair(p.wrappedNative, tokens[0])
		return PoolIdentity{Token0: t0, Token1: t1, Source: SourceHeuristic, LowConfidence: true}, true
	case 2:
		t0, t1 := sortPair(tokens[0], tokens[1])
		return PoolIdentity{Token0: t0, Token1: t1, Source: SourceHeuristic}, true
	}

	return PoolIdentity{}, false
}

// sortPair canonicalizes a token pair by address so inference is independent
// of transfer-log order.
func sortPair(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}
