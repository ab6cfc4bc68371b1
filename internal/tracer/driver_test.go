package tracer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wronghand/evmtracer/internal/chain"
	"github.com/wronghand/evmtracer/internal/events"
	"github.com/wronghand/evmtracer/internal/prices"
)

type fakeChain struct {
	receipt    *types.Receipt
	receiptErr error
	tx         *chain.TxContext
	txErr      error
	blockTime  time.Time
}

func (f *fakeChain) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f *fakeChain) Transaction(ctx context.Context, txHash common.Hash) (*chain.TxContext, error) {
	return f.tx, f.txErr
}

func (f *fakeChain) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	return f.blockTime, nil
}

type fakePools struct {
	tokens chain.PoolTokens
	err    error
}

func (f *fakePools) Tokens(ctx context.Context, pool common.Address) (chain.PoolTokens, error) {
	return f.tokens, f.err
}

// fakeTokens serves configured metadata and degrades to the UNKNOWN
// placeholder with an error for everything else, like the real reader.
type fakeTokens struct {
	infos map[common.Address]chain.TokenInfo
}

func (f *fakeTokens) Info(ctx context.Context, token common.Address) (chain.TokenInfo, error) {
	if info, ok := f.infos[token]; ok {
		return info, nil
	}
	return chain.UnknownToken(token), fmt.Errorf("metadata for %s: contract did not answer", token.Hex())
}

var testBlockTime = time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)

func driverTracer(source ChainSource, pools PoolSource, tokens TokenSource) *Tracer {
	return New(
		source,
		events.NewRegistry(events.RegistryConfig{}),
		pools,
		tokens,
		prices.Static(2000),
		Params{WrappedNative: wrappedNative, NativeDecimals: 18},
		zerolog.Nop(),
	)
}

func pairedTokens() *fakeTokens {
	return &fakeTokens{infos: map[common.Address]chain.TokenInfo{
		tokenA: {Address: tokenA, Decimals: 18, Symbol: "AAA", Name: "Token A"},
		tokenB: {Address: tokenB, Decimals: 18, Symbol: "BBB", Name: "Token B"},
	}}
}

func Test_AnalyzeTransaction_RevertedProducesEmptyReport(t *testing.T) {
	source := &fakeChain{
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusFailed,
			BlockNumber: big.NewInt(123),
		},
	}
	tr := driverTracer(source, &fakePools{}, pairedTokens())

	report, err := tr.AnalyzeTransaction(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err, "a revert is nothing to analyze, not a failure")

	assert.True(t, report.Reverted)
	assert.Equal(t, uint64(123), report.BlockNumber)
	assert.Empty(t, report.Trades)
	assert.Empty(t, report.Liquidity)
	assert.Empty(t, report.PoolsCreated)
	assert.Empty(t, report.Warnings)
}

func Test_AnalyzeTransaction_NotFoundIsFatal(t *testing.T) {
	source := &fakeChain{
		receiptErr: fmt.Errorf("receipt for 0x01: %w", chain.ErrTxNotFound),
	}
	tr := driverTracer(source, &fakePools{}, pairedTokens())

	report, err := tr.AnalyzeTransaction(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, chain.ErrTxNotFound)
	assert.Nil(t, report, "no partial output for a missing transaction")
}

func Test_AnalyzeTransaction_V2SwapEndToEnd(t *testing.T) {
	logs := []*types.Log{
		{
			Address: tokenA,
			Topics: []common.Hash{
				events.TopicTransfer,
				common.BytesToHash(wallet.Bytes()),
				common.BytesToHash(testPool.Bytes()),
			},
			Data:  uword(big.NewInt(100)),
			Index: 0,
		},
		v2SwapLog(testPool, 100, 0, 0, 50, 1),
		{
			Address: testPool,
			Topics:  []common.Hash{events.TopicV2Sync},
			Data:    words(uword(big.NewInt(1000)), uword(big.NewInt(500))),
			Index:   2,
		},
	}
	source := &fakeChain{
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(456),
			Logs:        logs,
		},
		tx:        &chain.TxContext{Hash: common.HexToHash("0x02"), From: wallet, Value: big.NewInt(0)},
		blockTime: testBlockTime,
	}
	pools := &fakePools{tokens: chain.PoolTokens{Token0: tokenA, Token1: tokenB}}

	tr := driverTracer(source, pools, pairedTokens())
	report, err := tr.AnalyzeTransaction(context.Background(), common.HexToHash("0x02"))
	require.NoError(t, err)

	assert.False(t, report.Reverted)
	assert.Equal(t, testBlockTime, report.Timestamp)
	require.Len(t, report.Trades, 1)

	trade := report.Trades[0]
	assert.Equal(t, events.ProtocolUniswapV2, trade.Protocol)
	assert.Equal(t, testPool, trade.Pool)
	assert.Equal(t, wallet, trade.Wallet)
	assert.Equal(t, "AAA", trade.InputToken.Symbol)
	assert.Equal(t, "BBB", trade.OutputToken.Symbol)
	assert.Equal(t, int64(100), trade.AmountInRaw.Int64())
	assert.Equal(t, int64(50), trade.AmountOutRaw.Int64())
	assert.Equal(t, PriceSourceReserves, trade.PriceSource)

	// Neither leg is a quote asset, so the trade carries no fabricated USD
	// value and is flagged.
	assert.Equal(t, SideUnknown, trade.Side)
	assert.Zero(t, trade.VolumeUSD)
	assert.True(t, trade.LowConfidence)

	kinds := make([]WarningKind, 0, len(report.Warnings))
	for _, w := range report.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, WarnLowConfidence)
}

func Test_AnalyzeTransaction_MetadataDegradationIsAudited(t *testing.T) {
	source := &fakeChain{
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(789),
			Logs:        []*types.Log{v2SwapLog(testPool, 100, 0, 0, 50, 0)},
		},
		tx:        &chain.TxContext{From: wallet, Value: big.NewInt(0)},
		blockTime: testBlockTime,
	}
	pools := &fakePools{tokens: chain.PoolTokens{Token0: tokenA, Token1: tokenB}}
	empty := &fakeTokens{infos: map[common.Address]chain.TokenInfo{}}

	tr := driverTracer(source, pools, empty)
	report, err := tr.AnalyzeTransaction(context.Background(), common.HexToHash("0x03"))
	require.NoError(t, err)

	require.Len(t, report.Trades, 1)
	assert.Equal(t, "UNKNOWN", report.Trades[0].InputToken.Symbol)

	found := false
	for _, w := range report.Warnings {
		if w.Kind == WarnLookupFailure {
			found = true
		}
	}
	assert.True(t, found, "placeholder metadata must surface in the report, not just the log stream")
}

func Test_AnalyzeTransaction_UnresolvedPoolSkipsSwap(t *testing.T) {
	source := &fakeChain{
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(321),
			Logs:        []*types.Log{v2SwapLog(testPool, 100, 0, 0, 50, 0)},
		},
		tx:        &chain.TxContext{From: wallet, Value: big.NewInt(0)},
		blockTime: testBlockTime,
	}
	pools := &fakePools{err: errors.New("token0() reverted")}

	tr := driverTracer(source, pools, pairedTokens())
	report, err := tr.AnalyzeTransaction(context.Background(), common.HexToHash("0x04"))
	require.NoError(t, err, "an unresolvable pool skips its swaps, not the analysis")

	assert.Empty(t, report.Trades)
	require.NotEmpty(t, report.Warnings)
	assert.Equal(t, WarnUnresolvedPool, report.Warnings[0].Kind)
}
