package tracer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/wronghand/evmtracer/internal/chain"
	"github.com/wronghand/evmtracer/internal/events"
	"github.com/wronghand/evmtracer/internal/prices"
)

// Params carries the per-chain constants the tracer needs beyond its
// collaborators.
type Params struct {
	WrappedNative  common.Address
	Stablecoins    []common.Address
	NativeDecimals uint8
}

// ChainSource is the chain-data collaborator: receipt, transaction context
// and block timestamp for one transaction. *chain.Client implements it.
type ChainSource interface {
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Transaction(ctx context.Context, txHash common.Hash) (*chain.TxContext, error)
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
}

// PoolSource resolves a deployed pool contract's token pair.
// *chain.PoolReader implements it.
type PoolSource interface {
	Tokens(ctx context.Context, pool common.Address) (chain.PoolTokens, error)
}

// TokenSource resolves ERC-20 metadata. *chain.TokenReader implements it.
type TokenSource interface {
	Info(ctx context.Context, token common.Address) (chain.TokenInfo, error)
}

// Tracer turns one transaction receipt into normalized trade, liquidity and
// pool-creation records. Collaborators are constructed once per process; all
// per-transaction state lives inside AnalyzeTransaction.
type Tracer struct {
	client   ChainSource
	registry *events.Registry
	pools    PoolSource
	tokens   TokenSource
	prices   prices.Provider
	quotes   *quoteSet
	params   Params
	logger   zerolog.Logger
}

func New(client ChainSource, registry *events.Registry, pools PoolSource, tokens TokenSource, priceSource prices.Provider, params Params, logger zerolog.Logger) *Tracer {
	return &Tracer{
		client:   client,
		registry: registry,
		pools:    pools,
		tokens:   tokens,
		prices:   priceSource,
		quotes:   newQuoteSet(params.WrappedNative, params.Stablecoins),
		params:   params,
		logger:   logger.With().Str("component", "tracer").Logger(),
	}
}

// decodedLogs is one receipt's logs bucketed by event kind. Syncs keep only
// the latest reserve snapshot per pool, which is the pool's post-transaction
// mid-price state.
type decodedLogs struct {
	all       []events.Decoded
	transfers []*events.Transfer
	swaps     []*events.Swap
	curves    []*events.CurveTrade
	liquidity []*events.LiquidityChange
	syncs     map[common.Address]*events.ReserveSync
}

// AnalyzeTransaction fetches and analyzes one transaction. A transaction the
// node does not know about returns an error wrapping chain.ErrTxNotFound; a
// reverted transaction returns a Report with Reverted set and no records.
// Every other failure mode is recovered locally and surfaced through the
// Report's warnings.
func (t *Tracer) AnalyzeTransaction(ctx context.Context, txHash common.Hash) (*Report, error) {
	receipt, err := t.client.Receipt(ctx, txHash)
	if err != nil {
		return nil, err
	}

	report := &Report{TxHash: txHash, BlockNumber: receipt.BlockNumber.Uint64()}
	diag := &diagnostics{logger: t.logger.With().Str("tx_hash", txHash.Hex()).Logger()}

	if receipt.Status == types.ReceiptStatusFailed {
		report.Reverted = true
		diag.logger.Info().Msg("Transaction reverted, nothing to analyze")
		return report, nil
	}

	txCtx, blockTime, nativeUSD, err := t.fetchContext(ctx, txHash, report.BlockNumber, diag)
	if err != nil {
		return nil, err
	}
	report.Timestamp = blockTime

	decoded := t.classifyLogs(receipt.Logs, diag)

	resolver := newPoolResolver(t.pools, t.params.WrappedNative)
	resolver.seed(decoded.all)

	t.warmTokenCache(ctx, decoded, resolver)

	for _, swap := range decoded.swaps {
		trade := t.buildTrade(ctx, swap, decoded, resolver, txCtx, nativeUSD, diag)
		if trade == nil {
			continue
		}
		trade.TxHash = txHash
		trade.BlockNumber = report.BlockNumber
		trade.Timestamp = blockTime
		report.Trades = append(report.Trades, trade)
	}

	for _, curve := range decoded.curves {
		trade := t.buildCurveTrade(ctx, curve, nativeUSD, diag)
		if trade == nil {
			continue
		}
		trade.TxHash = txHash
		trade.BlockNumber = report.BlockNumber
		trade.Timestamp = blockTime
		report.Trades = append(report.Trades, trade)
	}

	for _, lc := range decoded.liquidity {
		ev := t.buildLiquidity(ctx, lc, resolver, diag)
		if ev == nil {
			continue
		}
		ev.TxHash = txHash
		ev.BlockNumber = report.BlockNumber
		ev.Timestamp = blockTime
		report.Liquidity = append(report.Liquidity, ev)
	}

	report.PoolsCreated = t.collectCreations(txHash, report.BlockNumber, blockTime, decoded.all)
	report.Warnings = diag.list()

	diag.logger.Info().
		Int("trades", len(report.Trades)).
		Int("liquidity_events", len(report.Liquidity)).
		Int("pools_created", len(report.PoolsCreated)).
		Int("warnings", len(report.Warnings)).
		Msg("Transaction analyzed")

	return report, nil
}

// fetchContext gathers the transaction body, block timestamp and native USD
// price concurrently. Only a missing transaction is fatal; the other two
// degrade to zero values with a warning.
func (t *Tracer) fetchContext(ctx context.Context, txHash common.Hash, blockNumber uint64, diag *diagnostics) (*chain.TxContext, time.Time, float64, error) {
	var (
		wg        sync.WaitGroup
		txCtx     *chain.TxContext
		txErr     error
		blockTime time.Time
		nativeUSD float64
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		txCtx, txErr = t.client.Transaction(ctx, txHash)
	}()
	go func() {
		defer wg.Done()
		ts, err := t.client.BlockTime(ctx, blockNumber)
		if err != nil {
			diag.warnf(WarnLookupFailure, 0, "block timestamp lookup failed: %v", err)
			return
		}
		blockTime = ts
	}()
	go func() {
		defer wg.Done()
		price, err := t.prices.CurrentPrice(ctx)
		if err != nil {
			diag.warnf(WarnLookupFailure, 0, "native price lookup failed: %v", err)
			return
		}
		nativeUSD = price
	}()
	wg.Wait()

	if txErr != nil {
		return nil, time.Time{}, 0, fmt.Errorf("failed to load transaction context: %w", txErr)
	}
	return txCtx, blockTime, nativeUSD, nil
}

// classifyLogs runs the registry over every receipt log. A decode failure
// skips that log only.
func (t *Tracer) classifyLogs(logs []*types.Log, diag *diagnostics) *decodedLogs {
	out := &decodedLogs{syncs: make(map[common.Address]*events.ReserveSync)}
	for _, log := range logs {
		ev, err := t.registry.Classify(log)
		if err != nil {
			diag.warnf(WarnDecodeFailure, log.Index, "%v", err)
			continue
		}
		if ev == nil {
			continue
		}
		out.all = append(out.all, ev)
		switch e := ev.(type) {
		case *events.Transfer:
			out.transfers = append(out.transfers, e)
		case *events.Swap:
			out.swaps = append(out.swaps, e)
		case *events.CurveTrade:
			out.curves = append(out.curves, e)
		case *events.LiquidityChange:
			out.liquidity = append(out.liquidity, e)
		case *events.ReserveSync:
			out.syncs[e.Pool] = e
		}
	}
	return out
}

// warmTokenCache issues the metadata lookups for every token address the
// receipt can reference, concurrently. Later per-trade lookups then hit the
// memoized entries.
func (t *Tracer) warmTokenCache(ctx context.Context, decoded *decodedLogs, resolver *poolResolver) {
	seen := make(map[common.Address]struct{})
	var addrs []common.Address
	add := func(a common.Address) {
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		addrs = append(addrs, a)
	}
	for _, tr := range decoded.transfers {
		add(tr.Token)
	}
	for _, id := range resolver.byAddress {
		add(id.Token0)
		add(id.Token1)
	}
	for _, id := range resolver.byPoolID {
		add(id.Token0)
		add(id.Token1)
	}

	var wg sync.WaitGroup
	for _, addr := range addrs {
		wg.Add(1)
		go func(a common.Address) {
			defer wg.Done()
			_, _ = t.tokens.Info(ctx, a)
		}(addr)
	}
	wg.Wait()
}

// tokenInfo resolves metadata through the memoized source. Degradation to
// the UNKNOWN placeholder comes back as a non-nil error alongside the usable
// placeholder, so it lands in the report's warnings, not just the log stream.
func (t *Tracer) tokenInfo(ctx context.Context, addr common.Address, diag *diagnostics, logIndex uint) chain.TokenInfo {
	info, err := t.tokens.Info(ctx, addr)
	if err != nil {
		diag.warnf(WarnLookupFailure, logIndex, "token metadata degraded: %v", err)
	}
	if info == (chain.TokenInfo{}) {
		return chain.UnknownToken(addr)
	}
	return info
}

// buildTrade runs one swap through identity resolution, amount resolution,
// pricing and valuation. A nil return means the swap was skipped; the reason
// is already on the diagnostics.
func (t *Tracer) buildTrade(ctx context.Context, swap *events.Swap, decoded *decodedLogs, resolver *poolResolver, txCtx *chain.TxContext, nativeUSD float64, diag *diagnostics) *TradeEvent {
	var (
		id  PoolIdentity
		err error
	)
	if swap.Pool != (common.Address{}) {
		id, err = resolver.resolveAddress(ctx, swap.Pool)
	} else {
		id, err = resolver.resolvePoolID(swap.PoolID, decoded.transfers, txCtx.Value)
	}
	if err != nil {
		diag.warnf(WarnUnresolvedPool, swap.LogIndex, "pool identity for %s: %v", poolLabel(swap), err)
		return nil
	}

	res, err := resolveSwap(swap, id, decoded.transfers, txCtx.Value, txCtx.From)
	if err != nil {
		var invalid events.ErrInvalidSwapDeltas
		if errors.As(err, &invalid) {
			diag.warnf(WarnInvalidSwapDeltas, swap.LogIndex, "%v", err)
		} else {
			diag.warnf(WarnInvalidSwapDeltas, swap.LogIndex, "swap rejected: %v", err)
		}
		return nil
	}

	info0 := t.tokenInfo(ctx, id.Token0, diag, swap.LogIndex)
	info1 := t.tokenInfo(ctx, id.Token1, diag, swap.LogIndex)
	inputInfo := t.tokenInfo(ctx, res.InputToken, diag, swap.LogIndex)
	outputInfo := t.tokenInfo(ctx, res.OutputToken, diag, swap.LogIndex)

	price, source := t.spotPrice(swap, decoded, res, info0, info1, diag)

	trade := &TradeEvent{
		Wallet:       txCtx.From,
		Protocol:     swap.Protocol,
		Pool:         swap.Pool,
		PoolID:       swap.PoolID,
		InputToken:   inputInfo,
		OutputToken:  outputInfo,
		AmountInRaw:  res.AmountIn,
		AmountOutRaw: res.AmountOut,
		AmountIn:     toDecimal(res.AmountIn, inputInfo.Decimals),
		AmountOut:    toDecimal(res.AmountOut, outputInfo.Decimals),
		PriceSource:  source,
		LogIndex:     swap.LogIndex,
	}

	baseAmount := func(base common.Address) float64 {
		if base == res.InputToken {
			return trade.AmountIn
		}
		return trade.AmountOut
	}
	v := valuate(res, id, t.quotes, price, baseAmount, nativeUSD)
	trade.BaseToken = v.Base
	trade.Side = v.Side
	trade.PriceNative = v.PriceNative
	trade.PriceUSD = v.PriceUSD
	trade.VolumeUSD = v.VolumeUSD

	if id.LowConfidence {
		trade.LowConfidence = true
		diag.warnf(WarnLowConfidence, swap.LogIndex, "pool pair inferred by wrapped-native heuristic")
	}
	if !v.Priced {
		trade.LowConfidence = true
		diag.warnf(WarnLowConfidence, swap.LogIndex, "no native or stable leg, trade not valued")
	}

	return trade
}

// spotPrice computes the token1-per-token0 mid-price for a swap's pool,
// dispatching on what state the protocol family exposes. The trade-ratio
// fallback reflects one fill, not pool state, and is flagged.
func (t *Tracer) spotPrice(swap *events.Swap, decoded *decodedLogs, res resolution, info0, info1 chain.TokenInfo, diag *diagnostics) (float64, PriceSource) {
	if swap.SqrtPriceX96 != nil && swap.SqrtPriceX96.Sign() > 0 {
		if p, ok := priceFromSqrtX96(swap.SqrtPriceX96, info0.Decimals, info1.Decimals); ok {
			return p, PriceSourceSqrtPrice
		}
		diag.warnf(WarnPriceFallback, swap.LogIndex, "sqrt price out of float range, clamped to zero")
		return 0, PriceSourceNone
	}
	if swap.Tick != nil {
		if p, ok := priceFromTick(swap.Tick, info0.Decimals, info1.Decimals); ok {
			return p, PriceSourceTick
		}
		diag.warnf(WarnPriceFallback, swap.LogIndex, "tick price out of float range, clamped to zero")
		return 0, PriceSourceNone
	}

	if sync, ok := decoded.syncs[swap.Pool]; ok && swap.Pool != (common.Address{}) {
		if p, ok := priceFromReserves(sync.Reserve0, sync.Reserve1, info0.Decimals, info1.Decimals); ok {
			return p, PriceSourceReserves
		}
	}

	// No pool state observed: fall back to this trade's own amount ratio.
	amount0 := new(big.Int).Abs(swap.Amount0)
	amount1 := new(big.Int).Abs(swap.Amount1)
	if p, ok := priceFromReserves(amount0, amount1, info0.Decimals, info1.Decimals); ok {
		diag.warnf(WarnPriceFallback, swap.LogIndex, "no reserve snapshot, price from trade amount ratio")
		return p, PriceSourceTradeRatio
	}

	diag.warnf(WarnPriceFallback, swap.LogIndex, "no price source available, price zeroed")
	return 0, PriceSourceNone
}

// buildCurveTrade normalizes a bonding-curve buy or sell. Price comes from
// the curve's post-trade virtual reserves, the launchpad's own notion of the
// spot price.
func (t *Tracer) buildCurveTrade(ctx context.Context, curve *events.CurveTrade, nativeUSD float64, diag *diagnostics) *TradeEvent {
	if curve.TokenAmount == nil || curve.NativeAmount == nil ||
		(curve.TokenAmount.Sign() == 0 && curve.NativeAmount.Sign() == 0) {
		diag.warnf(WarnInvalidSwapDeltas, curve.LogIndex, "curve trade with zero amounts")
		return nil
	}

	tokenInfo := t.tokenInfo(ctx, curve.Token, diag, curve.LogIndex)
	nativeInfo := t.tokenInfo(ctx, events.NativeAsset, diag, curve.LogIndex)

	trade := &TradeEvent{
		Wallet:    curve.Trader,
		Protocol:  events.ProtocolLaunchpad,
		BaseToken: curve.Token,
		LogIndex:  curve.LogIndex,
	}
	if curve.IsBuy {
		trade.Side = SideBuy
		trade.InputToken = nativeInfo
		trade.OutputToken = tokenInfo
		trade.AmountInRaw = curve.NativeAmount
		trade.AmountOutRaw = curve.TokenAmount
	} else {
		trade.Side = SideSell
		trade.InputToken = tokenInfo
		trade.OutputToken = nativeInfo
		trade.AmountInRaw = curve.TokenAmount
		trade.AmountOutRaw = curve.NativeAmount
	}
	trade.AmountIn = toDecimal(trade.AmountInRaw, trade.InputToken.Decimals)
	trade.AmountOut = toDecimal(trade.AmountOutRaw, trade.OutputToken.Decimals)

	price, ok := priceFromReserves(curve.VirtualToken, curve.VirtualNative, tokenInfo.Decimals, t.params.NativeDecimals)
	if ok {
		trade.PriceSource = PriceSourceCurve
	} else {
		// Degenerate curve state: fall back to this trade's own ratio.
		price, ok = priceFromReserves(curve.TokenAmount, curve.NativeAmount, tokenInfo.Decimals, t.params.NativeDecimals)
		if ok {
			trade.PriceSource = PriceSourceTradeRatio
			diag.warnf(WarnPriceFallback, curve.LogIndex, "no virtual reserves, price from trade amount ratio")
		} else {
			trade.PriceSource = PriceSourceNone
			diag.warnf(WarnPriceFallback, curve.LogIndex, "curve price unavailable, price zeroed")
		}
	}
	trade.PriceNative = price
	trade.PriceUSD, _ = clampPrice(price * nativeUSD)
	baseAmount := toDecimal(curve.TokenAmount, tokenInfo.Decimals)
	trade.VolumeUSD, _ = clampPrice(baseAmount * trade.PriceUSD)

	return trade
}

func (t *Tracer) buildLiquidity(ctx context.Context, lc *events.LiquidityChange, resolver *poolResolver, diag *diagnostics) *LiquidityEvent {
	id, err := resolver.resolveAddress(ctx, lc.Pool)
	if err != nil {
		diag.warnf(WarnUnresolvedPool, lc.LogIndex, "pool identity for %s: %v", lc.Pool.Hex(), err)
		return nil
	}

	info0 := t.tokenInfo(ctx, id.Token0, diag, lc.LogIndex)
	info1 := t.tokenInfo(ctx, id.Token1, diag, lc.LogIndex)

	return &LiquidityEvent{
		Protocol: lc.Protocol,
		Pool:     lc.Pool,
		Kind:     lc.Kind,
		Token0:   info0,
		Token1:   info1,
		Amount0:  toDecimal(lc.Amount0, info0.Decimals),
		Amount1:  toDecimal(lc.Amount1, info1.Decimals),
		LogIndex: lc.LogIndex,
	}
}

func (t *Tracer) collectCreations(txHash common.Hash, blockNumber uint64, blockTime time.Time, decoded []events.Decoded) []*PoolCreation {
	var out []*PoolCreation
	for _, ev := range decoded {
		switch e := ev.(type) {
		case *events.PairCreated:
			out = append(out, &PoolCreation{
				TxHash: txHash, BlockNumber: blockNumber, Timestamp: blockTime,
				Protocol: e.Protocol, Pool: e.Pair,
				Token0: e.Token0, Token1: e.Token1,
				LogIndex: e.LogIndex,
			})
		case *events.PoolCreated:
			out = append(out, &PoolCreation{
				TxHash: txHash, BlockNumber: blockNumber, Timestamp: blockTime,
				Protocol: e.Protocol, Pool: e.Pool,
				Token0: e.Token0, Token1: e.Token1,
				Fee: e.Fee, TickSpacing: e.TickSpacing,
				LogIndex: e.LogIndex,
			})
		case *events.PoolInitialize:
			out = append(out, &PoolCreation{
				TxHash: txHash, BlockNumber: blockNumber, Timestamp: blockTime,
				Protocol: e.Protocol, PoolID: e.PoolID,
				Token0: e.Currency0, Token1: e.Currency1,
				Fee: e.Fee, TickSpacing: e.TickSpacing,
				LogIndex: e.LogIndex,
			})
		}
	}
	return out
}

func poolLabel(swap *events.Swap) string {
	if swap.Pool != (common.Address{}) {
		return swap.Pool.Hex()
	}
	return swap.PoolID.Hex()
}
