package tracer

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wronghand/evmtracer/internal/chain"
	"github.com/wronghand/evmtracer/internal/events"
)

// Side classifies a trade relative to the pair's base token: the wallet
// receiving the base token is buying it.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// PriceSource records how the spot price on a trade was obtained, so
// consumers can tell pool mid-price from the lower-precision fallbacks.
type PriceSource string

const (
	PriceSourceReserves   PriceSource = "reserves"
	PriceSourceSqrtPrice  PriceSource = "sqrt_price"
	PriceSourceTick       PriceSource = "tick"
	PriceSourceCurve      PriceSource = "virtual_reserves"
	PriceSourceTradeRatio PriceSource = "trade_ratio"
	PriceSourceNone       PriceSource = "none"
)

// TradeEvent is the canonical normalized trade. It is constructed once per
// recognized swap and never mutated afterwards.
type TradeEvent struct {
	TxHash      common.Hash
	BlockNumber uint64
	Timestamp   time.Time
	Wallet      common.Address
	Protocol    events.Protocol

	Pool   common.Address // zero for hash-identified pools
	PoolID common.Hash    // set for hash-identified pools only

	InputToken   chain.TokenInfo
	OutputToken  chain.TokenInfo
	AmountInRaw  *big.Int
	AmountOutRaw *big.Int
	AmountIn     float64 // decimal-adjusted
	AmountOut    float64

	BaseToken   common.Address
	Side        Side
	PriceNative float64 // native asset per base token
	PriceUSD    float64
	VolumeUSD   float64
	PriceSource PriceSource

	// LowConfidence marks trades whose pool identity or valuation rests on a
	// heuristic rather than event or contract data.
	LowConfidence bool

	LogIndex uint
}

// LiquidityEvent is a normalized Mint or Burn on a pair/pool.
type LiquidityEvent struct {
	TxHash      common.Hash
	BlockNumber uint64
	Timestamp   time.Time
	Protocol    events.Protocol
	Pool        common.Address
	Kind        events.LiquidityKind

	Token0  chain.TokenInfo
	Token1  chain.TokenInfo
	Amount0 float64
	Amount1 float64

	LogIndex uint
}

// Report is the outcome of analyzing one transaction. Reverted transactions
// produce a Report with Reverted set and no records; a missing transaction
// produces no Report at all.
type Report struct {
	TxHash      common.Hash
	BlockNumber uint64
	Timestamp   time.Time
	Reverted    bool

	Trades       []*TradeEvent
	Liquidity    []*LiquidityEvent
	PoolsCreated []*PoolCreation
	Warnings     []Warning
}

// PoolCreation reports a new pair/pool observed in the receipt.
type PoolCreation struct {
	TxHash      common.Hash
	BlockNumber uint64
	Timestamp   time.Time
	Protocol    events.Protocol

	Pool   common.Address
	PoolID common.Hash

	Token0      common.Address
	Token1      common.Address
	Fee         *big.Int
	TickSpacing *big.Int

	LogIndex uint
}

// toDecimal converts a raw integer token amount to its decimal representation
// as a float. Sign is preserved.
func toDecimal(amount *big.Int, decimals uint8) float64 {
	if amount == nil || amount.Sign() == 0 {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}
