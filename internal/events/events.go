package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol tags the venue family an event came from.
type Protocol string

const (
	ProtocolUniswapV2 Protocol = "uniswap_v2"
	ProtocolUniswapV3 Protocol = "uniswap_v3"
	ProtocolUniswapV4 Protocol = "uniswap_v4"
	ProtocolPancakeV2 Protocol = "pancake_v2"
	ProtocolPancakeV3 Protocol = "pancake_v3"
	ProtocolLaunchpad Protocol = "launchpad"
)

// NativeAsset is the sentinel address for the chain's native asset. V4 pool
// keys use it for native-currency legs; it is never a deployed ERC-20.
var NativeAsset = common.Address{}

// Decoded is one event of interest extracted from a receipt log.
type Decoded interface {
	// Index returns the log index the event was decoded from.
	Index() uint
}

// Transfer is an ERC-20 value movement. A zero From is a mint, a zero To is a
// burn. ERC-721 transfers are excluded at classification time.
type Transfer struct {
	Token    common.Address
	From     common.Address
	To       common.Address
	Value    *big.Int
	LogIndex uint
}

func (t *Transfer) Index() uint { return t.LogIndex }

// Swap is a pool-perspective trade with signed deltas: positive flowed into
// the pool, negative flowed out. V2-style in/out fields are folded into this
// convention at decode time.
type Swap struct {
	Protocol     Protocol
	Pool         common.Address // zero for hash-identified pools
	PoolID       common.Hash    // set for hash-identified pools only
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int // nil for V2-style events
	Liquidity    *big.Int // nil for V2-style events
	Tick         *big.Int // nil for V2-style events
	LogIndex     uint
}

func (s *Swap) Index() uint { return s.LogIndex }

// ErrInvalidSwapDeltas is returned by Validate when the signed amounts do not
// describe exactly one inflow and one outflow.
type ErrInvalidSwapDeltas struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

func (e ErrInvalidSwapDeltas) Error() string {
	return fmt.Sprintf("invalid swap deltas: amount0=%s amount1=%s", e.Amount0, e.Amount1)
}

// Validate checks the sign invariant: exactly one of amount0/amount1 is
// positive and the other negative. Anything else is rejected, not guessed.
func (s *Swap) Validate() error {
	if s.Amount0 == nil || s.Amount1 == nil {
		return ErrInvalidSwapDeltas{Amount0: s.Amount0, Amount1: s.Amount1}
	}
	s0, s1 := s.Amount0.Sign(), s.Amount1.Sign()
	if (s0 > 0 && s1 < 0) || (s0 < 0 && s1 > 0) {
		return nil
	}
	return ErrInvalidSwapDeltas{Amount0: s.Amount0, Amount1: s.Amount1}
}

// PairCreated establishes pair→token identity for V2-style factories.
type PairCreated struct {
	Protocol Protocol
	Token0   common.Address
	Token1   common.Address
	Pair     common.Address
	LogIndex uint
}

func (p *PairCreated) Index() uint { return p.LogIndex }

// PoolCreated establishes pool→token identity for V3-style factories.
type PoolCreated struct {
	Protocol    Protocol
	Token0      common.Address
	Token1      common.Address
	Pool        common.Address
	Fee         *big.Int
	TickSpacing *big.Int
	LogIndex    uint
}

func (p *PoolCreated) Index() uint { return p.LogIndex }

// ReserveSync carries post-event constant-product reserves (V2-style pairs).
type ReserveSync struct {
	Protocol Protocol
	Pool     common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	LogIndex uint
}

func (r *ReserveSync) Index() uint { return r.LogIndex }

// LiquidityKind distinguishes liquidity additions from removals.
type LiquidityKind string

const (
	LiquidityMint LiquidityKind = "mint"
	LiquidityBurn LiquidityKind = "burn"
)

// LiquidityChange is a Mint or Burn on a pair/pool.
type LiquidityChange struct {
	Protocol Protocol
	Pool     common.Address
	Kind     LiquidityKind
	Sender   common.Address
	Amount0  *big.Int
	Amount1  *big.Int
	LogIndex uint
}

func (l *LiquidityChange) Index() uint { return l.LogIndex }

// PoolInitialize announces a hash-identified pool's key. Currency0 may be the
// native-asset sentinel.
type PoolInitialize struct {
	Protocol     Protocol
	PoolID       common.Hash
	Currency0    common.Address
	Currency1    common.Address
	Fee          *big.Int
	TickSpacing  *big.Int
	Hooks        common.Address
	SqrtPriceX96 *big.Int
	Tick         *big.Int
	LogIndex     uint
}

func (p *PoolInitialize) Index() uint { return p.LogIndex }

// CurveTrade is a bonding-curve buy or sell on the launch platform. Amounts
// are wallet-perspective: TokenAmount is what the trader received (buy) or
// sold (sell), NativeAmount the native paid or received. Virtual reserves are
// the curve state after the trade.
type CurveTrade struct {
	Token         common.Address
	Trader        common.Address
	IsBuy         bool
	TokenAmount   *big.Int
	NativeAmount  *big.Int
	VirtualNative *big.Int
	VirtualToken  *big.Int
	LogIndex      uint
}

func (c *CurveTrade) Index() uint { return c.LogIndex }
