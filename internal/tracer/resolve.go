package tracer

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wronghand/evmtracer/internal/events"
)

// ErrZeroAmounts means neither side of a swap could be resolved to a non-zero
// amount through any fallback; the swap is skipped.
var ErrZeroAmounts = errors.New("both swap amounts resolved to zero")

// resolution is the wallet-perspective outcome of one swap: which token went
// in, which came out, and the raw magnitudes of each side.
type resolution struct {
	InputToken  common.Address
	OutputToken common.Address
	AmountIn    *big.Int
	AmountOut   *big.Int
}

// resolveSwap turns a signed-delta swap plus its pool identity into
// input/output tokens and amounts. Event deltas are authoritative when
// non-zero (pool-perspective, fee-adjusted); a zero side falls back to
// summing the receipt's transfers in the wallet's direction, and a zero
// native input leg falls back to the transaction's attached value.
//
// Conflicting signs (both into or both out of the pool) are rejected. A
// single zero side is tolerated: router and aggregator paths omit a leg from
// the event, which is exactly what the transfer fallback recovers.
func resolveSwap(swap *events.Swap, pool PoolIdentity, transfers []*events.Transfer, txNativeValue *big.Int, wallet common.Address) (resolution, error) {
	token0In, err := swapDirection(swap)
	if err != nil {
		return resolution{}, err
	}

	var res resolution
	if token0In {
		res.InputToken = pool.Token0
		res.OutputToken = pool.Token1
		res.AmountIn = new(big.Int).Set(swap.Amount0)
		res.AmountOut = new(big.Int).Neg(swap.Amount1)
	} else {
		res.InputToken = pool.Token1
		res.OutputToken = pool.Token0
		res.AmountIn = new(big.Int).Set(swap.Amount1)
		res.AmountOut = new(big.Int).Neg(swap.Amount0)
	}

	if res.AmountIn.Sign() == 0 {
		res.AmountIn = transferSum(transfers, res.InputToken, wallet, true)
	}
	if res.AmountOut.Sign() == 0 {
		res.AmountOut = transferSum(transfers, res.OutputToken, wallet, false)
	}
	if res.AmountIn.Sign() == 0 && res.InputToken == events.NativeAsset && txNativeValue != nil {
		res.AmountIn = new(big.Int).Set(txNativeValue)
	}

	if res.AmountIn.Sign() == 0 && res.AmountOut.Sign() == 0 {
		return resolution{}, ErrZeroAmounts
	}
	return res, nil
}

// swapDirection reports whether token0 is the input side. Both deltas
// pointing the same way, or both zero, carry no direction and are rejected.
func swapDirection(swap *events.Swap) (bool, error) {
	if swap.Amount0 == nil || swap.Amount1 == nil {
		return false, events.ErrInvalidSwapDeltas{Amount0: swap.Amount0, Amount1: swap.Amount1}
	}
	s0, s1 := swap.Amount0.Sign(), swap.Amount1.Sign()
	switch {
	case s0 > 0 && s1 > 0, s0 < 0 && s1 < 0, s0 == 0 && s1 == 0:
		return false, events.ErrInvalidSwapDeltas{Amount0: swap.Amount0, Amount1: swap.Amount1}
	case s0 > 0 || s1 < 0:
		return true, nil
	default:
		return false, nil
	}
}

// transferSum totals the receipt's transfers of one token in the wallet's
// direction: outgoing (from == wallet) for the input side, incoming
// (to == wallet) for the output side.
func transferSum(transfers []*events.Transfer, token common.Address, wallet common.Address, outgoing bool) *big.Int {
	sum := new(big.Int)
	for _, t := range transfers {
		if t.Token != token {
			continue
		}
		if outgoing && t.From == wallet {
			sum.Add(sum, t.Value)
		}
		if !outgoing && t.To == wallet {
			sum.Add(sum, t.Value)
		}
	}
	return sum
}
