package tracer

import (
	"math"
	"math/big"
)

// pow2x96 is 2^96, the fixed-point scale of sqrtPriceX96.
var pow2x96 = math.Pow(2, 96)

// clampPrice enforces the numeric contract on spot prices: output is always a
// finite non-negative float. A violation clamps to zero and reports false so
// callers can flag the record.
func clampPrice(p float64) (float64, bool) {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0, false
	}
	return p, true
}

// priceFromReserves computes the quote-per-base spot price of a
// constant-product pool from its raw reserves, adjusted for the two tokens'
// decimals. Returns 0, false when the base reserve is empty.
func priceFromReserves(reserveBase, reserveQuote *big.Int, decimalsBase, decimalsQuote uint8) (float64, bool) {
	if reserveBase == nil || reserveQuote == nil || reserveBase.Sign() <= 0 {
		return 0, false
	}
	rb, _ := new(big.Float).SetInt(reserveBase).Float64()
	rq, _ := new(big.Float).SetInt(reserveQuote).Float64()
	p := (rq / rb) * math.Pow(10, float64(decimalsBase)-float64(decimalsQuote))
	return clampPrice(p)
}

// priceFromSqrtX96 computes the token1-per-token0 spot price from a
// concentrated-liquidity pool's sqrtPriceX96, adjusted for decimals.
func priceFromSqrtX96(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (float64, bool) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, false
	}
	s, _ := new(big.Float).SetInt(sqrtPriceX96).Float64()
	ratio := s / pow2x96
	p := ratio * ratio * math.Pow(10, float64(decimals0)-float64(decimals1))
	return clampPrice(p)
}

// priceFromTick computes the token1-per-token0 spot price from a pool tick
// when no sqrt price is available: 1.0001^tick, decimal-adjusted.
func priceFromTick(tick *big.Int, decimals0, decimals1 uint8) (float64, bool) {
	if tick == nil {
		return 0, false
	}
	t, _ := new(big.Float).SetInt(tick).Float64()
	p := math.Pow(1.0001, t) * math.Pow(10, float64(decimals0)-float64(decimals1))
	return clampPrice(p)
}

// invertPrice flips a quote direction. Zero input stays zero rather than
// producing infinity.
func invertPrice(p float64) (float64, bool) {
	if p == 0 {
		return 0, false
	}
	return clampPrice(1 / p)
}
