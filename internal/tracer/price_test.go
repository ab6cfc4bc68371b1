package tracer

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqrtX96For builds the sqrtPriceX96 encoding of a raw token1-per-token0
// price.
func sqrtX96For(price float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(math.Sqrt(price)), new(big.Float).SetFloat64(pow2x96))
	out, _ := f.Int(nil)
	return out
}

func Test_PriceFromSqrtX96_KnownPrice(t *testing.T) {
	// Both tokens 18 decimals, pool at 2000 token1 per token0.
	sqrt := sqrtX96For(2000)

	price, ok := priceFromSqrtX96(sqrt, 18, 18)
	require.True(t, ok)
	assert.InEpsilon(t, 2000.0, price, 1e-9)

	inverted, ok := invertPrice(price)
	require.True(t, ok)
	assert.InEpsilon(t, 0.0005, inverted, 1e-9)
}

func Test_PriceFromSqrtX96_DecimalAdjustment(t *testing.T) {
	// A USDC/WETH-shaped pool: token0 has 6 decimals, token1 has 18. A raw
	// ratio of 10^12 corresponds to a decimal price of 1.0.
	sqrt := sqrtX96For(1e12)

	price, ok := priceFromSqrtX96(sqrt, 6, 18)
	require.True(t, ok)
	assert.InEpsilon(t, 1.0, price, 1e-9)
}

func Test_PriceFromSqrtX96_DegenerateInputs(t *testing.T) {
	price, ok := priceFromSqrtX96(nil, 18, 18)
	assert.False(t, ok)
	assert.Zero(t, price)

	price, ok = priceFromSqrtX96(big.NewInt(0), 18, 18)
	assert.False(t, ok)
	assert.Zero(t, price)
}

func Test_PriceFromReserves(t *testing.T) {
	// 10 token0 (18 decimals) against 20000 token1 (6 decimals): 2000
	// token1 per token0.
	reserve0, _ := new(big.Int).SetString("10000000000000000000", 10)
	reserve1 := big.NewInt(20_000_000_000)

	price, ok := priceFromReserves(reserve0, reserve1, 18, 6)
	require.True(t, ok)
	assert.InEpsilon(t, 2000.0, price, 1e-9)
}

func Test_PriceFromReserves_EmptyBaseReserve(t *testing.T) {
	price, ok := priceFromReserves(big.NewInt(0), big.NewInt(100), 18, 18)
	assert.False(t, ok)
	assert.Zero(t, price)
}

func Test_PriceFromTick(t *testing.T) {
	t.Run("tick zero is parity", func(t *testing.T) {
		price, ok := priceFromTick(big.NewInt(0), 18, 18)
		require.True(t, ok)
		assert.InEpsilon(t, 1.0, price, 1e-12)
	})

	t.Run("known tick", func(t *testing.T) {
		// 1.0001^6931 ≈ 1.9998
		price, ok := priceFromTick(big.NewInt(6931), 18, 18)
		require.True(t, ok)
		assert.InDelta(t, 2.0, price, 0.01)
	})

	t.Run("negative tick inverts", func(t *testing.T) {
		up, _ := priceFromTick(big.NewInt(1000), 18, 18)
		down, _ := priceFromTick(big.NewInt(-1000), 18, 18)
		assert.InEpsilon(t, 1.0, up*down, 1e-9)
	})
}

func Test_Prices_NeverNaNOrInf(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 1024)

	checks := map[string]float64{}

	p, _ := priceFromSqrtX96(huge, 0, 77)
	checks["sqrt overflow"] = p
	p, _ = priceFromTick(big.NewInt(10_000_000), 0, 0)
	checks["extreme tick"] = p
	p, _ = priceFromReserves(big.NewInt(1), huge, 0, 0)
	checks["extreme reserve ratio"] = p
	p, _ = invertPrice(0)
	checks["inversion of zero"] = p

	for name, price := range checks {
		assert.False(t, math.IsNaN(price), name)
		assert.False(t, math.IsInf(price, 0), name)
		assert.GreaterOrEqual(t, price, 0.0, name)
	}
}

func Test_ClampPrice(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
		ok   bool
	}{
		{"finite", 123.45, 123.45, true},
		{"zero", 0, 0, true},
		{"negative", -1, 0, false},
		{"nan", math.NaN(), 0, false},
		{"positive inf", math.Inf(1), 0, false},
		{"negative inf", math.Inf(-1), 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := clampPrice(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}
