package tracer

import (
	"github.com/ethereum/go-ethereum/common"
)

// quoteSet decides which assets count as the quote side of a pair: the native
// asset, its wrapped form, and the chain's configured stablecoins.
type quoteSet struct {
	wrappedNative common.Address
	stables       map[common.Address]struct{}
}

func newQuoteSet(wrappedNative common.Address, stables []common.Address) *quoteSet {
	set := &quoteSet{wrappedNative: wrappedNative, stables: make(map[common.Address]struct{}, len(stables))}
	for _, s := range stables {
		set.stables[s] = struct{}{}
	}
	return set
}

func (q *quoteSet) isNativeLike(addr common.Address) bool {
	return addr == (common.Address{}) || addr == q.wrappedNative
}

func (q *quoteSet) isQuote(addr common.Address) bool {
	if q.isNativeLike(addr) {
		return true
	}
	_, ok := q.stables[addr]
	return ok
}

// valuation is the priced view of a resolved trade: base token, side, and the
// native/USD prices and volume.
type valuation struct {
	Base        common.Address
	Side        Side
	PriceNative float64
	PriceUSD    float64
	VolumeUSD   float64
	// Priced is false when neither leg is native-like, in which case all
	// figures are zero and the trade carries the low-confidence flag rather
	// than a fabricated value.
	Priced bool
}

// valuate classifies the trade side and converts a pool-quoted spot price
// into USD. priceToken1PerToken0 is the pool mid-price of token0 denominated
// in token1; baseAmount is the decimal amount of base token that moved.
//
// The base token is the non-quote leg; when both or neither leg is a quote
// asset the side is UNKNOWN and the base defaults to the input token.
func valuate(res resolution, pool PoolIdentity, quotes *quoteSet, priceToken1PerToken0 float64, baseAmount func(base common.Address) float64, nativeUSD float64) valuation {
	v := valuation{Base: res.InputToken, Side: SideUnknown}

	inQuote := quotes.isQuote(res.InputToken)
	outQuote := quotes.isQuote(res.OutputToken)
	switch {
	case outQuote && !inQuote:
		// Wallet sent the base token and received the quote asset.
		v.Base = res.InputToken
		v.Side = SideSell
	case inQuote && !outQuote:
		v.Base = res.OutputToken
		v.Side = SideBuy
	default:
		return v
	}

	// Orient the pool mid-price to quote-per-base.
	price := priceToken1PerToken0
	ok := true
	if v.Base == pool.Token1 {
		price, ok = invertPrice(price)
	}
	if !ok {
		return v
	}

	nativeLeg := quotes.isNativeLike(res.InputToken) || quotes.isNativeLike(res.OutputToken)
	if !nativeLeg {
		// Stable-quoted pair: the pool price is already USD-denominated to
		// first order, no native conversion applies.
		v.PriceNative = 0
		v.PriceUSD, _ = clampPrice(price)
	} else {
		v.PriceNative = price
		v.PriceUSD, _ = clampPrice(price * nativeUSD)
	}
	v.VolumeUSD, _ = clampPrice(baseAmount(v.Base) * v.PriceUSD)
	v.Priced = true
	return v
}
