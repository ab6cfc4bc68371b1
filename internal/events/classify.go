package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrMalformedLog reports a log whose topic matched a known schema but whose
// payload failed the schema's shape checks.
type ErrMalformedLog struct {
	Topic  common.Hash
	Reason string
}

func (e ErrMalformedLog) Error() string {
	return fmt.Sprintf("malformed log for topic %s: %s", e.Topic.Hex(), e.Reason)
}

// Classify decodes one raw log into an event of interest. It returns
// (nil, nil) for logs the registry does not recognize — including ERC-721
// transfers, which share the fungible Transfer topic but carry the token id
// as a third indexed topic and no data. A non-nil error means the topic was
// recognized but the payload did not decode; callers skip the log and
// continue with the rest of the receipt.
func (r *Registry) Classify(log *types.Log) (Decoded, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}

	switch log.Topics[0] {
	case TopicTransfer:
		return decodeTransfer(log)
	case TopicPairCreated:
		return decodePairCreated(log, r.v2ProtocolFor(log.Address))
	case TopicV2Swap:
		return decodeV2Swap(log, r.cfg.DefaultV2)
	case TopicV2Sync:
		return decodeSync(log, r.cfg.DefaultV2)
	case TopicV2Mint:
		return decodeV2Liquidity(log, r.cfg.DefaultV2, LiquidityMint)
	case TopicV2Burn:
		return decodeV2Liquidity(log, r.cfg.DefaultV2, LiquidityBurn)
	case TopicPoolCreated:
		return decodePoolCreated(log, r.v3ProtocolFor(log.Address))
	case TopicV3Swap:
		return decodeV3Swap(log, r.cfg.DefaultV3)
	case TopicPancakeV3Swap:
		return decodeV3Swap(log, ProtocolPancakeV3)
	case TopicV3Mint:
		return decodeV3Liquidity(log, r.cfg.DefaultV3, LiquidityMint)
	case TopicV3Burn:
		return decodeV3Liquidity(log, r.cfg.DefaultV3, LiquidityBurn)
	case TopicV4Swap:
		if log.Address != r.cfg.V4PoolManager {
			return nil, nil
		}
		return decodeV4Swap(log)
	case TopicV4Initialize:
		if log.Address != r.cfg.V4PoolManager {
			return nil, nil
		}
		return decodeV4Initialize(log)
	case TopicCurveBuy, TopicCurveSell:
		if log.Address != r.cfg.Launchpad {
			return nil, nil
		}
		return decodeCurveTrade(log, log.Topics[0] == TopicCurveBuy)
	}

	return nil, nil
}

// word returns the i-th 32-byte data word.
func word(data []byte, i int) []byte {
	return data[i*32 : (i+1)*32]
}

// parseSigned interprets a 32-byte word as a two's-complement int256.
func parseSigned(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		pow := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, pow)
	}
	return v
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}

func decodeTransfer(log *types.Log) (Decoded, error) {
	// ERC-721 uses the same topic with the token id as topics[3] and empty
	// data. Those are not fungible value movements; drop them silently.
	if len(log.Topics) == 4 && len(log.Data) == 0 {
		return nil, nil
	}
	if len(log.Topics) < 3 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "transfer needs from/to topics"}
	}
	if len(log.Data) < 32 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "transfer data shorter than one word"}
	}
	return &Transfer{
		Token:    log.Address,
		From:     topicAddress(log.Topics[1]),
		To:       topicAddress(log.Topics[2]),
		Value:    new(big.Int).SetBytes(word(log.Data, 0)),
		LogIndex: log.Index,
	}, nil
}

func decodePairCreated(log *types.Log, protocol Protocol) (Decoded, error) {
	if len(log.Topics) < 3 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "pair created needs token topics"}
	}
	if len(log.Data) < 32 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "pair created data shorter than one word"}
	}
	return &PairCreated{
		Protocol: protocol,
		Token0:   topicAddress(log.Topics[1]),
		Token1:   topicAddress(log.Topics[2]),
		Pair:     common.BytesToAddress(word(log.Data, 0)),
		LogIndex: log.Index,
	}, nil
}

// decodeV2Swap folds the four non-negative in/out fields into one signed
// delta per side: amountN = amountNIn - amountNOut, positive into the pool.
func decodeV2Swap(log *types.Log, protocol Protocol) (Decoded, error) {
	if len(log.Topics) < 3 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "swap needs sender/to topics"}
	}
	if len(log.Data) < 128 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "swap data shorter than four words"}
	}
	amount0In := new(big.Int).SetBytes(word(log.Data, 0))
	amount1In := new(big.Int).SetBytes(word(log.Data, 1))
	amount0Out := new(big.Int).SetBytes(word(log.Data, 2))
	amount1Out := new(big.Int).SetBytes(word(log.Data, 3))
	return &Swap{
		Protocol:  protocol,
		Pool:      log.Address,
		Sender:    topicAddress(log.Topics[1]),
		Recipient: topicAddress(log.Topics[2]),
		Amount0:   new(big.Int).Sub(amount0In, amount0Out),
		Amount1:   new(big.Int).Sub(amount1In, amount1Out),
		LogIndex:  log.Index,
	}, nil
}

func decodeSync(log *types.Log, protocol Protocol) (Decoded, error) {
	if len(log.Data) < 64 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "sync data shorter than two words"}
	}
	return &ReserveSync{
		Protocol: protocol,
		Pool:     log.Address,
		Reserve0: new(big.Int).SetBytes(word(log.Data, 0)),
		Reserve1: new(big.Int).SetBytes(word(log.Data, 1)),
		LogIndex: log.Index,
	}, nil
}

func decodeV2Liquidity(log *types.Log, protocol Protocol, kind LiquidityKind) (Decoded, error) {
	if len(log.Topics) < 2 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "liquidity event needs sender topic"}
	}
	if len(log.Data) < 64 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "liquidity data shorter than two words"}
	}
	return &LiquidityChange{
		Protocol: protocol,
		Pool:     log.Address,
		Kind:     kind,
		Sender:   topicAddress(log.Topics[1]),
		Amount0:  new(big.Int).SetBytes(word(log.Data, 0)),
		Amount1:  new(big.Int).SetBytes(word(log.Data, 1)),
		LogIndex: log.Index,
	}, nil
}

func decodePoolCreated(log *types.Log, protocol Protocol) (Decoded, error) {
	if len(log.Topics) < 4 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "pool created needs token/fee topics"}
	}
	if len(log.Data) < 64 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "pool created data shorter than two words"}
	}
	return &PoolCreated{
		Protocol:    protocol,
		Token0:      topicAddress(log.Topics[1]),
		Token1:      topicAddress(log.Topics[2]),
		Fee:         new(big.Int).SetBytes(log.Topics[3].Bytes()),
		TickSpacing: parseSigned(word(log.Data, 0)),
		Pool:        common.BytesToAddress(word(log.Data, 1)),
		LogIndex:    log.Index,
	}, nil
}

// decodeV3Swap handles both the Uniswap V3 layout and the PancakeSwap V3
// layout; the Pancake variant appends two protocol-fee words that the tracer
// does not use.
func decodeV3Swap(log *types.Log, protocol Protocol) (Decoded, error) {
	if len(log.Topics) < 3 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "swap needs sender/recipient topics"}
	}
	if len(log.Data) < 160 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "swap data shorter than five words"}
	}
	return &Swap{
		Protocol:     protocol,
		Pool:         log.Address,
		Sender:       topicAddress(log.Topics[1]),
		Recipient:    topicAddress(log.Topics[2]),
		Amount0:      parseSigned(word(log.Data, 0)),
		Amount1:      parseSigned(word(log.Data, 1)),
		SqrtPriceX96: new(big.Int).SetBytes(word(log.Data, 2)),
		Liquidity:    new(big.Int).SetBytes(word(log.Data, 3)),
		Tick:         parseSigned(word(log.Data, 4)),
		LogIndex:     log.Index,
	}, nil
}

func decodeV3Liquidity(log *types.Log, protocol Protocol, kind LiquidityKind) (Decoded, error) {
	if len(log.Topics) < 2 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "liquidity event needs owner topic"}
	}
	// Mint carries a leading non-indexed sender word that Burn does not.
	min, first := 96, 1
	if kind == LiquidityMint {
		min, first = 128, 2
	}
	if len(log.Data) < min {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "liquidity data too short"}
	}
	return &LiquidityChange{
		Protocol: protocol,
		Pool:     log.Address,
		Kind:     kind,
		Sender:   topicAddress(log.Topics[1]),
		Amount0:  new(big.Int).SetBytes(word(log.Data, first)),
		Amount1:  new(big.Int).SetBytes(word(log.Data, first+1)),
		LogIndex: log.Index,
	}, nil
}

// decodeV4Swap reads the pool-manager swap. The event reports deltas from the
// swapper's perspective (negative = paid into the pool); they are negated
// here so every Swap carries the same pool-perspective convention.
func decodeV4Swap(log *types.Log) (Decoded, error) {
	if len(log.Topics) < 3 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "swap needs id/sender topics"}
	}
	if len(log.Data) < 160 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "swap data shorter than five words"}
	}
	amount0 := parseSigned(word(log.Data, 0))
	amount1 := parseSigned(word(log.Data, 1))
	return &Swap{
		Protocol:     ProtocolUniswapV4,
		PoolID:       log.Topics[1],
		Sender:       topicAddress(log.Topics[2]),
		Amount0:      amount0.Neg(amount0),
		Amount1:      amount1.Neg(amount1),
		SqrtPriceX96: new(big.Int).SetBytes(word(log.Data, 2)),
		Liquidity:    new(big.Int).SetBytes(word(log.Data, 3)),
		Tick:         parseSigned(word(log.Data, 4)),
		LogIndex:     log.Index,
	}, nil
}

func decodeV4Initialize(log *types.Log) (Decoded, error) {
	if len(log.Topics) < 4 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "initialize needs id/currency topics"}
	}
	if len(log.Data) < 160 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "initialize data shorter than five words"}
	}
	return &PoolInitialize{
		Protocol:     ProtocolUniswapV4,
		PoolID:       log.Topics[1],
		Currency0:    topicAddress(log.Topics[2]),
		Currency1:    topicAddress(log.Topics[3]),
		Fee:          new(big.Int).SetBytes(word(log.Data, 0)),
		TickSpacing:  parseSigned(word(log.Data, 1)),
		Hooks:        common.BytesToAddress(word(log.Data, 2)),
		SqrtPriceX96: new(big.Int).SetBytes(word(log.Data, 3)),
		Tick:         parseSigned(word(log.Data, 4)),
		LogIndex:     log.Index,
	}, nil
}

func decodeCurveTrade(log *types.Log, isBuy bool) (Decoded, error) {
	if len(log.Topics) < 3 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "curve trade needs token/trader topics"}
	}
	if len(log.Data) < 128 {
		return nil, ErrMalformedLog{Topic: log.Topics[0], Reason: "curve trade data shorter than four words"}
	}
	trade := &CurveTrade{
		Token:         topicAddress(log.Topics[1]),
		Trader:        topicAddress(log.Topics[2]),
		IsBuy:         isBuy,
		VirtualNative: new(big.Int).SetBytes(word(log.Data, 2)),
		VirtualToken:  new(big.Int).SetBytes(word(log.Data, 3)),
		LogIndex:      log.Index,
	}
	if isBuy {
		trade.NativeAmount = new(big.Int).SetBytes(word(log.Data, 0))
		trade.TokenAmount = new(big.Int).SetBytes(word(log.Data, 1))
	} else {
		trade.TokenAmount = new(big.Int).SetBytes(word(log.Data, 0))
		trade.NativeAmount = new(big.Int).SetBytes(word(log.Data, 1))
	}
	return trade, nil
}
