package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Topic hashes for every event shape the tracer understands. Computed from the
// canonical signatures rather than hardcoded so a typo cannot silently
// misroute a log. V2-style topics are shared by Uniswap V2 and PancakeSwap V2;
// the registry's default tags decide which protocol label applies on a given
// chain.
var (
	// ERC-20 Transfer: 0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef
	TopicTransfer = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// V2-style factory and pair events
	TopicPairCreated = crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)"))
	TopicV2Swap      = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	TopicV2Sync      = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))
	TopicV2Mint      = crypto.Keccak256Hash([]byte("Mint(address,uint256,uint256)"))
	TopicV2Burn      = crypto.Keccak256Hash([]byte("Burn(address,uint256,uint256,address)"))

	// V3-style factory and pool events. PancakeSwap V3 appends two protocol
	// fee words to Swap, which changes the topic hash.
	TopicPoolCreated   = crypto.Keccak256Hash([]byte("PoolCreated(address,address,uint24,int24,address)"))
	TopicV3Swap        = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))
	TopicPancakeV3Swap = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24,uint128,uint128)"))
	TopicV3Mint        = crypto.Keccak256Hash([]byte("Mint(address,address,int24,int24,uint128,uint256,uint256)"))
	TopicV3Burn        = crypto.Keccak256Hash([]byte("Burn(address,int24,int24,uint128,uint256,uint256)"))

	// V4 pool manager events (hash-identified pools)
	TopicV4Swap       = crypto.Keccak256Hash([]byte("Swap(bytes32,address,int128,int128,uint160,uint128,int24,uint24)"))
	TopicV4Initialize = crypto.Keccak256Hash([]byte("Initialize(bytes32,address,address,uint24,int24,address,uint160,int24)"))

	// Bonding-curve launch platform events
	TopicCurveBuy  = crypto.Keccak256Hash([]byte("TokenPurchase(address,address,uint256,uint256,uint256,uint256)"))
	TopicCurveSell = crypto.Keccak256Hash([]byte("TokenSale(address,address,uint256,uint256,uint256,uint256)"))
)

// RegistryConfig parameterizes classification for one chain: which contracts
// emit which protocol's events and which protocol label V2/V3-shaped topics
// receive when the emitter is an anonymous pair/pool contract.
type RegistryConfig struct {
	UniswapV2Factory common.Address
	UniswapV3Factory common.Address
	PancakeV2Factory common.Address
	PancakeV3Factory common.Address
	V4PoolManager    common.Address
	Launchpad        common.Address

	// DefaultV2/DefaultV3 tag Swap/Sync/Mint/Burn logs whose emitting pair or
	// pool is not otherwise attributable (the topic namespace is shared by the
	// Uniswap and PancakeSwap forks). Zero values fall back to the Uniswap
	// labels.
	DefaultV2 Protocol
	DefaultV3 Protocol
}

// Registry is the static classification table for one chain. It is safe for
// concurrent use; nothing in it mutates after construction.
type Registry struct {
	cfg RegistryConfig
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.DefaultV2 == "" {
		cfg.DefaultV2 = ProtocolUniswapV2
	}
	if cfg.DefaultV3 == "" {
		cfg.DefaultV3 = ProtocolUniswapV3
	}
	return &Registry{cfg: cfg}
}

// v2ProtocolFor labels a V2-shaped event by its emitter, preferring factory
// attribution over the chain default.
func (r *Registry) v2ProtocolFor(emitter common.Address) Protocol {
	switch emitter {
	case r.cfg.UniswapV2Factory:
		return ProtocolUniswapV2
	case r.cfg.PancakeV2Factory:
		return ProtocolPancakeV2
	}
	return r.cfg.DefaultV2
}

func (r *Registry) v3ProtocolFor(emitter common.Address) Protocol {
	switch emitter {
	case r.cfg.UniswapV3Factory:
		return ProtocolUniswapV3
	case r.cfg.PancakeV3Factory:
		return ProtocolPancakeV3
	}
	return r.cfg.DefaultV3
}
