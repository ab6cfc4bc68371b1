package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPoolManager = common.HexToAddress("0x000000000004444c5dc75cB358380D2e3dE08A90")
	testLaunchpad   = common.HexToAddress("0x6EF8c2cDb3f909c9e5D1b1D4A50eC04b206eeE51")
	testPair        = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	testSender      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testRecipient   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func testRegistry() *Registry {
	return NewRegistry(RegistryConfig{
		V4PoolManager: testPoolManager,
		Launchpad:     testLaunchpad,
	})
}

func uword(v *big.Int) []byte {
	b := make([]byte, 32)
	v.FillBytes(b)
	return b
}

// sword encodes a signed value as a two's-complement int256 word.
func sword(v *big.Int) []byte {
	if v.Sign() >= 0 {
		return uword(v)
	}
	pow := new(big.Int).Lsh(big.NewInt(1), 256)
	return uword(new(big.Int).Add(pow, v))
}

func words(ws ...[]byte) []byte {
	var out []byte
	for _, w := range ws {
		out = append(out, w...)
	}
	return out
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func Test_Classify_V2SwapFoldsToSignedDeltas(t *testing.T) {
	log := &types.Log{
		Address: testPair,
		Topics:  []common.Hash{TopicV2Swap, addrTopic(testSender), addrTopic(testRecipient)},
		Data: words(
			uword(big.NewInt(100)), // amount0In
			uword(big.NewInt(0)),   // amount1In
			uword(big.NewInt(0)),   // amount0Out
			uword(big.NewInt(50)),  // amount1Out
		),
		Index: 3,
	}

	decoded, err := testRegistry().Classify(log)
	require.NoError(t, err)
	swap, ok := decoded.(*Swap)
	require.True(t, ok)

	assert.Equal(t, ProtocolUniswapV2, swap.Protocol)
	assert.Equal(t, testPair, swap.Pool)
	assert.Equal(t, int64(100), swap.Amount0.Int64())
	assert.Equal(t, int64(-50), swap.Amount1.Int64())
	assert.Equal(t, uint(3), swap.Index())
	assert.NoError(t, swap.Validate())
}

func Test_Classify_V3SwapParsesSignedWords(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96) // price 1.0
	log := &types.Log{
		Address: testPair,
		Topics:  []common.Hash{TopicV3Swap, addrTopic(testSender), addrTopic(testRecipient)},
		Data: words(
			sword(big.NewInt(1_000_000)),
			sword(big.NewInt(-998_000)),
			uword(sqrtPrice),
			uword(big.NewInt(12345)),
			sword(big.NewInt(-887220)),
		),
	}

	decoded, err := testRegistry().Classify(log)
	require.NoError(t, err)
	swap, ok := decoded.(*Swap)
	require.True(t, ok)

	assert.Equal(t, ProtocolUniswapV3, swap.Protocol)
	assert.Equal(t, int64(1_000_000), swap.Amount0.Int64())
	assert.Equal(t, int64(-998_000), swap.Amount1.Int64())
	assert.Equal(t, sqrtPrice, swap.SqrtPriceX96)
	assert.Equal(t, int64(-887220), swap.Tick.Int64())
	assert.NoError(t, swap.Validate())
}

func Test_Classify_PancakeV3SwapTagged(t *testing.T) {
	log := &types.Log{
		Address: testPair,
		Topics:  []common.Hash{TopicPancakeV3Swap, addrTopic(testSender), addrTopic(testRecipient)},
		Data: words(
			sword(big.NewInt(-10)),
			sword(big.NewInt(20)),
			uword(new(big.Int).Lsh(big.NewInt(1), 96)),
			uword(big.NewInt(1)),
			sword(big.NewInt(0)),
			uword(big.NewInt(0)), // protocol fee words
			uword(big.NewInt(0)),
		),
	}

	decoded, err := testRegistry().Classify(log)
	require.NoError(t, err)
	swap := decoded.(*Swap)
	assert.Equal(t, ProtocolPancakeV3, swap.Protocol)
	assert.Equal(t, int64(-10), swap.Amount0.Int64())
}

func Test_Classify_V4SwapNegatedToPoolPerspective(t *testing.T) {
	poolID := common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000001")
	// The pool manager reports swapper-perspective deltas: the swapper paid
	// 100 of currency0 (-100) and received 50 of currency1 (+50).
	log := &types.Log{
		Address: testPoolManager,
		Topics:  []common.Hash{TopicV4Swap, poolID, addrTopic(testSender)},
		Data: words(
			sword(big.NewInt(-100)),
			sword(big.NewInt(50)),
			uword(new(big.Int).Lsh(big.NewInt(1), 96)),
			uword(big.NewInt(777)),
			sword(big.NewInt(100)),
		),
	}

	decoded, err := testRegistry().Classify(log)
	require.NoError(t, err)
	swap := decoded.(*Swap)

	assert.Equal(t, ProtocolUniswapV4, swap.Protocol)
	assert.Equal(t, poolID, swap.PoolID)
	assert.Equal(t, common.Address{}, swap.Pool)
	assert.Equal(t, int64(100), swap.Amount0.Int64())
	assert.Equal(t, int64(-50), swap.Amount1.Int64())
	assert.NoError(t, swap.Validate())
}

func Test_Classify_V4SwapIgnoredFromWrongEmitter(t *testing.T) {
	log := &types.Log{
		Address: testPair, // not the pool manager
		Topics:  []common.Hash{TopicV4Swap, common.Hash{}, addrTopic(testSender)},
		Data:    make([]byte, 160),
	}

	decoded, err := testRegistry().Classify(log)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func Test_Classify_ERC20Transfer(t *testing.T) {
	token := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	log := &types.Log{
		Address: token,
		Topics:  []common.Hash{TopicTransfer, addrTopic(testSender), addrTopic(testRecipient)},
		Data:    uword(big.NewInt(42)),
		Index:   1,
	}

	decoded, err := testRegistry().Classify(log)
	require.NoError(t, err)
	tr, ok := decoded.(*Transfer)
	require.True(t, ok)

	assert.Equal(t, token, tr.Token)
	assert.Equal(t, testSender, tr.From)
	assert.Equal(t, testRecipient, tr.To)
	assert.Equal(t, int64(42), tr.Value.Int64())
}

func Test_Classify_ERC721TransferExcluded(t *testing.T) {
	tokenID := common.BigToHash(big.NewInt(9001))
	log := &types.Log{
		Address: testPair,
		Topics:  []common.Hash{TopicTransfer, addrTopic(testSender), addrTopic(testRecipient), tokenID},
		Data:    nil,
	}

	decoded, err := testRegistry().Classify(log)
	require.NoError(t, err)
	assert.Nil(t, decoded, "NFT transfers are not fungible value movements")
}

func Test_Classify_UnrecognizedTopicIsSilent(t *testing.T) {
	log := &types.Log{
		Address: testPair,
		Topics:  []common.Hash{common.HexToHash("0x1234")},
		Data:    make([]byte, 32),
	}

	decoded, err := testRegistry().Classify(log)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func Test_Classify_MalformedDataIsError(t *testing.T) {
	log := &types.Log{
		Address: testPair,
		Topics:  []common.Hash{TopicV2Swap, addrTopic(testSender), addrTopic(testRecipient)},
		Data:    uword(big.NewInt(100)), // one word instead of four
	}

	decoded, err := testRegistry().Classify(log)
	assert.Nil(t, decoded)
	var malformed ErrMalformedLog
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, TopicV2Swap, malformed.Topic)
}

func Test_Classify_Sync(t *testing.T) {
	log := &types.Log{
		Address: testPair,
		Topics:  []common.Hash{TopicV2Sync},
		Data:    words(uword(big.NewInt(5000)), uword(big.NewInt(10))),
	}

	decoded, err := testRegistry().Classify(log)
	require.NoError(t, err)
	sync := decoded.(*ReserveSync)
	assert.Equal(t, int64(5000), sync.Reserve0.Int64())
	assert.Equal(t, int64(10), sync.Reserve1.Int64())
}

func Test_Classify_PairAndPoolCreated(t *testing.T) {
	token0 := common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	token1 := common.HexToAddress("0xBBB0000000000000000000000000000000000002")

	t.Run("pair created", func(t *testing.T) {
		log := &types.Log{
			Address: common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
			Topics:  []common.Hash{TopicPairCreated, addrTopic(token0), addrTopic(token1)},
			Data:    words(uword(new(big.Int).SetBytes(testPair.Bytes())), uword(big.NewInt(1))),
		}
		decoded, err := testRegistry().Classify(log)
		require.NoError(t, err)
		pc := decoded.(*PairCreated)
		assert.Equal(t, token0, pc.Token0)
		assert.Equal(t, token1, pc.Token1)
		assert.Equal(t, testPair, pc.Pair)
	})

	t.Run("pool created", func(t *testing.T) {
		log := &types.Log{
			Address: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
			Topics: []common.Hash{
				TopicPoolCreated,
				addrTopic(token0),
				addrTopic(token1),
				common.BigToHash(big.NewInt(3000)),
			},
			Data: words(sword(big.NewInt(60)), uword(new(big.Int).SetBytes(testPair.Bytes()))),
		}
		decoded, err := testRegistry().Classify(log)
		require.NoError(t, err)
		pc := decoded.(*PoolCreated)
		assert.Equal(t, int64(3000), pc.Fee.Int64())
		assert.Equal(t, int64(60), pc.TickSpacing.Int64())
		assert.Equal(t, testPair, pc.Pool)
	})
}

func Test_Classify_CurveTrades(t *testing.T) {
	token := common.HexToAddress("0xCCC0000000000000000000000000000000000003")

	t.Run("buy", func(t *testing.T) {
		log := &types.Log{
			Address: testLaunchpad,
			Topics:  []common.Hash{TopicCurveBuy, addrTopic(token), addrTopic(testSender)},
			Data: words(
				uword(big.NewInt(1e9)),  // native in
				uword(big.NewInt(5e9)),  // tokens out
				uword(big.NewInt(30e9)), // virtual native
				uword(big.NewInt(90e9)), // virtual token
			),
		}
		decoded, err := testRegistry().Classify(log)
		require.NoError(t, err)
		trade := decoded.(*CurveTrade)
		assert.True(t, trade.IsBuy)
		assert.Equal(t, token, trade.Token)
		assert.Equal(t, int64(1e9), trade.NativeAmount.Int64())
		assert.Equal(t, int64(5e9), trade.TokenAmount.Int64())
		assert.Equal(t, int64(30e9), trade.VirtualNative.Int64())
	})

	t.Run("sell ignored from wrong emitter", func(t *testing.T) {
		log := &types.Log{
			Address: testPair,
			Topics:  []common.Hash{TopicCurveSell, addrTopic(token), addrTopic(testSender)},
			Data:    make([]byte, 128),
		}
		decoded, err := testRegistry().Classify(log)
		require.NoError(t, err)
		assert.Nil(t, decoded)
	})
}

func Test_Swap_ValidateRejectsBadSigns(t *testing.T) {
	cases := []struct {
		name    string
		a0, a1  int64
		wantErr bool
	}{
		{"in0 out1", 100, -50, false},
		{"in1 out0", -50, 100, false},
		{"both positive", 5, 3, true},
		{"both negative", -5, -3, true},
		{"zero side", 0, -3, true},
		{"both zero", 0, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			swap := &Swap{Amount0: big.NewInt(tc.a0), Amount1: big.NewInt(tc.a1)}
			err := swap.Validate()
			if tc.wantErr {
				var invalid ErrInvalidSwapDeltas
				require.ErrorAs(t, err, &invalid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func Test_Registry_FactoryAttribution(t *testing.T) {
	pancakeFactory := common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73")
	r := NewRegistry(RegistryConfig{
		PancakeV2Factory: pancakeFactory,
		DefaultV2:        ProtocolPancakeV2,
	})

	log := &types.Log{
		Address: pancakeFactory,
		Topics:  []common.Hash{TopicPairCreated, addrTopic(testSender), addrTopic(testRecipient)},
		Data:    words(uword(new(big.Int).SetBytes(testPair.Bytes())), uword(big.NewInt(1))),
	}
	decoded, err := r.Classify(log)
	require.NoError(t, err)
	assert.Equal(t, ProtocolPancakeV2, decoded.(*PairCreated).Protocol)
}
