package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

// ErrTxNotFound reports a transaction the node does not know about. Callers
// treat it as fatal for that transaction's analysis; a reverted transaction is
// not an error and is signalled through the receipt status instead.
var ErrTxNotFound = errors.New("transaction not found")

const callTimeout = 30 * time.Second

// TxContext is the transaction-level context the tracer needs alongside the
// receipt: the initiating wallet and any native value it attached.
type TxContext struct {
	Hash  common.Hash
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// Client wraps an Ethereum JSON-RPC client.
type Client struct {
	client   *ethclient.Client
	endpoint string
	chainID  *big.Int
	logger   zerolog.Logger
}

// NewClient connects to an RPC endpoint and verifies the chain id
// best-effort: a mismatch is logged, not fatal, because several hosted
// endpoints report proxy chain ids.
func NewClient(endpoint string, chainID int64, logger zerolog.Logger) (*Client, error) {
	httpClient := &http.Client{
		Timeout: callTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rpcClient, err := rpc.DialHTTPWithClient(endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	client := ethclient.NewClient(rpcClient)

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	networkID, err := client.ChainID(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to verify chain ID, continuing anyway")
		networkID = big.NewInt(chainID)
	} else if networkID.Int64() != chainID {
		logger.Warn().
			Int64("expected", chainID).
			Int64("got", networkID.Int64()).
			Msg("Chain ID mismatch, continuing anyway")
	}

	logger.Info().
		Str("endpoint", endpoint).
		Int64("chain_id", chainID).
		Msg("Connected to RPC endpoint")

	return &Client{
		client:   client,
		endpoint: endpoint,
		chainID:  big.NewInt(chainID),
		logger:   logger,
	}, nil
}

func (c *Client) Close() {
	c.client.Close()
	c.logger.Info().Msg("RPC client connection closed")
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, has := ctx.Deadline(); has {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, callTimeout)
}

// Receipt fetches the transaction receipt. Status 0 (reverted) is reported
// through the receipt itself, not as an error.
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("receipt for %s: %w", txHash.Hex(), ErrTxNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}

// Transaction fetches wallet, target and native value for a transaction.
func (c *Client) Transaction(ctx context.Context, txHash common.Hash) (*TxContext, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, pending, err := c.client.TransactionByHash(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("transaction %s: %w", txHash.Hex(), ErrTxNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txHash.Hex(), err)
	}
	if pending {
		return nil, fmt.Errorf("transaction %s still pending: %w", txHash.Hex(), ErrTxNotFound)
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		c.logger.Warn().Err(err).Str("tx_hash", txHash.Hex()).Msg("Failed to recover transaction sender")
		from = common.Address{}
	}

	return &TxContext{
		Hash:  tx.Hash(),
		From:  from,
		To:    tx.To(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, nil
}

// BlockTime returns the timestamp of a block.
func (c *Client) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// CallContract performs a read-only contract call; used by the pool and token
// readers in this package.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return c.client.CallContract(ctx, msg, nil)
}
