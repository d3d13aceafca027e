package blockchain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

var (
	// ErrChainNotConfigured is returned when no RPC URL is set for a chain id
	ErrChainNotConfigured = errors.New("no RPC endpoint configured for chain")
	// ErrReceiptNotFound is returned while a transaction is unknown or not yet mined
	ErrReceiptNotFound = errors.New("transaction receipt not found")
)

// TransactionDetails holds the outcome of a mined transaction
type TransactionDetails struct {
	Hash        string
	BlockNumber uint64
	Success     bool
	GasUsed     uint64
}

// EVMClient checks claim transactions on the EVM chains Hivox accepts.
// Connections are dialed on first use and kept per chain id.
type EVMClient struct {
	rpcURLs map[int64]string

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

// NewEVMClient creates a client for the given chain id to RPC URL map
func NewEVMClient(rpcURLs map[int64]string) *EVMClient {
	urls := make(map[int64]string, len(rpcURLs))
	for chainID, url := range rpcURLs {
		urls[chainID] = url
	}
	return &EVMClient{
		rpcURLs: urls,
		clients: make(map[int64]*ethclient.Client),
	}
}

// Supports reports whether an RPC URL is configured for chainID
func (c *EVMClient) Supports(chainID int64) bool {
	_, ok := c.rpcURLs[chainID]
	return ok
}

func (c *EVMClient) client(ctx context.Context, chainID int64) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[chainID]; ok {
		return client, nil
	}

	url, ok := c.rpcURLs[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrChainNotConfigured)
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain %d: %w", chainID, err)
	}
	c.clients[chainID] = client

	zap.L().Info("Connected to EVM RPC", zap.Int64("chain_id", chainID))
	return client, nil
}

// VerifyTransaction fetches the receipt of txHash on chainID
func (c *EVMClient) VerifyTransaction(ctx context.Context, chainID int64, txHash string) (*TransactionDetails, error) {
	client, err := c.client(ctx, chainID)
	if err != nil {
		return nil, err
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to fetch receipt: %w", err)
	}

	details := &TransactionDetails{
		Hash:    receipt.TxHash.Hex(),
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		details.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return details, nil
}

// Close releases every dialed connection
func (c *EVMClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for chainID, client := range c.clients {
		client.Close()
		delete(c.clients, chainID)
	}
}
