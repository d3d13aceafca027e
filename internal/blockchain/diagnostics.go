package blockchain

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ChainDiagnostic is the RPC health of one configured chain
type ChainDiagnostic struct {
	ChainID       int64  `json:"chainId"`
	Connected     bool   `json:"connected"`
	ReportedChain int64  `json:"reportedChainId,omitempty"`
	LatestBlock   uint64 `json:"latestBlock,omitempty"`
	Error         string `json:"error,omitempty"`
	LatencyMS     int64  `json:"latencyMs"`
}

// RunDiagnostics checks every configured RPC endpoint: that it answers, that
// it serves the chain it is configured for, and its head block.
func (c *EVMClient) RunDiagnostics(ctx context.Context) []ChainDiagnostic {
	chainIDs := make([]int64, 0, len(c.rpcURLs))
	for chainID := range c.rpcURLs {
		chainIDs = append(chainIDs, chainID)
	}
	sort.Slice(chainIDs, func(i, j int) bool { return chainIDs[i] < chainIDs[j] })

	results := make([]ChainDiagnostic, 0, len(chainIDs))
	for _, chainID := range chainIDs {
		results = append(results, c.diagnose(ctx, chainID))
	}
	return results
}

func (c *EVMClient) diagnose(ctx context.Context, chainID int64) ChainDiagnostic {
	result := ChainDiagnostic{ChainID: chainID}
	start := time.Now()

	fail := func(err error) ChainDiagnostic {
		result.Error = err.Error()
		result.LatencyMS = time.Since(start).Milliseconds()
		zap.L().Warn("RPC diagnostic failed", zap.Int64("chain_id", chainID), zap.Error(err))
		return result
	}

	client, err := c.client(ctx, chainID)
	if err != nil {
		return fail(err)
	}

	reported, err := client.ChainID(ctx)
	if err != nil {
		return fail(err)
	}
	result.ReportedChain = reported.Int64()

	block, err := client.BlockNumber(ctx)
	if err != nil {
		return fail(err)
	}
	result.LatestBlock = block
	result.Connected = result.ReportedChain == chainID
	if !result.Connected {
		result.Error = "endpoint serves a different chain"
	}
	result.LatencyMS = time.Since(start).Milliseconds()
	return result
}
