package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventProcessor applies queued reward events
type EventProcessor interface {
	ProcessPending(ctx context.Context, limit int) (int, int, error)
}

const rewardBatchSize = 100

// RewardProcessor retries reward events that were not applied inline
type RewardProcessor struct {
	rewards  EventProcessor
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

// NewRewardProcessor creates a new reward processor job
func NewRewardProcessor(rewards EventProcessor, interval time.Duration) *RewardProcessor {
	return &RewardProcessor{
		rewards:  rewards,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the processing loop until Stop is called
func (rp *RewardProcessor) Start() {
	defer close(rp.done)
	zap.L().Info("Starting reward processor", zap.Duration("interval", rp.interval))

	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-rp.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			rp.RunOnce(ctx)
		case <-rp.stopChan:
			zap.L().Info("Stopping reward processor")
			return
		}
	}
}

// Stop stops the loop and waits for an in-flight batch to finish
func (rp *RewardProcessor) Stop() {
	close(rp.stopChan)
	<-rp.done
}

// RunOnce drains up to one batch of pending and failed events
func (rp *RewardProcessor) RunOnce(ctx context.Context) {
	processed, failed, err := rp.rewards.ProcessPending(ctx, rewardBatchSize)
	if err != nil {
		zap.L().Error("Reward processing aborted", zap.Error(err))
		return
	}
	if processed == 0 && failed == 0 {
		return
	}

	zap.L().Info("Reward events processed",
		zap.Int("processed", processed),
		zap.Int("failed", failed))
}
