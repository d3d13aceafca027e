package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hivox/internal/config"
	"hivox/internal/database"
	"hivox/internal/logging"
	"hivox/internal/rewards"
	"hivox/internal/services"
)

// Requeues failed reward events and applies every open one.
func main() {
	claim := flag.String("claim", "", "only requeue the event of this claim id")
	requeue := flag.Bool("requeue", true, "reset failed events before processing")
	limit := flag.Int("limit", 500, "maximum events to process")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	table, err := rewards.Load(cfg.Rewards.LevelsFile)
	if err != nil {
		zap.L().Fatal("Failed to load reward table", zap.Error(err))
	}
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}

	ctx := context.Background()
	rewardService := services.NewRewardService(database.GetDB(), table, cfg.Rewards.MaxAttempts)

	var claimID *uuid.UUID
	if *claim != "" {
		id, err := uuid.Parse(*claim)
		if err != nil {
			zap.L().Fatal("Invalid claim id", zap.String("claim", *claim), zap.Error(err))
		}
		claimID = &id
	}

	if *requeue {
		n, err := rewardService.Requeue(ctx, claimID)
		if err != nil {
			zap.L().Fatal("Requeue failed", zap.Error(err))
		}
		zap.L().Info("Reward events requeued", zap.Int64("count", n))
	}

	processed, failed, err := rewardService.ProcessPending(ctx, *limit)
	if err != nil {
		zap.L().Fatal("Processing failed", zap.Error(err))
	}

	if claimID != nil {
		event, err := rewardService.GetClaimEvent(ctx, *claimID)
		if err != nil {
			zap.L().Fatal("Failed to load reward event", zap.String("claim", *claim), zap.Error(err))
		}
		zap.L().Info("Claim reward event",
			zap.String("event", event.ID.String()),
			zap.String("status", string(event.Status)),
			zap.Int("attempts", event.Attempts),
			zap.Stringp("last_error", event.LastError))
	}

	stats, err := rewardService.Stats(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read reward event stats", zap.Error(err))
	}
	zap.L().Info("Replay finished",
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Any("events_by_status", stats))
}
