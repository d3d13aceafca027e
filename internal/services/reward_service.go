package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hivox/internal/models"
	"hivox/internal/repository"
	"hivox/internal/rewards"
)

// RewardService applies reward events written by claim submission, crediting
// up to three ancestors of the claimant according to the reward table.
type RewardService struct {
	repo        *repository.Repository
	table       rewards.Table
	maxAttempts int
}

func NewRewardService(db *gorm.DB, table rewards.Table, maxAttempts int) *RewardService {
	return &RewardService{
		repo:        repository.NewRepository(db),
		table:       table,
		maxAttempts: maxAttempts,
	}
}

// ProcessEvent applies one reward event. Processing an event twice credits
// nothing the second time. On failure the event is marked failed with the
// error so the processor job can retry it.
func (s *RewardService) ProcessEvent(ctx context.Context, eventID uuid.UUID) error {
	var credited int
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		event, err := tx.GetRewardEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("failed to load reward event: %w", err)
		}
		if event.Status == models.RewardEventProcessed {
			return nil
		}

		credited, err = s.applyCredits(ctx, tx, event)
		if err != nil {
			return err
		}
		return tx.MarkRewardEventProcessed(ctx, event.ID, time.Now())
	})

	if err != nil {
		zap.L().Error("Reward event failed",
			zap.String("event_id", eventID.String()),
			zap.Error(err))
		if markErr := s.repo.MarkRewardEventFailed(ctx, eventID, err.Error()); markErr != nil {
			zap.L().Error("Failed to mark reward event failed",
				zap.String("event_id", eventID.String()),
				zap.Error(markErr))
		}
		return err
	}

	zap.L().Info("Reward event processed",
		zap.String("event_id", eventID.String()),
		zap.Int("levels_credited", credited))
	return nil
}

// applyCredits walks the claimant's live up-line and credits each ancestor.
// A missing level ends the walk; later levels are never skipped to.
func (s *RewardService) applyCredits(ctx context.Context, tx *repository.Repository, event *models.RewardEvent) (int, error) {
	claimant, err := tx.GetUserByWallet(ctx, event.WalletAddress)
	if err != nil {
		return 0, fmt.Errorf("failed to load claimant %s: %w", event.WalletAddress, err)
	}

	ancestors, err := walkUpline(ctx, tx, claimant.WalletAddress, claimant.ReferrerAddress, s.table.Depth())
	if err != nil {
		return 0, err
	}

	credited := 0
	for i, ancestor := range ancestors {
		level := i + 1

		done, err := tx.CreditExists(ctx, event.ID, level)
		if err != nil {
			return credited, fmt.Errorf("failed to check level %d credit: %w", level, err)
		}
		if done {
			continue
		}

		amount, _ := s.table.Reward(level, event.Amount)
		percentage, _ := s.table.Percentage(level)

		if err := tx.CreateCredit(ctx, &models.ReferralCredit{
			EventID:            event.ID,
			Level:              level,
			ClaimID:            event.ClaimID,
			BeneficiaryAddress: ancestor.WalletAddress,
			SourceAddress:      claimant.WalletAddress,
			Percentage:         percentage,
			Amount:             amount,
			TableVersion:       s.table.Version,
		}); err != nil {
			return credited, fmt.Errorf("failed to record level %d credit: %w", level, err)
		}

		if err := tx.AddReferralReward(ctx, ancestor.WalletAddress, level, amount); err != nil {
			return credited, fmt.Errorf("failed to credit level %d referrer %s: %w", level, ancestor.WalletAddress, err)
		}
		if err := tx.AddReferralAmount(ctx, claimant.WalletAddress, level, amount); err != nil {
			return credited, fmt.Errorf("failed to update level %d referral: %w", level, err)
		}

		claimID := event.ClaimID
		if err := tx.CreateActivity(ctx, &models.Activity{
			UserID:         ancestor.ID,
			WalletAddress:  ancestor.WalletAddress,
			ActivityType:   models.ActivityReferralReward,
			Description:    fmt.Sprintf("Earned %s tokens (%s%%) from level %d referral %s", amount.String(), percentage.String(), level, claimant.WalletAddress),
			RelatedClaimID: &claimID,
		}); err != nil {
			return credited, err
		}

		credited++
	}

	return credited, nil
}

// ProcessPending applies pending and failed events that still have attempts
// left, oldest first. It returns how many were processed and how many failed.
func (s *RewardService) ProcessPending(ctx context.Context, limit int) (int, int, error) {
	events, err := s.repo.ListRetryableRewardEvents(ctx, s.maxAttempts, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list reward events: %w", err)
	}

	processed, failed := 0, 0
	for _, event := range events {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}
		if err := s.ProcessEvent(ctx, event.ID); err != nil {
			failed++
			continue
		}
		processed++
	}

	return processed, failed, nil
}

// Requeue resets failed events to pending with a fresh attempt budget,
// either every failed event or only the one written for claimID.
func (s *RewardService) Requeue(ctx context.Context, claimID *uuid.UUID) (int64, error) {
	n, err := s.repo.RequeueFailedRewardEvents(ctx, claimID)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue reward events: %w", err)
	}
	return n, nil
}

// Stats returns the number of reward events per status
func (s *RewardService) Stats(ctx context.Context) (map[models.RewardEventStatus]int64, error) {
	return s.repo.CountRewardEventsByStatus(ctx)
}

// GetClaimCredits returns the credits applied for a claim
func (s *RewardService) GetClaimCredits(ctx context.Context, claimID uuid.UUID) ([]models.ReferralCredit, error) {
	return s.repo.ListCreditsByClaim(ctx, claimID)
}

// GetClaimEvent returns the reward event written for a claim
func (s *RewardService) GetClaimEvent(ctx context.Context, claimID uuid.UUID) (*models.RewardEvent, error) {
	event, err := s.repo.GetRewardEventByClaim(ctx, claimID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &NotFoundError{Message: "Reward event not found"}
		}
		return nil, fmt.Errorf("failed to load reward event: %w", err)
	}
	return event, nil
}
