package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hivox/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn against a repository bound to a single database transaction
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// IsNotFound reports whether err is gorm's record-not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicate reports whether err is a unique index violation
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// ---- Users ----

// CreateUser inserts a new user
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUserByWallet retrieves a user by lowercase wallet address
func (r *Repository) GetUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByReferralCode retrieves the owner of an uppercase referral code
func (r *Repository) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ReferralCodeExists checks whether a referral code is already taken
func (r *Repository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("referral_code = ?", code).Count(&count).Error
	return count > 0, err
}

// SetReferralChain stores the up-line snapshot of a user
func (r *Repository) SetReferralChain(ctx context.Context, userID uint, chain models.ReferralChain) error {
	return r.db.WithContext(ctx).Model(&models.User{ID: userID}).
		Select("referral_chain").
		Updates(&models.User{ReferralChain: chain}).Error
}

// TouchConnection refreshes the connection counters of a returning user
func (r *Repository) TouchConnection(ctx context.Context, userID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_connected_at": at,
			"total_connections": gorm.Expr("total_connections + ?", 1),
		}).Error
}

// UpdateUserFields applies a partial update to a user
func (r *Repository) UpdateUserFields(ctx context.Context, userID uint, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(fields).Error
}

// MarkUserClaimed flips a user to claimed. It reports false when the user
// had already claimed, which makes concurrent claims for one user safe.
func (r *Repository) MarkUserClaimed(ctx context.Context, userID uint, amount decimal.Decimal, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND claim_status = ?", userID, models.UserClaimStatusNotClaimed).
		Updates(map[string]interface{}{
			"claim_status":         models.UserClaimStatusClaimed,
			"total_tokens_claimed": amount,
			"last_claim_date":      at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

var rewardColumns = map[int]string{
	1: "referral_rewards_level1",
	2: "referral_rewards_level2",
	3: "referral_rewards_level3",
}

// AddReferralReward atomically adds amount to one level and to the total
func (r *Repository) AddReferralReward(ctx context.Context, wallet string, level int, amount decimal.Decimal) error {
	column, ok := rewardColumns[level]
	if !ok {
		return fmt.Errorf("invalid referral level %d", level)
	}

	result := r.db.WithContext(ctx).Model(&models.User{}).Where("wallet_address = ?", wallet).
		Updates(map[string]interface{}{
			column:                   gorm.Expr(column+" + ?", amount),
			"referral_rewards_total": gorm.Expr("referral_rewards_total + ?", amount),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ---- Referrals ----

// CreateReferral inserts one (ancestor, referred, level) edge
func (r *Repository) CreateReferral(ctx context.Context, referral *models.Referral) error {
	return r.db.WithContext(ctx).Create(referral).Error
}

// ListReferralsByReferrer returns the down-line edges of a wallet
func (r *Repository) ListReferralsByReferrer(ctx context.Context, referrer string) ([]models.Referral, error) {
	var referrals []models.Referral
	err := r.db.WithContext(ctx).
		Where("referrer_address = ?", referrer).
		Order("referral_level ASC, created_at DESC").
		Find(&referrals).Error
	return referrals, err
}

// AddReferralAmount accumulates a credited amount on an edge
func (r *Repository) AddReferralAmount(ctx context.Context, referred string, level int, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referred_address = ? AND referral_level = ?", referred, level).
		Update("reward_amount", gorm.Expr("reward_amount + ?", amount)).Error
}

// CompleteReferrals marks every active edge of a referred wallet completed
func (r *Repository) CompleteReferrals(ctx context.Context, referred string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referred_address = ? AND status = ?", referred, models.ReferralStatusActive).
		Updates(map[string]interface{}{
			"status":       models.ReferralStatusCompleted,
			"completed_at": at,
		}).Error
}

// ---- Activities ----

// CreateActivity appends an entry to the activity ledger
func (r *Repository) CreateActivity(ctx context.Context, activity *models.Activity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

// ListActivities returns a page of a wallet's activities, newest first, and the total count
func (r *Repository) ListActivities(ctx context.Context, wallet string, offset, limit int) ([]models.Activity, int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.Activity{}).Where("wallet_address = ?", wallet)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var activities []models.Activity
	err := r.db.WithContext(ctx).
		Where("wallet_address = ?", wallet).
		Order("occurred_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&activities).Error
	return activities, total, err
}

// ---- Claims ----

// CreateClaim inserts a claim; a duplicate transaction hash fails with gorm.ErrDuplicatedKey
func (r *Repository) CreateClaim(ctx context.Context, claim *models.ClaimHistory) error {
	return r.db.WithContext(ctx).Create(claim).Error
}

// GetClaimByID retrieves a claim by ID
func (r *Repository) GetClaimByID(ctx context.Context, id uuid.UUID) (*models.ClaimHistory, error) {
	var claim models.ClaimHistory
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&claim).Error
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// GetClaimByTransactionHash retrieves a claim by its lowercase transaction hash
func (r *Repository) GetClaimByTransactionHash(ctx context.Context, hash string) (*models.ClaimHistory, error) {
	var claim models.ClaimHistory
	err := r.db.WithContext(ctx).Where("transaction_hash = ?", hash).First(&claim).Error
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// ListClaimsByWallet returns a wallet's claims, newest first
func (r *Repository) ListClaimsByWallet(ctx context.Context, wallet string) ([]models.ClaimHistory, error) {
	var claims []models.ClaimHistory
	err := r.db.WithContext(ctx).
		Where("wallet_address = ?", wallet).
		Order("claimed_at DESC").
		Find(&claims).Error
	return claims, err
}

// TransitionClaim moves a claim from one status to another. It reports
// false when the claim was no longer in the expected status.
func (r *Repository) TransitionClaim(ctx context.Context, id uuid.UUID, from, to models.ClaimStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).Model(&models.ClaimHistory{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ---- Reward events ----

// CreateRewardEvent writes an outbox entry
func (r *Repository) CreateRewardEvent(ctx context.Context, event *models.RewardEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetRewardEvent retrieves a reward event by ID
func (r *Repository) GetRewardEvent(ctx context.Context, id uuid.UUID) (*models.RewardEvent, error) {
	var event models.RewardEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetRewardEventByClaim retrieves the reward event written for a claim
func (r *Repository) GetRewardEventByClaim(ctx context.Context, claimID uuid.UUID) (*models.RewardEvent, error) {
	var event models.RewardEvent
	err := r.db.WithContext(ctx).Where("claim_id = ?", claimID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListRetryableRewardEvents returns pending or failed events still below maxAttempts, oldest first
func (r *Repository) ListRetryableRewardEvents(ctx context.Context, maxAttempts, limit int) ([]models.RewardEvent, error) {
	var events []models.RewardEvent
	err := r.db.WithContext(ctx).
		Where("status IN ? AND attempts < ?",
			[]models.RewardEventStatus{models.RewardEventPending, models.RewardEventFailed}, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkRewardEventProcessed closes an event
func (r *Repository) MarkRewardEventProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.RewardEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.RewardEventProcessed,
			"attempts":     gorm.Expr("attempts + ?", 1),
			"last_error":   nil,
			"processed_at": at,
		}).Error
}

// MarkRewardEventFailed records a failed attempt unless the event was processed meanwhile
func (r *Repository) MarkRewardEventFailed(ctx context.Context, id uuid.UUID, cause string) error {
	return r.db.WithContext(ctx).Model(&models.RewardEvent{}).
		Where("id = ? AND status <> ?", id, models.RewardEventProcessed).
		Updates(map[string]interface{}{
			"status":     models.RewardEventFailed,
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": cause,
		}).Error
}

// RequeueFailedRewardEvents resets failed events to pending with a fresh attempt budget.
// A nil claimID requeues every failed event.
func (r *Repository) RequeueFailedRewardEvents(ctx context.Context, claimID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.RewardEvent{}).Where("status = ?", models.RewardEventFailed)
	if claimID != nil {
		query = query.Where("claim_id = ?", *claimID)
	}

	result := query.Updates(map[string]interface{}{
		"status":   models.RewardEventPending,
		"attempts": 0,
	})
	return result.RowsAffected, result.Error
}

// CountRewardEventsByStatus returns the number of events per status
func (r *Repository) CountRewardEventsByStatus(ctx context.Context) (map[models.RewardEventStatus]int64, error) {
	var rows []struct {
		Status models.RewardEventStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.RewardEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.RewardEventStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ---- Referral credits ----

// CreditExists checks whether a level of an event has already been credited
func (r *Repository) CreditExists(ctx context.Context, eventID uuid.UUID, level int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReferralCredit{}).
		Where("event_id = ? AND level = ?", eventID, level).
		Count(&count).Error
	return count > 0, err
}

// CreateCredit inserts a referral credit; (event, level) is unique
func (r *Repository) CreateCredit(ctx context.Context, credit *models.ReferralCredit) error {
	return r.db.WithContext(ctx).Create(credit).Error
}

// ListCreditsByClaim returns the credits applied for a claim, by level
func (r *Repository) ListCreditsByClaim(ctx context.Context, claimID uuid.UUID) ([]models.ReferralCredit, error) {
	var credits []models.ReferralCredit
	err := r.db.WithContext(ctx).
		Where("claim_id = ?", claimID).
		Order("level ASC").
		Find(&credits).Error
	return credits, err
}

// ---- Tweet tasks ----

// GetTweetTask retrieves a wallet's tweet task
func (r *Repository) GetTweetTask(ctx context.Context, wallet string) (*models.TweetTask, error) {
	var task models.TweetTask
	err := r.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpsertTweetTask creates or overwrites a wallet's tweet task
func (r *Repository) UpsertTweetTask(ctx context.Context, task *models.TweetTask) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed", "tweet_id", "author_id", "verified_at", "updated_at"}),
	}).Create(task).Error
}
