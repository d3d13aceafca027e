package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityType names a domain event recorded in the activity ledger
type ActivityType string

const (
	ActivityWalletConnected  ActivityType = "wallet_connected"
	ActivityClaimSubmitted   ActivityType = "claim_submitted"
	ActivityClaimConfirmed   ActivityType = "claim_confirmed"
	ActivityClaimFailed      ActivityType = "claim_failed"
	ActivityReferralCreated  ActivityType = "referral_created"
	ActivityReferralReward   ActivityType = "referral_reward"
	ActivityTweetVerified    ActivityType = "tweet_verified"
	ActivityPassportVerified ActivityType = "passport_verified"
	ActivityProfileUpdated   ActivityType = "profile_updated"
)

// Activity is an append-only audit entry
type Activity struct {
	ID                uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uint         `gorm:"not null;index" json:"userId"`
	WalletAddress     string       `gorm:"size:42;not null;index" json:"walletAddress"`
	ActivityType      ActivityType `gorm:"size:32;not null;index" json:"activityType"`
	Description       string       `gorm:"type:text;not null" json:"description"`
	RelatedClaimID    *uuid.UUID   `gorm:"type:uuid;index" json:"relatedClaimId,omitempty"`
	RelatedReferralID *uuid.UUID   `gorm:"type:uuid" json:"relatedReferralId,omitempty"`
	TransactionHash   *string      `gorm:"size:66" json:"transactionHash,omitempty"`
	OccurredAt        time.Time    `gorm:"not null;index" json:"occurredAt"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// TableName specifies the table name for Activity model
func (Activity) TableName() string {
	return "activities"
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now()
	}
	return nil
}
