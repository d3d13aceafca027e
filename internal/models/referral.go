package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReferralStatus is the lifecycle of a referral edge
type ReferralStatus string

const (
	ReferralStatusActive    ReferralStatus = "active"
	ReferralStatusCompleted ReferralStatus = "completed"
)

// Referral is one (ancestor, referred, level) edge created at signup.
// RewardAmount accumulates what the ancestor earned from this referred wallet.
type Referral struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReferrerAddress  string          `gorm:"size:42;not null;index" json:"referrerAddress"`
	ReferredAddress  string          `gorm:"size:42;not null;uniqueIndex:idx_referral_referred_level" json:"referredAddress"`
	ReferralLevel    int             `gorm:"not null;uniqueIndex:idx_referral_referred_level" json:"referralLevel"`
	ReferralCode     string          `gorm:"size:42;not null;index" json:"referralCode"`
	RewardPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"rewardPercentage"`
	RewardAmount     decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"rewardAmount"`
	Status           ReferralStatus  `gorm:"size:20;not null;default:active;index" json:"status"`
	CreatedAt        time.Time       `gorm:"index" json:"createdAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

func (Referral) TableName() string {
	return "referrals"
}

func (r *Referral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReferralCredit records one level of reward applied for one reward event.
// The (event, level) pair is unique so replays never credit twice.
type ReferralCredit struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EventID            uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_credit_event_level" json:"eventId"`
	Level              int             `gorm:"not null;uniqueIndex:idx_credit_event_level" json:"level"`
	ClaimID            uuid.UUID       `gorm:"type:uuid;not null;index" json:"claimId"`
	BeneficiaryAddress string          `gorm:"size:42;not null;index" json:"beneficiaryAddress"`
	SourceAddress      string          `gorm:"size:42;not null" json:"sourceAddress"`
	Percentage         decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"percentage"`
	Amount             decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	TableVersion       string          `gorm:"size:20;not null" json:"tableVersion"`
	CreatedAt          time.Time       `json:"createdAt"`
}

func (ReferralCredit) TableName() string {
	return "referral_credits"
}

func (c *ReferralCredit) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
