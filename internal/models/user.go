package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserClaimStatus tracks whether a wallet has claimed its airdrop
type UserClaimStatus string

const (
	UserClaimStatusNotClaimed UserClaimStatus = "not_claimed"
	UserClaimStatusClaimed    UserClaimStatus = "claimed"
)

// MaxReferralLevels caps both the up-line snapshot and reward attribution
const MaxReferralLevels = 3

// ReferralChainEntry is one ancestor in a user's up-line snapshot
type ReferralChainEntry struct {
	Level         int    `json:"level"`
	WalletAddress string `json:"walletAddress"`
	ReferralCode  string `json:"referralCode"`
}

// ReferralChain is stored as a JSON column; level 1 is the immediate referrer
type ReferralChain []ReferralChainEntry

// ReferralRewards holds the accumulated credit per level. Total is always
// the sum of the three levels.
type ReferralRewards struct {
	Level1 decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"level1"`
	Level2 decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"level2"`
	Level3 decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"level3"`
	Total  decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"total"`
}

// User represents a wallet known to the platform
type User struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	WalletAddress      string           `gorm:"uniqueIndex;size:42;not null" json:"walletAddress"`
	Username           *string          `gorm:"size:50" json:"username,omitempty"`
	Email              *string          `gorm:"size:255" json:"email,omitempty"`
	ReferralCode       string           `gorm:"uniqueIndex;size:20;not null" json:"referralCode"`
	ReferrerAddress    *string          `gorm:"index;size:42" json:"referrerAddress,omitempty"`
	ReferralChain      ReferralChain    `gorm:"serializer:json;type:text" json:"referralChain"`
	ReferralRewards    ReferralRewards  `gorm:"embedded;embeddedPrefix:referral_rewards_" json:"referralRewards"`
	ClaimStatus        UserClaimStatus  `gorm:"size:20;not null;default:not_claimed;index" json:"claimStatus"`
	TotalTokensClaimed decimal.Decimal  `gorm:"type:decimal(36,18);not null;default:0" json:"totalTokensClaimed"`
	LastClaimDate      *time.Time       `json:"lastClaimDate,omitempty"`
	LastConnectedAt    time.Time        `json:"lastConnectedAt"`
	TotalConnections   int              `gorm:"not null;default:0" json:"totalConnections"`
	PassportScore      *decimal.Decimal `gorm:"type:decimal(10,4)" json:"passportScore,omitempty"`
	PassportPassing    bool             `gorm:"not null;default:false" json:"passportPassing"`
	PassportCheckedAt  *time.Time       `json:"passportCheckedAt,omitempty"`
	CreatedAt          time.Time        `gorm:"index" json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// HasClaimed reports whether the user's one claim has been recorded
func (u *User) HasClaimed() bool {
	return u.ClaimStatus == UserClaimStatusClaimed
}
