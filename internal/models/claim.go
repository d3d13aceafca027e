package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ClaimStatus is the lifecycle of a recorded claim transaction
type ClaimStatus string

const (
	ClaimStatusPending   ClaimStatus = "pending"
	ClaimStatusConfirmed ClaimStatus = "confirmed"
	ClaimStatusFailed    ClaimStatus = "failed"
)

// Networks a claim may be recorded on
var ClaimNetworks = []string{"ethereum", "polygon", "bsc", "arbitrum", "optimism"}

// ClaimHistory is one submitted claim. TransactionHash is the idempotency key.
type ClaimHistory struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;index" json:"userId"`
	WalletAddress   string          `gorm:"size:42;not null;index" json:"walletAddress"`
	ClaimAmount     decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"claimAmount"`
	TokensClaimed   decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"tokensClaimed"`
	TransactionHash string          `gorm:"size:66;not null;uniqueIndex" json:"transactionHash"`
	BlockNumber     uint64          `gorm:"not null" json:"blockNumber"`
	Network         string          `gorm:"size:20;not null;default:ethereum" json:"network"`
	ChainID         int64           `gorm:"not null" json:"chainId"`
	ContractAddress string          `gorm:"size:42;not null" json:"contractAddress"`
	ReferralCode    string          `gorm:"size:20" json:"referralCode"`
	ReferrerAddress *string         `gorm:"size:42;index" json:"referrerAddress,omitempty"`
	ReferralChain   ReferralChain   `gorm:"serializer:json;type:text" json:"referralChain"`
	Status          ClaimStatus     `gorm:"size:20;not null;default:pending;index" json:"status"`
	ClaimedAt       time.Time       `gorm:"index" json:"claimedAt"`
	ConfirmedAt     *time.Time      `json:"confirmedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (ClaimHistory) TableName() string {
	return "claim_history"
}

func (c *ClaimHistory) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.ClaimedAt.IsZero() {
		c.ClaimedAt = time.Now()
	}
	return nil
}

// RewardEventStatus is the outbox state of a reward event
type RewardEventStatus string

const (
	RewardEventPending   RewardEventStatus = "pending"
	RewardEventProcessed RewardEventStatus = "processed"
	RewardEventFailed    RewardEventStatus = "failed"
)

// RewardEvent is written in the same transaction as the claim it belongs to
// and later applied by the reward processor.
type RewardEvent struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ClaimID       uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex" json:"claimId"`
	WalletAddress string            `gorm:"size:42;not null" json:"walletAddress"`
	Amount        decimal.Decimal   `gorm:"type:decimal(36,18);not null" json:"amount"`
	Status        RewardEventStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	Attempts      int               `gorm:"not null;default:0" json:"attempts"`
	LastError     *string           `gorm:"type:text" json:"lastError,omitempty"`
	ProcessedAt   *time.Time        `json:"processedAt,omitempty"`
	CreatedAt     time.Time         `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func (RewardEvent) TableName() string {
	return "reward_events"
}

func (e *RewardEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
