package models

import "time"

// TweetTask records a wallet's verified campaign tweet
type TweetTask struct {
	ID            uint       `gorm:"primaryKey" json:"-"`
	WalletAddress string     `gorm:"uniqueIndex;size:42;not null" json:"walletAddress"`
	Completed     bool       `gorm:"not null;default:false" json:"completed"`
	TweetID       *string    `gorm:"size:32" json:"tweetId,omitempty"`
	AuthorID      *string    `gorm:"size:32" json:"authorId,omitempty"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (TweetTask) TableName() string {
	return "tweet_tasks"
}
