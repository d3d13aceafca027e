package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hivox/internal/models"
	"hivox/internal/repository"
	"hivox/internal/twitter"
	"hivox/internal/validation"
)

// tweetIDPatterns are tried in order against a tweet URL
var tweetIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/status/(\d+)`),
	regexp.MustCompile(`/status/(\d+)\?`),
	regexp.MustCompile(`/status/(\d+)/`),
	regexp.MustCompile(`/.*/(\d+)`),
}

// ExtractTweetID returns the numeric tweet id of an x.com or twitter.com status URL
func ExtractTweetID(tweetURL string) (string, bool) {
	for _, pattern := range tweetIDPatterns {
		if m := pattern.FindStringSubmatch(tweetURL); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// TweetFetcher looks up a tweet by id
type TweetFetcher interface {
	Configured() bool
	GetTweet(ctx context.Context, tweetID string) (*twitter.Tweet, error)
}

// TweetCampaign is what a tweet must contain and how recent it must be
type TweetCampaign struct {
	Text  string
	Start time.Time
}

type TweetTaskService struct {
	repo     *repository.Repository
	fetcher  TweetFetcher
	campaign TweetCampaign
}

func NewTweetTaskService(db *gorm.DB, fetcher TweetFetcher, campaign TweetCampaign) *TweetTaskService {
	return &TweetTaskService{
		repo:     repository.NewRepository(db),
		fetcher:  fetcher,
		campaign: campaign,
	}
}

// TweetVerification is the result of a successful verification
type TweetVerification struct {
	TweetID  string `json:"tweetId"`
	AuthorID string `json:"authorId"`
}

// Verify checks that the tweet behind tweetURL contains the campaign text and
// was posted after the campaign start, then records the task as completed.
func (s *TweetTaskService) Verify(ctx context.Context, walletAddress, tweetURL string) (*TweetVerification, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(tweetURL) == "" {
		verr.add("tweetUrl", "Missing tweetUrl")
	}
	if !validation.IsWalletAddress(walletAddress) {
		verr.add("walletAddress", msgInvalidWallet)
	}
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}
	wallet := validation.NormalizeAddress(walletAddress)

	tweetID, ok := ExtractTweetID(tweetURL)
	if !ok {
		return nil, invalidField("tweetUrl", "Invalid tweet URL. Please make sure you're using a valid Twitter/X.com status URL.")
	}

	if !s.fetcher.Configured() {
		return nil, &UpstreamError{Service: "twitter", Kind: UpstreamUnavailable, Message: "Twitter API configuration error"}
	}

	tweet, err := s.fetcher.GetTweet(ctx, tweetID)
	if err != nil {
		if errors.Is(err, twitter.ErrTweetUnavailable) {
			return nil, invalidField("tweetUrl", "Could not fetch tweet data. The tweet may not exist or is not public.")
		}
		return nil, twitterUpstreamError(err)
	}

	if !strings.Contains(tweet.Text, s.campaign.Text) || !tweet.CreatedAt.After(s.campaign.Start) {
		return nil, invalidField("tweetUrl", "Tweet verification failed: Incorrect content or too old")
	}

	now := time.Now()
	authorID := tweet.AuthorID
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.UpsertTweetTask(ctx, &models.TweetTask{
			WalletAddress: wallet,
			Completed:     true,
			TweetID:       &tweetID,
			AuthorID:      &authorID,
			VerifiedAt:    &now,
		}); err != nil {
			return fmt.Errorf("failed to save tweet task: %w", err)
		}

		user, err := tx.GetUserByWallet(ctx, wallet)
		if repository.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.CreateActivity(ctx, &models.Activity{
			UserID:        user.ID,
			WalletAddress: wallet,
			ActivityType:  models.ActivityTweetVerified,
			Description:   "Tweet verified for airdrop: https://x.com/i/web/status/" + tweetID,
			OccurredAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Tweet verified", zap.String("wallet", wallet), zap.String("tweet_id", tweetID))
	return &TweetVerification{TweetID: tweetID, AuthorID: authorID}, nil
}

// Status returns a wallet's tweet task, or an incomplete one when none exists
func (s *TweetTaskService) Status(ctx context.Context, walletAddress string) (*models.TweetTask, error) {
	if !validation.IsWalletAddress(walletAddress) {
		return nil, invalidField("walletAddress", msgInvalidWallet)
	}
	wallet := validation.NormalizeAddress(walletAddress)

	task, err := s.repo.GetTweetTask(ctx, wallet)
	if repository.IsNotFound(err) {
		return &models.TweetTask{WalletAddress: wallet}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tweet task: %w", err)
	}
	return task, nil
}

func twitterUpstreamError(err error) error {
	var apiErr *twitter.APIError
	if !errors.As(err, &apiErr) {
		return &UpstreamError{Service: "twitter", Kind: UpstreamUnavailable, Message: "Twitter API error", Err: err}
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return &UpstreamError{Service: "twitter", Kind: UpstreamRateLimited, Message: "Rate limit exceeded. Please wait a few minutes and try again.", Err: err}
	case http.StatusUnauthorized:
		return &UpstreamError{Service: "twitter", Kind: UpstreamUnauthorized, Message: "Twitter API authentication failed. Please check API credentials.", Err: err}
	case http.StatusNotFound:
		return &UpstreamError{Service: "twitter", Kind: UpstreamNotFound, Message: "Tweet not found. Please check the tweet URL and make sure the tweet is public.", Err: err}
	default:
		return &UpstreamError{Service: "twitter", Kind: UpstreamUnavailable, Message: "Twitter API error", Err: err}
	}
}
