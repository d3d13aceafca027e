package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hivox/internal/models"
	"hivox/internal/passport"
	"hivox/internal/repository"
)

// ScoreFetcher looks up a wallet's identity score
type ScoreFetcher interface {
	Configured() bool
	GetScore(ctx context.Context, address string) (*passport.Score, error)
}

type PassportService struct {
	repo    *repository.Repository
	fetcher ScoreFetcher
}

func NewPassportService(db *gorm.DB, fetcher ScoreFetcher) *PassportService {
	return &PassportService{
		repo:    repository.NewRepository(db),
		fetcher: fetcher,
	}
}

// Check refreshes the stored Passport score of a known wallet. Crossing the
// passing threshold for the first time is recorded as an activity.
func (s *PassportService) Check(ctx context.Context, walletAddress string) (*passport.Score, error) {
	user, err := findUserByWallet(ctx, s.repo, walletAddress)
	if err != nil {
		return nil, err
	}
	if !s.fetcher.Configured() {
		return nil, &UpstreamError{Service: "passport", Kind: UpstreamUnavailable, Message: "Passport API configuration error"}
	}

	score, err := s.fetcher.GetScore(ctx, user.WalletAddress)
	if err != nil {
		return nil, passportUpstreamError(err)
	}

	now := time.Now()
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdateUserFields(ctx, user.ID, map[string]interface{}{
			"passport_score":      score.Score,
			"passport_passing":    score.Passing,
			"passport_checked_at": now,
		}); err != nil {
			return err
		}
		if !score.Passing || user.PassportPassing {
			return nil
		}
		return tx.CreateActivity(ctx, &models.Activity{
			UserID:        user.ID,
			WalletAddress: user.WalletAddress,
			ActivityType:  models.ActivityPassportVerified,
			Description:   fmt.Sprintf("Passport verified with score %s", score.Score.StringFixed(2)),
			OccurredAt:    now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store passport score: %w", err)
	}

	zap.L().Info("Passport score checked",
		zap.String("wallet", user.WalletAddress),
		zap.String("score", score.Score.String()),
		zap.Bool("passing", score.Passing))
	return score, nil
}

func passportUpstreamError(err error) error {
	var apiErr *passport.APIError
	if !errors.As(err, &apiErr) {
		return &UpstreamError{Service: "passport", Kind: UpstreamUnavailable, Message: "Failed to fetch Passport score", Err: err}
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return &UpstreamError{Service: "passport", Kind: UpstreamRateLimited, Message: "Passport rate limit exceeded. Please try again later.", Err: err}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &UpstreamError{Service: "passport", Kind: UpstreamUnauthorized, Message: "Passport API authentication failed", Err: err}
	case http.StatusNotFound:
		return &UpstreamError{Service: "passport", Kind: UpstreamNotFound, Message: "No Passport found for this wallet", Err: err}
	default:
		return &UpstreamError{Service: "passport", Kind: UpstreamUnavailable, Message: "Failed to fetch Passport score", Err: err}
	}
}
