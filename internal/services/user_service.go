package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hivox/internal/models"
	"hivox/internal/repository"
	"hivox/internal/validation"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
	recentActivityLimit  = 10
	maxUsernameLength    = 50
)

// UserService handles profile reads and updates and the activity feed
type UserService struct {
	repo      *repository.Repository
	referrals *ReferralService
	validate  *validator.Validate
}

// NewUserService creates a new UserService
func NewUserService(db *gorm.DB, referrals *ReferralService) *UserService {
	return &UserService{
		repo:      repository.NewRepository(db),
		referrals: referrals,
		validate:  validator.New(),
	}
}

// Profile is a user with the referral and activity context shown on the dashboard
type Profile struct {
	User             *models.User      `json:"user"`
	ReferralLink     string            `json:"referralLink"`
	Referrals        []models.Referral `json:"referrals"`
	RecentActivities []models.Activity `json:"recentActivities"`
}

// GetProfile returns the user for a wallet with its referrals and latest activities
func (s *UserService) GetProfile(ctx context.Context, walletAddress string) (*Profile, error) {
	user, err := findUserByWallet(ctx, s.repo, walletAddress)
	if err != nil {
		return nil, err
	}

	referrals, err := s.repo.ListReferralsByReferrer(ctx, user.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to load referrals: %w", err)
	}

	activities, _, err := s.repo.ListActivities(ctx, user.WalletAddress, 0, recentActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}

	if user.ReferralChain == nil {
		user.ReferralChain = models.ReferralChain{}
	}
	return &Profile{
		User:             user,
		ReferralLink:     s.referrals.ReferralLink(user.ReferralCode),
		Referrals:        nonNilReferrals(referrals),
		RecentActivities: nonNilActivities(activities),
	}, nil
}

// UpdateProfileInput carries the editable profile fields; nil leaves a field unchanged
type UpdateProfileInput struct {
	Username *string
	Email    *string
}

// UpdateProfile sets a user's username and email
func (s *UserService) UpdateProfile(ctx context.Context, walletAddress string, in UpdateProfileInput) (*models.User, error) {
	fields := map[string]interface{}{}
	verr := &ValidationError{}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if len(username) > maxUsernameLength {
			verr.add("username", fmt.Sprintf("Username must be at most %d characters", maxUsernameLength))
		} else if username != "" {
			fields["username"] = username
		}
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email != "" && s.validate.Var(email, "email") != nil {
			verr.add("email", "Invalid email format")
		} else if email != "" {
			fields["email"] = email
		}
	}
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	user, err := findUserByWallet(ctx, s.repo, walletAddress)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return user, nil
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdateUserFields(ctx, user.ID, fields); err != nil {
			return err
		}
		return tx.CreateActivity(ctx, &models.Activity{
			UserID:        user.ID,
			WalletAddress: user.WalletAddress,
			ActivityType:  models.ActivityProfileUpdated,
			Description:   "Profile updated",
			OccurredAt:    time.Now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	zap.L().Info("Profile updated", zap.String("wallet", user.WalletAddress))
	return s.repo.GetUserByWallet(ctx, user.WalletAddress)
}

// Pagination describes one page of a list
type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

// ActivityPage is a page of the activity feed
type ActivityPage struct {
	Activities []models.Activity `json:"activities"`
	Pagination Pagination        `json:"pagination"`
}

// GetActivities returns a page of a wallet's activities, newest first.
// Non-positive page and limit fall back to 1 and 20; limit is capped at 100.
func (s *UserService) GetActivities(ctx context.Context, walletAddress string, page, limit int) (*ActivityPage, error) {
	if !validation.IsWalletAddress(walletAddress) {
		return nil, invalidField("walletAddress", msgInvalidWallet)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	activities, total, err := s.repo.ListActivities(ctx, validation.NormalizeAddress(walletAddress), (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}

	return &ActivityPage{
		Activities: nonNilActivities(activities),
		Pagination: Pagination{
			CurrentPage:  page,
			TotalPages:   int(math.Ceil(float64(total) / float64(limit))),
			TotalItems:   total,
			ItemsPerPage: limit,
		},
	}, nil
}

func nonNilActivities(activities []models.Activity) []models.Activity {
	if activities == nil {
		return []models.Activity{}
	}
	return activities
}

func nonNilReferrals(referrals []models.Referral) []models.Referral {
	if referrals == nil {
		return []models.Referral{}
	}
	return referrals
}
