package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hivox/internal/models"
	"hivox/internal/repository"
	"hivox/internal/rewards"
	"hivox/internal/utils"
	"hivox/internal/validation"
)

const maxReferralCodeAttempts = 5

var (
	errReferrerMissing   = errors.New("referrer record not found")
	errReferralCodeTaken = errors.New("referral code already taken")
)

// ReferralOptions configures referral code handling
type ReferralOptions struct {
	// StrictCodes rejects unknown or self referral codes instead of ignoring them
	StrictCodes bool
	FrontendURL string
}

type ReferralService struct {
	repo    *repository.Repository
	table   rewards.Table
	options ReferralOptions
}

func NewReferralService(db *gorm.DB, table rewards.Table, options ReferralOptions) *ReferralService {
	return &ReferralService{
		repo:    repository.NewRepository(db),
		table:   table,
		options: options,
	}
}

// ConnectResult is the outcome of a wallet connection
type ConnectResult struct {
	User            *models.User
	IsNewUser       bool
	ReferralApplied bool
}

// ConnectWallet creates the user on first connection, attaching the referrer
// resolved from referralCode, or refreshes the connection counters of a
// returning user. A returning user's referrer is never changed.
func (s *ReferralService) ConnectWallet(ctx context.Context, walletAddress, referralCode string) (*ConnectResult, error) {
	if !validation.IsWalletAddress(walletAddress) {
		return nil, invalidField("walletAddress", msgInvalidWallet)
	}
	wallet := validation.NormalizeAddress(walletAddress)

	user, err := s.repo.GetUserByWallet(ctx, wallet)
	if err == nil {
		return s.reconnect(ctx, user)
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	referrer, err := s.resolveReferrer(ctx, wallet, referralCode)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxReferralCodeAttempts; attempt++ {
		user, err = s.createUser(ctx, wallet, referrer)
		if err == nil {
			zap.L().Info("User created",
				zap.String("wallet", wallet),
				zap.String("referral_code", user.ReferralCode),
				zap.Int("chain_length", len(user.ReferralChain)))
			return &ConnectResult{User: user, IsNewUser: true, ReferralApplied: referrer != nil}, nil
		}
		if !errors.Is(err, errReferralCodeTaken) && !repository.IsDuplicate(err) {
			return nil, err
		}

		// A concurrent connect may have created the wallet first
		if existing, lookupErr := s.repo.GetUserByWallet(ctx, wallet); lookupErr == nil {
			return s.reconnect(ctx, existing)
		}
	}

	return nil, fmt.Errorf("failed to allocate a unique referral code after %d attempts", maxReferralCodeAttempts)
}

func (s *ReferralService) reconnect(ctx context.Context, user *models.User) (*ConnectResult, error) {
	now := time.Now()
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.TouchConnection(ctx, user.ID, now); err != nil {
			return err
		}
		return tx.CreateActivity(ctx, &models.Activity{
			UserID:        user.ID,
			WalletAddress: user.WalletAddress,
			ActivityType:  models.ActivityWalletConnected,
			Description:   "Wallet reconnected",
			OccurredAt:    now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update connection: %w", err)
	}

	refreshed, err := s.repo.GetUserByWallet(ctx, user.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	return &ConnectResult{User: refreshed}, nil
}

// resolveReferrer finds the owner of a referral code. Codes are matched
// case-insensitively; a code that is itself a wallet address resolves to
// that wallet's user.
func (s *ReferralService) resolveReferrer(ctx context.Context, wallet, referralCode string) (*models.User, error) {
	code := strings.TrimSpace(referralCode)
	if code == "" {
		return nil, nil
	}

	var (
		referrer *models.User
		err      error
	)
	if validation.IsWalletAddress(code) {
		referrer, err = s.repo.GetUserByWallet(ctx, validation.NormalizeAddress(code))
	} else {
		referrer, err = s.repo.GetUserByReferralCode(ctx, strings.ToUpper(code))
	}

	if err != nil {
		if !repository.IsNotFound(err) {
			return nil, fmt.Errorf("failed to resolve referral code: %w", err)
		}
		if s.options.StrictCodes {
			return nil, invalidField("referralCode", "Invalid referral code")
		}
		zap.L().Info("Unknown referral code ignored", zap.String("wallet", wallet), zap.String("code", code))
		return nil, nil
	}

	if referrer.WalletAddress == wallet {
		if s.options.StrictCodes {
			return nil, invalidField("referralCode", "Cannot use your own referral code")
		}
		return nil, nil
	}

	return referrer, nil
}

func (s *ReferralService) createUser(ctx context.Context, wallet string, referrer *models.User) (*models.User, error) {
	code, err := utils.GenerateReferralCode()
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.ReferralCodeExists(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to check referral code: %w", err)
	}
	if taken {
		return nil, errReferralCodeTaken
	}

	now := time.Now()
	user := &models.User{
		WalletAddress:    wallet,
		ReferralCode:     code,
		ReferralChain:    models.ReferralChain{},
		ClaimStatus:      models.UserClaimStatusNotClaimed,
		LastConnectedAt:  now,
		TotalConnections: 1,
	}
	if referrer != nil {
		referrerAddress := referrer.WalletAddress
		user.ReferrerAddress = &referrerAddress
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}

		description := "Wallet connected"
		if referrer != nil {
			description = fmt.Sprintf("Wallet connected with referral code %s", referrer.ReferralCode)
		}
		if err := tx.CreateActivity(ctx, &models.Activity{
			UserID:        user.ID,
			WalletAddress: wallet,
			ActivityType:  models.ActivityWalletConnected,
			Description:   description,
			OccurredAt:    now,
		}); err != nil {
			return err
		}

		if referrer == nil {
			return nil
		}
		return s.attachUpline(ctx, tx, user, now)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// attachUpline snapshots the new user's ancestors and records one referral
// edge and one activity per ancestor level the reward table pays.
func (s *ReferralService) attachUpline(ctx context.Context, tx *repository.Repository, user *models.User, now time.Time) error {
	ancestors, err := walkUpline(ctx, tx, user.WalletAddress, user.ReferrerAddress, models.MaxReferralLevels)
	if err != nil && !errors.Is(err, errReferrerMissing) {
		return err
	}
	if err != nil {
		zap.L().Warn("Referral chain truncated", zap.String("wallet", user.WalletAddress), zap.Error(err))
	}

	chain := make(models.ReferralChain, 0, len(ancestors))
	for i, ancestor := range ancestors {
		chain = append(chain, models.ReferralChainEntry{
			Level:         i + 1,
			WalletAddress: ancestor.WalletAddress,
			ReferralCode:  ancestor.ReferralCode,
		})
	}
	if err := tx.SetReferralChain(ctx, user.ID, chain); err != nil {
		return fmt.Errorf("failed to store referral chain: %w", err)
	}
	user.ReferralChain = chain

	// The snapshot keeps every ancestor; edges exist only for paid levels.
	for i, ancestor := range ancestors {
		level := i + 1
		percentage, paid := s.table.Percentage(level)
		if !paid {
			break
		}

		referral := &models.Referral{
			ReferrerAddress:  ancestor.WalletAddress,
			ReferredAddress:  user.WalletAddress,
			ReferralLevel:    level,
			ReferralCode:     ancestor.ReferralCode,
			RewardPercentage: percentage,
			RewardAmount:     decimal.Zero,
			Status:           models.ReferralStatusActive,
		}
		if err := tx.CreateReferral(ctx, referral); err != nil {
			return fmt.Errorf("failed to create level %d referral: %w", level, err)
		}

		if err := tx.CreateActivity(ctx, &models.Activity{
			UserID:            ancestor.ID,
			WalletAddress:     ancestor.WalletAddress,
			ActivityType:      models.ActivityReferralCreated,
			Description:       fmt.Sprintf("New level %d referral: %s", level, user.WalletAddress),
			RelatedReferralID: &referral.ID,
			OccurredAt:        now,
		}); err != nil {
			return err
		}
	}

	return nil
}

// walkUpline follows referrer pointers starting at referrer for at most depth
// hops. It stops at a wallet without a referrer and at any wallet already
// seen on the walk, the starting wallet included.
func walkUpline(ctx context.Context, repo *repository.Repository, wallet string, referrer *string, depth int) ([]*models.User, error) {
	visited := map[string]bool{wallet: true}
	var ancestors []*models.User

	next := referrer
	for level := 1; level <= depth && next != nil; level++ {
		if visited[*next] {
			zap.L().Warn("Referral cycle detected",
				zap.String("wallet", wallet),
				zap.String("repeated", *next),
				zap.Int("level", level))
			break
		}

		ancestor, err := repo.GetUserByWallet(ctx, *next)
		if err != nil {
			if repository.IsNotFound(err) {
				return ancestors, fmt.Errorf("level %d referrer %s: %w", level, *next, errReferrerMissing)
			}
			return ancestors, fmt.Errorf("failed to load level %d referrer: %w", level, err)
		}

		visited[ancestor.WalletAddress] = true
		ancestors = append(ancestors, ancestor)
		next = ancestor.ReferrerAddress
	}

	return ancestors, nil
}

// ReferralLink builds the shareable signup link for a code
func (s *ReferralService) ReferralLink(code string) string {
	return s.options.FrontendURL + "?ref=" + code
}

// ReferralLevelSummary groups a wallet's down-line at one level
type ReferralLevelSummary struct {
	Level      int               `json:"level"`
	Percentage decimal.Decimal   `json:"percentage"`
	Count      int               `json:"count"`
	Completed  int               `json:"completed"`
	Earned     decimal.Decimal   `json:"earned"`
	Referrals  []models.Referral `json:"referrals"`
}

// ReferralOverview is the referral state of one wallet
type ReferralOverview struct {
	WalletAddress   string                 `json:"walletAddress"`
	ReferralCode    string                 `json:"referralCode"`
	ReferralLink    string                 `json:"referralLink"`
	ReferrerAddress *string                `json:"referrerAddress,omitempty"`
	ReferralChain   models.ReferralChain   `json:"referralChain"`
	ReferralRewards models.ReferralRewards `json:"referralRewards"`
	TotalReferrals  int                    `json:"totalReferrals"`
	TableVersion    string                 `json:"rewardTableVersion"`
	Levels          []ReferralLevelSummary `json:"levels"`
}

// GetReferralOverview returns a wallet's up-line, earnings and down-line by level
func (s *ReferralService) GetReferralOverview(ctx context.Context, walletAddress string) (*ReferralOverview, error) {
	user, err := findUserByWallet(ctx, s.repo, walletAddress)
	if err != nil {
		return nil, err
	}

	referrals, err := s.repo.ListReferralsByReferrer(ctx, user.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to load referrals: %w", err)
	}

	levels := make([]ReferralLevelSummary, models.MaxReferralLevels)
	for i := range levels {
		percentage, _ := s.table.Percentage(i + 1)
		levels[i] = ReferralLevelSummary{
			Level:      i + 1,
			Percentage: percentage,
			Earned:     decimal.Zero,
			Referrals:  []models.Referral{},
		}
	}
	for _, referral := range referrals {
		if referral.ReferralLevel < 1 || referral.ReferralLevel > models.MaxReferralLevels {
			continue
		}
		summary := &levels[referral.ReferralLevel-1]
		summary.Count++
		if referral.Status == models.ReferralStatusCompleted {
			summary.Completed++
		}
		summary.Earned = summary.Earned.Add(referral.RewardAmount)
		summary.Referrals = append(summary.Referrals, referral)
	}

	chain := user.ReferralChain
	if chain == nil {
		chain = models.ReferralChain{}
	}

	return &ReferralOverview{
		WalletAddress:   user.WalletAddress,
		ReferralCode:    user.ReferralCode,
		ReferralLink:    s.ReferralLink(user.ReferralCode),
		ReferrerAddress: user.ReferrerAddress,
		ReferralChain:   chain,
		ReferralRewards: user.ReferralRewards,
		TotalReferrals:  len(referrals),
		TableVersion:    s.table.Version,
		Levels:          levels,
	}, nil
}

// findUserByWallet validates and normalizes an address and loads its user
func findUserByWallet(ctx context.Context, repo *repository.Repository, walletAddress string) (*models.User, error) {
	if !validation.IsWalletAddress(walletAddress) {
		return nil, invalidField("walletAddress", msgInvalidWallet)
	}

	user, err := repo.GetUserByWallet(ctx, validation.NormalizeAddress(walletAddress))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &NotFoundError{Message: msgUserNotFound}
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}
