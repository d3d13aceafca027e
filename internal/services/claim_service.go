package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hivox/internal/blockchain"
	"hivox/internal/models"
	"hivox/internal/repository"
	"hivox/internal/rewards"
	"hivox/internal/validation"
)

// TransactionVerifier looks up the on-chain outcome of a claim transaction
type TransactionVerifier interface {
	Supports(chainID int64) bool
	VerifyTransaction(ctx context.Context, chainID int64, txHash string) (*blockchain.TransactionDetails, error)
}

type ClaimService struct {
	repo     *repository.Repository
	rewards  *RewardService
	verifier TransactionVerifier
	contract string
}

// NewClaimService creates a claim service. verifier may be nil, in which
// case confirmation is a bookkeeping step only.
func NewClaimService(db *gorm.DB, rewards *RewardService, verifier TransactionVerifier) *ClaimService {
	return &ClaimService{
		repo:     repository.NewRepository(db),
		rewards:  rewards,
		verifier: verifier,
	}
}

// SetAirdropContract restricts claims to the given contract. An empty
// address accepts any well-formed contract.
func (s *ClaimService) SetAirdropContract(address string) {
	if address == "" {
		s.contract = ""
		return
	}
	s.contract = validation.NormalizeAddress(address)
}

// SubmitClaimInput is a claim as reported by the client after the on-chain call
type SubmitClaimInput struct {
	WalletAddress   string
	ClaimAmount     decimal.Decimal
	TransactionHash string
	BlockNumber     uint64
	Network         string
	ChainID         int64
	ContractAddress string
}

func (in *SubmitClaimInput) validate(contract string) error {
	verr := &ValidationError{}
	if !validation.IsWalletAddress(in.WalletAddress) {
		verr.add("walletAddress", msgInvalidWallet)
	}
	if !in.ClaimAmount.IsPositive() {
		verr.add("claimAmount", "Claim amount must be a positive number")
	} else if !in.ClaimAmount.Equal(in.ClaimAmount.Truncate(rewards.AmountPrecision)) {
		verr.add("claimAmount", fmt.Sprintf("Claim amount supports at most %d decimal places", rewards.AmountPrecision))
	}
	if !validation.IsTransactionHash(in.TransactionHash) {
		verr.add("transactionHash", msgInvalidTxHash)
	}
	if in.Network == "" {
		in.Network = "ethereum"
	}
	if !isClaimNetwork(in.Network) {
		verr.add("network", "Unsupported network")
	}
	if in.ChainID <= 0 {
		verr.add("chainId", "Chain ID must be a positive integer")
	}
	if !validation.IsWalletAddress(in.ContractAddress) {
		verr.add("contractAddress", msgInvalidContract)
	} else if contract != "" && validation.NormalizeAddress(in.ContractAddress) != contract {
		verr.add("contractAddress", msgWrongContract)
	}
	return verr.errOrNil()
}

func isClaimNetwork(network string) bool {
	for _, n := range models.ClaimNetworks {
		if n == network {
			return true
		}
	}
	return false
}

// SubmitClaim records a claim. The claim, the user's claimed state, the
// reward event and the activity are committed together; ancestor credits are
// then applied best-effort and left to the reward processor on failure.
func (s *ClaimService) SubmitClaim(ctx context.Context, in SubmitClaimInput) (*models.ClaimHistory, error) {
	in.Network = strings.ToLower(strings.TrimSpace(in.Network))
	if err := in.validate(s.contract); err != nil {
		return nil, err
	}
	wallet := validation.NormalizeAddress(in.WalletAddress)
	txHash := validation.NormalizeTransactionHash(in.TransactionHash)

	user, err := s.repo.GetUserByWallet(ctx, wallet)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &NotFoundError{Message: msgUserNotFound}
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.HasClaimed() {
		return nil, &ConflictError{Message: msgAlreadyClaimed}
	}
	if _, err := s.repo.GetClaimByTransactionHash(ctx, txHash); err == nil {
		return nil, &ConflictError{Message: msgDuplicateTx}
	} else if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check transaction: %w", err)
	}

	now := time.Now()
	chain := user.ReferralChain
	if chain == nil {
		chain = models.ReferralChain{}
	}
	claim := &models.ClaimHistory{
		UserID:          user.ID,
		WalletAddress:   wallet,
		ClaimAmount:     in.ClaimAmount,
		TokensClaimed:   in.ClaimAmount,
		TransactionHash: txHash,
		BlockNumber:     in.BlockNumber,
		Network:         in.Network,
		ChainID:         in.ChainID,
		ContractAddress: validation.NormalizeAddress(in.ContractAddress),
		ReferralCode:    user.ReferralCode,
		ReferrerAddress: user.ReferrerAddress,
		ReferralChain:   chain,
		Status:          models.ClaimStatusPending,
		ClaimedAt:       now,
	}
	event := &models.RewardEvent{
		WalletAddress: wallet,
		Amount:        in.ClaimAmount,
		Status:        models.RewardEventPending,
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateClaim(ctx, claim); err != nil {
			if repository.IsDuplicate(err) {
				return &ConflictError{Message: msgDuplicateTx}
			}
			return fmt.Errorf("failed to create claim: %w", err)
		}

		flipped, err := tx.MarkUserClaimed(ctx, user.ID, in.ClaimAmount, now)
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if !flipped {
			return &ConflictError{Message: msgAlreadyClaimed}
		}

		event.ClaimID = claim.ID
		if err := tx.CreateRewardEvent(ctx, event); err != nil {
			return fmt.Errorf("failed to create reward event: %w", err)
		}

		if err := tx.CompleteReferrals(ctx, wallet, now); err != nil {
			return fmt.Errorf("failed to complete referrals: %w", err)
		}

		return tx.CreateActivity(ctx, &models.Activity{
			UserID:          user.ID,
			WalletAddress:   wallet,
			ActivityType:    models.ActivityClaimSubmitted,
			Description:     fmt.Sprintf("Claimed %s tokens on %s", in.ClaimAmount.String(), in.Network),
			RelatedClaimID:  &claim.ID,
			TransactionHash: &txHash,
			OccurredAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Claim submitted",
		zap.String("wallet", wallet),
		zap.String("claim_id", claim.ID.String()),
		zap.String("amount", in.ClaimAmount.String()),
		zap.String("tx_hash", txHash))

	if s.rewards != nil {
		// Failures stay on the reward event for the processor job
		_ = s.rewards.ProcessEvent(ctx, event.ID)
	}

	return claim, nil
}

// ConfirmClaim moves a pending claim to confirmed. When an RPC endpoint is
// configured for the claim's chain the receipt must exist and have succeeded;
// a reverted transaction fails the claim instead.
func (s *ClaimService) ConfirmClaim(ctx context.Context, claimID string) (*models.ClaimHistory, error) {
	id, err := uuid.Parse(claimID)
	if err != nil {
		return nil, invalidField("claimId", "Invalid claim id")
	}

	claim, err := s.repo.GetClaimByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &NotFoundError{Message: msgClaimNotFound}
		}
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}

	switch claim.Status {
	case models.ClaimStatusConfirmed:
		return nil, &ConflictError{Message: msgClaimConfirmed}
	case models.ClaimStatusFailed:
		return nil, &ConflictError{Message: "Claim has failed and cannot be confirmed"}
	}

	fields := map[string]interface{}{}
	if s.verifier != nil && s.verifier.Supports(claim.ChainID) {
		details, err := s.verifier.VerifyTransaction(ctx, claim.ChainID, claim.TransactionHash)
		if err != nil {
			if errors.Is(err, blockchain.ErrReceiptNotFound) {
				return nil, &UpstreamError{Service: "rpc", Kind: UpstreamNotFound, Message: "Transaction not found on chain yet"}
			}
			return nil, &UpstreamError{Service: "rpc", Kind: UpstreamUnavailable, Message: "Unable to verify transaction", Err: err}
		}
		if !details.Success {
			if err := s.failClaim(ctx, claim); err != nil {
				return nil, err
			}
			return nil, &ConflictError{Message: "Claim transaction reverted on chain"}
		}
		if details.BlockNumber != 0 {
			fields["block_number"] = details.BlockNumber
		}
	}

	now := time.Now()
	fields["confirmed_at"] = now

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		moved, err := tx.TransitionClaim(ctx, claim.ID, models.ClaimStatusPending, models.ClaimStatusConfirmed, fields)
		if err != nil {
			return fmt.Errorf("failed to confirm claim: %w", err)
		}
		if !moved {
			return &ConflictError{Message: msgClaimConfirmed}
		}

		return tx.CreateActivity(ctx, &models.Activity{
			UserID:          claim.UserID,
			WalletAddress:   claim.WalletAddress,
			ActivityType:    models.ActivityClaimConfirmed,
			Description:     fmt.Sprintf("Claim of %s tokens confirmed", claim.ClaimAmount.String()),
			RelatedClaimID:  &claim.ID,
			TransactionHash: &claim.TransactionHash,
			OccurredAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Claim confirmed", zap.String("claim_id", claim.ID.String()))
	return s.repo.GetClaimByID(ctx, claim.ID)
}

func (s *ClaimService) failClaim(ctx context.Context, claim *models.ClaimHistory) error {
	now := time.Now()
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		moved, err := tx.TransitionClaim(ctx, claim.ID, models.ClaimStatusPending, models.ClaimStatusFailed, nil)
		if err != nil || !moved {
			return err
		}
		return tx.CreateActivity(ctx, &models.Activity{
			UserID:          claim.UserID,
			WalletAddress:   claim.WalletAddress,
			ActivityType:    models.ActivityClaimFailed,
			Description:     "Claim transaction reverted on chain",
			RelatedClaimID:  &claim.ID,
			TransactionHash: &claim.TransactionHash,
			OccurredAt:      now,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to mark claim failed: %w", err)
	}

	zap.L().Warn("Claim transaction reverted",
		zap.String("claim_id", claim.ID.String()),
		zap.String("tx_hash", claim.TransactionHash))
	return nil
}

// GetUserClaims returns a wallet's claim history
func (s *ClaimService) GetUserClaims(ctx context.Context, walletAddress string) ([]models.ClaimHistory, error) {
	if !validation.IsWalletAddress(walletAddress) {
		return nil, invalidField("walletAddress", msgInvalidWallet)
	}

	claims, err := s.repo.ListClaimsByWallet(ctx, validation.NormalizeAddress(walletAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}
	return claims, nil
}

// GetClaimByTransaction returns the claim recorded for a transaction hash
func (s *ClaimService) GetClaimByTransaction(ctx context.Context, txHash string) (*models.ClaimHistory, error) {
	if !validation.IsTransactionHash(txHash) {
		return nil, invalidField("transactionHash", msgInvalidTxHash)
	}

	claim, err := s.repo.GetClaimByTransactionHash(ctx, validation.NormalizeTransactionHash(txHash))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &NotFoundError{Message: msgClaimNotFound}
		}
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}
	return claim, nil
}
