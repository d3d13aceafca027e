package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"hivox/internal/services"
)

type ClaimHandler struct {
	claimService  *services.ClaimService
	rewardService *services.RewardService
}

func NewClaimHandler(claimService *services.ClaimService, rewardService *services.RewardService) *ClaimHandler {
	return &ClaimHandler{
		claimService:  claimService,
		rewardService: rewardService,
	}
}

// SubmitClaim records a claim transaction and credits the claimant's up-line
func (h *ClaimHandler) SubmitClaim(c *gin.Context) {
	var req struct {
		WalletAddress   string          `json:"walletAddress"`
		ClaimAmount     decimal.Decimal `json:"claimAmount"`
		TransactionHash string          `json:"transactionHash"`
		BlockNumber     uint64          `json:"blockNumber"`
		Network         string          `json:"network"`
		ChainID         int64           `json:"chainId"`
		ContractAddress string          `json:"contractAddress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	claim, err := h.claimService.SubmitClaim(c.Request.Context(), services.SubmitClaimInput{
		WalletAddress:   req.WalletAddress,
		ClaimAmount:     req.ClaimAmount,
		TransactionHash: req.TransactionHash,
		BlockNumber:     req.BlockNumber,
		Network:         req.Network,
		ChainID:         req.ChainID,
		ContractAddress: req.ContractAddress,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Claim submitted successfully", claim)
}

// ConfirmClaim marks a pending claim confirmed
func (h *ClaimHandler) ConfirmClaim(c *gin.Context) {
	claim, err := h.claimService.ConfirmClaim(c.Request.Context(), c.Param("claimId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Claim confirmed", claim)
}

// GetUserClaims returns a wallet's claim history, newest first
func (h *ClaimHandler) GetUserClaims(c *gin.Context) {
	claims, err := h.claimService.GetUserClaims(c.Request.Context(), c.Param("walletAddress"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    claims,
		"count":   len(claims),
	})
}

// GetClaimByTransaction returns one claim with its reward event and the
// referral credits it paid
func (h *ClaimHandler) GetClaimByTransaction(c *gin.Context) {
	var uri struct {
		TransactionHash string `uri:"transactionHash" binding:"required,txhash"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	claim, err := h.claimService.GetClaimByTransaction(c.Request.Context(), uri.TransactionHash)
	if err != nil {
		respondError(c, err)
		return
	}

	event, err := h.rewardService.GetClaimEvent(c.Request.Context(), claim.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	credits, err := h.rewardService.GetClaimCredits(c.Request.Context(), claim.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"data":        claim,
		"rewardEvent": event,
		"credits":     credits,
	})
}
