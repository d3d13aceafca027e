package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hivox/internal/auth"
	"hivox/internal/models"
	"hivox/internal/services"
)

// UserHandler handles wallet, profile, referral and passport endpoints
type UserHandler struct {
	referralService *services.ReferralService
	userService     *services.UserService
	passportService *services.PassportService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(referralService *services.ReferralService, userService *services.UserService, passportService *services.PassportService) *UserHandler {
	return &UserHandler{
		referralService: referralService,
		userService:     userService,
		passportService: passportService,
	}
}

type walletURI struct {
	WalletAddress string `uri:"walletAddress" binding:"required,eth_addr"`
}

type userPayload struct {
	*models.User
	ReferralLink string `json:"referralLink"`
}

// ConnectWallet creates the user on first connect and returns a session token
func (h *UserHandler) ConnectWallet(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
		ReferralCode  string `json:"referralCode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.referralService.ConnectWallet(c.Request.Context(), req.WalletAddress, req.ReferralCode)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := auth.GenerateToken(result.User.ID, result.User.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	status, message := http.StatusOK, "Wallet reconnected"
	if result.IsNewUser {
		status, message = http.StatusCreated, "Wallet connected"
	}

	c.JSON(status, gin.H{
		"success":         true,
		"message":         message,
		"isNewUser":       result.IsNewUser,
		"referralApplied": result.ReferralApplied,
		"token":           token,
		"data": userPayload{
			User:         result.User,
			ReferralLink: h.referralService.ReferralLink(result.User.ReferralCode),
		},
	})
}

// GetProfile returns a user with its referrals and recent activity
func (h *UserHandler) GetProfile(c *gin.Context) {
	profile, err := h.userService.GetProfile(c.Request.Context(), c.Param("walletAddress"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", profile)
}

// UpdateProfile sets username and email; the token must belong to the wallet
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		Username *string `json:"username"`
		Email    *string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), c.Param("walletAddress"), services.UpdateProfileInput{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Profile updated", userPayload{
		User:         user,
		ReferralLink: h.referralService.ReferralLink(user.ReferralCode),
	})
}

// GetActivities returns a page of the activity feed
func (h *UserHandler) GetActivities(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.userService.GetActivities(c.Request.Context(), c.Param("walletAddress"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", result)
}

// GetReferrals returns referral totals and the down-line grouped by level
func (h *UserHandler) GetReferrals(c *gin.Context) {
	var uri walletURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	overview, err := h.referralService.GetReferralOverview(c.Request.Context(), uri.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", overview)
}

// CheckPassport refreshes and returns the wallet's Gitcoin Passport score
func (h *UserHandler) CheckPassport(c *gin.Context) {
	var uri walletURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	score, err := h.passportService.Check(c.Request.Context(), uri.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", score)
}
