package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hivox/internal/auth"
	"hivox/internal/blockchain"
)

// ChainDiagnoser reports the health of the configured RPC endpoints
type ChainDiagnoser interface {
	RunDiagnostics(ctx context.Context) []blockchain.ChainDiagnostic
}

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	User      *UserHandler
	Claim     *ClaimHandler
	TweetTask *TweetTaskHandler
	AI        *AIHandler
	Chains    ChainDiagnoser
}

// RegisterRoutes mounts the API on router. db backs the health check.
func RegisterRoutes(router *gin.Engine, db *gorm.DB, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if h.Chains != nil {
		router.GET("/health/chains", func(c *gin.Context) {
			chains := h.Chains.RunDiagnostics(c.Request.Context())
			code := http.StatusOK
			for _, chain := range chains {
				if !chain.Connected {
					code = http.StatusServiceUnavailable
				}
			}
			c.JSON(code, gin.H{
				"success": code == http.StatusOK,
				"data":    chains,
			})
		})
	}

	api := router.Group("/api")

	users := api.Group("/users")
	{
		users.POST("/connect-wallet", h.User.ConnectWallet)
		users.GET("/profile/:walletAddress", h.User.GetProfile)
		users.PUT("/profile/:walletAddress", auth.AuthMiddleware(), auth.RequireWallet("walletAddress"), h.User.UpdateProfile)
		users.GET("/:walletAddress/activities", h.User.GetActivities)
		users.GET("/:walletAddress/referrals", h.User.GetReferrals)
		users.GET("/:walletAddress/passport", h.User.CheckPassport)
	}

	claims := api.Group("/claims")
	{
		claims.POST("/submit", h.Claim.SubmitClaim)
		claims.PUT("/:claimId/confirm", h.Claim.ConfirmClaim)
		claims.GET("/transaction/:transactionHash", h.Claim.GetClaimByTransaction)
		claims.GET("/:walletAddress", h.Claim.GetUserClaims)
	}

	tweetTask := api.Group("/tweet-task")
	{
		tweetTask.POST("/verify", h.TweetTask.Verify)
		tweetTask.GET("/status", h.TweetTask.Status)
	}

	api.POST("/ai-chat", h.AI.Chat)
}
