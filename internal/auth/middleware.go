package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hivox/internal/validation"
)

// AuthMiddleware validates JWT tokens and protects routes
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" {
			abort(c, "Authorization header required")
			return
		}

		// Extract token from "Bearer <token>" format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, "Invalid authorization header format. Expected: Bearer <token>")
			return
		}

		claims, err := ValidateToken(parts[1])
		if err != nil {
			zap.L().Debug("Token validation failed", zap.Error(err))
			abort(c, "Invalid or expired token")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("wallet_address", claims.WalletAddress)

		c.Next()
	}
}

// RequireWallet rejects requests whose token wallet differs from the path
// parameter param. It must run after AuthMiddleware.
func RequireWallet(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenWallet, ok := GetWalletAddress(c)
		pathWallet := c.Param(param)
		if !ok || !validation.IsWalletAddress(pathWallet) ||
			validation.NormalizeAddress(pathWallet) != validation.NormalizeAddress(tokenWallet) {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Token does not belong to this wallet",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
	})
	c.Abort()
}

// GetWalletAddress retrieves the wallet address from the context
func GetWalletAddress(c *gin.Context) (string, bool) {
	addr, exists := c.Get("wallet_address")
	if !exists {
		return "", false
	}

	address, ok := addr.(string)
	return address, ok
}
