package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hivox/internal/services"
)

type TweetTaskHandler struct {
	tweetTaskService *services.TweetTaskService
}

func NewTweetTaskHandler(tweetTaskService *services.TweetTaskService) *TweetTaskHandler {
	return &TweetTaskHandler{tweetTaskService: tweetTaskService}
}

// Verify checks the campaign tweet and completes the wallet's task
func (h *TweetTaskHandler) Verify(c *gin.Context) {
	var req struct {
		TweetURL      string `json:"tweetUrl"`
		WalletAddress string `json:"walletAddress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.tweetTaskService.Verify(c.Request.Context(), req.WalletAddress, req.TweetURL)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Tweet verified successfully!", result)
}

// Status reports whether a wallet has completed the tweet task
func (h *TweetTaskHandler) Status(c *gin.Context) {
	task, err := h.tweetTaskService.Status(c.Request.Context(), c.Query("walletAddress"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"completed": task.Completed,
		"data":      task,
	})
}
