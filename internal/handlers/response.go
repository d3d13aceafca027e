package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"hivox/internal/services"
)

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// respondError maps service errors onto HTTP statuses. Anything unknown is
// logged and reported as a generic server error.
func respondError(c *gin.Context, err error) {
	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		conflictErr   *services.ConflictError
		upstreamErr   *services.UpstreamError
	)

	switch {
	case errors.As(err, &validationErr):
		message := "Validation failed"
		if len(validationErr.Fields) == 1 {
			message = validationErr.Fields[0].Message
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": message,
			"errors":  validationErr.Fields,
		})
	case errors.As(err, &notFoundErr):
		respondMessage(c, http.StatusNotFound, notFoundErr.Message)
	case errors.As(err, &conflictErr):
		respondMessage(c, http.StatusBadRequest, conflictErr.Message)
	case errors.As(err, &upstreamErr):
		zap.L().Warn("Upstream call failed",
			zap.String("service", upstreamErr.Service),
			zap.String("kind", string(upstreamErr.Kind)),
			zap.Error(upstreamErr.Err))
		c.JSON(upstreamStatus(upstreamErr.Kind), gin.H{
			"success": false,
			"message": upstreamErr.Message,
			"error":   string(upstreamErr.Kind),
		})
	default:
		_ = c.Error(err)
		zap.L().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		respondMessage(c, http.StatusInternalServerError, "Server error")
	}
}

func upstreamStatus(kind services.UpstreamKind) int {
	switch kind {
	case services.UpstreamRateLimited:
		return http.StatusTooManyRequests
	case services.UpstreamNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// bindError reports a body or path that failed gin binding. Tag failures are
// listed per field the same way service validation errors are.
func bindError(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request",
			"error":   err.Error(),
		})
		return
	}

	fields := make([]services.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, services.FieldError{Field: fe.Field(), Message: bindMessage(fe)})
	}
	respondError(c, &services.ValidationError{Fields: fields})
}

func bindMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "eth_addr":
		return "Invalid wallet address format"
	case "txhash":
		return "Invalid transaction hash format"
	default:
		return fe.Field() + " is invalid"
	}
}
