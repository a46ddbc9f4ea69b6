package middleware

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storelink/backend/internal/infrastructure/auth"
	"github.com/storelink/backend/internal/interfaces/http/dto"
)

// Webhook header and context keys
const (
	WebhookBodyKey       = "webhook_body"
	WebhookSignatureHead = "X-Platform-Hmac-Sha256"
)

// WebhookConfig holds configuration for the webhook verification middleware
type WebhookConfig struct {
	// Verifier checks the body signature against the app client secret
	Verifier *auth.HMACVerifier
	// MaxBodyBytes bounds how much of the request body is read
	MaxBodyBytes int64
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultWebhookConfig returns default webhook middleware configuration
func DefaultWebhookConfig(verifier *auth.HMACVerifier) WebhookConfig {
	return WebhookConfig{
		Verifier:     verifier,
		MaxBodyBytes: 1 << 20,
	}
}

// WebhookVerification reads the raw request body and verifies its HMAC
// signature before any handler parses it. An unsigned or mis-signed delivery
// never reaches payload parsing.
func WebhookVerification(cfg WebhookConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, cfg.MaxBodyBytes+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				dto.NewErrorResponse("BAD_REQUEST", "Failed to read request body"))
			return
		}
		if int64(len(body)) > cfg.MaxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse("BODY_TOO_LARGE", "Webhook body exceeds the size limit"))
			return
		}

		signature := c.GetHeader(WebhookSignatureHead)
		if err := cfg.Verifier.VerifyBody(body, signature); err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Warn("Webhook signature rejected",
					zap.String("path", c.Request.URL.Path))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse("SIGNATURE_INVALID", "Webhook signature could not be verified"))
			return
		}

		c.Set(WebhookBodyKey, body)
		c.Next()
	}
}

// WebhookBodyFromContext returns the verified raw body stored by
// WebhookVerification.
func WebhookBodyFromContext(c *gin.Context) ([]byte, bool) {
	value, exists := c.Get(WebhookBodyKey)
	if !exists {
		return nil, false
	}
	body, ok := value.([]byte)
	return body, ok
}
