package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storelink/backend/internal/interfaces/http/dto"
)

// AccessChecker answers whether a tenant currently has paid or trial access.
// Implemented by the billing ledger service.
type AccessChecker interface {
	HasAccess(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

// AccessGateConfig holds configuration for the subscription access gate
type AccessGateConfig struct {
	// Ledger answers whether the tenant currently has paid or trial access
	Ledger AccessChecker
	// Logger for middleware logging
	Logger *zap.Logger
}

// AccessGate blocks gated API routes for tenants without an active
// subscription or a running trial. It must run after IdentityMiddleware.
func AccessGate(cfg AccessGateConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok || identity.Tenant == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse("UNAUTHENTICATED", "Authentication required"))
			return
		}

		hasAccess, err := cfg.Ledger.HasAccess(c.Request.Context(), identity.Tenant.ID)
		if err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Error("Access check failed",
					zap.String("tenant_id", identity.Tenant.ID.String()),
					zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				dto.NewErrorResponse("INTERNAL_ERROR", "Failed to check subscription access"))
			return
		}
		if !hasAccess {
			c.AbortWithStatusJSON(http.StatusPaymentRequired,
				dto.NewErrorResponse("SUBSCRIPTION_REQUIRED", "An active subscription or trial is required"))
			return
		}

		c.Next()
	}
}
