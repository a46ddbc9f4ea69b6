package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storelink/backend/internal/domain/billing"
	"github.com/storelink/backend/internal/interfaces/http/middleware"
)

// ConfirmSubscribeRequest carries the platform charge id returned by the
// merchant-approved recurring charge.
type ConfirmSubscribeRequest struct {
	ChargeID string `json:"charge_id" binding:"required"`
}

// SubscriptionLedger handles owner-side subscription transitions. Implemented
// by the billing ledger service.
type SubscriptionLedger interface {
	ConfirmSubscribe(ctx context.Context, tenantID uuid.UUID, chargeID string) (*billing.Subscription, error)
	CancelSubscription(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error)
}

// BillingHandler handles explicit owner-side subscription transitions
type BillingHandler struct {
	BaseHandler
	ledger SubscriptionLedger
	logger *zap.Logger
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(ledger SubscriptionLedger, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{ledger: ledger, logger: logger}
}

// ConfirmSubscribe activates the tenant's subscription after the merchant
// approved the charge. The matching webhook settles as a no-op.
func (h *BillingHandler) ConfirmSubscribe(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok || identity.Tenant == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req ConfirmSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	sub, err := h.ledger.ConfirmSubscribe(c.Request.Context(), identity.Tenant.ID, req.ChargeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponse(sub))
}

// Cancel cancels the tenant's subscription.
func (h *BillingHandler) Cancel(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok || identity.Tenant == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	sub, err := h.ledger.CancelSubscription(c.Request.Context(), identity.Tenant.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponse(sub))
}
