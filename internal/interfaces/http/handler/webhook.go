package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/storelink/backend/internal/application/billing"
	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/interfaces/http/middleware"
)

// Webhook delivery headers
const (
	TopicHeader      = "X-Platform-Topic"
	EventIDHeader    = "X-Platform-Event-Id"
	ShopDomainHeader = "X-Platform-Shop-Domain"
)

// WebhookLedger applies billing webhook events. Implemented by the billing
// ledger service.
type WebhookLedger interface {
	ApplyWebhook(ctx context.Context, event appbilling.WebhookEvent) error
}

// WebhookHandler receives platform webhooks. It runs behind the body
// signature gate, so the payload it parses has already been authenticated.
type WebhookHandler struct {
	BaseHandler
	ledger       WebhookLedger
	domainSuffix string
	logger       *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ledger WebhookLedger, domainSuffix string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		ledger:       ledger,
		domainSuffix: domainSuffix,
		logger:       logger,
	}
}

// webhookPayload is the subset of the delivery body the ledger needs. The
// charge id lands either at the top level or nested under app_subscription
// depending on the topic.
type webhookPayload struct {
	ChargeID        string `json:"charge_id"`
	AppSubscription struct {
		ChargeID string `json:"charge_id"`
		Status   string `json:"status"`
	} `json:"app_subscription"`
}

// Receive applies one webhook delivery. A 200 acknowledges the delivery;
// any failure to apply returns 500 so the platform redelivers.
func (h *WebhookHandler) Receive(c *gin.Context) {
	topic := c.GetHeader(TopicHeader)
	eventID := c.GetHeader(EventIDHeader)
	if topic == "" || eventID == "" {
		h.BadRequest(c, "Missing topic or event id header")
		return
	}

	shopDomain := identity.NormalizeShopDomain(c.GetHeader(ShopDomainHeader), h.domainSuffix)
	if shopDomain == "" {
		h.BadRequest(c, "Missing or malformed shop domain header")
		return
	}

	body, ok := middleware.WebhookBodyFromContext(c)
	if !ok {
		h.logger.Error("Webhook reached handler without a verified body")
		h.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Webhook body unavailable")
		return
	}

	var payload webhookPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			h.BadRequest(c, "Malformed webhook payload")
			return
		}
	}

	chargeID := payload.AppSubscription.ChargeID
	if chargeID == "" {
		chargeID = payload.ChargeID
	}

	err := h.ledger.ApplyWebhook(c.Request.Context(), appbilling.WebhookEvent{
		EventID:    eventID,
		Topic:      topic,
		ShopDomain: shopDomain,
		ChargeID:   chargeID,
	})
	if err != nil {
		h.logger.Error("Webhook apply failed",
			zap.String("topic", topic),
			zap.String("event_id", eventID),
			zap.Error(err))
		h.Error(c, http.StatusInternalServerError, "WEBHOOK_APPLY_FAILED", "Failed to apply webhook")
		return
	}

	h.Success(c, gin.H{"received": true})
}
