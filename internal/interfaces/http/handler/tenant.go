package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storelink/backend/internal/interfaces/http/middleware"
)

// TenantHandler handles owner-initiated disconnect and data redaction
type TenantHandler struct {
	BaseHandler
	connectService StoreConnector
	cookie         SessionCookieConfig
	logger         *zap.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(connectService StoreConnector, cookie SessionCookieConfig, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{
		connectService: connectService,
		cookie:         cookie,
		logger:         logger,
	}
}

// Disconnect scrubs the tenant's credentials and marks it uninstalled. The
// session cookie is dropped with it; it was bound to this installation.
func (h *TenantHandler) Disconnect(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok || identity.Tenant == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	err := h.connectService.Disconnect(c.Request.Context(), identity.Owner.ID, identity.Tenant.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.clearSessionCookie(c)
	h.Success(c, gin.H{"disconnected": true})
}

// Redact hard-deletes the tenant and its usage events.
func (h *TenantHandler) Redact(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok || identity.Tenant == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	err := h.connectService.Redact(c.Request.Context(), identity.Owner.ID, identity.Tenant.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.clearSessionCookie(c)
	h.NoContent(c)
}

func (h *TenantHandler) clearSessionCookie(c *gin.Context) {
	if h.cookie.Name == "" {
		return
	}
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}
