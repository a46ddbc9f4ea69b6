package handler

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appidentity "github.com/storelink/backend/internal/application/identity"
	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/auth"
)

// SessionCookieConfig controls how the session cookie is written
type SessionCookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// OwnerAuthenticator manages owner accounts. Implemented by the identity
// auth service.
type OwnerAuthenticator interface {
	Signup(ctx context.Context, input appidentity.SignupInput) (*appidentity.AuthResult, error)
	Login(ctx context.Context, input appidentity.LoginInput) (*appidentity.AuthResult, error)
}

// StoreConnector manages the tenant lifecycle from install to redaction.
// Implemented by the identity connect service.
type StoreConnector interface {
	HandleCallback(ctx context.Context, ownerID uuid.UUID, query url.Values) (*appidentity.ConnectResult, error)
	Disconnect(ctx context.Context, ownerID, tenantID uuid.UUID) error
	Redact(ctx context.Context, ownerID, tenantID uuid.UUID) error
}

// AuthHandler handles owner accounts and the OAuth install callback
type AuthHandler struct {
	BaseHandler
	authService    OwnerAuthenticator
	connectService StoreConnector
	cookies        *auth.CookieSessionCodec
	tenants        identity.TenantRepository
	domainSuffix   string
	cookie         SessionCookieConfig
	logger         *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService OwnerAuthenticator,
	connectService StoreConnector,
	cookies *auth.CookieSessionCodec,
	tenants identity.TenantRepository,
	domainSuffix string,
	cookie SessionCookieConfig,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		connectService: connectService,
		cookies:        cookies,
		tenants:        tenants,
		domainSuffix:   domainSuffix,
		cookie:         cookie,
		logger:         logger,
	}
}

// Signup registers a new owner account and starts the trial clock.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.authService.Signup(c.Request.Context(), appidentity.SignupInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.setSessionCookie(c, result.SessionCookie)
	h.Created(c, toOwnerResponse(result.Owner))
}

// Login authenticates an owner and issues the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), appidentity.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.setSessionCookie(c, result.SessionCookie)
	h.Success(c, toOwnerResponse(result.Owner))
}

// Callback completes an OAuth install. The owner is identified by their
// session cookie; the query itself is verified inside the connect service
// before anything else happens.
func (h *AuthHandler) Callback(c *gin.Context) {
	session := h.ownerSession(c)
	if session == nil {
		h.Unauthorized(c, "Sign in before connecting a store")
		return
	}

	result, err := h.connectService.HandleCallback(c.Request.Context(), session.OwnerID, c.Request.URL.Query())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.setSessionCookie(c, result.SessionCookie)
	h.Success(c, ConnectResponse{
		Tenant:       toTenantResponse(result.Tenant),
		Subscription: toSubscriptionResponse(result.Subscription),
		Reconnected:  result.Reconnected,
	})
}

// InstallStatus answers the login screen's unsigned probe. The bare shop
// parameter carries no authority, so the answer is a single boolean.
func (h *AuthHandler) InstallStatus(c *gin.Context) {
	domain := identity.NormalizeShopDomain(c.Query("shop"), h.domainSuffix)
	if domain == "" {
		h.BadRequest(c, "Missing or malformed shop parameter")
		return
	}

	_, err := h.tenants.FindActiveByDomain(c.Request.Context(), domain)
	switch {
	case err == nil:
		h.Success(c, InstallStatusResponse{ShopDomain: domain, Installed: true})
	case errors.Is(err, shared.ErrNotFound):
		h.Success(c, InstallStatusResponse{ShopDomain: domain, Installed: false})
	default:
		h.HandleError(c, err)
	}
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string) {
	if value == "" {
		return
	}
	c.SetCookie(h.cookie.Name, value, int(h.cookie.TTL.Seconds()), "/", "", h.cookie.Secure, true)
}

// ownerSession decodes the session cookie without requiring a bound tenant;
// a freshly signed-up owner holds an owner-only session.
func (h *AuthHandler) ownerSession(c *gin.Context) *auth.CookieSession {
	raw, err := c.Cookie(h.cookie.Name)
	if err != nil || raw == "" {
		return nil
	}
	session, err := h.cookies.Decode(raw)
	if err != nil {
		h.logger.Warn("Install callback with undecodable session cookie", zap.Error(err))
		return nil
	}
	return session
}
