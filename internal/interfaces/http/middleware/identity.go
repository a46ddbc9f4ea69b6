package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appidentity "github.com/storelink/backend/internal/application/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/interfaces/http/dto"
)

// Identity context keys
const (
	IdentityKey   = "identity"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// IdentityResolver turns raw request signals into an identity. Implemented
// by the identity application service.
type IdentityResolver interface {
	Resolve(ctx context.Context, signals appidentity.Signals) (*appidentity.Identity, error)
}

// IdentityConfig holds configuration for the identity middleware
type IdentityConfig struct {
	// Resolver turns raw request signals into an identity
	Resolver IdentityResolver
	// CookieName is the session cookie to read and, on failure, clear
	CookieName string
	// CookieSecure marks the cleared cookie Secure
	CookieSecure bool
	// Logger for middleware logging
	Logger *zap.Logger
}

// IdentityMiddleware authenticates every request it guards. A request that
// presents an invalid signal is rejected outright; resolution never degrades
// a bad token into an anonymous pass-through.
func IdentityMiddleware(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		signals := extractSignals(c, cfg.CookieName)

		identity, err := cfg.Resolver.Resolve(c.Request.Context(), signals)
		if err != nil {
			var clear *appidentity.SessionClearError
			if errors.As(err, &clear) {
				clearSessionCookie(c, cfg)
				err = clear.Err
			}
			abortAuthError(c, cfg, err)
			return
		}

		if identity.ClearSession {
			clearSessionCookie(c, cfg)
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// RequireAuthenticated rejects identities without real authority, such as a
// bare unsigned shop parameter.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok || !identity.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse("UNAUTHENTICATED", "Authentication required"))
			return
		}
		c.Next()
	}
}

// IdentityFromContext returns the resolved identity stored by
// IdentityMiddleware.
func IdentityFromContext(c *gin.Context) (*appidentity.Identity, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*appidentity.Identity)
	return identity, ok
}

func extractSignals(c *gin.Context, cookieName string) appidentity.Signals {
	signals := appidentity.Signals{
		Query:         c.Request.URL.Query(),
		ClaimedDomain: c.Query("shop"),
	}

	if header := c.GetHeader(AuthHeaderKey); strings.HasPrefix(header, BearerPrefix) {
		signals.SessionToken = strings.TrimPrefix(header, BearerPrefix)
	}
	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil {
			signals.CookieSession = cookie
		}
	}
	return signals
}

func clearSessionCookie(c *gin.Context, cfg IdentityConfig) {
	if cfg.CookieName == "" {
		return
	}
	c.SetCookie(cfg.CookieName, "", -1, "/", "", cfg.CookieSecure, true)
}

func abortAuthError(c *gin.Context, cfg IdentityConfig, err error) {
	if cfg.Logger != nil {
		cfg.Logger.Warn("Request authentication failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	status := http.StatusUnauthorized
	code := "UNAUTHENTICATED"
	message := "Authentication required"

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		message = domainErr.Message
		if domainErr.Code == "NOT_INSTALLED" {
			status = http.StatusForbidden
		}
	}

	c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, message))
}
