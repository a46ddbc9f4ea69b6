package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storelink/backend/internal/infrastructure/persistence"
	"github.com/storelink/backend/internal/interfaces/http/handler"
	"github.com/storelink/backend/internal/interfaces/http/middleware"
)

// Dependencies bundles everything the route table needs
type Dependencies struct {
	Auth    *handler.AuthHandler
	Webhook *handler.WebhookHandler
	Billing *handler.BillingHandler
	Orders  *handler.OrdersHandler
	Tenant  *handler.TenantHandler

	// Identity authenticates requests; WebhookGate verifies delivery
	// signatures; AccessGate enforces the subscription predicate.
	Identity    gin.HandlerFunc
	WebhookGate gin.HandlerFunc
	AccessGate  gin.HandlerFunc

	DB     *persistence.Database
	Logger *zap.Logger
}

// Setup registers the full route table on the engine. Route groups differ
// by which gates they pass: webhooks are HMAC-gated, /billing requires an
// authenticated identity, and /api additionally passes the access gate on
// platform reads.
func Setup(engine *gin.Engine, deps Dependencies) {
	engine.GET("/healthz", healthHandler(deps.DB, deps.Logger))

	auth := engine.Group("/auth")
	{
		auth.POST("/signup", deps.Auth.Signup)
		auth.POST("/login", deps.Auth.Login)
		auth.GET("/callback", deps.Auth.Callback)
		auth.GET("/install-status", deps.Auth.InstallStatus)
	}

	webhooks := engine.Group("/webhooks")
	{
		webhooks.POST("/platform", deps.WebhookGate, deps.Webhook.Receive)
	}

	billing := engine.Group("/billing", deps.Identity, middleware.RequireAuthenticated())
	{
		// Subscribe and cancel stay reachable without the access gate;
		// a past-due tenant must be able to fix its own subscription.
		billing.POST("/subscribe/confirm", deps.Billing.ConfirmSubscribe)
		billing.POST("/cancel", deps.Billing.Cancel)
	}

	api := engine.Group("/api", deps.Identity, middleware.RequireAuthenticated())
	{
		api.GET("/orders", deps.AccessGate, deps.Orders.List)
		api.POST("/tenant/disconnect", deps.Tenant.Disconnect)
		api.DELETE("/tenant", deps.Tenant.Redact)
	}
}

// healthHandler reports liveness, including database reachability.
func healthHandler(db *persistence.Database, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
