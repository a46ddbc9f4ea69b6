package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billingapp "github.com/storelink/backend/internal/application/billing"
	identityapp "github.com/storelink/backend/internal/application/identity"
	"github.com/storelink/backend/internal/infrastructure/auth"
	"github.com/storelink/backend/internal/infrastructure/cache"
	"github.com/storelink/backend/internal/infrastructure/config"
	"github.com/storelink/backend/internal/infrastructure/crypto"
	"github.com/storelink/backend/internal/infrastructure/logger"
	"github.com/storelink/backend/internal/infrastructure/notification"
	"github.com/storelink/backend/internal/infrastructure/persistence"
	"github.com/storelink/backend/internal/infrastructure/platform"
	"github.com/storelink/backend/internal/infrastructure/scheduler"
	"github.com/storelink/backend/internal/interfaces/http/handler"
	"github.com/storelink/backend/internal/interfaces/http/middleware"
	"github.com/storelink/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(cfg.Log)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting StoreLink backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// One store backs both the webhook dedup set and the line-item cache.
	var store interface {
		cache.Cache
		cache.IdempotencyStore
	}
	redisStore, err := cache.NewRedisCache(cfg.Redis, cfg.App.Name)
	if err != nil {
		log.Warn("Redis unavailable, using in-process cache", zap.Error(err))
		store = cache.NewInMemoryCache()
	} else {
		store = redisStore
	}
	defer func() {
		_ = store.Close()
	}()

	cipher, err := crypto.NewTokenCipher(cfg.Platform.TokenEncryptionKey)
	if err != nil {
		log.Fatal("Invalid token encryption key", zap.Error(err))
	}
	if !cipher.Enabled() {
		log.Warn("Token encryption disabled, access tokens stored in plaintext")
	}

	// Repositories
	tenantRepo := persistence.NewGormTenantRepository(db.DB, cipher)
	ownerRepo := persistence.NewGormOwnerRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	usageEventRepo := persistence.NewGormUsageEventRepository(db.DB)

	// Platform access
	platformClient := platform.NewClient(cfg.Platform, log)
	hmacVerifier := auth.NewHMACVerifier(cfg.Platform.ClientSecret)
	sessionVerifier := auth.NewSessionTokenVerifier(cfg.Platform.ClientID, cfg.Platform.ClientSecret, cfg.Platform.DomainSuffix)
	cookieCodec := auth.NewCookieSessionCodec(cfg.Session.CookieSecret, cfg.Session.CookieTTL)

	var notifier notification.Notifier = notification.NewLogNotifier(log)
	if cfg.Notification.WebhookURL != "" {
		notifier = notification.NewAsyncNotifier(
			notification.NewWebhookSender(cfg.Notification.WebhookURL, nil),
			cfg.Notification.QueueSize, log,
		)
	}
	defer notifier.Close()

	// Application services
	ledger := billingapp.NewLedgerService(
		subscriptionRepo, usageEventRepo, tenantRepo, ownerRepo,
		store, notifier,
		billingapp.LedgerServiceConfig{WebhookDedupTTL: cfg.Billing.WebhookDedupTTL},
		log,
	)
	usageSync := billingapp.NewUsageSyncService(
		usageEventRepo, tenantRepo, platformClient, store,
		billingapp.UsageSyncConfig{
			BatchSize:        cfg.Billing.UsageBatchSize,
			LineItemCacheTTL: cfg.Billing.LineItemCacheTTL,
		},
		log,
	)
	resolver := identityapp.NewResolver(
		tenantRepo, ownerRepo, sessionVerifier, hmacVerifier, cookieCodec,
		cfg.Platform.DomainSuffix, log,
	)
	authService := identityapp.NewAuthService(
		ownerRepo, tenantRepo, cookieCodec,
		identityapp.AuthServiceConfig{TrialWindow: time.Duration(cfg.Billing.TrialDays) * 24 * time.Hour},
		log,
	)
	connectService := identityapp.NewConnectService(
		tenantRepo, ownerRepo, usageEventRepo, subscriptionRepo,
		ledger, platformClient, hmacVerifier, cookieCodec, usageSync,
		cfg.Platform.DomainSuffix, log,
	)

	// Background usage sync
	usageScheduler := scheduler.NewUsageSyncScheduler(
		scheduler.UsageSyncSchedulerConfig{
			Interval:   cfg.Billing.UsageSyncInterval,
			RunTimeout: cfg.Billing.UsageSyncTimeout,
		},
		usageSync, log,
	)
	if cfg.Billing.SyncEnabled {
		if err := usageScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start usage sync scheduler", zap.Error(err))
		}
	}

	// HTTP surface
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))

	cookieCfg := handler.SessionCookieConfig{
		Name:   cfg.Session.CookieName,
		TTL:    cfg.Session.CookieTTL,
		Secure: cfg.Session.Secure,
	}
	identityGate := middleware.IdentityMiddleware(middleware.IdentityConfig{
		Resolver:     resolver,
		CookieName:   cfg.Session.CookieName,
		CookieSecure: cfg.Session.Secure,
		Logger:       log,
	})
	webhookGate := middleware.WebhookVerification(middleware.WebhookConfig{
		Verifier:     hmacVerifier,
		MaxBodyBytes: cfg.HTTP.MaxBodySize,
		Logger:       log,
	})
	accessGate := middleware.AccessGate(middleware.AccessGateConfig{Ledger: ledger, Logger: log})

	router.Setup(engine, router.Dependencies{
		Auth: handler.NewAuthHandler(
			authService, connectService, cookieCodec, tenantRepo,
			cfg.Platform.DomainSuffix, cookieCfg, log,
		),
		Webhook: handler.NewWebhookHandler(ledger, cfg.Platform.DomainSuffix, log),
		Billing: handler.NewBillingHandler(ledger, log),
		Orders: handler.NewOrdersHandler(platformClient, ledger,
			handler.OrdersHandlerConfig{
				ExportPrice: decimal.NewFromFloat(0.05),
				PageSize:    cfg.Platform.PageSize,
			}, log),
		Tenant:      handler.NewTenantHandler(connectService, cookieCfg, log),
		Identity:    identityGate,
		WebhookGate: webhookGate,
		AccessGate:  accessGate,
		DB:          db,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Billing.SyncEnabled {
		if err := usageScheduler.Stop(ctx); err != nil {
			log.Error("Usage sync scheduler shutdown failed", zap.Error(err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
