package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"STORELINK_APP_NAME",
	"STORELINK_APP_ENV",
	"STORELINK_APP_PORT",
	"STORELINK_DATABASE_HOST",
	"STORELINK_DATABASE_PORT",
	"STORELINK_DATABASE_USER",
	"STORELINK_DATABASE_PASSWORD",
	"STORELINK_DATABASE_DBNAME",
	"STORELINK_SESSION_COOKIE_SECRET",
	"STORELINK_SESSION_COOKIE_NAME",
	"STORELINK_SESSION_COOKIE_TTL",
	"STORELINK_PLATFORM_CLIENT_ID",
	"STORELINK_PLATFORM_CLIENT_SECRET",
	"STORELINK_PLATFORM_DOMAIN_SUFFIX",
	"STORELINK_PLATFORM_API_VERSION",
	"STORELINK_PLATFORM_MAX_ATTEMPTS",
	"STORELINK_PLATFORM_PAGE_SIZE",
	"STORELINK_BILLING_TRIAL_DAYS",
	"STORELINK_BILLING_SYNC_ENABLED",
	"STORELINK_NOTIFICATION_WEBHOOK_URL",
	"STORELINK_NOTIFICATION_QUEUE_SIZE",
	"STORELINK_LOG_LEVEL",
}

// withCleanEnv saves the config env vars, clears them for the test, and
// restores them afterwards.
func withCleanEnv(t *testing.T) {
	t.Helper()
	original := map[string]string{}
	for _, k := range configEnvKeys {
		original[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for k, v := range original {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	})
}

// setRequired sets the minimum env needed for Validate to pass.
func setRequired() {
	os.Setenv("STORELINK_PLATFORM_CLIENT_ID", "app-client-id")
	os.Setenv("STORELINK_PLATFORM_CLIENT_SECRET", "app-client-secret")
	os.Setenv("STORELINK_SESSION_COOKIE_SECRET", "cookie-signing-secret")
}

func TestLoad(t *testing.T) {
	t.Run("loads defaults when env vars not set", func(t *testing.T) {
		withCleanEnv(t)
		setRequired()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "storelink", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "storelink_session", cfg.Session.CookieName)
		assert.Equal(t, 24*time.Hour, cfg.Session.CookieTTL)
		assert.True(t, cfg.Session.Secure)
		assert.Equal(t, ".mystorelink.com", cfg.Platform.DomainSuffix)
		assert.Equal(t, 3, cfg.Platform.MaxAttempts)
		assert.Equal(t, 250, cfg.Platform.PageSize)
		assert.Equal(t, 1000, cfg.Platform.MaxPages)
		assert.Equal(t, 7, cfg.Billing.TrialDays)
		assert.Equal(t, 5*time.Minute, cfg.Billing.UsageSyncInterval)
		assert.True(t, cfg.Billing.SyncEnabled)
		assert.Empty(t, cfg.Notification.WebhookURL)
		assert.Equal(t, 64, cfg.Notification.QueueSize)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("loads values from environment variables with STORELINK prefix", func(t *testing.T) {
		withCleanEnv(t)
		setRequired()
		os.Setenv("STORELINK_APP_NAME", "storelink-staging")
		os.Setenv("STORELINK_APP_ENV", "staging")
		os.Setenv("STORELINK_APP_PORT", "9000")
		os.Setenv("STORELINK_DATABASE_HOST", "db.internal")
		os.Setenv("STORELINK_DATABASE_PORT", "5433")
		os.Setenv("STORELINK_PLATFORM_API_VERSION", "2026-07")
		os.Setenv("STORELINK_PLATFORM_PAGE_SIZE", "100")
		os.Setenv("STORELINK_SESSION_COOKIE_TTL", "12h")
		os.Setenv("STORELINK_BILLING_TRIAL_DAYS", "14")
		os.Setenv("STORELINK_BILLING_SYNC_ENABLED", "false")
		os.Setenv("STORELINK_NOTIFICATION_WEBHOOK_URL", "https://hooks.internal/billing")
		os.Setenv("STORELINK_NOTIFICATION_QUEUE_SIZE", "128")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "storelink-staging", cfg.App.Name)
		assert.Equal(t, "staging", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "2026-07", cfg.Platform.APIVersion)
		assert.Equal(t, 100, cfg.Platform.PageSize)
		assert.Equal(t, 12*time.Hour, cfg.Session.CookieTTL)
		assert.Equal(t, 14, cfg.Billing.TrialDays)
		assert.False(t, cfg.Billing.SyncEnabled)
		assert.Equal(t, "https://hooks.internal/billing", cfg.Notification.WebhookURL)
		assert.Equal(t, 128, cfg.Notification.QueueSize)
	})

	t.Run("requires platform client id", func(t *testing.T) {
		withCleanEnv(t)
		setRequired()
		os.Unsetenv("STORELINK_PLATFORM_CLIENT_ID")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "platform.client_id is required")
	})

	t.Run("requires platform client secret", func(t *testing.T) {
		withCleanEnv(t)
		setRequired()
		os.Unsetenv("STORELINK_PLATFORM_CLIENT_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "platform.client_secret is required")
	})

	t.Run("requires session cookie secret", func(t *testing.T) {
		withCleanEnv(t)
		setRequired()
		os.Unsetenv("STORELINK_SESSION_COOKIE_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session.cookie_secret is required")
	})

	t.Run("rejects page size over the platform maximum", func(t *testing.T) {
		withCleanEnv(t)
		setRequired()
		os.Setenv("STORELINK_PLATFORM_PAGE_SIZE", "500")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page_size must be between 1 and 250")
	})

	t.Run("rejects zero retry budget", func(t *testing.T) {
		withCleanEnv(t)
		setRequired()
		os.Setenv("STORELINK_PLATFORM_MAX_ATTEMPTS", "0")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_attempts must be at least 1")
	})

	t.Run("rejects negative trial window", func(t *testing.T) {
		withCleanEnv(t)
		setRequired()
		os.Setenv("STORELINK_BILLING_TRIAL_DAYS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "trial_days cannot be negative")
	})

	t.Run("rejects an empty notification queue", func(t *testing.T) {
		withCleanEnv(t)
		setRequired()
		os.Setenv("STORELINK_NOTIFICATION_QUEUE_SIZE", "0")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue_size must be at least 1")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "storelink",
		Password: "secret",
		DBName:   "storelink",
		SSLMode:  "disable",
	}

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "user=storelink")
	assert.Contains(t, dsn, "password=secret")
	assert.Contains(t, dsn, "dbname=storelink")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.internal", Port: 6380}
	assert.Equal(t, "redis.internal:6380", cfg.Addr())
}

func TestConfig_IsProduction(t *testing.T) {
	assert.True(t, (&Config{App: AppConfig{Env: "production"}}).IsProduction())
	assert.False(t, (&Config{App: AppConfig{Env: "development"}}).IsProduction())
}
