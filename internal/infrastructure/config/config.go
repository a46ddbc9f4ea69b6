package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Session      SessionConfig
	Platform     PlatformConfig
	Billing      BillingConfig
	Notification NotificationConfig
	HTTP         HTTPConfig
	Log          LogConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// DSN builds the postgres connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address for the Redis client
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig holds settings for cookie sessions and inbound session tokens
type SessionConfig struct {
	// CookieSecret signs the first-party cookie session JWT
	CookieSecret string
	// CookieName is the session cookie name
	CookieName string
	// CookieTTL bounds how long a cookie session stays valid
	CookieTTL time.Duration
	// Secure marks the session cookie Secure (HTTPS only)
	Secure bool
}

// PlatformConfig holds settings for the host e-commerce platform
type PlatformConfig struct {
	// ClientID is the app's API key, also the expected JWT audience
	ClientID string
	// ClientSecret signs session tokens and HMAC callbacks/webhooks
	ClientSecret string
	// DomainSuffix is the platform shop-domain suffix (e.g. ".mystorelink.com")
	DomainSuffix string
	// APIVersion selects the platform API version path segment
	APIVersion string
	// Timeout bounds each outbound HTTP attempt
	Timeout time.Duration
	// MaxAttempts is the per-call retry budget
	MaxAttempts int
	// PageSize is the default page size for paginated fetches
	PageSize int
	// MaxPages is the hard ceiling on pagination loops
	MaxPages int
	// TokenEncryptionKey encrypts access tokens at rest (32 bytes, hex or raw)
	TokenEncryptionKey string
}

// BillingConfig holds billing and usage sync settings
type BillingConfig struct {
	// TrialDays is the fixed trial window for new owners
	TrialDays int
	// UsageBatchSize bounds one usage sync batch
	UsageBatchSize int
	// UsageSyncInterval is how often the background sync runs
	UsageSyncInterval time.Duration
	// UsageSyncTimeout bounds a single sync run
	UsageSyncTimeout time.Duration
	// LineItemCacheTTL is the short TTL on resolved metered line-item ids
	LineItemCacheTTL time.Duration
	// WebhookDedupTTL is how long processed webhook event ids are remembered
	WebhookDedupTTL time.Duration
	// SyncEnabled toggles the background usage sync scheduler
	SyncEnabled bool
}

// NotificationConfig holds billing notification delivery settings
type NotificationConfig struct {
	// WebhookURL is where billing events are POSTed; empty keeps delivery
	// on the application log
	WebhookURL string
	// QueueSize bounds the async delivery queue
	QueueSize int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
//  1. Environment variables with STORELINK_ prefix
//  2. config.toml
//  3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults and env vars apply.
	}

	v.SetEnvPrefix("STORELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Session: SessionConfig{
			CookieSecret: v.GetString("session.cookie_secret"),
			CookieName:   v.GetString("session.cookie_name"),
			CookieTTL:    v.GetDuration("session.cookie_ttl"),
			Secure:       v.GetBool("session.secure"),
		},
		Platform: PlatformConfig{
			ClientID:           v.GetString("platform.client_id"),
			ClientSecret:       v.GetString("platform.client_secret"),
			DomainSuffix:       v.GetString("platform.domain_suffix"),
			APIVersion:         v.GetString("platform.api_version"),
			Timeout:            v.GetDuration("platform.timeout"),
			MaxAttempts:        v.GetInt("platform.max_attempts"),
			PageSize:           v.GetInt("platform.page_size"),
			MaxPages:           v.GetInt("platform.max_pages"),
			TokenEncryptionKey: v.GetString("platform.token_encryption_key"),
		},
		Billing: BillingConfig{
			TrialDays:         v.GetInt("billing.trial_days"),
			UsageBatchSize:    v.GetInt("billing.usage_batch_size"),
			UsageSyncInterval: v.GetDuration("billing.usage_sync_interval"),
			UsageSyncTimeout:  v.GetDuration("billing.usage_sync_timeout"),
			LineItemCacheTTL:  v.GetDuration("billing.line_item_cache_ttl"),
			WebhookDedupTTL:   v.GetDuration("billing.webhook_dedup_ttl"),
			SyncEnabled:       v.GetBool("billing.sync_enabled"),
		},
		Notification: NotificationConfig{
			WebhookURL: v.GetString("notification.webhook_url"),
			QueueSize:  v.GetInt("notification.queue_size"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "storelink")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "storelink")
	v.SetDefault("database.dbname", "storelink")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.conn_max_idle_time", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.cookie_name", "storelink_session")
	v.SetDefault("session.cookie_ttl", 24*time.Hour)
	v.SetDefault("session.secure", true)

	v.SetDefault("platform.domain_suffix", ".mystorelink.com")
	v.SetDefault("platform.api_version", "2024-07")
	v.SetDefault("platform.timeout", 10*time.Second)
	v.SetDefault("platform.max_attempts", 3)
	v.SetDefault("platform.page_size", 250)
	v.SetDefault("platform.max_pages", 1000)

	v.SetDefault("billing.trial_days", 7)
	v.SetDefault("billing.usage_batch_size", 100)
	v.SetDefault("billing.usage_sync_interval", 5*time.Minute)
	v.SetDefault("billing.usage_sync_timeout", 2*time.Minute)
	v.SetDefault("billing.line_item_cache_ttl", 5*time.Minute)
	v.SetDefault("billing.webhook_dedup_ttl", 48*time.Hour)
	v.SetDefault("billing.sync_enabled", true)

	v.SetDefault("notification.webhook_url", "")
	v.SetDefault("notification.queue_size", 64)

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.max_header_bytes", 1<<20)
	v.SetDefault("http.max_body_size", int64(4<<20))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

// Validate checks that required settings are present and coherent
func (c *Config) Validate() error {
	if c.Platform.ClientID == "" {
		return fmt.Errorf("platform.client_id is required")
	}
	if c.Platform.ClientSecret == "" {
		return fmt.Errorf("platform.client_secret is required")
	}
	if c.Session.CookieSecret == "" {
		return fmt.Errorf("session.cookie_secret is required")
	}
	if c.Platform.MaxAttempts < 1 {
		return fmt.Errorf("platform.max_attempts must be at least 1")
	}
	if c.Platform.PageSize < 1 || c.Platform.PageSize > 250 {
		return fmt.Errorf("platform.page_size must be between 1 and 250")
	}
	if c.Billing.TrialDays < 0 {
		return fmt.Errorf("billing.trial_days cannot be negative")
	}
	if c.Notification.QueueSize < 1 {
		return fmt.Errorf("notification.queue_size must be at least 1")
	}
	return nil
}

// IsProduction reports whether the app runs in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
