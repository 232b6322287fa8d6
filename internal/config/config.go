package config

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"debug"`

	DBConnectionString string `envconfig:"DB_CONNECTION_STRING"`

	// Public URL of the web app; used as the provider return URL.
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:3000"`
	// UI origin proxied behind the access gate. Empty disables the proxy.
	FrontendURL string `envconfig:"FRONTEND_URL"`

	// Supabase auth settings
	JWTSecret      string `envconfig:"SUPABASE_JWT_SECRET"`
	AuthCookieName string `envconfig:"AUTH_COOKIE_NAME" default:"sb-access-token"`

	// Dodo Payments settings
	PaymentMode        string `envconfig:"PAYMENT_MODE" default:"test"`
	DodoAPIKeyTest     string `envconfig:"DODO_API_KEY_TEST"`
	DodoAPIKeyLive     string `envconfig:"DODO_API_KEY_LIVE"`
	DodoTestBaseURL    string `envconfig:"DODO_TEST_BASE_URL" default:"https://test.dodopayments.com"`
	DodoLiveBaseURL    string `envconfig:"DODO_LIVE_BASE_URL" default:"https://live.dodopayments.com"`
	DodoWebhookKey     string `envconfig:"DODO_PAYMENTS_WEBHOOK_KEY"`
	DodoProductID      string `envconfig:"DODOPAYMENTS_GENERIC_SUBSCRIPTION_PRODUCT_ID"`
	CheckoutTimeoutSec int    `envconfig:"CHECKOUT_TIMEOUT_SEC" default:"30"`

	// Scheduler / cron settings
	CronSecret                   string  `envconfig:"CRON_SECRET"`
	SchedulerOIDCAudience        string  `envconfig:"SCHEDULER_OIDC_AUDIENCE"`
	SchedulerServiceAccountEmail string  `envconfig:"SCHEDULER_SERVICE_ACCOUNT_EMAIL"`
	TrialSweepIntervalMin        int     `envconfig:"TRIAL_SWEEP_INTERVAL_MIN" default:"60"`
	ReminderIntervalHours        int     `envconfig:"REMINDER_INTERVAL_HOURS" default:"24"`
	ReminderAmount               float64 `envconfig:"REMINDER_AMOUNT" default:"29.99"`
	ReminderCurrency             string  `envconfig:"REMINDER_CURRENCY" default:"USD"`

	// GCP settings
	GCPProjectID             string `envconfig:"GCP_PROJECT_ID"`
	PubSubEmulatorHost       string `envconfig:"PUBSUB_EMULATOR_HOST"`
	PubSubNotificationsTopic string `envconfig:"PUBSUB_NOTIFICATIONS_TOPIC" default:"billing-notifications"`

	// Webhook payload archive (S3-compatible). Empty bucket disables archiving.
	ArchiveBucket    string `envconfig:"WEBHOOK_ARCHIVE_BUCKET"`
	ArchiveS3URL     string `envconfig:"WEBHOOK_ARCHIVE_S3_URL"`
	ArchiveRegion    string `envconfig:"WEBHOOK_ARCHIVE_REGION" default:"us-east-1"`
	ArchiveAccessKey string `envconfig:"WEBHOOK_ARCHIVE_ACCESS_KEY"`
	ArchiveSecretKey string `envconfig:"WEBHOOK_ARCHIVE_SECRET_KEY"`

	// Access gate path lists
	ProtectedPaths          []string `envconfig:"PROTECTED_PATHS" default:"/dashboard,/profile,/settings"`
	SubscriptionExemptPaths []string `envconfig:"SUBSCRIPTION_EXEMPT_PATHS" default:"/subscribe,/api/checkout/subscription"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsLiveMode() bool {
	return strings.EqualFold(c.PaymentMode, "live")
}

// DodoAPIKey returns the API key matching PAYMENT_MODE.
func (c *Config) DodoAPIKey() string {
	if c.IsLiveMode() {
		return c.DodoAPIKeyLive
	}
	return c.DodoAPIKeyTest
}

// DodoBaseURL returns the API origin matching PAYMENT_MODE.
func (c *Config) DodoBaseURL() string {
	if c.IsLiveMode() {
		return c.DodoLiveBaseURL
	}
	return c.DodoTestBaseURL
}
