// Package config defines the global configuration structure for the studio
// booking platform. Configuration is loaded once at process initialization and
// is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"studiobook/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the booking platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"studiobook"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Billing  BillingConfig
	Policy   PolicyConfig
	Sweeper  SweeperConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL for Stripe checkout redirects (no trailing slash).
	PublicURL      string        `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// Migrations
	MigrationsDir  string `envconfig:"DB_MIGRATIONS_DIR" default:"migrations"`
	AutoMigrate    bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// BillingConfig holds Stripe payment integration credentials.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIBaseURL    string       `envconfig:"STRIPE_API_BASE_URL" default:"https://api.stripe.com"`
}

// PolicyConfig holds the studio's booking policy knobs. Defaults encode the
// standard policy: classes run 30 minutes to 3 hours, and students may cancel
// free of charge up to 2 hours before the class starts.
type PolicyConfig struct {
	MinClassDuration     time.Duration `envconfig:"POLICY_MIN_CLASS_DURATION" default:"30m"`
	MaxClassDuration     time.Duration `envconfig:"POLICY_MAX_CLASS_DURATION" default:"3h"`
	CancellationWindow   time.Duration `envconfig:"POLICY_CANCELLATION_WINDOW" default:"2h"`
	ReservationRetries   int           `envconfig:"POLICY_RESERVATION_RETRIES" default:"3"`
}

// SweeperConfig holds settings for the maintenance sweep runner.
type SweeperConfig struct {
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"`
	RunOnce  bool          `envconfig:"SWEEP_RUN_ONCE" default:"false"`
}
