// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// enforceUTC pins the process-local timezone to UTC so naive time math never
// depends on the host's zone database.
func enforceUTC() {
	time.Local = time.UTC
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the platform configuration from the
// environment. A .env file in the working directory is loaded first if
// present; it never overrides variables already set in the environment.
func LoadConfig() (*Config, error) {
	enforceUTC()

	// Non-fatal if no .env file exists.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment variables",
			Err:     err,
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig runs struct validation and performs cross-field checks the
// tag language cannot express.
func validateConfig(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if cfg.Policy.MinClassDuration <= 0 || cfg.Policy.MaxClassDuration < cfg.Policy.MinClassDuration {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "policy class duration bounds are inconsistent",
		}
	}
	if cfg.Policy.CancellationWindow < 0 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "policy cancellation window must not be negative",
		}
	}
	if cfg.Policy.ReservationRetries < 1 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "policy reservation retries must be at least 1",
		}
	}
	return nil
}
