// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone so calendar-month usage windows are stable.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator, then the plan map.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
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

// loaderDeps holds the injectable dependencies for the loader.
type loaderDeps struct {
	loadDotenv func(filenames ...string) error
}

func defaultDeps() loaderDeps {
	return loaderDeps{loadDotenv: godotenv.Load}
}

// LoadConfig loads and validates the service configuration. dotenvFiles are
// passed to godotenv; with none, ".env" in the working directory is tried.
// Existing environment variables are never overridden by dotenv values.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	return loadConfigWithDeps(defaultDeps(), dotenvFiles...)
}

func loadConfigWithDeps(deps loaderDeps, dotenvFiles ...string) (*Config, error) {
	time.Local = time.UTC

	// A missing .env file is the normal case outside local development.
	_ = deps.loadDotenv(dotenvFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if cfg.Billing.VariantIDPro == cfg.Billing.VariantIDEnterprise {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "LEMONSQUEEZY_VARIANT_ID_PRO and LEMONSQUEEZY_VARIANT_ID_ENTERPRISE must differ",
		}
	}
	if _, err := cfg.Billing.PlanEntries(); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "invalid plan map",
			Err:     err,
		}
	}
	return nil
}

// LoadDatabaseConfig loads only the database settings. Used by tooling such
// as the migrate command that must not require billing or identity secrets.
func LoadDatabaseConfig(dotenvFiles ...string) (*DatabaseConfig, error) {
	return loadDatabaseConfigWithDeps(defaultDeps(), dotenvFiles...)
}

func loadDatabaseConfigWithDeps(deps loaderDeps, dotenvFiles ...string) (*DatabaseConfig, error) {
	_ = deps.loadDotenv(dotenvFiles...)

	var cfg DatabaseConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process database configuration",
			Err:     err,
		}
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "database configuration validation failed",
			Err:     err,
		}
	}
	return &cfg, nil
}
