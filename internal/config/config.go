// Package config defines the configuration of the proofwork entitlement service.
// Configuration is loaded once at process start (or Lambda cold start) and is
// immutable thereafter.
//
// Values are resolved from the OS environment, falling back to a .env file in
// the working directory. Any missing required value or invalid format fails
// startup.
package config

import (
	"fmt"
	"time"

	"proofwork/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers need not
// import types for it.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the config subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"proofwork-entitlements"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Identity      IdentityConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	DashboardURL   string `envconfig:"DASHBOARD_URL" validate:"required,url"` // checkout redirect target

	// RequestTimeout bounds every request, including the store round trips of
	// a webhook delivery. Kept under the API Gateway 30s limit.
	RequestTimeout      time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"29s"`
	MaxWebhookBodyBytes int64         `envconfig:"MAX_WEBHOOK_BODY_BYTES" default:"262144" validate:"min=1024"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// EntitlementQueueURL receives EntitlementChanged messages. Publishing is
	// disabled when empty.
	EntitlementQueueURL string `envconfig:"SQS_ENTITLEMENT_EVENTS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds the Lemon Squeezy store credentials and plan mapping.
type BillingConfig struct {
	APIKey        SecretString `envconfig:"LEMONSQUEEZY_API_KEY" validate:"required"`
	WebhookSecret SecretString `envconfig:"LEMONSQUEEZY_WEBHOOK_SECRET" validate:"required"`
	StoreID       string       `envconfig:"LEMONSQUEEZY_STORE_ID" validate:"required"`

	VariantIDPro        string `envconfig:"LEMONSQUEEZY_VARIANT_ID_PRO" validate:"required"`
	VariantIDEnterprise string `envconfig:"LEMONSQUEEZY_VARIANT_ID_ENTERPRISE" validate:"required"`
	// ExtraPlans maps additional variant ids to tiers, e.g. "111:pro,222:enterprise"
	// for yearly variants.
	ExtraPlans map[string]string `envconfig:"LEMONSQUEEZY_PLAN_MAP"`

	APIBaseURL string        `envconfig:"LEMONSQUEEZY_API_URL" default:"https://api.lemonsqueezy.com" validate:"url"`
	Timeout    time.Duration `envconfig:"LEMONSQUEEZY_TIMEOUT" default:"10s"`
}

// PlanEntries returns the variant-to-tier mapping. The dedicated Pro and
// Enterprise variables win over duplicate ids in ExtraPlans.
func (b BillingConfig) PlanEntries() (map[string]types.Tier, error) {
	out := make(map[string]types.Tier, len(b.ExtraPlans)+2)
	for id, tier := range b.ExtraPlans {
		t := types.Tier(tier)
		if !t.Valid() {
			return nil, fmt.Errorf("LEMONSQUEEZY_PLAN_MAP: variant %q maps to unknown tier %q", id, tier)
		}
		out[id] = t
	}
	out[b.VariantIDPro] = types.TierPro
	out[b.VariantIDEnterprise] = types.TierEnterprise
	return out, nil
}

// IdentityConfig points at the external identity service that resolves
// bearer tokens to users.
type IdentityConfig struct {
	URL     string        `envconfig:"IDENTITY_URL" validate:"required,url"`
	APIKey  SecretString  `envconfig:"IDENTITY_API_KEY" validate:"required"`
	Timeout time.Duration `envconfig:"IDENTITY_TIMEOUT" default:"5s"`
}

// SecurityConfig holds admin access and CORS settings.
type SecurityConfig struct {
	// AdminAPIKeyHash is the bcrypt hash of the admin key.
	AdminAPIKeyHash    SecretString `envconfig:"ADMIN_API_KEY_HASH" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"ProofWork"`
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
