package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config carries all runtime configuration, populated from the environment.
type Config struct {
	AppEnv           string `env:"APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPListenAddr   string `env:"HTTP_LISTEN_ADDR" envDefault:":8080"`
	PublicBasePath   string `env:"PUBLIC_BASE_PATH"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"pulse"`

	DatabaseURL    string `env:"DATABASE_URL,required"`
	DatabaseSchema string `env:"DATABASE_SCHEMA" envDefault:"public"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisTLS      bool   `env:"REDIS_TLS" envDefault:"false"`

	// Asaas webhook ingestion.
	AsaasWebhookToken string `env:"ASAAS_WEBHOOK_TOKEN"`
	// Whether SUBSCRIPTION_PAYMENT_FAILED also deactivates the profile's
	// subscription flag. Off by default: a failed charge keeps the customer
	// in a grace period until the subscription is cancelled or expires.
	BillingDeactivateOnPaymentFailure bool `env:"BILLING_DEACTIVATE_ON_PAYMENT_FAILURE" envDefault:"false"`

	// WhatsApp BSP integration.
	WABaseURL      string        `env:"WA_BASE_URL,required"`
	WAAdminToken   string        `env:"WA_ADMIN_TOKEN"`
	WATimeout      time.Duration `env:"WA_TIMEOUT" envDefault:"15s"`
	WAPollInterval time.Duration `env:"WA_POLL_INTERVAL" envDefault:"3s"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
