package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/tmksh/fulfillment/pkg/config"
)

// Config holds all configuration for the fulfillment service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"FULFILLMENT_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL
	PostgresHost          string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort          int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser          string `env:"POSTGRES_USER" envDefault:"fulfillment"`
	PostgresPass          string `env:"POSTGRES_PASSWORD" envDefault:"fulfillment_secret"`
	PostgresDB            string `env:"FULFILLMENT_DB_NAME" envDefault:"fulfillment_db"`
	PostgresSSL           string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns            int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int    `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int    `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"10"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Redis (customer profile cache)
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Customer directory
	CustomerServiceURL   string `env:"CUSTOMER_SERVICE_URL" envDefault:"http://localhost:8001"`
	CustomerCacheTTLSecs int    `env:"CUSTOMER_CACHE_TTL_SECS" envDefault:"300"`

	// Pricing defaults for organizations without stored settings. Amounts are
	// minor currency units; the tax rate is basis points.
	FreeShippingThreshold int64 `env:"FREE_SHIPPING_THRESHOLD" envDefault:"5000"`
	FlatShippingFee       int64 `env:"FLAT_SHIPPING_FEE" envDefault:"500"`
	TaxRateBps            int64 `env:"TAX_RATE_BPS" envDefault:"825"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load fulfillment config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.TaxRateBps < 0 || c.TaxRateBps > 10000 {
		return fmt.Errorf("invalid tax rate: %d basis points", c.TaxRateBps)
	}
	if c.FreeShippingThreshold < 0 || c.FlatShippingFee < 0 {
		return fmt.Errorf("shipping amounts must not be negative")
	}
	return nil
}

// CustomerCacheTTL returns the customer cache TTL as a duration.
func (c *Config) CustomerCacheTTL() time.Duration {
	return time.Duration(c.CustomerCacheTTLSecs) * time.Second
}
