package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8010"`

	// Food API the storefront calls on the shopper's behalf.
	BackendURL string `env:"FOOD_API_URL" envDefault:"http://localhost:5000/api"`

	// Per-call timeouts for backend requests.
	IntentTimeout  time.Duration `env:"INTENT_TIMEOUT" envDefault:"15s"`
	ConfirmTimeout time.Duration `env:"CONFIRM_TIMEOUT" envDefault:"20s"`
	AddressTimeout time.Duration `env:"ADDRESS_TIMEOUT" envDefault:"10s"`

	// Checkout behaviour
	Currency            string        `env:"CHECKOUT_CURRENCY" envDefault:"usd"`
	ConfirmationWindow  time.Duration `env:"CONFIRMATION_WINDOW" envDefault:"3s"`
	IntentTTL           time.Duration `env:"INTENT_TTL" envDefault:"30m"`
	SessionIdleTTL      time.Duration `env:"SESSION_IDLE_TTL" envDefault:"2h"`
	SessionSweepPeriod  time.Duration `env:"SESSION_SWEEP_PERIOD" envDefault:"5m"`
	IntentCacheBackend  string        `env:"INTENT_CACHE" envDefault:"redis"`
	PaymentRedirectPath string        `env:"PAYMENT_REDIRECT_PATH" envDefault:"/cart"`

	// Clock skew tolerated when checking bearer token expiry.
	TokenLeeway time.Duration `env:"TOKEN_LEEWAY" envDefault:"30s"`

	// Redis
	RedisAddr            string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass            string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB              int           `env:"REDIS_DB" envDefault:"0"`
	SlowCommandThreshold time.Duration `env:"LOG_SLOW_REDIS" envDefault:"50ms"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Circuit breaker settings for food API calls
	CBMaxRequests  uint32        `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     time.Duration `env:"CB_INTERVAL" envDefault:"60s"`
	CBTimeout      time.Duration `env:"CB_TIMEOUT" envDefault:"30s"`
	CBFailureRatio float64       `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Rate limiting per session or client IP
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.BackendURL == "" {
		return fmt.Errorf("FOOD_API_URL is required")
	}
	if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
		return fmt.Errorf("invalid FOOD_API_URL %q: %w", c.BackendURL, err)
	}
	for name, d := range map[string]time.Duration{
		"INTENT_TIMEOUT":       c.IntentTimeout,
		"CONFIRM_TIMEOUT":      c.ConfirmTimeout,
		"ADDRESS_TIMEOUT":      c.AddressTimeout,
		"SESSION_IDLE_TTL":     c.SessionIdleTTL,
		"INTENT_TTL":           c.IntentTTL,
		"SESSION_SWEEP_PERIOD": c.SessionSweepPeriod,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.TokenLeeway < 0 {
		return fmt.Errorf("TOKEN_LEEWAY must not be negative, got %s", c.TokenLeeway)
	}
	if c.ConfirmationWindow < 0 {
		return fmt.Errorf("CONFIRMATION_WINDOW must not be negative, got %s", c.ConfirmationWindow)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CHECKOUT_CURRENCY must be a 3-letter ISO code, got %q", c.Currency)
	}
	switch c.IntentCacheBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("INTENT_CACHE must be redis or memory, got %q", c.IntentCacheBackend)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0, 1], got %f", c.CBFailureRatio)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}
