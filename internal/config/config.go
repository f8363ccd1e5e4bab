package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	JWTClockSkew time.Duration

	CORSAllowedOrigins []string

	// Pricing
	FeeBps            int32
	CurrencyCode      string
	PromoPerUserLimit int32

	// Catalog cache
	CatalogCacheTTL time.Duration

	// Idempotency and locking
	IdempotencyTTL   time.Duration
	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	// Webhook delivery
	WebhookDeliveryEnabled  bool
	WebhookRequestTimeout   time.Duration
	WebhookAllowInsecureTLS bool
	WebhookReplayTTL        time.Duration
	WebhookUserAgent        string

	// Circuit breaker for outbound webhook calls
	CircuitWebhookMinReq      int
	CircuitWebhookFailureRate float64
	CircuitWebhookOpenFor     time.Duration

	// Task queue
	WorkerConcurrency int
	TaskMaxRetry      int
	TaskUniqueTTL     time.Duration

	// Email notifications
	EmailEnabled bool

	// Rate limiting
	RateLimitGlobal         string
	RateLimitQuoteMax       int
	RateLimitQuoteWindow    time.Duration
	RateLimitCheckoutMax    int
	RateLimitCheckoutWindow time.Duration

	// Database pool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBStatementCacheCapacity int

	// HTTP server
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration

	// Observability
	LogFormat      string
	LogLevel       string
	OTELEnabled    bool
	OTELEndpoint   string
	MetricsEnabled bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		JWTSecret:    k.String("JWT_SECRET"),
		JWTIssuer:    k.String("JWT_ISSUER"),
		JWTAudience:  k.String("JWT_AUDIENCE"),
		JWTClockSkew: parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		FeeBps:            int32(parseInt(k.String("PRICING_FEE_RATE_BPS"), 1500)),
		CurrencyCode:      valueOrDefault(k.String("CURRENCY_CODE"), "USD"),
		PromoPerUserLimit: int32(parseInt(k.String("PROMO_PER_USER_LIMIT"), 1)),

		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "10s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		WebhookDeliveryEnabled:  parseBoolDefault(k.String("WEBHOOK_DELIVERY_ENABLED"), true),
		WebhookRequestTimeout:   parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "5s"),
		WebhookAllowInsecureTLS: parseBool(k.String("WEBHOOK_ALLOW_INSECURE_TLS")),
		WebhookReplayTTL:        parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		WebhookUserAgent:        valueOrDefault(k.String("WEBHOOK_USER_AGENT"), "dropskey-webhooks/1.0"),

		CircuitWebhookMinReq:      parseInt(k.String("CIRCUIT_WEBHOOK_MIN_REQ"), 10),
		CircuitWebhookFailureRate: parseFloat(k.String("CIRCUIT_WEBHOOK_FAILURE_RATE"), 0.5),
		CircuitWebhookOpenFor:     parseDuration(k.String("CIRCUIT_WEBHOOK_OPEN_FOR"), "30s"),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 10),
		TaskMaxRetry:      parseInt(k.String("TASK_MAX_RETRY"), 6),
		TaskUniqueTTL:     parseDuration(k.String("TASK_UNIQUE_TTL"), "1h"),

		EmailEnabled: parseBool(k.String("EMAIL_ENABLED")),

		RateLimitGlobal:         valueOrDefault(k.String("RATE_LIMIT_GLOBAL"), "300-M"),
		RateLimitQuoteMax:       parseInt(k.String("RATE_LIMIT_QUOTE_MAX"), 60),
		RateLimitQuoteWindow:    parseDuration(k.String("RATE_LIMIT_QUOTE_WINDOW"), "1m"),
		RateLimitCheckoutMax:    parseInt(k.String("RATE_LIMIT_CHECKOUT_MAX"), 10),
		RateLimitCheckoutWindow: parseDuration(k.String("RATE_LIMIT_CHECKOUT_WINDOW"), "1m"),

		DBMaxOpenConns:           parseInt(k.String("DB_MAX_OPEN_CONNS"), 0),
		DBMaxIdleConns:           parseInt(k.String("DB_MAX_IDLE_CONNS"), 0),
		DBStatementCacheCapacity: parseInt(k.String("DB_STATEMENT_CACHE_CAPACITY"), -1),

		MaxBodyBytes:    int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),
		ShutdownTimeout: parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),

		LogFormat:      valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:       valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		OTELEnabled:    parseBool(k.String("OTEL_ENABLED")),
		OTELEndpoint:   k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MetricsEnabled: parseBoolDefault(k.String("METRICS_ENABLED"), true),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.FeeBps < 0 || cfg.FeeBps > 10000 {
		return nil, errors.New("PRICING_FEE_RATE_BPS must be between 0 and 10000")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return fallback
	}
	return parseBool(trimmed)
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
