package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost/dropskey",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "test-secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, int32(1500), cfg.FeeBps)
	require.Equal(t, "USD", cfg.CurrencyCode)
	require.Equal(t, int32(1), cfg.PromoPerUserLimit)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.True(t, cfg.WebhookDeliveryEnabled)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	// -1 means "leave the driver default alone".
	require.Equal(t, -1, cfg.DBStatementCacheCapacity)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PRICING_FEE_RATE_BPS"] = "250"
	env["CURRENCY_CODE"] = "EUR"
	env["WEBHOOK_DELIVERY_ENABLED"] = "false"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example.com, https://b.example.com"
	env["DB_STATEMENT_CACHE_CAPACITY"] = "128"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 128, cfg.DBStatementCacheCapacity)
	require.Equal(t, int32(250), cfg.FeeBps)
	require.Equal(t, "EUR", cfg.CurrencyCode)
	require.False(t, cfg.WebhookDeliveryEnabled)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsMissingDatabase(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadRejectsFeeOutOfRange(t *testing.T) {
	env := baseEnv()
	env["PRICING_FEE_RATE_BPS"] = "20000"
	_, err := LoadForTests(env)
	require.Error(t, err)
}
