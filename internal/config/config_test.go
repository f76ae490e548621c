package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", "jwt-secret")
	t.Setenv("PROVIDER_API_BASE_URL", "https://sandbox.example.com/api/v3/")
	t.Setenv("PROVIDER_API_KEY", "key_123")
	t.Setenv("WEBHOOK_SECRET", "hook-secret")
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("AUTOMATION_HOOK_URL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg := Load()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://sandbox.example.com/api/v3", cfg.Provider.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 3, cfg.Subscription.GraceDays)
	assert.Empty(t, cfg.Webhook.HookURL)
}

func TestValidateFailsLoudlyOnMissingSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WEBHOOK_SECRET", "")
	t.Setenv("PROVIDER_API_KEY", "")

	err := Load().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_SECRET")
	assert.Contains(t, err.Error(), "PROVIDER_API_KEY")
}

func TestValidateRequiresRedisWhenRateLimitEnabled(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_REDIS_ADDR", "")

	err := Load().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_REDIS_ADDR")
}

func TestValidateRejectsMalformedHookURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTOMATION_HOOK_URL", "not a url")

	err := Load().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTOMATION_HOOK_URL")
}

func TestTelemetryDefaultsAndValidation(t *testing.T) {
	setRequiredEnv(t)

	cfg := Load()
	assert.Equal(t, "info", cfg.Telemetry.LogLevel)
	assert.Equal(t, "grpc", cfg.Telemetry.OTLPProtocol)
	assert.InDelta(t, 0.1, cfg.Telemetry.SamplingRatio, 1e-9)

	t.Setenv("LOG_LEVEL", "Verbose")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")
	err := Load().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
	assert.Contains(t, err.Error(), "OTEL_SAMPLING_RATIO")
}
