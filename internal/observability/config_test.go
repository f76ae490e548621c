package observability

import (
	"testing"

	"github.com/smallbiznis/clinicsub/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigCarriesTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: " production ",
		AppVersion:  "1.2.0",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "info",
			OTLPEnabled:   true,
			OTLPEndpoint:  "collector:4317",
			OTLPProtocol:  "grpc",
			SamplingRatio: 0.25,
		},
	})

	assert.Equal(t, "clinicsub", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.Debug())

	tracingCfg := cfg.tracingConfig()
	assert.True(t, tracingCfg.Enabled)
	assert.Equal(t, "collector:4317", tracingCfg.ExporterEndpoint)
	assert.InDelta(t, 0.25, tracingCfg.SamplingRatio, 1e-9)

	loggerCfg := cfg.loggerConfig()
	assert.False(t, loggerCfg.IncludeStackOnError)
	assert.Contains(t, loggerCfg.UnsampledLoggers, "webhook.service")
	assert.Contains(t, loggerCfg.UnsampledLoggers, "subscription.service")
}

func TestDebugInDevelopmentOrDebugLevel(t *testing.T) {
	assert.True(t, Config{Environment: "development"}.Debug())
	assert.True(t, Config{Environment: "production", Telemetry: config.TelemetryConfig{LogLevel: "debug"}}.Debug())
	assert.False(t, Config{}.Debug())
}
