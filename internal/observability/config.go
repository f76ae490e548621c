package observability

import (
	"strings"

	"github.com/smallbiznis/clinicsub/internal/config"
	"github.com/smallbiznis/clinicsub/internal/observability/logger"
	"github.com/smallbiznis/clinicsub/internal/observability/metrics"
	"github.com/smallbiznis/clinicsub/internal/observability/tracing"
)

// auditLoggers write the subscription trail and are never sampled.
var auditLoggers = []string{
	"subscription.service",
	"webhook.service",
	"sublog",
}

// Config is the telemetry view of the application configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Telemetry config.TelemetryConfig
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "clinicsub"
	}
	return Config{
		ServiceName: serviceName,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Telemetry:   cfg.Telemetry,
	}
}

// Debug turns on stack traces for request errors outside production-like environments.
func (c Config) Debug() bool {
	if strings.EqualFold(c.Telemetry.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) loggerConfig() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.Telemetry.LogLevel,
		Format:              c.Telemetry.LogFormat,
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
		UnsampledLoggers:    auditLoggers,
	}
}

func (c Config) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.Telemetry.OTLPEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.Telemetry.OTLPEndpoint,
		ExporterProtocol: c.Telemetry.OTLPProtocol,
		SamplingRatio:    c.Telemetry.SamplingRatio,
	}
}

func (c Config) metricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.Telemetry.OTLPEnabled,
		ExporterEndpoint: c.Telemetry.OTLPEndpoint,
		ExporterProtocol: c.Telemetry.OTLPProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
