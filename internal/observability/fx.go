package observability

import (
	"github.com/smallbiznis/clinicsub/internal/observability/logger"
	"github.com/smallbiznis/clinicsub/internal/observability/metrics"
	"github.com/smallbiznis/clinicsub/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.loggerConfig,
		Config.tracingConfig,
		Config.metricsConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.SyncWithConfig,
	),
	// spans are only exported once the global provider is installed
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
