package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	meterName      = "clinicsub"
	exportInterval = 10 * time.Second

	RateLimitAllowed = "allowed"
	RateLimitDenied  = "denied"
)

// Config selects where OTLP metrics go. Prometheus scraping is always on.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the OTLP counters for the lifecycle, gate and webhook paths.
// A nil *Metrics records nothing.
type Metrics struct {
	webhookEvents  metric.Int64Counter
	lifecycleOps   metric.Int64Counter
	gateDecisions  metric.Int64Counter
	rateLimitCalls metric.Int64Counter
}

// NewProvider installs the global meter provider. With OTLP disabled a noop
// provider is installed so instruments stay valid.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		mp := noop.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, nil
	}

	exp, err := otlpExporter(cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", serviceName(cfg)),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(mp)
	if lc != nil {
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
	}
	if log != nil {
		log.Info("otlp metrics export enabled",
			zap.String("otlp_endpoint", cfg.ExporterEndpoint),
			zap.String("otlp_protocol", cfg.ExporterProtocol),
			zap.Duration("interval", exportInterval),
		)
	}
	return mp, nil
}

// New registers the domain counters on the provider's meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.webhookEvents, "clinicsub_webhook_events_total", "Provider webhook deliveries by event and outcome."},
		{&m.lifecycleOps, "clinicsub_subscription_operations_total", "Create, cancel and override calls by outcome."},
		{&m.gateDecisions, "clinicsub_access_decisions_total", "Access gate verdicts by plan status."},
		{&m.rateLimitCalls, "clinicsub_rate_limit_decisions_total", "Tenant rate limiter verdicts."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, m.webhookEvents,
		attribute.String("provider", "asaas"),
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	)
}

func (m *Metrics) RecordLifecycleOperation(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, m.lifecycleOps,
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
}

func (m *Metrics) RecordAccessDecision(ctx context.Context, decision, planStatus string) {
	if m == nil {
		return
	}
	m.add(ctx, m.gateDecisions,
		attribute.String("decision", decision),
		attribute.String("plan_status", planStatus),
	)
}

// RecordRateLimit counts one limiter verdict. reason is only set on denials.
func (m *Metrics) RecordRateLimit(ctx context.Context, endpoint, decision, reason string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("endpoint", endpoint),
		attribute.String("decision", decision),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	m.add(ctx, m.rateLimitCalls, attrs...)
}

func (m *Metrics) add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	for i := range attrs {
		attrs[i] = attribute.String(string(attrs[i].Key), strings.TrimSpace(attrs[i].Value.AsString()))
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func serviceName(cfg Config) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return meterName
}

func otlpExporter(cfg Config) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	endpoint := strings.TrimSpace(cfg.ExporterEndpoint)
	switch strings.ToLower(strings.TrimSpace(cfg.ExporterProtocol)) {
	case "", "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("metrics: unknown otlp protocol %q", cfg.ExporterProtocol)
}

// labelKeys is the closed set of metric labels. Tenant and subscription ids
// are absent so a clinic can never become a series.
var labelKeys = map[attribute.Key]bool{
	"endpoint":    true,
	"status_code": true,
	"method":      true,
	"route":       true,
	"provider":    true,
	"event_type":  true,
	"operation":   true,
	"outcome":     true,
	"decision":    true,
	"plan_status": true,
	"reason":      true,
}

// FilterAttributes drops any label outside labelKeys.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, kv := range attrs {
		if labelKeys[kv.Key] {
			kept = append(kept, kv)
		}
	}
	return kept
}
