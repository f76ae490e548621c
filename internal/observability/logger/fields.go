package logger

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FromContext returns the global logger with the request's correlation fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds request, clinic, actor and trace ids that are present on ctx.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	var fields []zap.Field
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}
	add("request_id", obscontext.RequestIDFromContext(ctx))
	add("tenant_id", obscontext.TenantIDFromContext(ctx))
	actorType, actorID := obscontext.ActorFromContext(ctx)
	add("actor_type", actorType)
	add("actor_id", actorID)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		add("trace_id", sc.TraceID().String())
		add("span_id", sc.SpanID().String())
	}

	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// WithProviderEvent tags a logger with the webhook delivery being processed.
func WithProviderEvent(log *zap.Logger, event, kind string) *zap.Logger {
	return log.With(
		zap.String("provider_event", strings.TrimSpace(event)),
		zap.String("provider_event_kind", strings.TrimSpace(kind)),
	)
}

// WithSubscription tags a logger with the local record and the provider
// subscription a lifecycle operation touches. Empty values are left out.
func WithSubscription(log *zap.Logger, subscriptionID snowflake.ID, providerSubscriptionID string) *zap.Logger {
	var fields []zap.Field
	if subscriptionID != 0 {
		fields = append(fields, zap.String("subscription_id", subscriptionID.String()))
	}
	if id := strings.TrimSpace(providerSubscriptionID); id != "" {
		fields = append(fields, zap.String("provider_subscription_id", id))
	}
	return log.With(fields...)
}
