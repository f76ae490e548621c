package logger

import (
	"context"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuditLoggersBypassSampling(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sampled := zapcore.NewSamplerWithOptions(core, time.Minute, 1, 0)
	log := zap.New(newAuditCore(core, sampled, []string{"webhook.service"}))

	for i := 0; i < 3; i++ {
		log.Named("http").Info("http_request")
		log.Named("webhook.service").Info("provider event applied")
		log.Named("webhook.service").Named("apply").Info("nested entry")
	}

	assert.Equal(t, 1, logs.FilterLoggerName("http").Len())
	assert.Equal(t, 3, logs.FilterLoggerName("webhook.service").Len())
	assert.Equal(t, 3, logs.FilterLoggerName("webhook.service.apply").Len())
}

func TestAuditCoreKeepsFieldsOnBothPaths(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sampled := zapcore.NewSamplerWithOptions(core, time.Minute, 10, 10)
	log := zap.New(newAuditCore(core, sampled, []string{"sublog"})).With(zap.String("service", "clinicsub"))

	log.Named("sublog").Info("entry recorded")
	log.Named("server").Info("started")

	for _, entry := range logs.All() {
		assert.Equal(t, "clinicsub", entry.ContextMap()["service"])
	}
	assert.Equal(t, 2, logs.Len())
}

func TestWithContextOmitsMissingFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithTenantID(ctx, "42")
	WithContext(ctx, base).Info("with ids")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "42", fields["tenant_id"])
	assert.NotContains(t, fields, "actor_id")
	assert.NotContains(t, fields, "trace_id")
}

func TestWithSubscriptionAndProviderEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := WithProviderEvent(zap.New(core), "PAYMENT_CONFIRMED", "payment")
	WithSubscription(log, 0, " sub_123 ").Info("applied")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "PAYMENT_CONFIRMED", fields["provider_event"])
	assert.Equal(t, "payment", fields["provider_event_kind"])
	assert.Equal(t, "sub_123", fields["provider_subscription_id"])
	assert.NotContains(t, fields, "subscription_id")
}
