package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedEngine(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(GinMiddleware())
	return r, recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[string]string {
	out := map[string]string{}
	for _, kv := range span.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestSpanCarriesClinicAndAccessOutcome(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.GET("/access", func(c *gin.Context) {
		ctx := obscontext.WithTenantID(c.Request.Context(), "42")
		c.Request = c.Request.WithContext(ctx)
		c.Set(GinKeyAccessOutcome, "redirect")
		c.Set(GinKeyPlanStatus, "EXPIRED")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/access?path=/agenda", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /access", spans[0].Name())
	attrs := spanAttributes(spans[0])
	assert.Equal(t, "42", attrs["clinic.tenant_id"])
	assert.Equal(t, "redirect", attrs["access.outcome"])
	assert.Equal(t, "EXPIRED", attrs["access.plan_status"])
	assert.NotContains(t, attrs, "provider.event")
}

func TestSpanCarriesProviderEvent(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.POST("/webhooks/subscription", func(c *gin.Context) {
		c.Set(GinKeyWebhookEvent, "PAYMENT_CONFIRMED")
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/subscription", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "PAYMENT_CONFIRMED", spanAttributes(spans[0])["provider.event"])
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.status_code", http.StatusInternalServerError))
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}

func TestHealthAndMetricsAreNotTraced(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, recorder.Ended())
}
