package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
	obstracing "github.com/smallbiznis/clinicsub/internal/observability/tracing"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	headerRequestID  = "X-Request-Id"
	ginKeyRequestID  = "request_id"
	requestLogMsg    = "http_request"
	unmatchedRouteID = "unknown"
)

// quietRoutes log at debug when they succeed. The clinic app polls the gate on
// every navigation and health and metrics are scraped continuously.
var quietRoutes = map[string]struct{}{
	"/health":      {},
	"/metrics":     {},
	"/access":      {},
	"/plan-status": {},
}

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to its response type and code.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns the request id and writes one access line per request
// once the handler chain has finished.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Set(ginKeyRequestID, requestID)
		c.Header(headerRequestID, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRouteID
		}
		status := c.Writer.Status()
		lastErr := c.Errors.Last()

		log := FromContext(c.Request.Context())
		ce := log.Check(requestLevel(route, status, lastErr != nil), requestLogMsg)
		if ce == nil {
			return
		}

		fields := make([]zap.Field, 0, 14)
		fields = append(fields,
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		)
		fields = append(fields, domainFields(c)...)
		if lastErr != nil && cfg.ErrorClassifier != nil {
			errType, errCode := cfg.ErrorClassifier(lastErr.Err)
			fields = append(fields, zap.String("error_type", errType), zap.String("error_code", errCode))
			if cfg.Debug {
				fields = append(fields, zap.Error(lastErr.Err))
			}
		}
		ce.Write(fields...)
	}
}

// domainFields lifts what the handlers recorded about the request: the gate
// verdict on access routes and the provider event on the webhook.
func domainFields(c *gin.Context) []zap.Field {
	var fields []zap.Field
	if event := c.GetString(obstracing.GinKeyWebhookEvent); event != "" {
		fields = append(fields, zap.String("provider_event", event))
	}
	if outcome := c.GetString(obstracing.GinKeyAccessOutcome); outcome != "" {
		fields = append(fields, zap.String("access_outcome", outcome))
		if status := c.GetString(obstracing.GinKeyPlanStatus); status != "" {
			fields = append(fields, zap.String("plan_status", status))
		}
	}
	return fields
}

func requestIDFor(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(headerRequestID)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetString(ginKeyRequestID)); id != "" {
		return id
	}
	return uuid.NewString()
}

func requestLevel(route string, status int, failed bool) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case failed || status >= http.StatusBadRequest:
		return zapcore.InfoLevel
	}
	if _, quiet := quietRoutes[route]; quiet {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
