package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clinicsub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clinicsub/internal/observability/metrics"
	"go.uber.org/zap"
)

const rateLimitReasonTenantRate = "tenant-rate"

// TenantRateLimit throttles provider-calling routes per tenant. It is a no-op
// when rate limiting is disabled or the caller has no tenant.
func (s *Server) TenantRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		principal, ok := principalFromRequest(c)
		if !ok || principal.TenantID == 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := c.FullPath()
		res, err := s.limiter.AllowTenant(ctx, principal.TenantID)
		if err != nil {
			logger.FromContext(ctx).Warn("tenant rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			s.obsMetrics.RecordRateLimit(ctx, endpoint, obsmetrics.RateLimitDenied, rateLimitReasonTenantRate)
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			logger.FromContext(ctx).Info("tenant rate limited",
				zap.String("endpoint", endpoint),
				zap.Duration("retry_after", res.RetryAfter),
				zap.String("reason", rateLimitReasonTenantRate),
			)
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		s.obsMetrics.RecordRateLimit(ctx, endpoint, obsmetrics.RateLimitAllowed, "")
		c.Next()
	}
}
