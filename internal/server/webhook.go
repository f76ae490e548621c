package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clinicsub/internal/observability/logger"
	obstracing "github.com/smallbiznis/clinicsub/internal/observability/tracing"
	webhookdomain "github.com/smallbiznis/clinicsub/internal/webhook/domain"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

// ReceiveProviderWebhook authenticates the shared secret before touching the
// body or the database, then hands the raw event to the synchronizer.
func (s *Server) ReceiveProviderWebhook(c *gin.Context) {
	if !s.validWebhookSecret(c) {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, webhookdomain.ErrInvalidPayload)
		return
	}

	result, err := s.webhookSvc.Process(c.Request.Context(), raw)
	if result.Event != "" {
		c.Set(obstracing.GinKeyWebhookEvent, result.Event)
	}
	if err != nil {
		if errors.Is(err, webhookdomain.ErrInvalidPayload) || errors.Is(err, webhookdomain.ErrMissingEvent) {
			AbortWithError(c, err)
			return
		}
		logger.FromContext(c.Request.Context()).Error("webhook processing failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// validWebhookSecret fails closed: an unset secret rejects every request.
func (s *Server) validWebhookSecret(c *gin.Context) bool {
	expected := strings.TrimSpace(s.cfg.Webhook.Secret)
	if expected == "" {
		return false
	}

	header := strings.TrimSpace(c.GetHeader("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	token = strings.TrimSpace(token)
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}
