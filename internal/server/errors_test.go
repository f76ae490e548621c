package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/clinicsub/internal/auth/session"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
	webhookdomain "github.com/smallbiznis/clinicsub/internal/webhook/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"missing session", session.ErrMissingToken, http.StatusUnauthorized, "unauthorized"},
		{"wrapped live subscription", fmt.Errorf("create: %w", subscriptiondomain.ErrActiveSubscriptionExists), http.StatusConflict, "conflict"},
		{"create lock held", subscriptiondomain.ErrCreateInProgress, http.StatusConflict, "conflict"},
		{"unknown tenant", tenantdomain.ErrTenantNotFound, http.StatusNotFound, "not_found"},
		{"provider down", subscriptiondomain.ErrProviderFailure, http.StatusBadGateway, "provider_error"},
		{"rate limited", ErrTooManyRequests, http.StatusTooManyRequests, "too_many_requests"},
		{"unclassified", errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
		{"nil", nil, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.typ, payload.Type)
			assert.Empty(t, payload.Errors)
		})
	}
}

func TestMapErrorReportsInvalidField(t *testing.T) {
	status, payload := mapError(subscriptiondomain.ErrInvalidCycle)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, ValidationError{Field: "cycle", Code: "invalid_cycle", Message: "invalid value"}, payload.Errors[0])

	_, payload = mapError(webhookdomain.ErrMissingEvent)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "event", payload.Errors[0].Field)

	_, payload = mapError(invalidRequestError())
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "request", payload.Errors[0].Field)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(subscriptiondomain.ErrActiveSubscriptionExists)
	assert.Equal(t, "conflict", typ)
	assert.Equal(t, "active_subscription_exists", code)

	typ, code = classifyErrorForLog(subscriptiondomain.ErrInvalidValue)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_value", code)

	typ, code = classifyErrorForLog(errors.New("connection reset by peer"))
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "internal_error", code)
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "billing_type", toSnakeCase("BillingType"))
	assert.Equal(t, "value", toSnakeCase("Value"))
}
