package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/clinicsub/internal/auth/session"
	"github.com/smallbiznis/clinicsub/internal/authorization"
	sublogdomain "github.com/smallbiznis/clinicsub/internal/sublog/domain"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
	webhookdomain "github.com/smallbiznis/clinicsub/internal/webhook/domain"
	"gorm.io/gorm"
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation error"
	}
	return v.Errors[0].Code
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// errorRule maps a family of errors onto one HTTP response. The first rule
// whose matcher accepts the error wins.
type errorRule struct {
	status  int
	typ     string
	message string
	matches []error
}

var errorRules = []errorRule{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{
		ErrUnauthorized, session.ErrMissingToken, session.ErrInvalidToken,
	}},
	{http.StatusForbidden, "forbidden", "forbidden", []error{
		ErrForbidden, authorization.ErrForbidden, subscriptiondomain.ErrForbidden,
	}},
	{http.StatusConflict, "conflict", "tenant already has a subscription in progress or in force", []error{
		subscriptiondomain.ErrActiveSubscriptionExists,
	}},
	{http.StatusConflict, "conflict", "subscription creation already in progress", []error{
		subscriptiondomain.ErrCreateInProgress,
	}},
	{http.StatusConflict, "conflict", "subscription status does not allow this operation", []error{
		subscriptiondomain.ErrInvalidTransition,
	}},
	{http.StatusConflict, "conflict", "conflict", []error{ErrConflict}},
	{http.StatusNotFound, "not_found", "not found", []error{
		ErrNotFound, subscriptiondomain.ErrSubscriptionNotFound, tenantdomain.ErrTenantNotFound, gorm.ErrRecordNotFound,
	}},
	{http.StatusTooManyRequests, "too_many_requests", "too many requests", []error{ErrTooManyRequests}},
	{http.StatusBadGateway, "provider_error", "payment provider request failed", []error{
		subscriptiondomain.ErrProviderFailure,
	}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{ErrServiceUnavailable}},
}

// fieldErrors are domain errors reported as a single invalid field. An empty
// code means the error text already is the code.
var fieldErrors = []struct {
	err  error
	code string
}{
	{ErrInvalidRequest, "invalid_request"},
	{sublogdomain.ErrInvalidPageToken, "invalid_page_token"},
	{webhookdomain.ErrInvalidPayload, "invalid_payload"},
	{webhookdomain.ErrMissingEvent, "invalid_event"},
	{subscriptiondomain.ErrInvalidTenant, ""},
	{subscriptiondomain.ErrInvalidPlanName, ""},
	{subscriptiondomain.ErrInvalidBillingType, ""},
	{subscriptiondomain.ErrInvalidValue, ""},
	{subscriptiondomain.ErrInvalidCycle, ""},
	{subscriptiondomain.ErrInvalidStatus, ""},
	{subscriptiondomain.ErrInvalidID, ""},
	{sublogdomain.ErrInvalidSubscription, ""},
}

var internalPayload = errorPayload{Type: "internal_error", Message: "internal server error"}

// ErrorHandlingMiddleware renders the last handler error unless the handler
// already wrote a body.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		status, payload := mapError(c.Errors.Last().Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

// bindingError turns validator field errors into field-level validation errors.
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalidRequestError()
	}

	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := toSnakeCase(fe.Field())
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Code:    "invalid_" + field,
			Message: field + " failed " + fe.Tag(),
		})
	}
	return out
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalPayload
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErr.Errors}
	}
	if code, ok := fieldErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []ValidationError{fieldErrorDetail(code)},
		}
	}

	for _, rule := range errorRules {
		for _, target := range rule.matches {
			if errors.Is(err, target) {
				return rule.status, errorPayload{Type: rule.typ, Message: rule.message}
			}
		}
	}
	return http.StatusInternalServerError, internalPayload
}

func fieldErrorCode(err error) (string, bool) {
	for _, fe := range fieldErrors {
		if !errors.Is(err, fe.err) {
			continue
		}
		if fe.code != "" {
			return fe.code, true
		}
		return fe.err.Error(), true
	}
	return "", false
}

func fieldErrorDetail(code string) ValidationError {
	if code == "invalid_request" {
		return ValidationError{Field: "request", Code: code, Message: "invalid request"}
	}
	return ValidationError{Field: strings.TrimPrefix(code, "invalid_"), Code: code, Message: "invalid value"}
}

// classifyErrorForLog returns the response type and a stable code for request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	if err != nil && isSnakeCode(err.Error()) {
		return payload.Type, err.Error()
	}
	return payload.Type, payload.Type
}

func isSnakeCode(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}
	return true
}

func toSnakeCase(value string) string {
	var b strings.Builder
	for i, r := range value {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
