package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/subscriptions"),
		attribute.String("Authorization", "Bearer abc"),
		attribute.String("access_token", "key"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorRedactsBearer(t *testing.T) {
	err := SafeError(errors.New("upstream rejected Bearer eyJhbGciOi.abc.def"))
	assert.EqualError(t, err, "upstream rejected Bearer [REDACTED]")
	assert.Nil(t, SafeError(nil))
}
