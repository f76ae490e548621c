package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePaymentEvent(t *testing.T) {
	raw := []byte(`{"event":"PAYMENT_CONFIRMED","payment":{"id":"pay_1","status":"CONFIRMED","subscription":"sub_123","value":99.9,"dueDate":"2025-03-10","billingType":"PIX"}}`)

	event, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindPayment, event.Kind)
	assert.Equal(t, "PAYMENT_CONFIRMED", event.Name)
	require.NotNil(t, event.Payment)
	assert.Equal(t, "sub_123", event.Payment.Subscription)
	assert.Equal(t, "99.9", event.Payment.Value.String())
	assert.Nil(t, event.Subscription)
	assert.Equal(t, raw, event.Raw)
}

func TestDecodeSubscriptionEvent(t *testing.T) {
	event, err := Decode([]byte(`{"event":"subscription_deleted","subscription":{"id":"sub_9","deleted":true}}`))
	require.NoError(t, err)
	assert.Equal(t, KindSubscription, event.Kind)
	assert.Equal(t, EventSubscriptionDeleted, event.Name)
	require.NotNil(t, event.Subscription)
	assert.True(t, event.Subscription.Deleted)
}

func TestDecodeUnknownAndMissingObjects(t *testing.T) {
	event, err := Decode([]byte(`{"event":"INVOICE_CREATED","invoice":{}}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, event.Kind)

	event, err = Decode([]byte(`{"event":"PAYMENT_CREATED","payment":null}`))
	require.NoError(t, err)
	assert.Equal(t, KindPayment, event.Kind)
	assert.Nil(t, event.Payment)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"event":`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Decode([]byte(`{"payment":{"id":"pay_1"}}`))
	assert.ErrorIs(t, err, ErrMissingEvent)

	_, err = Decode([]byte(`{"event":"PAYMENT_RECEIVED","payment":"oops"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeReadsEveryObjectPresent(t *testing.T) {
	event, err := Decode([]byte(`{"event":"SUBSCRIPTION_UPDATED","payment":{"id":"pay_2","status":"OVERDUE","subscription":"sub_5"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindSubscription, event.Kind)
	require.NotNil(t, event.Payment)
	assert.Equal(t, "sub_5", event.Payment.Subscription)
	assert.Nil(t, event.Subscription)
	assert.False(t, event.Empty())

	event, err = Decode([]byte(`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_3","subscription":"sub_5"},"subscription":{"id":"sub_5","status":"ACTIVE","nextDueDate":"2025-05-01"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindPayment, event.Kind)
	require.NotNil(t, event.Payment)
	require.NotNil(t, event.Subscription)
	assert.Equal(t, "2025-05-01", event.Subscription.NextDueDate)
}

func TestDecodeKindFallsBackToObjects(t *testing.T) {
	event, err := Decode([]byte(`{"event":"CHECKOUT_PAID","payment":{"id":"pay_4","subscription":"sub_6"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindPayment, event.Kind)

	event, err = Decode([]byte(`{"event":"INVOICE_CREATED","invoice":{"id":"inv_1"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, event.Kind)
	assert.True(t, event.Empty())

	_, err = Decode([]byte(`{"event":"PAYMENT_RECEIVED","subscription":[1,2]}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
