package asaas

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicsub/internal/config"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(config.Config{Provider: config.ProviderConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}}, zap.NewNop())
}

func TestCreateCustomer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/customers", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("access_token"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Clinic A", body["name"])
		assert.Equal(t, "12345678000190", body["cpfCnpj"])
		assert.Equal(t, "42", body["externalReference"])

		_, _ = io.WriteString(w, `{"id":"cus_1"}`)
	})

	id, err := client.CreateCustomer(context.Background(), subscriptiondomain.ProviderCustomerInput{
		Name:              "Clinic A",
		Document:          "12345678000190",
		ExternalReference: "42",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", id)
}

func TestCreateSubscription(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cus_1", body["customer"])
		assert.Equal(t, "PIX", body["billingType"])
		assert.Equal(t, 99.9, body["value"])
		assert.Equal(t, "2025-03-13", body["nextDueDate"])
		assert.Equal(t, "MONTHLY", body["cycle"])

		_, _ = io.WriteString(w, `{"id":"sub_1","status":"ACTIVE","nextDueDate":"2025-03-13"}`)
	})

	sub, err := client.CreateSubscription(context.Background(), subscriptiondomain.ProviderSubscriptionInput{
		CustomerID:  "cus_1",
		BillingType: subscriptiondomain.BillingTypePix,
		Value:       decimal.RequireFromString("99.90"),
		NextDueDate: time.Date(2025, 3, 13, 12, 0, 0, 0, time.UTC),
		Cycle:       subscriptiondomain.BillingCycleMonthly,
	})
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "ACTIVE", sub.Status)
	require.NotNil(t, sub.NextDueDate)
	assert.Equal(t, "2025-03-13", sub.NextDueDate.Format(dueDateLayout))
	assert.JSONEq(t, `{"id":"sub_1","status":"ACTIVE","nextDueDate":"2025-03-13"}`, string(sub.Raw))
}

func TestCancelSubscription(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/subscriptions/sub_1", r.URL.Path)
		_, _ = io.WriteString(w, `{"deleted":true,"id":"sub_1"}`)
	})

	sub, err := client.CancelSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, sub.Deleted)
	assert.Equal(t, "sub_1", sub.ID)
}

func TestProviderErrorIsSingleAttempt(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errors":[{"code":"invalid_customer","description":"Customer not found"}]}`)
	})

	_, err := client.CreateSubscription(context.Background(), subscriptiondomain.ProviderSubscriptionInput{
		CustomerID: "cus_missing",
		Value:      decimal.NewFromInt(10),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.Contains(t, err.Error(), "Customer not found")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestServerErrorIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CancelSubscription(context.Background(), "sub_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMissingConfiguration(t *testing.T) {
	client := New(config.Config{}, zap.NewNop())

	_, err := client.CreateCustomer(context.Background(), subscriptiondomain.ProviderCustomerInput{Name: "x"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestCanceledContextLeavesNoResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"sub_1"}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub, err := client.CreateSubscription(ctx, subscriptiondomain.ProviderSubscriptionInput{CustomerID: "cus_1"})
	assert.Error(t, err)
	assert.Nil(t, sub)
}
