// Package asaas is the billing provider client used by lifecycle operations.
package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/samber/lo"
	"github.com/smallbiznis/clinicsub/internal/config"
	obslogger "github.com/smallbiznis/clinicsub/internal/observability/logger"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	"go.uber.org/zap"
)

const (
	headerAccessToken = "access_token"
	dueDateLayout     = "2006-01-02"
	maxResponseBytes  = 1 << 20
)

var (
	ErrNotConfigured   = errors.New("provider_not_configured")
	ErrRequestFailed   = errors.New("provider_request_failed")
	ErrInvalidResponse = errors.New("provider_response_invalid")
)

// Client talks to the provider REST API. Calls are single attempt with a bounded timeout.
type Client struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
	log     *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.Provider.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	named := log.Named("asaas.client")
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.HTTPClient.Timeout = timeout
	client.Logger = obslogger.RetryableHTTPLogger(named)
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.Provider.APIKey),
		client:  client,
		log:     named,
	}
}

// NewProvider exposes the client through the lifecycle provider port.
func NewProvider(c *Client) subscriptiondomain.Provider {
	return c
}

func (c *Client) CreateCustomer(ctx context.Context, input subscriptiondomain.ProviderCustomerInput) (string, error) {
	payload := customerRequest{
		Name:              strings.TrimSpace(input.Name),
		Email:             strings.TrimSpace(input.Email),
		CpfCnpj:           strings.TrimSpace(input.Document),
		ExternalReference: input.ExternalReference,
	}

	var resp customerResponse
	if _, err := c.do(ctx, http.MethodPost, "/customers", payload, &resp); err != nil {
		return "", errors.Wrap(err, "create customer")
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", errors.Wrap(ErrInvalidResponse, "create customer: missing id")
	}
	return resp.ID, nil
}

func (c *Client) CreateSubscription(ctx context.Context, input subscriptiondomain.ProviderSubscriptionInput) (*subscriptiondomain.ProviderSubscription, error) {
	payload := subscriptionRequest{
		Customer:          input.CustomerID,
		BillingType:       string(input.BillingType),
		Value:             json.Number(input.Value.StringFixed(2)),
		NextDueDate:       input.NextDueDate.UTC().Format(dueDateLayout),
		Cycle:             string(input.Cycle),
		Description:       input.Description,
		ExternalReference: input.ExternalReference,
	}

	var resp subscriptionResponse
	raw, err := c.do(ctx, http.MethodPost, "/subscriptions", payload, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "create subscription")
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, errors.Wrap(ErrInvalidResponse, "create subscription: missing id")
	}
	return toProviderSubscription(resp, raw), nil
}

func (c *Client) CancelSubscription(ctx context.Context, providerSubscriptionID string) (*subscriptiondomain.ProviderSubscription, error) {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return nil, errors.Wrap(ErrInvalidResponse, "cancel subscription: missing id")
	}

	var resp subscriptionResponse
	raw, err := c.do(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(providerSubscriptionID), nil, &resp)
	if err != nil {
		return nil, errors.Wrapf(err, "cancel subscription %s", providerSubscriptionID)
	}
	if resp.ID == "" {
		resp.ID = providerSubscriptionID
	}
	return toProviderSubscription(resp, raw), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) ([]byte, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set(headerAccessToken, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("provider request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, decodeError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, errors.Wrap(ErrInvalidResponse, err.Error())
		}
	}
	return raw, nil
}

func decodeError(status int, raw []byte) error {
	var parsed errorResponse
	_ = json.Unmarshal(raw, &parsed)

	descriptions := lo.FilterMap(parsed.Errors, func(item apiError, _ int) (string, bool) {
		text := strings.TrimSpace(item.Description)
		if text == "" {
			text = strings.TrimSpace(item.Code)
		}
		return text, text != ""
	})

	err := errors.Newf("status %d", status)
	if len(descriptions) > 0 {
		err = errors.Newf("status %d: %s", status, strings.Join(descriptions, "; "))
	}
	return errors.Mark(err, ErrRequestFailed)
}

func toProviderSubscription(resp subscriptionResponse, raw []byte) *subscriptiondomain.ProviderSubscription {
	out := &subscriptiondomain.ProviderSubscription{
		ID:      resp.ID,
		Status:  resp.Status,
		Deleted: resp.Deleted,
		Raw:     raw,
	}
	if parsed, err := time.Parse(dueDateLayout, strings.TrimSpace(resp.NextDueDate)); err == nil {
		parsed = parsed.UTC()
		out.NextDueDate = &parsed
	}
	return out
}
