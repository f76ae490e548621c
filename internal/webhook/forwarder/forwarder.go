package forwarder

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/smallbiznis/clinicsub/internal/config"
	obslogger "github.com/smallbiznis/clinicsub/internal/observability/logger"
	"github.com/smallbiznis/clinicsub/internal/webhook/domain"
	"go.uber.org/zap"
)

// HookForwarder posts raw provider events to the automation hook.
// It is a no-op when no hook URL is configured.
type HookForwarder struct {
	url    string
	client *retryablehttp.Client
}

func New(cfg config.Config, log *zap.Logger) domain.Forwarder {
	timeout := cfg.Webhook.HookTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = obslogger.RetryableHTTPLogger(log.Named("webhook.forwarder"))
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HookForwarder{
		url:    strings.TrimSpace(cfg.Webhook.HookURL),
		client: client,
	}
}

func (f *HookForwarder) Forward(ctx context.Context, raw []byte) error {
	if f.url == "" {
		return nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "build automation hook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post automation hook")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf("automation hook responded %d", resp.StatusCode)
	}
	return nil
}
