package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"traceforge-hq/traceforge/pkg/telemetry/tracing"
)

// DefaultTimeout is the upstream request deadline applied when the
// provider configuration does not set one.
const DefaultTimeout = 30 * time.Second

// maxErrorBodySize bounds how much of an upstream error body is read.
// Error payloads past this size are truncated; they are only used to
// extract a message.
const maxErrorBodySize = 64 * 1024

// HTTPClient is the shared HTTP engine embedded by provider adapters.
// It owns the pooled transport and maps transport-level failures to typed
// errors. Upstream responses, including non-2xx ones, are returned as-is;
// interpreting them is the adapter's job.
//
// Failed upstream calls are never retried here. Retrying is a client
// concern, and replaying a completion request could double-bill tokens.
type HTTPClient struct {
	config ProviderConfig
	client *http.Client
	health healthTracker
}

// NewHTTPClient creates the HTTP engine for one provider backend.
func NewHTTPClient(config ProviderConfig) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.Timeout,
		ForceAttemptHTTP2:     true,
	}

	return &HTTPClient{
		config: config,
		// No client-level timeout: the per-request context carries the
		// deadline, and a fixed value would cut off streaming reads. The
		// transport's header timeout bounds time to first byte when a
		// caller forgets to set one.
		client: &http.Client{Transport: transport},
	}
}

// Config returns the provider configuration.
func (c *HTTPClient) Config() ProviderConfig {
	return c.config
}

// Name returns the configured provider name.
func (c *HTTPClient) Name() string {
	return c.config.Name
}

// Healthy reports the adapter's upstream health as observed from real
// dispatches.
func (c *HTTPClient) Healthy() HealthSnapshot {
	return c.health.snapshot()
}

// recordOutcome feeds the health tracker. Transport failures, timeouts,
// and 5xx responses count against health; 2xx through 4xx count as
// healthy because the upstream answered and a 4xx is the request's
// fault, not the provider's.
func (c *HTTPClient) recordOutcome(success bool, err error) {
	if success {
		c.health.recordSuccess()
		return
	}
	if c.health.recordFailure() == healthFailureThreshold {
		slog.Warn("provider marked unhealthy",
			"provider", c.config.Name,
			"consecutive_failures", healthFailureThreshold,
			"error", err)
	}
}

// Post sends a POST and returns the raw response. The caller owns the
// response body and must close it. The context deadline is the request
// timeout; the gateway sets one on every dispatch.
func (c *HTTPClient) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.Inject(ctx, req.Header)

	slog.Debug("dispatching upstream request",
		"provider", c.config.Name,
		"url", url)

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			terr := &TimeoutError{Provider: c.config.Name, Timeout: c.config.Timeout}
			c.recordOutcome(false, terr)
			return nil, terr
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		terr := &TransportError{Provider: c.config.Name, Cause: err}
		c.recordOutcome(false, terr)
		return nil, terr
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		c.recordOutcome(false, fmt.Errorf("upstream status %d", resp.StatusCode))
	} else {
		c.recordOutcome(true, nil)
	}
	return resp, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// PostJSON sends a POST and reads the full response body. Timeouts and
// transport failures come back as typed errors; any upstream status is
// returned for the adapter to interpret.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, body []byte, headers map[string]string) (status int, respBody []byte, err error) {
	resp, err := c.Post(ctx, url, body, headers)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			terr := &TimeoutError{Provider: c.config.Name, Timeout: c.config.Timeout}
			c.recordOutcome(false, terr)
			return 0, nil, terr
		}
		terr := &TransportError{Provider: c.config.Name, Cause: err}
		c.recordOutcome(false, terr)
		return 0, nil, terr
	}
	return resp.StatusCode, data, nil
}

// ReadErrorBody reads a bounded prefix of an upstream error response.
func ReadErrorBody(r io.Reader) []byte {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	return data
}

// Close releases pooled connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	slog.Debug("provider connections closed", "provider", c.config.Name)
	return nil
}
