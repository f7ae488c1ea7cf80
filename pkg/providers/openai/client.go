package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// DefaultBaseURL is the OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com"

// Adapter is the OpenAI provider adapter. Requests and responses are
// already in OpenAI shape, so both directions pass through verbatim; the
// adapter only attaches credentials and maps transport failures.
type Adapter struct {
	*providers.HTTPClient
}

// New creates an OpenAI adapter.
func New(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Type == "" {
		config.Type = providers.TypeOpenAI
	}
	return &Adapter{HTTPClient: providers.NewHTTPClient(config)}
}

// Type returns the provider type identifier.
func (a *Adapter) Type() string {
	return providers.TypeOpenAI
}

// Endpoint returns the logical endpoint recorded on traces. OpenAI is the
// native shape, so no provider annotation is added.
func (a *Adapter) Endpoint(requested string) string {
	return requested
}

func (a *Adapter) url(endpoint string) string {
	return a.Config().BaseURL + endpoint
}

func (a *Adapter) headers(apiKey string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + apiKey,
		"Content-Type":  "application/json",
	}
}

// Dispatch forwards the request body verbatim and returns the upstream
// response verbatim. Non-2xx bodies are already OpenAI-shape error
// envelopes; unparsable ones are replaced with a normalized envelope.
func (a *Adapter) Dispatch(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	start := time.Now()
	status, body, err := a.PostJSON(ctx, a.url(req.Endpoint), req.Body, a.headers(req.APIKey))
	if err != nil {
		return nil, err
	}
	duration := time.Since(start).Milliseconds()

	if status >= 200 && status < 300 {
		if !json.Valid(body) {
			return nil, &providers.ParseError{
				Provider: a.Name(),
				Cause:    fmt.Errorf("upstream returned invalid JSON"),
			}
		}
		return &providers.Result{
			Status:     status,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       body,
			DurationMS: duration,
		}, nil
	}

	slog.Warn("upstream returned error status",
		"provider", a.Name(),
		"status", status)
	return &providers.Result{
		Status:     status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       normalizeErrorBody(status, body),
		DurationMS: duration,
	}, nil
}

// normalizeErrorBody passes a valid OpenAI error envelope through and
// wraps anything else, so clients always get the documented shape.
func normalizeErrorBody(status int, body []byte) json.RawMessage {
	var envelope struct {
		Error *types.ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return body
	}
	resp := types.NewProviderError(providers.TypeOpenAI,
		fmt.Sprintf("upstream returned status %d", status))
	out, _ := json.Marshal(resp)
	return out
}
