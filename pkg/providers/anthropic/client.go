package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// DefaultBaseURL is the Anthropic API endpoint.
const DefaultBaseURL = "https://api.anthropic.com"

// apiVersion is the anthropic-version header value. The Messages API
// requires it on every request.
const apiVersion = "2023-06-01"

// messagesPath is the upstream path for the Messages API.
const messagesPath = "/v1/messages"

// Adapter is the Anthropic provider adapter. It translates OpenAI-shape
// chat requests to the Messages API and normalizes responses back, so
// clients and cassettes only ever see OpenAI shape.
type Adapter struct {
	*providers.HTTPClient
}

// New creates an Anthropic adapter.
func New(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Type == "" {
		config.Type = providers.TypeAnthropic
	}
	return &Adapter{HTTPClient: providers.NewHTTPClient(config)}
}

// Type returns the provider type identifier.
func (a *Adapter) Type() string {
	return providers.TypeAnthropic
}

// Endpoint returns the logical endpoint recorded on traces, annotated
// with the provider because the request was translated.
func (a *Adapter) Endpoint(requested string) string {
	return messagesPath + " (Anthropic)"
}

func (a *Adapter) url() string {
	return a.Config().BaseURL + messagesPath
}

func (a *Adapter) headers(apiKey string) map[string]string {
	return map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": apiVersion,
		"Content-Type":      "application/json",
	}
}

// Dispatch translates the chat request to the Messages API, forwards it,
// and normalizes the response to OpenAI shape. Only chat completions are
// supported; other endpoints come back as a 400 result.
func (a *Adapter) Dispatch(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	if req.Chat == nil {
		return unsupportedEndpoint(req.Endpoint), nil
	}

	body, err := json.Marshal(transformRequest(req.Chat, false))
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	start := time.Now()
	status, respBody, err := a.PostJSON(ctx, a.url(), body, a.headers(req.APIKey))
	if err != nil {
		return nil, err
	}
	duration := time.Since(start).Milliseconds()

	if status < 200 || status >= 300 {
		slog.Warn("upstream returned error status",
			"provider", a.Name(),
			"status", status)
		return &providers.Result{
			Status:     status,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       normalizeErrorBody(status, respBody),
			DurationMS: duration,
		}, nil
	}

	var upstream messagesResponse
	if err := json.Unmarshal(respBody, &upstream); err != nil {
		return nil, &providers.ParseError{
			Provider:    a.Name(),
			RawResponse: string(respBody),
			Cause:       err,
		}
	}

	normalized, err := json.Marshal(transformResponse(&upstream))
	if err != nil {
		return nil, fmt.Errorf("encode normalized response: %w", err)
	}
	return &providers.Result{
		Status:     status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       normalized,
		DurationMS: duration,
	}, nil
}

func unsupportedEndpoint(endpoint string) *providers.Result {
	resp := types.NewInvalidRequestError(
		fmt.Sprintf("endpoint %s is not supported for Anthropic models; use /v1/chat/completions", endpoint),
		"model", types.CodeInvalidValue)
	body, _ := json.Marshal(resp)
	return &providers.Result{
		Status:  400,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}
}
