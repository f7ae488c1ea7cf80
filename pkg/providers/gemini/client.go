package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// DefaultBaseURL is the Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Adapter is the Gemini provider adapter. It translates OpenAI-shape chat
// requests to the generateContent API and normalizes responses back.
type Adapter struct {
	*providers.HTTPClient
}

// New creates a Gemini adapter.
func New(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Type == "" {
		config.Type = providers.TypeGemini
	}
	return &Adapter{HTTPClient: providers.NewHTTPClient(config)}
}

// Type returns the provider type identifier.
func (a *Adapter) Type() string {
	return providers.TypeGemini
}

// Endpoint returns the logical endpoint recorded on traces, annotated
// with the provider because the request was translated.
func (a *Adapter) Endpoint(requested string) string {
	return "/v1beta/generateContent (Gemini)"
}

func (a *Adapter) url(model, method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", a.Config().BaseURL, model, method)
}

// headers returns the request headers. The API key travels in a header,
// not the documented query parameter, so it never lands in access logs.
func (a *Adapter) headers(apiKey string) map[string]string {
	return map[string]string{
		"x-goog-api-key": apiKey,
		"Content-Type":   "application/json",
	}
}

// Dispatch translates the chat request to generateContent, forwards it,
// and normalizes the response to OpenAI shape. Only chat completions are
// supported; other endpoints come back as a 400 result.
func (a *Adapter) Dispatch(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	if req.Chat == nil {
		return unsupportedEndpoint(req.Endpoint), nil
	}

	body, err := json.Marshal(transformRequest(req.Chat))
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	start := time.Now()
	status, respBody, err := a.PostJSON(ctx, a.url(req.Model, "generateContent"), body, a.headers(req.APIKey))
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

	var upstream generateResponse
	if err := json.Unmarshal(respBody, &upstream); err != nil {
		return nil, &providers.ParseError{
			Provider:    a.Name(),
			RawResponse: string(respBody),
			Cause:       err,
		}
	}

	normalized, err := json.Marshal(transformResponse(req.Model, &upstream))
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
		fmt.Sprintf("endpoint %s is not supported for Gemini models; use /v1/chat/completions", endpoint),
		"model", types.CodeInvalidValue)
	body, _ := json.Marshal(resp)
	return &providers.Result{
		Status:  400,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}
}
