package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"traceforge-hq/traceforge/pkg/providers"
)

// DefaultBaseURL is the local Ollama daemon endpoint.
const DefaultBaseURL = "http://localhost:11434"

// Upstream paths for the native API.
const (
	chatPath     = "/api/chat"
	generatePath = "/api/generate"
	embedPath    = "/api/embed"
)

// Adapter is the Ollama provider adapter for locally hosted models. It
// translates OpenAI-shape requests to the native API and normalizes
// responses back. Ollama needs no API key.
type Adapter struct {
	*providers.HTTPClient
}

// New creates an Ollama adapter.
func New(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Type == "" {
		config.Type = providers.TypeOllama
	}
	return &Adapter{HTTPClient: providers.NewHTTPClient(config)}
}

// Type returns the provider type identifier.
func (a *Adapter) Type() string {
	return providers.TypeOllama
}

// Endpoint returns the logical endpoint recorded on traces, annotated
// with the provider because the request was translated.
func (a *Adapter) Endpoint(requested string) string {
	switch requested {
	case providers.EndpointCompletion:
		return generatePath + " (Ollama)"
	case providers.EndpointEmbeddings:
		return embedPath + " (Ollama)"
	default:
		return chatPath + " (Ollama)"
	}
}

func (a *Adapter) url(path string) string {
	return a.Config().BaseURL + path
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

// Dispatch translates the request to the native API, forwards it, and
// normalizes the response to OpenAI shape. All three endpoints are
// supported: chat, legacy completions via /api/generate, and embeddings
// via /api/embed.
func (a *Adapter) Dispatch(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	var path string
	var upstream interface{}
	switch {
	case req.Chat != nil:
		path = chatPath
		upstream = transformChatRequest(req.Chat, false)
	case req.Completion != nil:
		path = generatePath
		upstream = transformGenerateRequest(req.Completion, false)
	case req.Embeddings != nil:
		path = embedPath
		upstream = transformEmbedRequest(req.Embeddings)
	default:
		return nil, fmt.Errorf("dispatch: no parsed request body")
	}

	body, err := json.Marshal(upstream)
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	start := time.Now()
	status, respBody, err := a.PostJSON(ctx, a.url(path), body, a.headers())
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

	normalized, err := a.normalize(path, respBody)
	if err != nil {
		return nil, err
	}
	return &providers.Result{
		Status:     status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       normalized,
		DurationMS: duration,
	}, nil
}

func (a *Adapter) normalize(path string, body []byte) (json.RawMessage, error) {
	var out interface{}
	switch path {
	case chatPath:
		var resp chatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, a.parseError(body, err)
		}
		out = transformChatResponse(&resp)
	case generatePath:
		var resp generateResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, a.parseError(body, err)
		}
		out = transformGenerateResponse(&resp)
	case embedPath:
		var resp embedResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, a.parseError(body, err)
		}
		out = transformEmbedResponse(&resp)
	}

	normalized, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode normalized response: %w", err)
	}
	return normalized, nil
}

func (a *Adapter) parseError(body []byte, cause error) error {
	return &providers.ParseError{
		Provider:    a.Name(),
		RawResponse: string(body),
		Cause:       cause,
	}
}
