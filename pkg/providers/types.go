package providers

import (
	"encoding/json"
	"time"

	"traceforge-hq/traceforge/pkg/proxy/types"
)

// Provider type identifiers. These appear in configuration, rate limit
// keys, cassette directory names, and wire error types.
const (
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"
	TypeGemini    = "gemini"
	TypeOllama    = "ollama"
)

// Logical endpoint identifiers as recorded on traces.
const (
	EndpointChat       = "/v1/chat/completions"
	EndpointCompletion = "/v1/completions"
	EndpointEmbeddings = "/v1/embeddings"
)

// ProviderConfig contains the configuration for a single provider backend.
type ProviderConfig struct {
	// Name is the configured provider name (e.g., "openai-prod").
	Name string

	// Type is the provider type (openai, anthropic, gemini, ollama).
	Type string

	// BaseURL is the API endpoint base URL. Adapters fill in their
	// provider's default when empty.
	BaseURL string

	// APIKeyEnvVar names the environment variable holding the API key.
	// The router reads it at selection time so key rotation needs no
	// restart.
	APIKeyEnvVar string

	// Timeout is the upstream request deadline. Default: 30s
	Timeout time.Duration

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	IdleConnTimeout time.Duration
}

// Request is one upstream dispatch. Exactly one of Chat, Completion, or
// Embeddings is set, matching Endpoint. Body is the validated inbound
// request body, kept verbatim for passthrough providers and cassette
// recording.
type Request struct {
	// Endpoint is the logical endpoint (EndpointChat, ...).
	Endpoint string

	// Body is the validated inbound request body.
	Body []byte

	// Chat is the parsed chat completion request (Endpoint == EndpointChat).
	Chat *types.ChatCompletionRequest

	// Completion is the parsed legacy completion request.
	Completion *types.CompletionRequest

	// Embeddings is the parsed embeddings request.
	Embeddings *types.EmbeddingsRequest

	// Model is the requested model identifier.
	Model string

	// APIKey is the provider credential resolved at selection time.
	// Empty for providers that need none (ollama).
	APIKey string
}

// Result is the outcome of a dispatch that produced an upstream response,
// successful or not. Transport-level failures are returned as errors
// instead.
type Result struct {
	// Status is the upstream HTTP status. Non-2xx results carry a
	// normalized error body and are passed through to the client.
	Status int

	// Headers are the response headers worth preserving (content type,
	// request ids). Hop-by-hop and credential headers are never included.
	Headers map[string]string

	// Body is the normalized response: OpenAI-shape JSON on success, an
	// OpenAI-shape error envelope otherwise.
	Body json.RawMessage

	// DurationMS is the upstream round-trip time in milliseconds.
	DurationMS int64
}

// StreamChunk is one normalized unit of a streaming response.
type StreamChunk struct {
	// Data is the normalized OpenAI-shape chunk, ready to forward as an
	// SSE data line.
	Data json.RawMessage

	// Delta is the incremental text content carried by this chunk, used
	// by the gateway to accumulate the full response for the trace.
	Delta string

	// FinishReason is set on the final content chunk.
	FinishReason string

	// Usage is set when the provider reports token usage in the stream.
	Usage *types.Usage

	// Error is set when the stream failed mid-flight. No further chunks
	// follow an error.
	Error error
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// Tool type constants.
const (
	ToolTypeFunction = "function"
)
