// Package types defines OpenAI-compatible request and response types for the proxy.
//
// This package contains all data transfer objects (DTOs) used for HTTP request/response
// handling. The types are designed to match the OpenAI API format, ensuring
// compatibility with existing OpenAI SDKs and tools regardless of which
// provider ultimately serves the request.
//
// # Core Types
//
// Request types:
//   - ChatCompletionRequest: Main request body for /v1/chat/completions
//   - CompletionRequest: Legacy request body for /v1/completions
//   - EmbeddingsRequest: Request body for /v1/embeddings
//   - Message: Individual message in conversation history
//   - Tool: Function/tool definition for function calling
//
// Response types:
//   - ChatCompletionResponse: Non-streaming chat response format
//   - ChatCompletionStreamChunk: Streaming response chunk (SSE)
//   - CompletionResponse, EmbeddingsResponse: Legacy and embeddings formats
//   - Choice, Delta, Usage: Response building blocks
//
// Error types:
//   - ErrorResponse: OpenAI-compatible error envelope
//   - ErrorDetail: Error details with type, message, param, code, details
//
// # OpenAI Compatibility
//
// All types match the OpenAI API specification, allowing clients to use
// standard OpenAI SDKs without modification:
//
//	# Python OpenAI SDK
//	from openai import OpenAI
//	client = OpenAI(base_url="http://localhost:8787/v1")
//	response = client.chat.completions.create(
//	    model="gpt-4",
//	    messages=[{"role": "user", "content": "Hello!"}]
//	)
//
// Responses from non-OpenAI providers are normalized into these shapes by
// the provider adapters before they reach a client.
//
// # Error Taxonomy
//
// ErrorDetail.Type is a stable machine-readable contract. Replay misses,
// strict-mode violations, cassette tampering, rate limiting, and per-provider
// upstream failures each carry their own type so callers can branch without
// parsing messages.
//
// # Validation
//
// Request types include validation logic to ensure required fields are present
// and values are within acceptable ranges. Validation errors are returned in
// OpenAI error format with HTTP status 400.
package types
