// Package openai implements the OpenAI provider adapter.
//
// OpenAI's API is the proxy's native shape, so this adapter is a
// passthrough: request bodies are forwarded verbatim with credentials
// attached, and responses, including error envelopes and stream chunks,
// are returned unchanged. It serves /v1/chat/completions, /v1/completions,
// and /v1/embeddings, and doubles as the adapter for any OpenAI-compatible
// endpoint via a custom base URL.
package openai
