// Package ollama implements the provider adapter for a local Ollama
// daemon.
//
// All three gateway endpoints are supported: chat completions map to
// /api/chat, legacy completions to /api/generate, and embeddings to
// /api/embed. Responses are normalized to OpenAI shape with minted
// identifiers since the native API has none. No API key is attached.
//
// Streaming responses arrive as newline-delimited JSON rather than
// server-sent events; the adapter reads them line by line and rebuilds
// chat.completion.chunk frames.
package ollama
