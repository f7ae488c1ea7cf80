// Package gemini implements the provider adapter for the Gemini
// generateContent API.
//
// OpenAI-shape chat requests are translated (system message to
// systemInstruction, assistant role to "model", sampling parameters to
// generationConfig) and responses normalized back. Gemini responses carry
// no completion identifier, so the adapter mints a chatcmpl id. The API
// key travels in the x-goog-api-key header rather than the query string
// so it stays out of URLs and access logs.
//
// Streaming uses streamGenerateContent with alt=sse, where every SSE data
// line is a complete response fragment and the stream ends without a
// terminator event.
package gemini
