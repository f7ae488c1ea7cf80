// Package providers implements the adapter layer between the OpenAI-shape
// internal model and each upstream LLM provider's wire format.
//
// # Overview
//
// Every inbound request is expressed in OpenAI's API shape regardless of
// which provider serves it. An Adapter translates that shape to the
// provider's wire format, dispatches the call, and normalizes the response
// back, so traces, cassettes, and clients always see one format.
//
// # Architecture
//
// The package is organized into:
//
//  1. Adapter interface - the dispatch contract all providers implement
//  2. HTTPClient - shared HTTP engine (connection pooling, typed errors)
//  3. SSEReader - shared server-sent-events reader for streaming
//  4. Per-provider subpackages - openai, anthropic, gemini, ollama
//
// # Basic Usage
//
//	adapter := openai.New(providers.ProviderConfig{
//	    Name:    "openai",
//	    Type:    providers.TypeOpenAI,
//	    Timeout: 30 * time.Second,
//	})
//	defer adapter.Close()
//
//	result, err := adapter.Dispatch(ctx, &providers.Request{
//	    Endpoint: providers.EndpointChat,
//	    Body:     body,
//	    Chat:     parsed,
//	    Model:    parsed.Model,
//	    APIKey:   os.Getenv("OPENAI_API_KEY"),
//	})
//
// The API key travels with the request, not the adapter, so keys are
// resolved from the environment at selection time and rotation needs no
// restart.
//
// # Dispatch Outcomes
//
// A non-2xx upstream response is not a Go error: Dispatch returns a
// Result carrying the upstream status and a normalized OpenAI-shape error
// envelope, and the gateway passes both through. Errors are reserved for
// outcomes without a usable upstream response:
//
//   - TransportError: connection refused, DNS, broken pipe (502)
//   - TimeoutError: request deadline exceeded (504)
//   - UpstreamError: non-2xx during streaming setup, carrying the
//     normalized body
//   - ParseError: a 2xx response that could not be decoded
//   - StreamError: failure mid-stream, delivered through the chunk channel
//
// # Streaming
//
//	chunks, err := adapter.DispatchStream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	for chunk := range chunks {
//	    if chunk.Error != nil {
//	        return chunk.Error
//	    }
//	    forward(chunk.Data)      // normalized OpenAI-shape chunk
//	    accumulate(chunk.Delta)  // for the trace
//	}
//
// Chunks are normalized before they leave the adapter: an Anthropic or
// Gemini stream is forwarded to the client as OpenAI chat.completion.chunk
// events.
//
// # Upstream Retries
//
// Failed upstream calls are never retried here. Retrying a completion
// request can double-bill tokens, and the client is the only party that
// knows whether a retry is safe.
//
// # Thread Safety
//
// Adapters are safe for concurrent use; all per-request state lives in
// the Request and the stream channel.
package providers
