package providers

import "context"

// Adapter translates between the OpenAI-shape internal model and one
// provider's wire format. Implementations send the request upstream and
// normalize the response, so every caller sees OpenAI-shape payloads no
// matter which backend served them.
//
// All methods accept a context.Context for cancellation and timeout
// control, and must return promptly when the context is cancelled.
//
// Example usage:
//
//	adapter := openai.New(cfg)
//	defer adapter.Close()
//
//	result, err := adapter.Dispatch(ctx, &providers.Request{
//	    Endpoint: providers.EndpointChat,
//	    Body:     body,
//	    Chat:     parsed,
//	    Model:    parsed.Model,
//	    APIKey:   key,
//	})
type Adapter interface {
	// Type returns the provider type identifier (openai, anthropic,
	// gemini, ollama).
	Type() string

	// Endpoint returns the logical endpoint annotation recorded on
	// traces for this adapter, e.g. "/v1/messages (Anthropic)".
	Endpoint(requested string) string

	// Dispatch forwards the request upstream and returns the normalized
	// result. A non-2xx upstream response is a Result with the upstream
	// status and a normalized error body, not an error. Errors are
	// reserved for transport failures, timeouts, and unparsable
	// responses.
	Dispatch(ctx context.Context, req *Request) (*Result, error)

	// DispatchStream forwards a streaming request upstream. The returned
	// channel yields normalized chunks and is closed when the stream
	// ends. A chunk with Error set terminates the stream.
	//
	// The setup error covers failures before any byte of the response
	// arrived (transport errors, upstream non-2xx); those surface
	// exactly like non-streaming failures.
	DispatchStream(ctx context.Context, req *Request) (<-chan *StreamChunk, error)

	// Close releases pooled connections. The adapter must not be used
	// afterwards.
	Close() error
}
