// Package anthropic implements the provider adapter for the Anthropic
// Messages API.
//
// Unlike the openai adapter, this one translates in both directions:
// OpenAI-shape chat requests become Messages API requests (the system
// message moves to the top-level system field, tools become input-schema
// tools, max_tokens gets the required default), and responses are
// normalized back to OpenAI shape so clients, traces, and cassettes see a
// single format regardless of backend. Streaming responses are rebuilt
// event by event into chat.completion.chunk frames.
//
// Stop reasons map as follows:
//
//	end_turn, stop_sequence -> stop
//	max_tokens              -> length
//	tool_use                -> tool_calls
//
// Only /v1/chat/completions is supported. Legacy completions and
// embeddings requests routed here return a 400 without touching the
// upstream.
package anthropic
