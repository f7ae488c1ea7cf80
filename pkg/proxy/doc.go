// Package proxy implements the gateway pipeline that sits between
// clients and LLM providers.
//
// Each request travels one fixed path: the body is parsed and validated,
// session headers are extracted, the router picks a provider, the rate
// limiter admits or rejects, the VCR gets a chance to replay, and only
// then does the request go upstream, with the outcome recorded as a
// cassette and a trace. Session echo headers are written on every
// response produced after session extraction, including errors.
//
// Malformed requests are rejected before session extraction and leave no
// trace; everything accepted past admission produces exactly one trace,
// success or error. Streaming responses are forwarded chunk by chunk and
// accumulated on the side so the trace and cassette hold the complete
// exchange.
package proxy
