// Package tracing exports gateway spans over OTLP gRPC.
//
// Span export is off unless Config.Enabled is set; the disabled path hands
// out noop spans so instrumentation can stay unconditional in the request
// path. W3C trace context is extracted from inbound requests and injected
// into upstream calls, so the gateway links into whatever distributed
// trace the calling application is already part of.
package tracing
