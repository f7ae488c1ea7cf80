// Package recorder persists traces captured by the TraceForge proxy. It
// sits between the request handlers and the storage backends and owns the
// write pipeline: redact, save, audit.
//
// # Recording Flow
//
// Traces are written asynchronously so a slow or failing backend never
// blocks a proxied request:
//
//  1. A handler assembles the trace after the upstream response completes
//  2. Record() fills missing identity fields and enqueues the trace
//  3. The background worker checks the storage circuit breaker
//  4. Request, response, and state snapshot are redacted
//  5. The redacted trace is written to the storage backend
//  6. Redaction audit entries are recorded alongside the trace
//
// A full queue drops the trace with a warning rather than applying
// backpressure to the proxy. Close() drains the queue before returning.
//
// # Basic Usage
//
//	rec := recorder.New(store, redact.New(redact.DefaultConfig()), breaker.New(nil), nil)
//	defer rec.Close()
//
//	// Fire-and-forget from the request path.
//	rec.Record(ctx, tr)
//
//	// Synchronous variant for imports and tooling.
//	if err := rec.RecordSync(ctx, tr); err != nil { ... }
//
// # Redaction
//
// Redaction happens inside the recorder, immediately before the write. No
// storage backend ever sees an unredacted trace, so every persisted byte
// has already been scrubbed regardless of which backend is active.
//
// # Circuit Breaking
//
// Writes consult the storage circuit breaker. While the circuit is open,
// traces are dropped and counted instead of being written; proxying
// continues unaffected.
package recorder
