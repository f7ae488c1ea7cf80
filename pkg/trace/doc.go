// Package trace defines the canonical trace record for proxied LLM
// traffic and the storage contract used to persist it.
//
// # Architecture
//
// The trace system consists of four layers:
//
//  1. Trace Recorder - Builds redacted trace records from gateway events
//  2. Circuit Breaker - Suspends persistence after repeated failures
//  3. Storage Backend - Persists traces (SQLite, flat files, memory)
//  4. Retention Manager - Prunes traces by age and count on a schedule
//
// # Trace Records
//
// Each trace captures:
//   - The validated request body, verbatim apart from redaction
//   - The normalized response body, or null when the call failed
//   - Call metadata (duration, token usage, model, status, error)
//   - Optional session linkage (session id, step index, parent trace)
//   - Optional workflow DAG and tenancy identifiers
//
// Redaction happens before a record reaches any backend; no unredacted
// value is ever written to disk.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStore(&storage.SQLiteConfig{
//	    Path: ".traces.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	rec := recorder.New(store, recorder.DefaultConfig())
//	defer rec.Close()
//
//	rec.Record(ctx, tr) // redacts, stamps schema version, persists
//
// # Querying
//
//	opts := trace.DefaultListOptions()
//	opts.Filter.Model = "gpt-4"
//	traces, err := store.ListTraces(ctx, opts)
//
// # Thread Safety
//
// All Store implementations are safe for concurrent use. Trace values
// themselves are plain data and must not be shared while mutated.
package trace
