// Package storage provides storage backends for trace records and
// test cases.
//
// # Storage Backends
//
// The package implements the trace.Store interface four ways:
//
//   - SQLite: embedded indexed store with full-text search (default)
//   - File: one JSON file per trace, crash-safe via atomic rename
//   - Memory: in-memory store for tests and ephemeral runs
//   - Manager: primary/fallback composition with retries
//
// # SQLite Backend
//
// The SQLite backend provides durable storage with:
//
//   - WAL journaling and synchronous=NORMAL for concurrent access
//   - Indexes on timestamp, model, status, and session columns
//   - An FTS5 companion table kept in sync by triggers, searched
//     with BM25 ranking
//   - A redaction audit side table
//
// # File Backend
//
// The file backend writes each trace to
// <root>/<timestamp>_<id>.json through a temp file followed by an
// atomic rename, so readers never observe partial records. Listing
// scans the directory and sorts by modification time.
//
// # Manager
//
// The manager wraps a primary backend and an ordered list of
// fallbacks. Each operation retries the primary with a linear delay,
// then falls through. A write that succeeded on a fallback is not
// replayed to the primary.
//
//	primary, _ := storage.NewSQLiteStore(nil)
//	fallback, _ := storage.NewFileStore(nil)
//	store := storage.NewManager(primary, []trace.Store{fallback}, nil)
//
// # Thread Safety
//
// All backends are safe for concurrent use.
package storage
