// Package middleware provides the HTTP middleware chain wrapped around
// the gateway: panic recovery, request ID assignment, request logging,
// and CORS.
//
// The server applies them outermost-first as Recovery, RequestID,
// Logging, CORS. Recovery catches panics from every layer, and the ID
// is assigned before the log line that reports it.
package middleware
