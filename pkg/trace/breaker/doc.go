// Package breaker guards trace persistence with a circuit breaker so
// that a failing storage backend cannot stall request handling. One
// process-wide instance is shared by the recorder, the retention
// manager, and the health endpoint.
package breaker
