// Package health aggregates dependency checks into a single composite
// report served at GET /health.
//
// Checks register at two severities. Critical checks (Register) cover
// dependencies the gateway cannot work without, such as write access to
// the traces directory; when one fails the report is "error" and the
// endpoint answers 503. Warning checks (RegisterWarn) cover conditions
// the gateway survives, such as an open storage circuit breaker; they
// downgrade the report to "degraded" while the endpoint keeps answering
// 200 so load balancers do not pull a still-functional instance.
//
// All checks run concurrently under a shared per-check timeout.
package health
