// Package ratelimit enforces per-client request ceilings in front of
// upstream providers.
//
// Requests are counted per (client IP, provider type) pair over a rolling
// one-minute window backed by a circular bucket buffer. Each provider type
// carries its own requests-per-minute ceiling; unknown types share a
// conservative default. A request over the ceiling is rejected before any
// upstream dispatch happens and does not consume window capacity.
package ratelimit
