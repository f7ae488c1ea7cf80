// Package metrics instruments the gateway.
//
// A single Collector owns every Prometheus instrument under the
// traceforge namespace: request counters and duration histograms,
// upstream latency, token counts, VCR decision counters, cassette file
// operations, and rate-limit rejections. Storage breaker state and other
// slow-moving component counters are pulled at scrape time through
// Sources.
//
// Two HTTP surfaces expose the same data: JSONHandler serves a compact
// JSON document (uptime, memory, storage, requests, vcr, rate_limit
// sections) and PrometheusHandler serves the standard exposition format
// for scrapers.
package metrics
