package metrics

import (
	"runtime"
)

// Sources supplies component state that is pulled at scrape time rather
// than pushed on the hot path. Nil funcs read as zero values.
type Sources struct {
	// Storage reports trace persistence counters and breaker state.
	Storage func() StorageStats

	// VCR reports the active mode and cassette decision counters.
	VCR func() VCRStats

	// RateLimit reports limiter occupancy and admission counters.
	RateLimit func() RateLimitStats

	// Providers reports per-adapter upstream health, keyed by provider
	// name.
	Providers func() map[string]ProviderHealth
}

// StorageStats is the storage section of the metrics document.
type StorageStats struct {
	TracesSavedTotal    int64   `json:"traces_saved_total"`
	TracesFailedTotal   int64   `json:"traces_failed_total"`
	ConsecutiveFailures int64   `json:"consecutive_failures"`
	CircuitOpen         bool    `json:"circuit_open"`
	SuccessRatePercent  float64 `json:"success_rate_percent"`
}

// VCRStats is the vcr section of the metrics document.
type VCRStats struct {
	Mode       string `json:"mode"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Recordings int64  `json:"recordings"`
	Tampered   int64  `json:"tampered"`
}

// RateLimitStats is the rate_limit section of the metrics document.
type RateLimitStats struct {
	ActiveKeys int   `json:"active_keys"`
	Allowed    int64 `json:"allowed"`
	Rejected   int64 `json:"rejected"`
}

// ProviderHealth is one entry in the providers section of the metrics
// document, derived from the outcomes of real upstream dispatches.
type ProviderHealth struct {
	Healthy             bool  `json:"healthy"`
	ConsecutiveFailures int   `json:"consecutive_failures"`
	RequestsTotal       int64 `json:"requests_total"`
	FailuresTotal       int64 `json:"failures_total"`
}

// RequestStats is the requests section of the metrics document.
type RequestStats struct {
	Total      int64            `json:"total"`
	Success    int64            `json:"success"`
	Error      int64            `json:"error"`
	ByProvider map[string]int64 `json:"by_provider,omitempty"`
}

// MemoryUsage reports process memory in megabytes. RSS is approximated by
// runtime.MemStats.Sys; the Go runtime does not expose resident set size.
type MemoryUsage struct {
	RSS       float64 `json:"rss"`
	HeapUsed  float64 `json:"heap_used"`
	HeapTotal float64 `json:"heap_total"`
}

// Document is the JSON body served on the metrics endpoint.
type Document struct {
	UptimeSeconds float64                   `json:"uptime_seconds"`
	MemoryUsageMB MemoryUsage               `json:"memory_usage_mb"`
	Storage       StorageStats              `json:"storage"`
	Requests      RequestStats              `json:"requests"`
	VCR           VCRStats                  `json:"vcr"`
	RateLimit     RateLimitStats            `json:"rate_limit"`
	Providers     map[string]ProviderHealth `json:"providers,omitempty"`
}

// Document assembles a point-in-time metrics document from the collector's
// own counters, the runtime, and the registered sources.
func (c *Collector) Document() Document {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	doc := Document{
		UptimeSeconds: c.Uptime().Seconds(),
		MemoryUsageMB: MemoryUsage{
			RSS:       toMB(ms.Sys),
			HeapUsed:  toMB(ms.HeapAlloc),
			HeapTotal: toMB(ms.HeapSys),
		},
		Requests: c.requestStats(),
	}

	if c.sources.Storage != nil {
		doc.Storage = c.sources.Storage()
	}
	if c.sources.VCR != nil {
		doc.VCR = c.sources.VCR()
	}
	if c.sources.RateLimit != nil {
		doc.RateLimit = c.sources.RateLimit()
	}
	if c.sources.Providers != nil {
		doc.Providers = c.sources.Providers()
	}

	return doc
}

func (c *Collector) requestStats() RequestStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := RequestStats{
		Total:   c.reqTotal,
		Success: c.reqSuccess,
		Error:   c.reqError,
	}
	if len(c.byProvider) > 0 {
		stats.ByProvider = make(map[string]int64, len(c.byProvider))
		for provider, n := range c.byProvider {
			stats.ByProvider[provider] = n
		}
	}
	return stats
}

func toMB(bytes uint64) float64 {
	return float64(bytes) / (1024 * 1024)
}
