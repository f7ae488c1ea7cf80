package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// VCR event label values.
const (
	EventHit    = "hit"
	EventMiss   = "miss"
	EventRecord = "record"
	EventTamper = "tamper"
)

// Cassette operation label values.
const (
	OpRead  = "read"
	OpWrite = "write"
)

// Config controls the collector.
type Config struct {
	// Enabled gates all metric recording. Handlers still serve when
	// disabled; they just report zeroes. Default (nil config): true
	Enabled bool

	// Namespace prefixes every metric name. Default: "traceforge"
	Namespace string

	// RequestDurationBuckets are histogram bounds in seconds.
	// Default: 0.1 to 30s, tuned for LLM round trips.
	RequestDurationBuckets []float64

	// TokenBuckets are histogram bounds for per-request token counts.
	// Default: 100 to 100k.
	TokenBuckets []float64
}

// Collector owns every Prometheus instrument in the gateway and the
// counters behind the JSON metrics document.
//
// Hot-path components record through the typed methods; slow-moving
// component state (storage breaker, VCR counters, limiter occupancy) is
// pulled at scrape time through Sources.
type Collector struct {
	config    Config
	registry  *prometheus.Registry
	sources   Sources
	startTime time.Time

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	upstreamLatency  *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	tokensPerRequest *prometheus.HistogramVec
	vcrEventsTotal   *prometheus.CounterVec
	cassetteOpsTotal *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec

	// Counters backing the requests section of the JSON document.
	mu         sync.RWMutex
	reqTotal   int64
	reqSuccess int64
	reqError   int64
	byProvider map[string]int64

	cardinality *cardinalityLimiter
}

// NewCollector creates a collector and registers its instruments with the
// given registry (a fresh one when nil). A nil config enables collection
// with defaults.
func NewCollector(cfg *Config, sources Sources, registry *prometheus.Registry) *Collector {
	c := Config{Enabled: true}
	if cfg != nil {
		c = *cfg
	}
	if c.Namespace == "" {
		c.Namespace = "traceforge"
	}
	if len(c.RequestDurationBuckets) == 0 {
		c.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}
	}
	if len(c.TokenBuckets) == 0 {
		c.TokenBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	col := &Collector{
		config:      c,
		registry:    registry,
		sources:     sources,
		startTime:   time.Now(),
		byProvider:  make(map[string]int64),
		cardinality: newCardinalityLimiter(10000),
	}

	col.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.Namespace,
		Name:      "requests_total",
		Help:      "Requests handled by the gateway.",
	}, []string{"provider", "model", "status"})

	col.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.Namespace,
		Name:      "request_duration_seconds",
		Help:      "End-to-end request duration.",
		Buckets:   c.RequestDurationBuckets,
	}, []string{"provider", "model"})

	col.upstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.Namespace,
		Name:      "upstream_latency_seconds",
		Help:      "Latency of upstream provider calls.",
		Buckets:   c.RequestDurationBuckets,
	}, []string{"provider", "model"})

	col.tokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.Namespace,
		Name:      "request_tokens_total",
		Help:      "Tokens processed, split by prompt and completion.",
	}, []string{"provider", "model", "type"})

	col.tokensPerRequest = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.Namespace,
		Name:      "request_tokens",
		Help:      "Total tokens per request.",
		Buckets:   c.TokenBuckets,
	}, []string{"provider", "model"})

	col.vcrEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.Namespace,
		Name:      "vcr_events_total",
		Help:      "VCR decisions: hit, miss, record, tamper.",
	}, []string{"event"})

	col.cassetteOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.Namespace,
		Name:      "cassette_operations_total",
		Help:      "Cassette file reads and writes.",
	}, []string{"operation"})

	col.rateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.Namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"provider_type"})

	registry.MustRegister(
		col.requestsTotal,
		col.requestDuration,
		col.upstreamLatency,
		col.tokensTotal,
		col.tokensPerRequest,
		col.vcrEventsTotal,
		col.cassetteOpsTotal,
		col.rateLimitedTotal,
	)

	col.registerSourceGauges()

	return col
}

// registerSourceGauges exposes component state pulled at scrape time.
func (c *Collector) registerSourceGauges() {
	ns := c.config.Namespace

	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "uptime_seconds",
		Help:      "Seconds since the collector was created.",
	}, func() float64 {
		return time.Since(c.startTime).Seconds()
	}))

	storage := func() StorageStats {
		if c.sources.Storage == nil {
			return StorageStats{}
		}
		return c.sources.Storage()
	}

	c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "storage_traces_saved_total",
		Help:      "Traces persisted successfully.",
	}, func() float64 {
		return float64(storage().TracesSavedTotal)
	}))

	c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "storage_traces_failed_total",
		Help:      "Trace persistence failures.",
	}, func() float64 {
		return float64(storage().TracesFailedTotal)
	}))

	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "storage_consecutive_failures",
		Help:      "Current run of storage failures feeding the breaker.",
	}, func() float64 {
		return float64(storage().ConsecutiveFailures)
	}))

	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "storage_circuit_open",
		Help:      "1 while the storage circuit breaker is open.",
	}, func() float64 {
		if storage().CircuitOpen {
			return 1
		}
		return 0
	}))

	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "storage_success_rate_percent",
		Help:      "Rolling storage write success rate.",
	}, func() float64 {
		return storage().SuccessRatePercent
	}))
}

// RecordRequest counts one completed request and observes its duration.
// Status is StatusSuccess or StatusError.
func (c *Collector) RecordRequest(provider, model, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	// Model names arrive from clients; fold new label sets into "other"
	// once the cardinality cap is hit.
	if !c.cardinality.allow(fmt.Sprintf("req:%s:%s:%s", provider, model, status)) {
		model = "other"
	}

	c.requestsTotal.WithLabelValues(provider, model, status).Inc()
	c.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())

	c.mu.Lock()
	c.reqTotal++
	switch status {
	case StatusSuccess:
		c.reqSuccess++
	case StatusError:
		c.reqError++
	}
	c.byProvider[provider]++
	c.mu.Unlock()
}

// RecordUpstreamLatency observes one upstream provider round trip.
func (c *Collector) RecordUpstreamLatency(provider, model string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.upstreamLatency.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordTokens counts prompt and completion tokens for one request.
func (c *Collector) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if !c.config.Enabled {
		return
	}
	if promptTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
	if total := promptTokens + completionTokens; total > 0 {
		c.tokensPerRequest.WithLabelValues(provider, model).Observe(float64(total))
	}
}

// RecordVCREvent counts one VCR decision (EventHit, EventMiss,
// EventRecord, EventTamper).
func (c *Collector) RecordVCREvent(event string) {
	if !c.config.Enabled {
		return
	}
	c.vcrEventsTotal.WithLabelValues(event).Inc()
}

// RecordCassetteOp counts one cassette file operation (OpRead, OpWrite).
func (c *Collector) RecordCassetteOp(op string) {
	if !c.config.Enabled {
		return
	}
	c.cassetteOpsTotal.WithLabelValues(op).Inc()
}

// RecordRateLimited counts one request rejected by the rate limiter.
func (c *Collector) RecordRateLimited(providerType string) {
	if !c.config.Enabled {
		return
	}
	c.rateLimitedTotal.WithLabelValues(providerType).Inc()
}

// Registry returns the Prometheus registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// cardinalityLimiter caps the number of distinct label sets the collector
// will create. Label values above the cap fold into "other".
type cardinalityLimiter struct {
	max     int
	current map[string]struct{}
	mu      sync.RWMutex
}

func newCardinalityLimiter(max int) *cardinalityLimiter {
	return &cardinalityLimiter{
		max:     max,
		current: make(map[string]struct{}),
	}
}

// allow reports whether the label set may be used as-is.
func (cl *cardinalityLimiter) allow(labelSet string) bool {
	cl.mu.RLock()
	_, exists := cl.current[labelSet]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.max {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}
