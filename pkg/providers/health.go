package providers

import (
	"sync"
	"time"
)

// healthFailureThreshold is the consecutive-failure count at which an
// adapter starts reporting itself unhealthy. A single success resets
// the count.
const healthFailureThreshold = 3

// HealthSnapshot is a point-in-time view of one adapter's upstream
// health, derived from the outcomes of real dispatches. There is no
// active probing: an idle adapter keeps its last observed state.
type HealthSnapshot struct {
	// Healthy is false once the adapter has seen healthFailureThreshold
	// consecutive transport failures, timeouts, or 5xx responses.
	Healthy bool `json:"healthy"`

	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// RequestsTotal counts recorded outcomes, success or failure.
	RequestsTotal int64 `json:"requests_total"`

	// FailuresTotal counts recorded failures.
	FailuresTotal int64 `json:"failures_total"`

	// LastSuccess is when the adapter last saw a usable response.
	LastSuccess *time.Time `json:"last_success,omitempty"`

	// LastFailure is when the adapter last saw a failure.
	LastFailure *time.Time `json:"last_failure,omitempty"`
}

// HealthReporter is implemented by adapters that track upstream health.
// The router aggregates these snapshots for the metrics endpoint.
type HealthReporter interface {
	Healthy() HealthSnapshot
}

// healthTracker accumulates upstream outcomes for a single adapter.
type healthTracker struct {
	mu                  sync.Mutex
	consecutiveFailures int
	requestsTotal       int64
	failuresTotal       int64
	lastSuccess         time.Time
	lastFailure         time.Time
}

func (h *healthTracker) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestsTotal++
	h.consecutiveFailures = 0
	h.lastSuccess = time.Now()
}

// recordFailure returns the new consecutive-failure count so the caller
// can log exactly once when the unhealthy threshold is crossed.
func (h *healthTracker) recordFailure() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestsTotal++
	h.failuresTotal++
	h.consecutiveFailures++
	h.lastFailure = time.Now()
	return h.consecutiveFailures
}

func (h *healthTracker) snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := HealthSnapshot{
		Healthy:             h.consecutiveFailures < healthFailureThreshold,
		ConsecutiveFailures: h.consecutiveFailures,
		RequestsTotal:       h.requestsTotal,
		FailuresTotal:       h.failuresTotal,
	}
	if !h.lastSuccess.IsZero() {
		t := h.lastSuccess
		s.LastSuccess = &t
	}
	if !h.lastFailure.IsZero() {
		t := h.lastFailure
		s.LastFailure = &t
	}
	return s
}
