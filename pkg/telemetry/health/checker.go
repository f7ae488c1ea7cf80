package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status is the aggregate or per-check health state.
type Status string

const (
	// StatusOK means every check passed.
	StatusOK Status = "ok"
	// StatusDegraded means a warning-level check failed. The gateway keeps
	// serving traffic.
	StatusDegraded Status = "degraded"
	// StatusError means a critical check failed.
	StatusError Status = "error"
)

// severity decides how a failing check affects the aggregate status.
type severity int

const (
	severityCritical severity = iota
	severityWarning
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Config controls the checker.
type Config struct {
	// CheckTimeout bounds each individual check.
	// Default: 5s.
	CheckTimeout time.Duration

	// Version is reported in every health response.
	Version string
}

type registeredCheck struct {
	name     string
	fn       CheckFunc
	severity severity
}

// CheckResult is the outcome of one check in a health report.
type CheckResult struct {
	Name       string  `json:"name"`
	Status     Status  `json:"status"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// Report is the full health document returned by the endpoint.
type Report struct {
	Status    Status        `json:"status"`
	Version   string        `json:"version,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []CheckResult `json:"checks"`
}

// Checker runs registered checks concurrently and aggregates the worst
// outcome. Critical failures yield StatusError, warning failures
// StatusDegraded.
type Checker struct {
	config Config
	logger *slog.Logger

	mu     sync.RWMutex
	checks []registeredCheck
}

// NewChecker returns a Checker. A nil config uses defaults.
func NewChecker(cfg *Config) *Checker {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 5 * time.Second
	}
	return &Checker{
		config: c,
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a critical check. Its failure marks the gateway StatusError
// and the endpoint answers 503.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.add(name, fn, severityCritical)
}

// RegisterWarn adds a warning-level check. Its failure marks the gateway
// StatusDegraded; the endpoint still answers 200.
func (c *Checker) RegisterWarn(name string, fn CheckFunc) {
	c.add(name, fn, severityWarning)
}

func (c *Checker) add(name string, fn CheckFunc, sev severity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, registeredCheck{name: name, fn: fn, severity: sev})
}

// Run executes all checks concurrently and returns the aggregate report.
// Checks are bounded by the configured timeout; a check that overruns is
// reported as failed without waiting for it.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]registeredCheck, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, chk := range checks {
		wg.Add(1)
		go func(i int, chk registeredCheck) {
			defer wg.Done()
			results[i] = c.runOne(ctx, chk)
		}(i, chk)
	}
	wg.Wait()

	report := Report{
		Status:    StatusOK,
		Version:   c.config.Version,
		Timestamp: time.Now().UTC(),
		Checks:    results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusError:
			report.Status = StatusError
		case StatusDegraded:
			if report.Status != StatusError {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, chk registeredCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.config.CheckTimeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- chk.fn(ctx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	elapsed := time.Since(start)

	result := CheckResult{
		Name:       chk.name,
		Status:     StatusOK,
		DurationMS: float64(elapsed) / float64(time.Millisecond),
	}
	if err != nil {
		result.Error = err.Error()
		if chk.severity == severityCritical {
			result.Status = StatusError
		} else {
			result.Status = StatusDegraded
		}
		c.logger.Warn("health check failed",
			"check", chk.name,
			"status", string(result.Status),
			"error", err,
		)
	}
	return result
}

// Handler serves the composite health report. It answers 200 for StatusOK
// and StatusDegraded, 503 for StatusError.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		report := c.Run(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusError {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		if r.Method == http.MethodHead {
			return
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			c.logger.Error("failed to encode health report", "error", err)
		}
	}
}
