package breaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// Defaults for the storage write breaker.
const (
	// DefaultFailureThreshold is the consecutive-failure count that
	// opens the circuit.
	DefaultFailureThreshold = 10

	// DefaultCooldown is how long the circuit stays open before a
	// probe write is allowed.
	DefaultCooldown = 60 * time.Second

	// halfOpenSeed is the consecutive-failure value reported while
	// half-open, marking the circuit as partially recovered.
	halfOpenSeed = 5
)

// Config holds circuit breaker settings.
type Config struct {
	// FailureThreshold is the number of consecutive write failures
	// that opens the circuit. Default: 10.
	FailureThreshold uint32

	// Cooldown is the open-state duration before the breaker admits
	// a probe write. Default: 60s.
	Cooldown time.Duration

	// Logger receives state transition events. Default: slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns the production breaker settings.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
	}
}

// Metrics is a point-in-time snapshot of breaker accounting.
type Metrics struct {
	SavedTotal          int64     `json:"traces_saved_total"`
	FailedTotal         int64     `json:"traces_failed_total"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time"`
	CircuitOpen         bool      `json:"circuit_open"`
}

// OpenError is returned for writes refused while the circuit is open.
type OpenError struct {
	ConsecutiveFailures int64
	LastFailureTime     time.Time
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open after %d consecutive storage failures", e.ConsecutiveFailures)
}

// IsOpenError reports whether err is, or wraps, an *OpenError.
func IsOpenError(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

// Breaker tracks consecutive storage write failures and suspends
// writes once the failure threshold is reached. After the cooldown it
// admits a single probe write; the probe's outcome closes or reopens
// the circuit. Safe for concurrent use.
type Breaker struct {
	cb  *gobreaker.TwoStepCircuitBreaker
	log *slog.Logger

	savedTotal    atomic.Int64
	failedTotal   atomic.Int64
	consecutive   atomic.Int64
	lastFailureNS atomic.Int64
}

// New creates a Breaker from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Breaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "circuit_breaker")

	b := &Breaker{log: log}
	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        "trace-storage",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("storage circuit state change",
				"from", from.String(),
				"to", to.String(),
				"consecutive_failures", b.consecutive.Load(),
			)
		},
	})
	return b
}

// IsOpen reports whether writes are currently refused. The open to
// half-open transition happens lazily once the cooldown has elapsed,
// so a true result means the caller must not touch the backend.
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State returns the current state name: closed, half-open, or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// RecordSuccess notes one successful backend write. It resets the
// consecutive-failure count and closes a half-open circuit.
func (b *Breaker) RecordSuccess() {
	b.savedTotal.Add(1)
	b.consecutive.Store(0)
	if done, err := b.cb.Allow(); err == nil {
		done(true)
	}
}

// RecordFailure notes one failed backend write. Reaching the failure
// threshold opens the circuit; any failure while half-open reopens it.
func (b *Breaker) RecordFailure() {
	b.failedTotal.Add(1)
	b.consecutive.Add(1)
	b.lastFailureNS.Store(time.Now().UnixNano())
	if done, err := b.cb.Allow(); err == nil {
		done(false)
	}
}

// OpenError builds the refusal error for the current breaker state.
func (b *Breaker) OpenError() *OpenError {
	return &OpenError{
		ConsecutiveFailures: b.consecutive.Load(),
		LastFailureTime:     b.lastFailure(),
	}
}

// Metrics returns a snapshot of breaker accounting. While half-open
// the consecutive-failure count reads as the half-open seed value.
func (b *Breaker) Metrics() Metrics {
	state := b.cb.State()
	consecutive := b.consecutive.Load()
	if state == gobreaker.StateHalfOpen {
		consecutive = halfOpenSeed
	}
	return Metrics{
		SavedTotal:          b.savedTotal.Load(),
		FailedTotal:         b.failedTotal.Load(),
		ConsecutiveFailures: consecutive,
		LastFailureTime:     b.lastFailure(),
		CircuitOpen:         state == gobreaker.StateOpen,
	}
}

// SuccessRate returns the percentage of attempted writes that
// succeeded, or 100 when nothing has been attempted yet.
func (b *Breaker) SuccessRate() float64 {
	saved := b.savedTotal.Load()
	failed := b.failedTotal.Load()
	total := saved + failed
	if total == 0 {
		return 100.0
	}
	return float64(saved) / float64(total) * 100.0
}

func (b *Breaker) lastFailure() time.Time {
	ns := b.lastFailureNS.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
