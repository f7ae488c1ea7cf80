package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"traceforge-hq/traceforge/pkg/providers"
)

const (
	// windowDuration is the rolling period requests are counted over.
	windowDuration = time.Minute

	// bucketGranularity is the counter resolution inside the window.
	bucketGranularity = time.Second
)

// Config controls the limiter. The zero value gets working defaults.
type Config struct {
	// Ceilings maps a provider type to its requests-per-minute ceiling.
	// Provider types without an entry fall back to DefaultCeiling.
	// Default: DefaultCeilings()
	Ceilings map[string]int

	// DefaultCeiling applies to provider types not present in Ceilings.
	// Default: 100
	DefaultCeiling int

	// IdleTTL is how long a (client, provider) pair may go unseen before
	// its window is dropped. Default: 5m
	IdleTTL time.Duration

	// SweepInterval is how often idle windows are collected. Default: 1m
	SweepInterval time.Duration
}

// DefaultCeilings returns the built-in requests-per-minute ceiling for
// each known provider type.
func DefaultCeilings() map[string]int {
	return map[string]int{
		providers.TypeOpenAI:    3500,
		providers.TypeAnthropic: 1000,
		providers.TypeGemini:    60,
		providers.TypeOllama:    1000,
	}
}

// CheckResult reports the outcome of an admission check.
type CheckResult struct {
	// Allowed indicates whether the request may be dispatched upstream.
	Allowed bool

	// Reason explains a rejection. Empty when Allowed.
	Reason string

	// Limit is the ceiling for this (client, provider) pair.
	Limit int64

	// Remaining is how many requests are left in the current window.
	Remaining int64

	// Reset is when the oldest counted request leaves the window.
	Reset time.Time

	// RetryAfter is how long to wait before retrying. Zero when Allowed.
	RetryAfter time.Duration
}

// Stats is a point-in-time snapshot of limiter activity.
type Stats struct {
	ActiveKeys int   `json:"active_keys"`
	Allowed    int64 `json:"allowed"`
	Rejected   int64 `json:"rejected"`
}

// Limiter enforces per-client request ceilings over a rolling one-minute
// window.
//
// Each (client IP, provider type) pair is tracked by its own SlidingWindow,
// created on first use. Pairs that go quiet for longer than IdleTTL are
// swept out by a background goroutine; Close stops the sweeper.
type Limiter struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	allowed  atomic.Int64
	rejected atomic.Int64

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

// entry pairs a window with the last time its key was seen.
type entry struct {
	window   *SlidingWindow
	lastSeen time.Time
}

// New creates a rate limiter and starts its idle-window sweeper.
// A nil config uses defaults.
func New(config *Config) *Limiter {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Ceilings == nil {
		cfg.Ceilings = DefaultCeilings()
	}
	if cfg.DefaultCeiling <= 0 {
		cfg.DefaultCeiling = 100
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	l := &Limiter{
		config:  cfg,
		logger:  slog.Default().With("component", "ratelimit"),
		entries: make(map[string]*entry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go l.sweepLoop()

	l.logger.Info("rate limiter initialized",
		"default_ceiling", cfg.DefaultCeiling,
		"idle_ttl", cfg.IdleTTL)

	return l
}

// Allow records one request for the given client and provider type and
// reports whether it fits under the ceiling. Rejected requests are not
// counted against the window.
func (l *Limiter) Allow(clientIP, providerType string) *CheckResult {
	limit := int64(l.ceiling(providerType))
	e := l.entry(clientIP + "|" + providerType)

	used, ok := e.window.Admit(limit)
	if !ok {
		l.rejected.Add(1)

		reset := e.window.NextExpiry()
		if reset.IsZero() {
			reset = l.now().Add(windowDuration)
		}

		l.logger.Warn("rate limit exceeded",
			"client_ip", clientIP,
			"provider_type", providerType,
			"limit", limit)

		return &CheckResult{
			Allowed:    false,
			Reason:     fmt.Sprintf("rate limit exceeded: %d requests per minute for provider type %q", limit, providerType),
			Limit:      limit,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: reset.Sub(l.now()),
		}
	}

	l.allowed.Add(1)

	return &CheckResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - used,
	}
}

// Stats returns a snapshot of limiter counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	active := len(l.entries)
	l.mu.Unlock()

	return Stats{
		ActiveKeys: active,
		Allowed:    l.allowed.Load(),
		Rejected:   l.rejected.Load(),
	}
}

// Close stops the background sweeper. Admission checks keep working after
// Close; only idle-window collection stops.
func (l *Limiter) Close() error {
	select {
	case <-l.stop:
	default:
		close(l.stop)
		<-l.done
	}
	return nil
}

// ceiling resolves the requests-per-minute ceiling for a provider type.
func (l *Limiter) ceiling(providerType string) int {
	if limit, ok := l.config.Ceilings[providerType]; ok && limit > 0 {
		return limit
	}
	return l.config.DefaultCeiling
}

// entry returns the tracked entry for a key, creating it on first use.
func (l *Limiter) entry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		w := NewSlidingWindow(windowDuration, bucketGranularity)
		w.now = l.now
		e = &entry{window: w}
		l.entries[key] = e
	}
	e.lastSeen = l.now()

	return e
}

// sweepLoop collects idle windows until Close.
func (l *Limiter) sweepLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.pruneIdle(l.now())
		case <-l.stop:
			return
		}
	}
}

// pruneIdle drops windows that have not seen a request within IdleTTL.
// It returns the number of windows removed.
func (l *Limiter) pruneIdle(now time.Time) int {
	cutoff := now.Add(-l.config.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("pruned idle rate limit windows",
			"removed", removed,
			"active", len(l.entries))
	}

	return removed
}
