package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
)

// ManagerConfig controls the retry and fallback behavior of Manager.
type ManagerConfig struct {
	// RetryAttempts is how many times an operation is tried on each
	// backend before falling through to the next one.
	// Default: 3
	RetryAttempts int

	// RetryDelay is the base wait between attempts on one backend;
	// the n-th retry waits n times this value.
	// Default: 100ms
	RetryDelay time.Duration
}

// DefaultManagerConfig returns the default manager configuration.
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// Manager composes a primary backend with an ordered list of
// fallbacks. Every operation is retried on the primary with a linear
// delay, then falls through the fallback chain. An operation that
// succeeded on a fallback is not replayed to the primary.
type Manager struct {
	backends []trace.Store // primary first
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// NewManager creates a manager over primary and fallbacks.
func NewManager(primary trace.Store, fallbacks []trace.Store, config *ManagerConfig) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}
	attempts := config.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := config.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	backends := make([]trace.Store, 0, 1+len(fallbacks))
	backends = append(backends, primary)
	backends = append(backends, fallbacks...)

	return &Manager{
		backends: backends,
		attempts: attempts,
		delay:    delay,
		logger:   slog.Default().With("component", "trace.storage.manager"),
	}
}

// SaveTrace persists a trace via the fallback chain.
func (m *Manager) SaveTrace(ctx context.Context, t *trace.Trace) error {
	return m.each(ctx, "save_trace", func(s trace.Store) error {
		return s.SaveTrace(ctx, t)
	})
}

// GetTrace retrieves a trace, consulting fallbacks when the primary
// fails or does not hold the record.
func (m *Manager) GetTrace(ctx context.Context, id string) (*trace.Trace, error) {
	var out *trace.Trace
	err := m.each(ctx, "get_trace", func(s trace.Store) error {
		t, err := s.GetTrace(ctx, id)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// ListTraces lists traces from the first healthy backend.
func (m *Manager) ListTraces(ctx context.Context, opts *trace.ListOptions) ([]*trace.Trace, error) {
	var out []*trace.Trace
	err := m.each(ctx, "list_traces", func(s trace.Store) error {
		ts, err := s.ListTraces(ctx, opts)
		if err != nil {
			return err
		}
		out = ts
		return nil
	})
	return out, err
}

// DeleteTrace deletes a trace via the fallback chain.
func (m *Manager) DeleteTrace(ctx context.Context, id string) error {
	return m.each(ctx, "delete_trace", func(s trace.Store) error {
		return s.DeleteTrace(ctx, id)
	})
}

// CountTraces counts traces on the first healthy backend.
func (m *Manager) CountTraces(ctx context.Context) (int64, error) {
	var out int64
	err := m.each(ctx, "count_traces", func(s trace.Store) error {
		n, err := s.CountTraces(ctx)
		if err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}

// ListSessionTraces lists a session from the first healthy backend.
func (m *Manager) ListSessionTraces(ctx context.Context, sessionID string) ([]*trace.Trace, error) {
	var out []*trace.Trace
	err := m.each(ctx, "list_session_traces", func(s trace.Store) error {
		ts, err := s.ListSessionTraces(ctx, sessionID)
		if err != nil {
			return err
		}
		out = ts
		return nil
	})
	return out, err
}

// GetSessionMetadata summarizes a session from the first healthy
// backend.
func (m *Manager) GetSessionMetadata(ctx context.Context, sessionID string) (*trace.SessionMetadata, error) {
	var out *trace.SessionMetadata
	err := m.each(ctx, "session_metadata", func(s trace.Store) error {
		meta, err := s.GetSessionMetadata(ctx, sessionID)
		if err != nil {
			return err
		}
		out = meta
		return nil
	})
	return out, err
}

// SaveTest persists a test case via the fallback chain.
func (m *Manager) SaveTest(ctx context.Context, tc *trace.TestCase) error {
	return m.each(ctx, "save_test", func(s trace.Store) error {
		return s.SaveTest(ctx, tc)
	})
}

// GetTest retrieves a test case via the fallback chain.
func (m *Manager) GetTest(ctx context.Context, id string) (*trace.TestCase, error) {
	var out *trace.TestCase
	err := m.each(ctx, "get_test", func(s trace.Store) error {
		tc, err := s.GetTest(ctx, id)
		if err != nil {
			return err
		}
		out = tc
		return nil
	})
	return out, err
}

// ListTests lists test cases from the first healthy backend.
func (m *Manager) ListTests(ctx context.Context) ([]*trace.TestCase, error) {
	var out []*trace.TestCase
	err := m.each(ctx, "list_tests", func(s trace.Store) error {
		tcs, err := s.ListTests(ctx)
		if err != nil {
			return err
		}
		out = tcs
		return nil
	})
	return out, err
}

// DeleteTest deletes a test case via the fallback chain.
func (m *Manager) DeleteTest(ctx context.Context, id string) error {
	return m.each(ctx, "delete_test", func(s trace.Store) error {
		return s.DeleteTest(ctx, id)
	})
}

// Cleanup runs retention on every backend so fallbacks do not grow
// without bound. The returned count sums all backends; the first
// error is reported after every backend has been attempted.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration, maxCount int) (int64, error) {
	var total int64
	var firstErr error
	for i, backend := range m.backends {
		n, err := backend.Cleanup(ctx, maxAge, maxCount)
		total += n
		if err != nil {
			m.logger.Warn("cleanup failed on backend", "backend_index", i, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return total, firstErr
}

// SearchTraces forwards to the first backend with full-text support.
func (m *Manager) SearchTraces(ctx context.Context, query string, opts *trace.ListOptions) ([]*trace.Trace, error) {
	var out []*trace.Trace
	err := m.eachSearcher(ctx, "search", func(s trace.Searcher) error {
		ts, err := s.SearchTraces(ctx, query, opts)
		if err != nil {
			return err
		}
		out = ts
		return nil
	})
	return out, err
}

// SearchCount forwards to the first backend with full-text support.
func (m *Manager) SearchCount(ctx context.Context, query string) (int64, error) {
	var out int64
	err := m.eachSearcher(ctx, "search_count", func(s trace.Searcher) error {
		n, err := s.SearchCount(ctx, query)
		if err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}

// SearchSuggest forwards to the first backend with full-text support.
func (m *Manager) SearchSuggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	var out []string
	err := m.eachSearcher(ctx, "search_suggest", func(s trace.Searcher) error {
		vs, err := s.SearchSuggest(ctx, prefix, limit)
		if err != nil {
			return err
		}
		out = vs
		return nil
	})
	return out, err
}

// RecordRedactions forwards audit entries through the fallback chain
// to backends that keep an audit trail.
func (m *Manager) RecordRedactions(ctx context.Context, traceID string, entries []trace.RedactionEntry) error {
	var lastErr error
	for i, backend := range m.backends {
		sink, ok := backend.(trace.RedactionSink)
		if !ok {
			continue
		}
		err := m.withRetry(ctx, func() error {
			return sink.RecordRedactions(ctx, traceID, entries)
		})
		if err == nil {
			return nil
		}
		m.logger.Warn("redaction audit failed on backend", "backend_index", i, "error", err)
		lastErr = err
	}
	return lastErr
}

// Close closes every backend and joins their errors.
func (m *Manager) Close() error {
	var errs []error
	for _, backend := range m.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// each runs fn against the backend chain: retries on one backend, then
// fall-through to the next. A not-found result skips retries but still
// consults the remaining backends.
func (m *Manager) each(ctx context.Context, op string, fn func(trace.Store) error) error {
	var lastErr error
	for i, backend := range m.backends {
		backend := backend
		err := m.withRetry(ctx, func() error { return fn(backend) })
		if err == nil {
			if i > 0 {
				m.logger.Warn("operation served by fallback backend", "operation", op, "backend_index", i)
			}
			return nil
		}
		if !trace.IsNotFound(err) {
			m.logger.Warn("backend failed, falling through", "operation", op, "backend_index", i, "error", err)
		}
		lastErr = err
	}
	return lastErr
}

// eachSearcher is each over the backends that implement full-text
// search.
func (m *Manager) eachSearcher(ctx context.Context, op string, fn func(trace.Searcher) error) error {
	var lastErr error
	found := false
	for i, backend := range m.backends {
		searcher, ok := backend.(trace.Searcher)
		if !ok {
			continue
		}
		found = true
		err := m.withRetry(ctx, func() error { return fn(searcher) })
		if err == nil {
			return nil
		}
		m.logger.Warn("backend failed, falling through", "operation", op, "backend_index", i, "error", err)
		lastErr = err
	}
	if !found {
		return trace.NewStorageError("manager", op, errors.New("no backend supports full-text search"))
	}
	return lastErr
}

// withRetry tries fn up to the configured attempt count with linear
// backoff. Not-found results return immediately.
func (m *Manager) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if trace.IsNotFound(err) {
			return err
		}
		lastErr = err
		if attempt < m.attempts {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(time.Duration(attempt) * m.delay):
			}
		}
	}
	return lastErr
}
