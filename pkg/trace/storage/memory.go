package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
)

// MemoryStore implements trace.Store using in-memory maps. It is
// intended for tests and ephemeral runs; nothing survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	traces     map[string]*trace.Trace
	tests      map[string]*trace.TestCase
	redactions map[string][]trace.RedactionEntry
	saveOrder  []string // trace ids in insertion order
	closed     bool
}

// NewMemoryStore creates a new in-memory storage backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		traces:     make(map[string]*trace.Trace),
		tests:      make(map[string]*trace.TestCase),
		redactions: make(map[string][]trace.RedactionEntry),
	}
}

// SaveTrace persists a trace record to memory.
func (s *MemoryStore) SaveTrace(ctx context.Context, t *trace.Trace) error {
	if t == nil || t.ID == "" {
		return trace.NewStorageError("memory", "save_trace", errors.New("trace id is empty"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return trace.NewStorageError("memory", "save_trace", errors.New("store closed"))
	}

	// Copy to keep later caller mutations out of the store.
	cp := *t
	if _, exists := s.traces[t.ID]; !exists {
		s.saveOrder = append(s.saveOrder, t.ID)
	}
	s.traces[t.ID] = &cp
	return nil
}

// GetTrace retrieves a trace by id.
func (s *MemoryStore) GetTrace(ctx context.Context, id string) (*trace.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.traces[id]
	if !ok {
		return nil, trace.NewNotFoundError("trace", id)
	}
	cp := *t
	return &cp, nil
}

// ListTraces returns traces matching opts.
func (s *MemoryStore) ListTraces(ctx context.Context, opts *trace.ListOptions) ([]*trace.Trace, error) {
	opts = opts.WithDefaults()

	s.mu.RLock()
	matched := make([]*trace.Trace, 0, len(s.traces))
	for _, id := range s.saveOrder {
		t, ok := s.traces[id]
		if !ok {
			continue
		}
		if opts.Filter.Matches(t) {
			cp := *t
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	asc := opts.SortOrder == trace.SortAsc
	sort.SliceStable(matched, func(i, j int) bool {
		var less bool
		switch opts.SortBy {
		case trace.SortByDuration:
			less = matched[i].Metadata.DurationMS < matched[j].Metadata.DurationMS
		case trace.SortByModel:
			less = matched[i].Metadata.Model < matched[j].Metadata.Model
		default:
			less = matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		if asc {
			return less
		}
		return !less
	})

	start := opts.Offset
	if start > len(matched) {
		return []*trace.Trace{}, nil
	}
	end := start + opts.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// DeleteTrace removes a trace by id.
func (s *MemoryStore) DeleteTrace(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.traces[id]; !ok {
		return trace.NewNotFoundError("trace", id)
	}
	delete(s.traces, id)
	delete(s.redactions, id)
	return nil
}

// CountTraces returns the number of stored traces.
func (s *MemoryStore) CountTraces(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.traces)), nil
}

// ListSessionTraces returns the traces of one session ordered by step
// index, ties broken by timestamp.
func (s *MemoryStore) ListSessionTraces(ctx context.Context, sessionID string) ([]*trace.Trace, error) {
	s.mu.RLock()
	members := []*trace.Trace{}
	for _, t := range s.traces {
		if t.SessionID == sessionID {
			cp := *t
			members = append(members, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(members, func(i, j int) bool {
		si, sj := stepOf(members[i]), stepOf(members[j])
		if si != sj {
			return si < sj
		}
		return members[i].Timestamp.Before(members[j].Timestamp)
	})
	return members, nil
}

// GetSessionMetadata summarizes the traces sharing a session id.
func (s *MemoryStore) GetSessionMetadata(ctx context.Context, sessionID string) (*trace.SessionMetadata, error) {
	members, err := s.ListSessionTraces(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, trace.NewNotFoundError("session", sessionID)
	}
	return summarizeSession(sessionID, members), nil
}

// SaveTest persists a test case to memory.
func (s *MemoryStore) SaveTest(ctx context.Context, tc *trace.TestCase) error {
	if tc == nil || tc.ID == "" {
		return trace.NewStorageError("memory", "save_test", errors.New("test id is empty"))
	}

	now := time.Now().UTC()
	cp := *tc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[cp.ID] = &cp
	return nil
}

// GetTest retrieves a test case by id.
func (s *MemoryStore) GetTest(ctx context.Context, id string) (*trace.TestCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tc, ok := s.tests[id]
	if !ok {
		return nil, trace.NewNotFoundError("test", id)
	}
	cp := *tc
	return &cp, nil
}

// ListTests returns all stored test cases, newest first.
func (s *MemoryStore) ListTests(ctx context.Context) ([]*trace.TestCase, error) {
	s.mu.RLock()
	tests := make([]*trace.TestCase, 0, len(s.tests))
	for _, tc := range s.tests {
		cp := *tc
		tests = append(tests, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(tests, func(i, j int) bool {
		return tests[i].CreatedAt.After(tests[j].CreatedAt)
	})
	return tests, nil
}

// DeleteTest removes a test case by id.
func (s *MemoryStore) DeleteTest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tests[id]; !ok {
		return trace.NewNotFoundError("test", id)
	}
	delete(s.tests, id)
	return nil
}

// Cleanup deletes traces older than maxAge, then trims to the newest
// maxCount traces.
func (s *MemoryStore) Cleanup(ctx context.Context, maxAge time.Duration, maxCount int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64

	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge)
		for id, t := range s.traces {
			if t.Timestamp.Before(cutoff) {
				delete(s.traces, id)
				delete(s.redactions, id)
				deleted++
			}
		}
	}

	if maxCount > 0 && len(s.traces) > maxCount {
		remaining := make([]*trace.Trace, 0, len(s.traces))
		for _, t := range s.traces {
			remaining = append(remaining, t)
		}
		sort.Slice(remaining, func(i, j int) bool {
			return remaining[i].Timestamp.After(remaining[j].Timestamp)
		})
		for _, t := range remaining[maxCount:] {
			delete(s.traces, t.ID)
			delete(s.redactions, t.ID)
			deleted++
		}
	}

	return deleted, nil
}

// RecordRedactions appends redaction audit entries for a trace.
func (s *MemoryStore) RecordRedactions(ctx context.Context, traceID string, entries []trace.RedactionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redactions[traceID] = append(s.redactions[traceID], entries...)
	return nil
}

// Redactions returns the audit entries recorded for a trace.
func (s *MemoryStore) Redactions(traceID string) []trace.RedactionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]trace.RedactionEntry(nil), s.redactions[traceID]...)
}

// Close marks the store closed; subsequent writes fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
