package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
)

func openSQLiteStore(t *testing.T) trace.Store {
	t.Helper()
	s, err := NewSQLiteStore(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "traces.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return s
}

func TestSQLiteStore_Conformance(t *testing.T) {
	runStoreSuite(t, openSQLiteStore)
}

func TestSQLiteStore_Search(t *testing.T) {
	s := openSQLiteStore(t).(*SQLiteStore)
	defer s.Close()
	ctx := context.Background()

	quantum := testTrace("t-q", "gpt-4", trace.StatusSuccess, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	quantum.Request = json.RawMessage(`{"model":"gpt-4","messages":[{"role":"user","content":"explain quantum entanglement"}]}`)
	weather := testTrace("t-w", "claude-3-opus", trace.StatusSuccess, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))
	weather.Request = json.RawMessage(`{"model":"claude-3-opus","messages":[{"role":"user","content":"weather in lisbon"}]}`)
	for _, tr := range []*trace.Trace{quantum, weather} {
		if err := s.SaveTrace(ctx, tr); err != nil {
			t.Fatalf("SaveTrace: %v", err)
		}
	}

	hits, err := s.SearchTraces(ctx, "quantum", nil)
	if err != nil {
		t.Fatalf("SearchTraces: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "t-q" {
		t.Errorf("hits = %v, want only the quantum trace", ids(hits))
	}

	n, err := s.SearchCount(ctx, "quantum")
	if err != nil {
		t.Fatalf("SearchCount: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	none, err := s.SearchTraces(ctx, "nonexistentterm", nil)
	if err != nil {
		t.Fatalf("SearchTraces(miss): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("miss hits = %v, want none", ids(none))
	}
}

func TestSQLiteStore_SearchIndexFollowsReplace(t *testing.T) {
	s := openSQLiteStore(t).(*SQLiteStore)
	defer s.Close()
	ctx := context.Background()

	first := testTrace("t-swap", "gpt-4", trace.StatusSuccess, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	first.Request = json.RawMessage(`{"model":"gpt-4","messages":[{"role":"user","content":"tell me about alpacas"}]}`)
	if err := s.SaveTrace(ctx, first); err != nil {
		t.Fatalf("SaveTrace: %v", err)
	}

	second := testTrace("t-swap", "gpt-4", trace.StatusSuccess, first.Timestamp)
	second.Request = json.RawMessage(`{"model":"gpt-4","messages":[{"role":"user","content":"tell me about quasars"}]}`)
	if err := s.SaveTrace(ctx, second); err != nil {
		t.Fatalf("SaveTrace replace: %v", err)
	}

	stale, err := s.SearchCount(ctx, "alpacas")
	if err != nil {
		t.Fatalf("SearchCount(stale): %v", err)
	}
	if stale != 0 {
		t.Errorf("stale term still indexed %d times after replace", stale)
	}
	fresh, err := s.SearchCount(ctx, "quasars")
	if err != nil {
		t.Fatalf("SearchCount(fresh): %v", err)
	}
	if fresh != 1 {
		t.Errorf("fresh term indexed %d times, want 1", fresh)
	}
}

func TestSQLiteStore_SearchSuggest(t *testing.T) {
	s := openSQLiteStore(t).(*SQLiteStore)
	defer s.Close()
	ctx := context.Background()

	for i, model := range []string{"gpt-4", "gpt-4o-mini", "claude-3-opus"} {
		tr := testTrace("t-sg"+string(rune('a'+i)), model, trace.StatusSuccess, time.Now().UTC())
		if err := s.SaveTrace(ctx, tr); err != nil {
			t.Fatalf("SaveTrace: %v", err)
		}
	}

	got, err := s.SearchSuggest(ctx, "gpt", 10)
	if err != nil {
		t.Fatalf("SearchSuggest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("suggestions = %v, want both gpt models", got)
	}

	endpoints, err := s.SearchSuggest(ctx, "/v1", 10)
	if err != nil {
		t.Fatalf("SearchSuggest(endpoint): %v", err)
	}
	if len(endpoints) != 1 || endpoints[0] != "/v1/chat/completions" {
		t.Errorf("endpoint suggestions = %v", endpoints)
	}

	// LIKE metacharacters in the prefix must not act as wildcards.
	wild, err := s.SearchSuggest(ctx, "%", 10)
	if err != nil {
		t.Fatalf("SearchSuggest(wildcard): %v", err)
	}
	if len(wild) != 0 {
		t.Errorf("wildcard prefix matched %v", wild)
	}
}

func TestSQLiteStore_RedactionAudit(t *testing.T) {
	s := openSQLiteStore(t).(*SQLiteStore)
	defer s.Close()
	ctx := context.Background()

	tr := testTrace("t-aud", "gpt-4", trace.StatusSuccess, time.Now().UTC())
	if err := s.SaveTrace(ctx, tr); err != nil {
		t.Fatalf("SaveTrace: %v", err)
	}

	entries := []trace.RedactionEntry{
		{TraceID: "t-aud", FieldPath: "request.api_key", ValueHash: "deadbeef", Type: "field"},
		{TraceID: "t-aud", FieldPath: "request.messages.0.content", ValueHash: "cafef00d", Type: "pattern"},
	}
	if err := s.RecordRedactions(ctx, "t-aud", entries); err != nil {
		t.Fatalf("RecordRedactions: %v", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM redaction_audit WHERE trace_id = ?`, "t-aud").Scan(&n); err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if n != 2 {
		t.Errorf("audit rows = %d, want 2", n)
	}

	// Deleting the trace prunes its audit rows.
	if err := s.DeleteTrace(ctx, "t-aud"); err != nil {
		t.Fatalf("DeleteTrace: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM redaction_audit WHERE trace_id = ?`, "t-aud").Scan(&n); err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if n != 0 {
		t.Errorf("audit rows = %d after delete, want 0", n)
	}
}

func TestSQLiteStore_UpgradesLegacyRecordsOnRead(t *testing.T) {
	s := openSQLiteStore(t).(*SQLiteStore)
	defer s.Close()
	ctx := context.Background()

	legacy := `{"id":"t-legacy","timestamp":"2025-06-01T08:00:00Z","endpoint":"/v1/chat/completions","request":{"model":"gpt-4"},"response":null,"metadata":{"duration_ms":10,"model":"gpt-4","error":"boom"}}`
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (id, record, timestamp_ms, endpoint, model, status, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"t-legacy", legacy, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC).UnixMilli(),
		"/v1/chat/completions", "gpt-4", "", 10, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	got, err := s.GetTrace(ctx, "t-legacy")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if got.SchemaVersion != trace.SchemaVersion {
		t.Errorf("schema version = %q, want upgraded", got.SchemaVersion)
	}
	if got.Metadata.Status != trace.StatusError {
		t.Errorf("status = %q, want derived from error", got.Metadata.Status)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s1.SaveTrace(ctx, testTrace("t-p", "gpt-4", trace.StatusSuccess, time.Now().UTC())); err != nil {
		t.Fatalf("SaveTrace: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewSQLiteStore(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if _, err := s2.GetTrace(ctx, "t-p"); err != nil {
		t.Errorf("GetTrace after reopen: %v", err)
	}
}
