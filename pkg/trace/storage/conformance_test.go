package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
)

// runStoreSuite exercises the trace.Store contract against a backend.
// Each subtest receives a fresh store.
func runStoreSuite(t *testing.T, open func(t *testing.T) trace.Store) {
	t.Helper()

	t.Run("SaveGetRoundtrip", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		in := testTrace("t-rt", "gpt-4", trace.StatusSuccess, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
		step := 2
		in.SessionID = "sess-rt"
		in.StepIndex = &step
		in.Response = json.RawMessage(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`)

		if err := s.SaveTrace(ctx, in); err != nil {
			t.Fatalf("SaveTrace: %v", err)
		}
		out, err := s.GetTrace(ctx, in.ID)
		if err != nil {
			t.Fatalf("GetTrace: %v", err)
		}
		if mustJSON(t, out) != mustJSON(t, in) {
			t.Errorf("roundtrip mismatch:\nin:  %s\nout: %s", mustJSON(t, in), mustJSON(t, out))
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		_, err := s.GetTrace(context.Background(), "nope")
		if !trace.IsNotFound(err) {
			t.Errorf("err = %v, want not-found", err)
		}
	})

	t.Run("SaveReplacesDuplicateID", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		first := testTrace("t-dup", "gpt-4", trace.StatusSuccess, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
		if err := s.SaveTrace(ctx, first); err != nil {
			t.Fatalf("SaveTrace: %v", err)
		}

		second := testTrace("t-dup", "gpt-4o", trace.StatusSuccess, first.Timestamp)
		if err := s.SaveTrace(ctx, second); err != nil {
			t.Fatalf("SaveTrace replace: %v", err)
		}

		out, err := s.GetTrace(ctx, "t-dup")
		if err != nil {
			t.Fatalf("GetTrace: %v", err)
		}
		if out.Metadata.Model != "gpt-4o" {
			t.Errorf("model = %q, want replacement", out.Metadata.Model)
		}
		n, err := s.CountTraces(ctx)
		if err != nil {
			t.Fatalf("CountTraces: %v", err)
		}
		if n != 1 {
			t.Errorf("count = %d, want 1", n)
		}
	})

	t.Run("ListFilterAndPaginate", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		models := []string{"gpt-4", "gpt-4", "claude-3-opus"}
		statuses := []string{trace.StatusSuccess, trace.StatusError, trace.StatusSuccess}
		for i := 0; i < 3; i++ {
			tr := testTrace("t-l"+string(rune('a'+i)), models[i], statuses[i], base.Add(time.Duration(i)*time.Hour))
			if err := s.SaveTrace(ctx, tr); err != nil {
				t.Fatalf("SaveTrace: %v", err)
			}
			time.Sleep(15 * time.Millisecond)
		}

		all, err := s.ListTraces(ctx, nil)
		if err != nil {
			t.Fatalf("ListTraces: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len = %d, want 3", len(all))
		}
		// Default order is newest first.
		if all[0].ID != "t-lc" || all[2].ID != "t-la" {
			t.Errorf("default order = %s,%s,%s", all[0].ID, all[1].ID, all[2].ID)
		}

		byModel, err := s.ListTraces(ctx, &trace.ListOptions{Filter: trace.ListFilter{Model: "gpt-4"}})
		if err != nil {
			t.Fatalf("ListTraces(model): %v", err)
		}
		if len(byModel) != 2 {
			t.Errorf("model filter len = %d, want 2", len(byModel))
		}

		byStatus, err := s.ListTraces(ctx, &trace.ListOptions{Filter: trace.ListFilter{Status: trace.StatusError}})
		if err != nil {
			t.Fatalf("ListTraces(status): %v", err)
		}
		if len(byStatus) != 1 || byStatus[0].ID != "t-lb" {
			t.Errorf("status filter = %+v", byStatus)
		}

		page, err := s.ListTraces(ctx, &trace.ListOptions{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("ListTraces(page): %v", err)
		}
		if len(page) != 1 || page[0].ID != "t-lb" {
			t.Errorf("page = %+v, want middle trace", ids(page))
		}

		from := base.Add(30 * time.Minute)
		windowed, err := s.ListTraces(ctx, &trace.ListOptions{Filter: trace.ListFilter{DateFrom: &from}})
		if err != nil {
			t.Fatalf("ListTraces(window): %v", err)
		}
		if len(windowed) != 2 {
			t.Errorf("window len = %d, want 2 (%v)", len(windowed), ids(windowed))
		}
	})

	t.Run("DeleteTrace", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		tr := testTrace("t-del", "gpt-4", trace.StatusSuccess, time.Now().UTC())
		if err := s.SaveTrace(ctx, tr); err != nil {
			t.Fatalf("SaveTrace: %v", err)
		}
		if err := s.DeleteTrace(ctx, "t-del"); err != nil {
			t.Fatalf("DeleteTrace: %v", err)
		}
		if _, err := s.GetTrace(ctx, "t-del"); !trace.IsNotFound(err) {
			t.Errorf("after delete err = %v, want not-found", err)
		}
		if err := s.DeleteTrace(ctx, "t-del"); !trace.IsNotFound(err) {
			t.Errorf("double delete err = %v, want not-found", err)
		}
	})

	t.Run("SessionListingAndMetadata", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
		// Saved out of step order on purpose.
		for i, step := range []int{2, 0, 1} {
			tr := testTrace("t-s"+string(rune('a'+i)), "gpt-4", trace.StatusSuccess, base.Add(time.Duration(i)*time.Minute))
			tr.SessionID = "sess-1"
			st := step
			tr.StepIndex = &st
			tr.Metadata.DurationMS = 100
			if err := s.SaveTrace(ctx, tr); err != nil {
				t.Fatalf("SaveTrace: %v", err)
			}
		}
		other := testTrace("t-other", "claude-3-opus", trace.StatusSuccess, base)
		other.SessionID = "sess-2"
		if err := s.SaveTrace(ctx, other); err != nil {
			t.Fatalf("SaveTrace: %v", err)
		}

		members, err := s.ListSessionTraces(ctx, "sess-1")
		if err != nil {
			t.Fatalf("ListSessionTraces: %v", err)
		}
		if len(members) != 3 {
			t.Fatalf("members = %d, want 3", len(members))
		}
		for i, m := range members {
			if *m.StepIndex != i {
				t.Errorf("member %d has step %d, want ascending", i, *m.StepIndex)
			}
		}

		meta, err := s.GetSessionMetadata(ctx, "sess-1")
		if err != nil {
			t.Fatalf("GetSessionMetadata: %v", err)
		}
		if meta.TraceCount != 3 || meta.TotalDurationMS != 300 {
			t.Errorf("meta = %+v", meta)
		}
		if !meta.FirstSeen.Equal(base) || !meta.LastSeen.Equal(base.Add(2*time.Minute)) {
			t.Errorf("meta window = %v..%v", meta.FirstSeen, meta.LastSeen)
		}
		if len(meta.Models) != 1 || meta.Models[0] != "gpt-4" {
			t.Errorf("meta models = %v", meta.Models)
		}

		if _, err := s.GetSessionMetadata(ctx, "sess-none"); !trace.IsNotFound(err) {
			t.Errorf("missing session err = %v, want not-found", err)
		}
	})

	t.Run("TestCaseCRUD", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		tc := &trace.TestCase{
			ID:      "tc-1",
			Name:    "greeting stays polite",
			Request: json.RawMessage(`{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`),
			Tags:    []string{"smoke"},
		}
		if err := s.SaveTest(ctx, tc); err != nil {
			t.Fatalf("SaveTest: %v", err)
		}

		got, err := s.GetTest(ctx, "tc-1")
		if err != nil {
			t.Fatalf("GetTest: %v", err)
		}
		if got.Name != tc.Name || got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Errorf("GetTest = %+v", got)
		}

		list, err := s.ListTests(ctx)
		if err != nil {
			t.Fatalf("ListTests: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("ListTests len = %d", len(list))
		}

		if err := s.DeleteTest(ctx, "tc-1"); err != nil {
			t.Fatalf("DeleteTest: %v", err)
		}
		if _, err := s.GetTest(ctx, "tc-1"); !trace.IsNotFound(err) {
			t.Errorf("after delete err = %v, want not-found", err)
		}
	})

	t.Run("CleanupByAge", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		now := time.Now().UTC()
		old := testTrace("t-old", "gpt-4", trace.StatusSuccess, now.Add(-72*time.Hour))
		fresh := testTrace("t-fresh", "gpt-4", trace.StatusSuccess, now)
		for _, tr := range []*trace.Trace{old, fresh} {
			if err := s.SaveTrace(ctx, tr); err != nil {
				t.Fatalf("SaveTrace: %v", err)
			}
		}

		deleted, err := s.Cleanup(ctx, 24*time.Hour, 0)
		if err != nil {
			t.Fatalf("Cleanup: %v", err)
		}
		if deleted != 1 {
			t.Errorf("deleted = %d, want 1", deleted)
		}
		if _, err := s.GetTrace(ctx, "t-old"); !trace.IsNotFound(err) {
			t.Errorf("old trace survived age cleanup: %v", err)
		}
		if _, err := s.GetTrace(ctx, "t-fresh"); err != nil {
			t.Errorf("fresh trace removed: %v", err)
		}
	})

	t.Run("CleanupByCount", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		base := time.Now().UTC().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			tr := testTrace("t-c"+string(rune('a'+i)), "gpt-4", trace.StatusSuccess, base.Add(time.Duration(i)*time.Minute))
			if err := s.SaveTrace(ctx, tr); err != nil {
				t.Fatalf("SaveTrace: %v", err)
			}
		}

		deleted, err := s.Cleanup(ctx, 0, 2)
		if err != nil {
			t.Fatalf("Cleanup: %v", err)
		}
		if deleted != 3 {
			t.Errorf("deleted = %d, want 3", deleted)
		}
		n, err := s.CountTraces(ctx)
		if err != nil {
			t.Fatalf("CountTraces: %v", err)
		}
		if n != 2 {
			t.Errorf("count = %d, want exactly 2", n)
		}
		// The newest two survive.
		for _, id := range []string{"t-cd", "t-ce"} {
			if _, err := s.GetTrace(ctx, id); err != nil {
				t.Errorf("trace %s should survive count cleanup: %v", id, err)
			}
		}
	})

	t.Run("CleanupNoLimitsIsNoop", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		if err := s.SaveTrace(ctx, testTrace("t-keep", "gpt-4", trace.StatusSuccess, time.Now().UTC())); err != nil {
			t.Fatalf("SaveTrace: %v", err)
		}
		deleted, err := s.Cleanup(ctx, 0, 0)
		if err != nil {
			t.Fatalf("Cleanup: %v", err)
		}
		if deleted != 0 {
			t.Errorf("deleted = %d, want 0", deleted)
		}
	})
}

// testTrace builds a minimal valid trace for storage tests.
func testTrace(id, model, status string, ts time.Time) *trace.Trace {
	tr := &trace.Trace{
		ID:            id,
		SchemaVersion: trace.SchemaVersion,
		Timestamp:     ts,
		Endpoint:      "/v1/chat/completions",
		Request:       json.RawMessage(`{"model":"` + model + `","messages":[{"role":"user","content":"hi"}]}`),
		Metadata: trace.Metadata{
			DurationMS: 42,
			Model:      model,
			Status:     status,
		},
	}
	if status == trace.StatusError {
		tr.Metadata.Error = "upstream unavailable"
	} else {
		tr.Response = json.RawMessage(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}
	return tr
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func ids(traces []*trace.Trace) []string {
	out := make([]string, len(traces))
	for i, tr := range traces {
		out[i] = tr.ID
	}
	return out
}
