package storage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
)

func TestMemoryStore_Conformance(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) trace.Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_CopiesOnSaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	tr := testTrace("t-copy", "gpt-4", trace.StatusSuccess, time.Now().UTC())
	if err := s.SaveTrace(ctx, tr); err != nil {
		t.Fatalf("SaveTrace: %v", err)
	}

	// Mutating the caller's struct after save must not leak into the store.
	tr.Metadata.Model = "mutated"
	got, err := s.GetTrace(ctx, "t-copy")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if got.Metadata.Model != "gpt-4" {
		t.Errorf("stored model = %q, caller mutation leaked in", got.Metadata.Model)
	}

	// Mutating a returned struct must not leak back either.
	got.Metadata.Model = "mutated-again"
	again, err := s.GetTrace(ctx, "t-copy")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if again.Metadata.Model != "gpt-4" {
		t.Errorf("stored model = %q, reader mutation leaked in", again.Metadata.Model)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				tr := testTrace(
					"t-con-"+string(rune('a'+n))+"-"+string(rune('a'+j%26)),
					"gpt-4", trace.StatusSuccess, time.Now().UTC())
				if err := s.SaveTrace(ctx, tr); err != nil {
					t.Errorf("SaveTrace: %v", err)
					return
				}
				if _, err := s.ListTraces(ctx, nil); err != nil {
					t.Errorf("ListTraces: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestMemoryStore_RejectsUseAfterClose(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := s.SaveTrace(context.Background(), testTrace("t-x", "gpt-4", trace.StatusSuccess, time.Now().UTC()))
	if err == nil {
		t.Error("SaveTrace after Close succeeded, want error")
	}
}

func TestMemoryStore_RecordRedactions(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	tr := testTrace("t-red", "gpt-4", trace.StatusSuccess, time.Now().UTC())
	tr.Request = json.RawMessage(`{"model":"gpt-4","api_key":"[REDACTED]"}`)
	if err := s.SaveTrace(ctx, tr); err != nil {
		t.Fatalf("SaveTrace: %v", err)
	}
	entries := []trace.RedactionEntry{{TraceID: "t-red", FieldPath: "request.api_key", ValueHash: "aa", Type: "field"}}
	if err := s.RecordRedactions(ctx, "t-red", entries); err != nil {
		t.Fatalf("RecordRedactions: %v", err)
	}

	got := s.Redactions("t-red")
	if len(got) != 1 || got[0].FieldPath != "request.api_key" {
		t.Errorf("redactions = %+v", got)
	}

	if err := s.DeleteTrace(ctx, "t-red"); err != nil {
		t.Fatalf("DeleteTrace: %v", err)
	}
	if got := s.Redactions("t-red"); len(got) != 0 {
		t.Errorf("redactions survived trace delete: %+v", got)
	}
}
