package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
)

// flakyStore wraps a MemoryStore and fails the first failSaves save
// calls and the first failGets get calls.
type flakyStore struct {
	*MemoryStore
	failSaves int
	failGets  int
	saveCalls int
	getCalls  int
}

func newFlakyStore(failSaves, failGets int) *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore(), failSaves: failSaves, failGets: failGets}
}

func (f *flakyStore) SaveTrace(ctx context.Context, t *trace.Trace) error {
	f.saveCalls++
	if f.saveCalls <= f.failSaves {
		return trace.NewStorageError("flaky", "save_trace", errors.New("induced failure"))
	}
	return f.MemoryStore.SaveTrace(ctx, t)
}

func (f *flakyStore) GetTrace(ctx context.Context, id string) (*trace.Trace, error) {
	f.getCalls++
	if f.getCalls <= f.failGets {
		return nil, trace.NewStorageError("flaky", "get_trace", errors.New("induced failure"))
	}
	return f.MemoryStore.GetTrace(ctx, id)
}

func fastManagerConfig() *ManagerConfig {
	return &ManagerConfig{RetryAttempts: 3, RetryDelay: time.Millisecond}
}

func TestManager_Conformance(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) trace.Store {
		return NewManager(NewMemoryStore(), nil, fastManagerConfig())
	})
}

func TestManager_RetriesTransientFailure(t *testing.T) {
	primary := newFlakyStore(2, 0)
	m := NewManager(primary, nil, fastManagerConfig())
	defer m.Close()
	ctx := context.Background()

	tr := testTrace("t-retry", "gpt-4", trace.StatusSuccess, time.Now().UTC())
	if err := m.SaveTrace(ctx, tr); err != nil {
		t.Fatalf("SaveTrace: %v", err)
	}
	if primary.saveCalls != 3 {
		t.Errorf("save calls = %d, want 2 failures then success", primary.saveCalls)
	}
	if _, err := primary.MemoryStore.GetTrace(ctx, "t-retry"); err != nil {
		t.Errorf("trace missing from primary: %v", err)
	}
}

func TestManager_FallsThroughToFallback(t *testing.T) {
	primary := newFlakyStore(1000, 0)
	fallback := NewMemoryStore()
	m := NewManager(primary, []trace.Store{fallback}, fastManagerConfig())
	defer m.Close()
	ctx := context.Background()

	tr := testTrace("t-fb", "gpt-4", trace.StatusSuccess, time.Now().UTC())
	if err := m.SaveTrace(ctx, tr); err != nil {
		t.Fatalf("SaveTrace: %v", err)
	}
	if primary.saveCalls != 3 {
		t.Errorf("primary attempts = %d, want retries exhausted", primary.saveCalls)
	}

	// Record lands on the fallback and stays there. No replay to the
	// primary behind the manager's back.
	if _, err := fallback.GetTrace(ctx, "t-fb"); err != nil {
		t.Errorf("trace missing from fallback: %v", err)
	}
	if n, _ := primary.MemoryStore.CountTraces(ctx); n != 0 {
		t.Errorf("primary holds %d traces, want 0", n)
	}

	// Reads fall through too.
	got, err := m.GetTrace(ctx, "t-fb")
	if err != nil {
		t.Fatalf("GetTrace via manager: %v", err)
	}
	if got.ID != "t-fb" {
		t.Errorf("got %q", got.ID)
	}
}

func TestManager_AllBackendsFail(t *testing.T) {
	primary := newFlakyStore(1000, 0)
	fallback := newFlakyStore(1000, 0)
	m := NewManager(primary, []trace.Store{fallback}, fastManagerConfig())
	defer m.Close()

	err := m.SaveTrace(context.Background(), testTrace("t-doom", "gpt-4", trace.StatusSuccess, time.Now().UTC()))
	if err == nil {
		t.Fatal("SaveTrace succeeded, want error")
	}
	var se *trace.StorageError
	if !errors.As(err, &se) {
		t.Errorf("err = %T, want StorageError", err)
	}
}

func TestManager_NotFoundSkipsRetriesButFallsThrough(t *testing.T) {
	primary := newFlakyStore(0, 0)
	fallback := NewMemoryStore()
	m := NewManager(primary, []trace.Store{fallback}, fastManagerConfig())
	defer m.Close()
	ctx := context.Background()

	// Present only on the fallback, as after a primary outage.
	orphan := testTrace("t-orphan", "gpt-4", trace.StatusSuccess, time.Now().UTC())
	if err := fallback.SaveTrace(ctx, orphan); err != nil {
		t.Fatalf("seed fallback: %v", err)
	}

	got, err := m.GetTrace(ctx, "t-orphan")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if got.ID != "t-orphan" {
		t.Errorf("got %q", got.ID)
	}
	if primary.getCalls != 1 {
		t.Errorf("primary get calls = %d, not-found must not be retried", primary.getCalls)
	}

	// Missing everywhere surfaces as not-found, not a storage error.
	if _, err := m.GetTrace(ctx, "t-nowhere"); !trace.IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestManager_CleanupRunsOnAllBackends(t *testing.T) {
	primary := NewMemoryStore()
	fallback := NewMemoryStore()
	m := NewManager(primary, []trace.Store{fallback}, fastManagerConfig())
	defer m.Close()
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	if err := primary.SaveTrace(ctx, testTrace("t-p-old", "gpt-4", trace.StatusSuccess, old)); err != nil {
		t.Fatalf("seed primary: %v", err)
	}
	if err := fallback.SaveTrace(ctx, testTrace("t-f-old", "gpt-4", trace.StatusSuccess, old)); err != nil {
		t.Fatalf("seed fallback: %v", err)
	}

	deleted, err := m.Cleanup(ctx, 24*time.Hour, 0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want cleanup on every backend", deleted)
	}
}

func TestManager_SearchRequiresCapableBackend(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil, fastManagerConfig())
	defer m.Close()

	_, err := m.SearchTraces(context.Background(), "anything", nil)
	if err == nil {
		t.Fatal("SearchTraces succeeded without a search-capable backend")
	}
}

func TestManager_SearchUsesCapableFallback(t *testing.T) {
	sqlite := openSQLiteStore(t)
	m := NewManager(NewMemoryStore(), []trace.Store{sqlite}, fastManagerConfig())
	defer m.Close()
	ctx := context.Background()

	tr := testTrace("t-search", "gpt-4", trace.StatusSuccess, time.Now().UTC())
	if err := sqlite.SaveTrace(ctx, tr); err != nil {
		t.Fatalf("seed sqlite: %v", err)
	}

	n, err := m.SearchCount(ctx, "hi")
	if err != nil {
		t.Fatalf("SearchCount: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want the sqlite backend consulted", n)
	}
}
