package retention

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
	"traceforge-hq/traceforge/pkg/trace/breaker"
	"traceforge-hq/traceforge/pkg/trace/storage"
)

func seedTrace(t *testing.T, store trace.Store, id string, ts time.Time) {
	t.Helper()
	tr := &trace.Trace{
		ID:            id,
		SchemaVersion: trace.SchemaVersion,
		Timestamp:     ts,
		Endpoint:      "/v1/chat/completions",
		Request:       json.RawMessage(`{"model":"gpt-4"}`),
		Response:      json.RawMessage(`{"choices":[]}`),
		Metadata:      trace.Metadata{DurationMS: 5, Model: "gpt-4", Status: trace.StatusSuccess},
	}
	if err := store.SaveTrace(context.Background(), tr); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestPruner_PruneByAge(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	now := time.Now().UTC()
	seedTrace(t, store, "t-old", now.AddDate(0, 0, -10))
	seedTrace(t, store, "t-fresh", now)

	p := NewPruner(store, nil, &Config{Enabled: true, MaxAgeDays: 7})
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := store.GetTrace(context.Background(), "t-fresh"); err != nil {
		t.Errorf("fresh trace pruned: %v", err)
	}

	stats := p.Stats()
	if stats.TotalDeleted != 1 || stats.LastRun.IsZero() {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPruner_PruneByCount(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		seedTrace(t, store, "t-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
	}

	p := NewPruner(store, nil, &Config{Enabled: true, MaxCount: 2})
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	n, _ := store.CountTraces(context.Background())
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestPruner_NoBoundsIsNoop(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	seedTrace(t, store, "t-keep", time.Now().UTC().AddDate(-1, 0, 0))

	p := NewPruner(store, nil, &Config{Enabled: true})
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 with no bounds", deleted)
	}
}

func TestPruner_DisabledIsNoop(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	seedTrace(t, store, "t-keep", time.Now().UTC().AddDate(-1, 0, 0))

	p := NewPruner(store, nil, &Config{Enabled: false, MaxAgeDays: 1})
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 while disabled", deleted)
	}
}

func TestPruner_SkipsSweepWhileCircuitOpen(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	seedTrace(t, store, "t-old", time.Now().UTC().AddDate(0, 0, -30))

	brk := breaker.New(&breaker.Config{FailureThreshold: 1, Cooldown: time.Hour})
	brk.RecordFailure()
	if !brk.IsOpen() {
		t.Fatal("breaker not open")
	}

	p := NewPruner(store, brk, &Config{Enabled: true, MaxAgeDays: 7})
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want skip", deleted)
	}
	if _, err := store.GetTrace(context.Background(), "t-old"); err != nil {
		t.Errorf("trace deleted during open circuit: %v", err)
	}
	if got := p.Stats().SkippedOpen; got != 1 {
		t.Errorf("skipped = %d, want 1", got)
	}
}

func TestPruner_ArchivesBeforeDelete(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	now := time.Now().UTC()
	seedTrace(t, store, "t-doomed", now.AddDate(0, 0, -30))
	seedTrace(t, store, "t-kept", now)

	dir := t.TempDir()
	p := NewPruner(store, nil, &Config{
		Enabled:             true,
		MaxAgeDays:          7,
		ArchiveBeforeDelete: true,
		ArchivePath:         dir,
	})

	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("archive files = %d, want 1", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "t-doomed") {
		t.Errorf("archive missing doomed trace: %s", data)
	}
	if strings.Contains(string(data), "t-kept") {
		t.Errorf("archive contains surviving trace: %s", data)
	}
}

func TestScheduler_StartRunsCatchUpSweep(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	seedTrace(t, store, "t-old", time.Now().UTC().AddDate(0, 0, -30))

	p := NewPruner(store, nil, &Config{Enabled: true, MaxAgeDays: 7, Schedule: "@every 1h"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := store.CountTraces(context.Background())
		if err != nil {
			t.Fatalf("CountTraces: %v", err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("catch-up sweep never ran, %d traces remain", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if p.NextPruning() == nil {
		t.Error("NextPruning = nil while running")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	p := NewPruner(storage.NewMemoryStore(), nil, &Config{Enabled: true, MaxAgeDays: 1, Schedule: "not a schedule"})
	if err := p.Start(context.Background()); err == nil {
		t.Error("Start accepted an invalid schedule")
	}
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	p := NewPruner(storage.NewMemoryStore(), nil, &Config{Enabled: false, Schedule: "@every 1h"})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.scheduler.IsRunning() {
		t.Error("scheduler running while retention disabled")
	}
}
