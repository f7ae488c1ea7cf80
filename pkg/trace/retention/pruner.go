package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
	"traceforge-hq/traceforge/pkg/trace/breaker"
	"traceforge-hq/traceforge/pkg/trace/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// Enabled enables retention sweeps.
	// Default: true
	Enabled bool

	// MaxAgeDays is the number of days to retain traces.
	// 0 means keep traces forever.
	MaxAgeDays int

	// MaxCount is the maximum number of traces to keep; the oldest are
	// deleted first. 0 means unlimited.
	MaxCount int

	// Schedule is a cron expression or interval descriptor for sweeps.
	// Example: "0 3 * * *" (daily at 3 AM), "@every 6h".
	// Default: "@every 6h"
	Schedule string

	// ArchiveBeforeDelete exports doomed traces to JSON before deletion.
	ArchiveBeforeDelete bool

	// ArchivePath is the directory for archive files.
	// Default: "data/archives"
	ArchivePath string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		MaxAgeDays:  0,
		MaxCount:    0,
		Schedule:    "@every 6h",
		ArchivePath: "data/archives",
	}
}

// Stats is a snapshot of pruner activity.
type Stats struct {
	LastRun      time.Time `json:"last_run"`
	LastDeleted  int64     `json:"last_deleted"`
	TotalDeleted int64     `json:"total_deleted"`
	SkippedOpen  int64     `json:"skipped_circuit_open"`
}

// Pruner enforces retention bounds on stored traces.
type Pruner struct {
	store     trace.Store
	breaker   *breaker.Breaker // nil disables circuit gating
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler

	mu    sync.Mutex
	stats Stats
}

// NewPruner creates a retention pruner. The breaker may be nil, in
// which case sweeps always run.
func NewPruner(store trace.Store, brk *breaker.Breaker, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Schedule == "" {
		config.Schedule = "@every 6h"
	}
	if config.ArchivePath == "" {
		config.ArchivePath = "data/archives"
	}

	p := &Pruner{
		store:   store,
		breaker: brk,
		config:  config,
		logger:  slog.Default().With("component", "trace.retention"),
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune runs one retention sweep and returns the number of traces
// deleted. A sweep with the storage circuit open is skipped and
// returns zero.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if !p.config.Enabled {
		return 0, nil
	}
	if p.config.MaxAgeDays <= 0 && p.config.MaxCount <= 0 {
		p.logger.Debug("no retention bounds configured, nothing to prune")
		return 0, nil
	}

	if p.breaker != nil && p.breaker.IsOpen() {
		p.mu.Lock()
		p.stats.SkippedOpen++
		p.mu.Unlock()
		p.logger.Warn("storage circuit open, skipping retention sweep",
			"breaker_state", p.breaker.State(),
		)
		return 0, nil
	}

	if p.config.ArchiveBeforeDelete {
		if err := p.archiveDoomed(ctx); err != nil {
			return 0, trace.NewRetentionError(p.config.MaxAgeDays, p.config.MaxCount, err)
		}
	}

	var maxAge time.Duration
	if p.config.MaxAgeDays > 0 {
		maxAge = time.Duration(p.config.MaxAgeDays) * 24 * time.Hour
	}

	deleted, err := p.store.Cleanup(ctx, maxAge, p.config.MaxCount)
	if err != nil {
		return deleted, trace.NewRetentionError(p.config.MaxAgeDays, p.config.MaxCount, err)
	}

	p.mu.Lock()
	p.stats.LastRun = time.Now().UTC()
	p.stats.LastDeleted = deleted
	p.stats.TotalDeleted += deleted
	p.mu.Unlock()

	if deleted > 0 {
		p.logger.Info("retention sweep completed",
			"deleted_count", deleted,
			"max_age_days", p.config.MaxAgeDays,
			"max_count", p.config.MaxCount,
		)
	} else {
		p.logger.Debug("retention sweep completed, nothing to delete")
	}
	return deleted, nil
}

// archiveDoomed exports the traces a sweep is about to delete. The set
// is computed best-effort; concurrent writes can shift it slightly.
func (p *Pruner) archiveDoomed(ctx context.Context) error {
	doomed := map[string]*trace.Trace{}

	if p.config.MaxAgeDays > 0 {
		cutoff := time.Now().Add(-time.Duration(p.config.MaxAgeDays) * 24 * time.Hour)
		aged, err := p.listAll(ctx, func(opts *trace.ListOptions) {
			opts.Filter.DateTo = &cutoff
		})
		if err != nil {
			return err
		}
		for _, t := range aged {
			doomed[t.ID] = t
		}
	}

	if p.config.MaxCount > 0 {
		overflow, err := p.listAll(ctx, func(opts *trace.ListOptions) {
			opts.SortBy = trace.SortByTimestamp
			opts.SortOrder = trace.SortDesc
			opts.Offset = p.config.MaxCount
		})
		if err != nil {
			return err
		}
		for _, t := range overflow {
			doomed[t.ID] = t
		}
	}

	if len(doomed) == 0 {
		return nil
	}

	traces := make([]*trace.Trace, 0, len(doomed))
	for _, t := range doomed {
		traces = append(traces, t)
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	name := fmt.Sprintf("traces-%s.json", time.Now().Format("2006-01-02-150405"))
	path := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(true).Export(ctx, traces, f); err != nil {
		return fmt.Errorf("archive export: %w", err)
	}

	p.logger.Info("archived traces before deletion",
		"archive_file", path,
		"trace_count", len(traces),
	)
	return nil
}

// listAll pages through ListTraces until the result set is exhausted.
func (p *Pruner) listAll(ctx context.Context, adjust func(*trace.ListOptions)) ([]*trace.Trace, error) {
	const page = 500

	var out []*trace.Trace
	opts := trace.DefaultListOptions()
	opts.Limit = page
	adjust(opts)
	base := opts.Offset

	for {
		opts.Offset = base + len(out)
		batch, err := p.store.ListTraces(ctx, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < page {
			return out, nil
		}
	}
}

// Stats returns a snapshot of pruner activity.
func (p *Pruner) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Start begins scheduled sweeps, including one immediate sweep.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled sweep time.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
