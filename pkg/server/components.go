package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"traceforge-hq/traceforge/pkg/config"
	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy"
	"traceforge-hq/traceforge/pkg/ratelimit"
	"traceforge-hq/traceforge/pkg/redact"
	"traceforge-hq/traceforge/pkg/routing"
	"traceforge-hq/traceforge/pkg/telemetry/health"
	"traceforge-hq/traceforge/pkg/telemetry/metrics"
	"traceforge-hq/traceforge/pkg/telemetry/tracing"
	"traceforge-hq/traceforge/pkg/trace"
	"traceforge-hq/traceforge/pkg/trace/breaker"
	"traceforge-hq/traceforge/pkg/trace/recorder"
	"traceforge-hq/traceforge/pkg/trace/retention"
	"traceforge-hq/traceforge/pkg/trace/storage"
	"traceforge-hq/traceforge/pkg/vcr"
)

// components holds the long-lived subsystems the server assembles from
// configuration and tears down on shutdown. Optional pieces (recorder,
// pruner, limiter, metrics) are nil when their feature is disabled.
type components struct {
	store    trace.Store
	breaker  *breaker.Breaker
	recorder *recorder.Recorder
	pruner   *retention.Pruner
	vcr      *vcr.VCR
	limiter  *ratelimit.Limiter
	router   *routing.Router
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	checker  *health.Checker
	gateway  *proxy.Gateway
}

// buildComponents wires the full component graph for cfg. On error the
// partially built graph is closed before returning.
func buildComponents(cfg *config.Config, version string, logger *slog.Logger) (*components, error) {
	c := &components{}

	fail := func(err error) (*components, error) {
		if cerr := c.Close(context.Background()); cerr != nil {
			logger.Warn("cleanup after failed startup", "error", cerr)
		}
		return nil, err
	}

	store, err := buildStore(&cfg.Storage)
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}
	c.store = store

	if cfg.SaveTraces {
		c.breaker = breaker.New(nil)
		c.recorder = recorder.New(store, newRedactor(cfg), c.breaker, nil)
	}

	if cfg.Retention.Enabled && (cfg.Retention.MaxAgeDays > 0 || cfg.Retention.MaxCount > 0) {
		c.pruner = retention.NewPruner(store, c.breaker, &retention.Config{
			Enabled:             true,
			MaxAgeDays:          cfg.Retention.MaxAgeDays,
			MaxCount:            cfg.Retention.MaxCount,
			Schedule:            "@every " + cfg.Retention.CleanupInterval.String(),
			ArchiveBeforeDelete: cfg.Retention.ArchiveBeforeDelete,
			ArchivePath:         cfg.Retention.ArchivePath,
		})
	}

	mode, err := vcr.ParseMode(cfg.VCR.Mode)
	if err != nil {
		return fail(fmt.Errorf("vcr: %w", err))
	}
	match, err := vcr.ParseMatchMode(cfg.VCR.MatchMode)
	if err != nil {
		return fail(fmt.Errorf("vcr: %w", err))
	}
	c.vcr = vcr.New(&vcr.Config{
		Mode:         mode,
		Match:        match,
		CassettesDir: cfg.VCR.CassettesDir,
		Secret:       cfg.VCR.SignatureSecret,
		Logger:       logger,
	})

	if cfg.RateLimit.Enabled {
		c.limiter = ratelimit.New(&ratelimit.Config{
			Ceilings:       cfg.RateLimit.Ceilings,
			DefaultCeiling: cfg.RateLimit.DefaultCeiling,
		})
	}

	router, err := routing.New(routingRules(cfg))
	if err != nil {
		return fail(fmt.Errorf("routing: %w", err))
	}
	c.router = router

	tracer, err := tracing.New(&tracing.Config{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Version:     version,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		Insecure:    cfg.Telemetry.Tracing.Insecure,
		Sampler:     cfg.Telemetry.Tracing.Sampler,
		SampleRatio: cfg.Telemetry.Tracing.SampleRatio,
	})
	if err != nil {
		return fail(fmt.Errorf("tracing: %w", err))
	}
	c.tracer = tracer

	if cfg.Telemetry.Metrics.Enabled {
		c.metrics = metrics.NewCollector(&metrics.Config{Enabled: true}, c.metricSources(), nil)
	}

	c.checker = buildChecker(cfg, version, c)

	c.gateway = proxy.New(&proxy.Config{
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		UpstreamTimeout: cfg.Server.UpstreamTimeout,
	}, proxy.Dependencies{
		Router:   c.router,
		VCR:      c.vcr,
		Recorder: c.recorder,
		Limiter:  c.limiter,
		Metrics:  c.metrics,
		Tracer:   c.tracer,
		Logger:   logger,
	})

	return c, nil
}

// Close tears the components down in dependency order: the recorder
// drains pending traces before the store closes, and the tracer
// flushes spans last. Nil components are skipped, so Close is safe on
// a partially built graph.
func (c *components) Close(ctx context.Context) error {
	var errs []error

	if c.recorder != nil {
		if err := c.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recorder: %w", err))
		}
	}
	if c.pruner != nil {
		c.pruner.Stop()
	}
	if c.router != nil {
		if err := c.router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("router: %w", err))
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rate limiter: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c.tracer != nil {
		if err := c.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}

	return errors.Join(errs...)
}

// buildStore constructs the primary backend plus any configured
// fallbacks and wraps them in the retrying manager.
func buildStore(cfg *config.StorageConfig) (trace.Store, error) {
	primary, err := newBackend(cfg, cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("primary backend: %w", err)
	}

	var fallbacks []trace.Store
	for _, name := range cfg.FallbackChain() {
		if name == cfg.Backend {
			continue
		}
		fb, err := newBackend(cfg, name)
		if err != nil {
			_ = primary.Close()
			for _, opened := range fallbacks {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("fallback backend %q: %w", name, err)
		}
		fallbacks = append(fallbacks, fb)
	}

	return storage.NewManager(primary, fallbacks, &storage.ManagerConfig{
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}), nil
}

func newBackend(cfg *config.StorageConfig, name string) (trace.Store, error) {
	switch name {
	case config.BackendFile:
		return storage.NewFileStore(&storage.FileConfig{
			Root:     cfg.TracesDir,
			TestsDir: cfg.TestsDir,
		})
	case config.BackendSQLite:
		return storage.NewSQLiteStore(&storage.SQLiteConfig{Path: cfg.SQLitePath})
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", name)
	}
}

// routingRules converts configured providers into routing rules.
func routingRules(cfg *config.Config) []routing.Rule {
	rules := make([]routing.Rule, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		rules = append(rules, routing.Rule{
			Provider: providers.ProviderConfig{
				Name:         p.Name,
				Type:         p.Type,
				BaseURL:      p.BaseURL,
				APIKeyEnvVar: p.APIKeyEnvVar,
				Timeout:      p.Timeout,
			},
			Enabled: p.IsEnabled(),
			Default: p.Default,
		})
	}
	return rules
}

// newRedactor builds the trace redactor: the built-in sensitive field
// set extended with the configured extra fields.
func newRedactor(cfg *config.Config) *redact.Redactor {
	rcfg := redact.DefaultConfig()
	rcfg.ExtraFields = append(rcfg.ExtraFields, cfg.RedactFields...)
	return redact.New(rcfg)
}

// metricSources exposes component stats to the metrics collector.
// Sources for disabled components stay nil and read as zero.
func (c *components) metricSources() metrics.Sources {
	sources := metrics.Sources{
		VCR: func() metrics.VCRStats {
			st := c.vcr.Stats()
			return metrics.VCRStats{
				Mode:       st.Mode,
				Hits:       st.Replays,
				Misses:     st.Misses,
				Recordings: st.Recordings,
				Tampered:   st.Tampered,
			}
		},
		Providers: func() map[string]metrics.ProviderHealth {
			snaps := c.router.Health()
			out := make(map[string]metrics.ProviderHealth, len(snaps))
			for name, snap := range snaps {
				out[name] = metrics.ProviderHealth{
					Healthy:             snap.Healthy,
					ConsecutiveFailures: snap.ConsecutiveFailures,
					RequestsTotal:       snap.RequestsTotal,
					FailuresTotal:       snap.FailuresTotal,
				}
			}
			return out
		},
	}

	if c.breaker != nil {
		brk := c.breaker
		sources.Storage = func() metrics.StorageStats {
			m := brk.Metrics()
			return metrics.StorageStats{
				TracesSavedTotal:    m.SavedTotal,
				TracesFailedTotal:   m.FailedTotal,
				ConsecutiveFailures: m.ConsecutiveFailures,
				CircuitOpen:         m.CircuitOpen,
				SuccessRatePercent:  brk.SuccessRate(),
			}
		}
	}

	if c.limiter != nil {
		lim := c.limiter
		sources.RateLimit = func() metrics.RateLimitStats {
			st := lim.Stats()
			return metrics.RateLimitStats{
				ActiveKeys: st.ActiveKeys,
				Allowed:    st.Allowed,
				Rejected:   st.Rejected,
			}
		}
	}

	return sources
}

// buildChecker registers the gateway's health checks. Storage and
// cassette directory probes are critical; a tripped trace breaker and
// all-provider outages only degrade the report.
func buildChecker(cfg *config.Config, version string, c *components) *health.Checker {
	checker := health.NewChecker(&health.Config{Version: version})

	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		checker.Register("storage", health.WritableDir(filepath.Dir(cfg.Storage.SQLitePath)))
	case config.BackendMemory:
		// nothing to probe
	default:
		checker.Register("storage", health.WritableDir(cfg.Storage.TracesDir))
	}

	if m := c.vcr.Mode(); m == vcr.ModeRecord || m == vcr.ModeAuto {
		checker.Register("cassettes", health.WritableDir(cfg.VCR.CassettesDir))
	}

	if c.breaker != nil {
		brk := c.breaker
		checker.RegisterWarn("trace_pipeline", func(ctx context.Context) error {
			if brk.IsOpen() {
				return errors.New("storage circuit open, trace persistence suspended")
			}
			return nil
		})
	}

	checker.RegisterWarn("providers", func(ctx context.Context) error {
		snaps := c.router.Health()
		if len(snaps) == 0 {
			return nil
		}
		for _, snap := range snaps {
			if snap.Healthy {
				return nil
			}
		}
		return errors.New("all providers failing")
	})

	return checker
}
