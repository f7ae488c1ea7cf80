// Package server assembles the TraceForge gateway process. It builds
// the storage, trace recording, VCR, routing, rate limit, and
// telemetry subsystems from one configuration, binds them into a
// single HTTP handler, and owns startup and graceful shutdown.
//
// # Routes
//
//	POST /v1/chat/completions   chat completions (streaming and non-streaming)
//	POST /v1/completions        legacy text completions
//	POST /v1/embeddings         embeddings
//	GET  /health                dependency health report (503 on critical failure)
//	GET  /health/live           process liveness, no dependency probes
//	GET  /metrics               JSON stats snapshot
//	GET  /metrics/prometheus    Prometheus exposition
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(cfg, version)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until the context is cancelled, SIGINT or SIGTERM
// arrives, or Stop is called. It then drains in-flight requests within
// the configured shutdown timeout and closes components in dependency
// order: the trace recorder drains before its store closes, and the
// span exporter flushes last.
//
// # Runtime reconfiguration
//
// ApplyConfig swaps the provider routing table, the VCR mode and match
// policy, and the redaction field set on a running server. Callers
// typically wire it to a config.Watcher:
//
//	w, _ := config.NewWatcher(path, logger)
//	go w.Watch(ctx, func(cfg *config.Config) {
//	    if err := srv.ApplyConfig(cfg); err != nil {
//	        logger.Error("config apply failed", "error", err)
//	    }
//	})
//
// Listener settings and storage layout are fixed at startup.
package server
