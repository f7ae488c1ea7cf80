// Package retention enforces trace retention policies. A Pruner deletes
// traces past the configured age or count bounds through the storage
// backend's Cleanup operation, optionally archiving them as JSON first.
// A Scheduler runs the pruner on a cron schedule, plus once at startup
// so a long-stopped gateway catches up immediately.
//
// Pruning never interferes with request handling: when the storage
// circuit breaker is open a sweep is skipped with a warning, and sweep
// failures are logged rather than propagated.
//
//	pruner := retention.NewPruner(store, brk, &retention.Config{
//	    Enabled:    true,
//	    MaxAgeDays: 30,
//	    Schedule:   "@every 6h",
//	})
//	pruner.Start(ctx)
//	defer pruner.Stop()
package retention
