package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"traceforge-hq/traceforge/pkg/redact"
	"traceforge-hq/traceforge/pkg/trace"
	"traceforge-hq/traceforge/pkg/trace/breaker"
)

var errQueueFull = errors.New("trace queue full")

// Config contains configuration for the trace recorder.
type Config struct {
	// Enabled enables trace recording.
	// Default: true
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing a trace to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Stats is a snapshot of the recorder's counters.
type Stats struct {
	EnqueuedTotal int64 `json:"enqueued_total"`
	DroppedTotal  int64 `json:"dropped_total"`
	QueueDepth    int   `json:"queue_depth"`
}

// Recorder writes traces captured by the proxy to a storage backend.
// Writes happen on a background goroutine; the request path only pays
// for a channel send.
type Recorder struct {
	store     trace.Store
	sink      trace.RedactionSink // nil when the backend keeps no audit
	redactor  atomic.Pointer[redact.Redactor]
	breaker   *breaker.Breaker
	config    *Config
	traceChan chan *trace.Trace
	wg        sync.WaitGroup
	done      chan struct{}
	logger    *slog.Logger

	enqueued atomic.Int64
	dropped  atomic.Int64
}

// New creates a recorder over the given storage backend. A nil redactor
// or breaker is replaced with the package default; a nil config with
// DefaultConfig. The backend's redaction audit capability is discovered
// by interface assertion.
func New(store trace.Store, redactor *redact.Redactor, brk *breaker.Breaker, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if redactor == nil {
		redactor = redact.New(redact.DefaultConfig())
	}
	if brk == nil {
		brk = breaker.New(nil)
	}
	buffer := config.AsyncBuffer
	if buffer <= 0 {
		buffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	sink, _ := store.(trace.RedactionSink)

	r := &Recorder{
		store:     store,
		sink:      sink,
		breaker:   brk,
		config:    config,
		traceChan: make(chan *trace.Trace, buffer),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "trace.recorder"),
	}
	r.redactor.Store(redactor)

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("trace recorder initialized",
		"enabled", config.Enabled,
		"async_buffer", buffer,
		"write_timeout", config.WriteTimeout,
		"audit_sink", sink != nil,
	)

	return r
}

// Record enqueues a trace for asynchronous persistence. It never blocks:
// when the queue is full the trace is dropped, counted, and an error
// returned for the caller to log. Missing identity fields are filled in
// before the trace crosses the channel.
func (r *Recorder) Record(ctx context.Context, t *trace.Trace) error {
	if !r.config.Enabled {
		return nil
	}
	if t == nil {
		return trace.NewRecorderError("", errors.New("nil trace"))
	}

	r.normalize(t)

	select {
	case r.traceChan <- t:
		r.enqueued.Add(1)
		return nil
	case <-r.done:
		r.dropped.Add(1)
		r.logger.Warn("recorder shutting down, dropping trace", "trace_id", t.ID)
		return trace.NewRecorderError(t.ID, context.Canceled)
	default:
		r.dropped.Add(1)
		r.logger.Warn("trace queue full, dropping trace",
			"trace_id", t.ID,
			"queue_capacity", cap(r.traceChan),
		)
		return trace.NewRecorderError(t.ID, errQueueFull)
	}
}

// RecordSync runs the full write pipeline on the calling goroutine. It
// is used by import tooling and anywhere the caller needs the result.
func (r *Recorder) RecordSync(ctx context.Context, t *trace.Trace) error {
	if !r.config.Enabled {
		return nil
	}
	if t == nil {
		return trace.NewRecorderError("", errors.New("nil trace"))
	}

	r.normalize(t)

	if r.breaker.IsOpen() {
		r.dropped.Add(1)
		return trace.NewRecorderError(t.ID, r.breaker.OpenError())
	}

	redacted, entries := r.redactTrace(t)
	if err := r.store.SaveTrace(ctx, redacted); err != nil {
		r.breaker.RecordFailure()
		return trace.NewRecorderError(t.ID, err)
	}
	r.breaker.RecordSuccess()
	r.recordAudit(ctx, redacted.ID, entries)
	return nil
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		EnqueuedTotal: r.enqueued.Load(),
		DroppedTotal:  r.dropped.Load(),
		QueueDepth:    len(r.traceChan),
	}
}

// Breaker exposes the storage circuit breaker for health and metrics.
func (r *Recorder) Breaker() *breaker.Breaker {
	return r.breaker
}

// SetRedactor swaps the redaction policy applied to traces recorded
// from now on. Traces already in the queue finish under the policy
// they were enqueued with or the new one, whichever the worker loads
// first; both are safe.
func (r *Recorder) SetRedactor(redactor *redact.Redactor) {
	if redactor == nil {
		redactor = redact.New(redact.DefaultConfig())
	}
	r.redactor.Store(redactor)
	r.logger.Info("redaction policy updated")
}

// Close drains the queue and waits for pending writes to finish.
func (r *Recorder) Close() error {
	r.logger.Info("shutting down trace recorder")
	close(r.done)
	r.wg.Wait()
	r.logger.Info("trace recorder shut down", "dropped_total", r.dropped.Load())
	return nil
}

// worker drains the trace channel and writes records to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case t := <-r.traceChan:
			r.writeTrace(t)

		case <-r.done:
			if pending := len(r.traceChan); pending > 0 {
				r.logger.Info("draining trace queue before shutdown", "pending_count", pending)
			}
			for {
				select {
				case t := <-r.traceChan:
					r.writeTrace(t)
				default:
					return
				}
			}
		}
	}
}

// writeTrace pushes a single trace through redaction and storage.
func (r *Recorder) writeTrace(t *trace.Trace) {
	if r.breaker.IsOpen() {
		r.dropped.Add(1)
		r.logger.Warn("storage circuit open, dropping trace",
			"trace_id", t.ID,
			"breaker_state", r.breaker.State(),
		)
		return
	}

	redacted, entries := r.redactTrace(t)

	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.store.SaveTrace(ctx, redacted); err != nil {
		r.breaker.RecordFailure()
		r.logger.Error("failed to save trace",
			"trace_id", redacted.ID,
			"error", err,
		)
		return
	}
	r.breaker.RecordSuccess()
	r.recordAudit(ctx, redacted.ID, entries)

	duration := time.Since(start)
	r.logger.Debug("trace recorded",
		"trace_id", redacted.ID,
		"endpoint", redacted.Endpoint,
		"status", redacted.Metadata.Status,
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow trace write",
			"trace_id", redacted.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

// normalize fills identity fields the handlers may leave empty and
// enforces that error traces carry a null response.
func (r *Recorder) normalize(t *trace.Trace) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.SchemaVersion == "" {
		t.SchemaVersion = trace.SchemaVersion
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	if t.Metadata.Status == "" {
		if t.Metadata.Error != "" {
			t.Metadata.Status = trace.StatusError
		} else {
			t.Metadata.Status = trace.StatusSuccess
		}
	}
	if t.Metadata.Status == trace.StatusError {
		t.Response = nil
	}
}

// redactTrace returns a scrubbed copy of the trace plus the audit
// entries describing every substitution. The caller's trace is left
// untouched.
func (r *Recorder) redactTrace(t *trace.Trace) (*trace.Trace, []trace.RedactionEntry) {
	redactor := r.redactor.Load()
	out := *t
	var entries []trace.RedactionEntry
	now := time.Now().UTC()

	collect := func(prefix string, reds []redact.Redaction) {
		for _, red := range reds {
			path := red.Path
			if path == "" {
				path = prefix
			} else {
				path = prefix + "." + path
			}
			entries = append(entries, trace.RedactionEntry{
				TraceID:   t.ID,
				FieldPath: path,
				ValueHash: red.ValueHash,
				Type:      red.Type,
				Timestamp: now,
			})
		}
	}

	if len(t.Request) > 0 {
		doc, reds := redactor.RedactJSONAudited(t.Request)
		out.Request = doc
		collect("request", reds)
	}
	if len(t.Response) > 0 {
		doc, reds := redactor.RedactJSONAudited(t.Response)
		out.Response = doc
		collect("response", reds)
	}
	if len(t.StateSnapshot) > 0 {
		if raw, err := json.Marshal(t.StateSnapshot); err == nil {
			doc, reds := redactor.RedactJSONAudited(raw)
			var snapshot map[string]any
			if err := json.Unmarshal(doc, &snapshot); err == nil {
				out.StateSnapshot = snapshot
				collect("state_snapshot", reds)
			}
		}
	}
	if t.Metadata.Error != "" {
		out.Metadata.Error = redactor.RedactString(t.Metadata.Error)
	}

	return &out, entries
}

// recordAudit stores redaction audit entries. Audit failures are logged
// and swallowed; the trace itself is already durable.
func (r *Recorder) recordAudit(ctx context.Context, traceID string, entries []trace.RedactionEntry) {
	if r.sink == nil || len(entries) == 0 {
		return
	}
	if err := r.sink.RecordRedactions(ctx, traceID, entries); err != nil {
		r.logger.Warn("failed to record redaction audit",
			"trace_id", traceID,
			"entries", len(entries),
			"error", err,
		)
	}
}
