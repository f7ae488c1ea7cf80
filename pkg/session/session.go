// Package session propagates session, step, and lineage identifiers
// between related proxy calls. Clients thread a session through custom
// headers; the proxy parses them into the trace, mints a session id
// when none is supplied, and echoes the identifiers plus the next step
// hint on every response, success or error.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"traceforge-hq/traceforge/pkg/trace"
)

// Request headers understood by the session tracker.
const (
	HeaderSessionID      = "X-TraceForge-Session-ID"
	HeaderStepIndex      = "X-TraceForge-Step-Index"
	HeaderParentTraceID  = "X-TraceForge-Parent-Trace-ID"
	HeaderStepID         = "X-TraceForge-Step-ID"
	HeaderParentStepID   = "X-TraceForge-Parent-Step-ID"
	HeaderOrganizationID = "X-TraceForge-Organization-ID"
	HeaderServiceID      = "X-TraceForge-Service-ID"
	HeaderState          = "X-TraceForge-State"
)

// Response headers written on every proxied response.
const (
	HeaderTraceID  = "X-TraceForge-Trace-ID"
	HeaderNextStep = "X-TraceForge-Next-Step"
)

type contextKey struct{}

// Context carries the session fields of one proxied request.
type Context struct {
	SessionID      string
	Minted         bool // session id created by the proxy, not the client
	StepIndex      int
	ParentTraceID  string
	StepID         string
	ParentStepID   string
	OrganizationID string
	ServiceID      string
	State          map[string]any
}

// FromRequest parses the session headers of r. A missing session id is
// replaced with a freshly minted one. Malformed state or step values
// are logged and dropped; they never fail the request.
func FromRequest(r *http.Request, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}

	sc := &Context{
		SessionID:      r.Header.Get(HeaderSessionID),
		ParentTraceID:  r.Header.Get(HeaderParentTraceID),
		StepID:         r.Header.Get(HeaderStepID),
		ParentStepID:   r.Header.Get(HeaderParentStepID),
		OrganizationID: r.Header.Get(HeaderOrganizationID),
		ServiceID:      r.Header.Get(HeaderServiceID),
	}

	if sc.SessionID == "" {
		sc.SessionID = uuid.New().String()
		sc.Minted = true
	}

	if raw := r.Header.Get(HeaderStepIndex); raw != "" {
		step, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			logger.Warn("malformed step index header, ignoring",
				"header", HeaderStepIndex,
				"value", raw,
			)
		case step < 0:
			logger.Warn("negative step index header, ignoring",
				"header", HeaderStepIndex,
				"value", raw,
			)
		default:
			sc.StepIndex = step
		}
	}

	if raw := r.Header.Get(HeaderState); raw != "" {
		var state map[string]any
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			logger.Warn("malformed state header, dropping",
				"header", HeaderState,
				"error", err,
			)
		} else {
			sc.State = state
		}
	}

	return sc
}

// NextStep returns the step index hint for the client's next call.
func (sc *Context) NextStep() int {
	return sc.StepIndex + 1
}

// Apply copies the session fields into a trace.
func (sc *Context) Apply(t *trace.Trace) {
	t.SessionID = sc.SessionID
	step := sc.StepIndex
	t.StepIndex = &step
	if sc.ParentTraceID != "" {
		t.ParentTraceID = sc.ParentTraceID
	}
	if sc.StepID != "" {
		t.StepID = sc.StepID
	}
	if sc.ParentStepID != "" {
		t.ParentStepID = sc.ParentStepID
	}
	if sc.OrganizationID != "" {
		t.OrganizationID = sc.OrganizationID
	}
	if sc.ServiceID != "" {
		t.ServiceID = sc.ServiceID
	}
	if len(sc.State) > 0 {
		t.StateSnapshot = sc.State
	}
}

// WriteHeaders writes the session echo headers. traceID may be empty
// when no trace was recorded, in which case that header is omitted.
func (sc *Context) WriteHeaders(w http.ResponseWriter, traceID string) {
	h := w.Header()
	h.Set(HeaderSessionID, sc.SessionID)
	if traceID != "" {
		h.Set(HeaderTraceID, traceID)
	}
	h.Set(HeaderNextStep, strconv.Itoa(sc.NextStep()))
}

// WithContext returns a copy of ctx carrying the session context.
func WithContext(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// FromContext retrieves the session context, or nil when absent.
func FromContext(ctx context.Context) *Context {
	sc, _ := ctx.Value(contextKey{}).(*Context)
	return sc
}
