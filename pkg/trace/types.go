package trace

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current trace record shape version. Records
// carrying an older version are upgraded on load (see Upgrade).
const SchemaVersion = "2.0"

// Trace status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Sort columns accepted by ListOptions.SortBy.
const (
	SortByTimestamp = "timestamp"
	SortByDuration  = "duration"
	SortByModel     = "model"
)

// Sort directions accepted by ListOptions.SortOrder.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Trace is the canonical record of one upstream interaction. It is
// built by the recorder after redaction and persisted by a Store.
type Trace struct {
	// Identity
	ID            string `json:"id"`             // UUID v4
	SchemaVersion string `json:"schema_version"` // Record shape version

	// Placement
	Timestamp time.Time `json:"timestamp"` // Wall clock, UTC
	Endpoint  string    `json:"endpoint"`  // Logical endpoint, e.g. "/v1/messages (Anthropic)"

	// Payloads, verbatim apart from redaction
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"` // null iff Metadata.Status == "error"

	Metadata Metadata `json:"metadata"`

	// Session linkage (optional)
	SessionID     string         `json:"session_id,omitempty"`
	StepIndex     *int           `json:"step_index,omitempty"` // 0-based
	ParentTraceID string         `json:"parent_trace_id,omitempty"`
	StateSnapshot map[string]any `json:"state_snapshot,omitempty"` // Opaque client state

	// Workflow DAG (optional)
	StepID       string `json:"step_id,omitempty"`
	ParentStepID string `json:"parent_step_id,omitempty"`

	// Tenancy (optional)
	OrganizationID string `json:"organization_id,omitempty"`
	ServiceID      string `json:"service_id,omitempty"`
}

// Metadata captures call-level measurements for a trace.
type Metadata struct {
	DurationMS          int64  `json:"duration_ms"`                      // Total handling time
	TokensUsed          *int   `json:"tokens_used,omitempty"`            // Total tokens, when reported
	Model               string `json:"model,omitempty"`                  // Requested model
	Status              string `json:"status"`                           // "success" or "error"
	Error               string `json:"error,omitempty"`                  // Failure description
	FirstChunkLatencyMS *int64 `json:"first_chunk_latency_ms,omitempty"` // Streaming only
	StreamDurationMS    *int64 `json:"stream_duration_ms,omitempty"`     // Streaming only
}

// New returns a trace skeleton with a fresh UUID, the current schema
// version, and a UTC timestamp. Callers fill payloads and metadata.
func New(endpoint string, request json.RawMessage) *Trace {
	return &Trace{
		ID:            uuid.NewString(),
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		Endpoint:      endpoint,
		Request:       request,
	}
}

// TestCase is a declarative check persisted alongside traces. The
// proxy stores and serves test cases but never interprets assertions;
// execution is an external runner's concern.
type TestCase struct {
	ID          string          `json:"id"`   // UUID v4
	Name        string          `json:"name"` // Human-readable, unique per suite
	Description string          `json:"description,omitempty"`
	Request     json.RawMessage `json:"request"`              // Request to replay
	Assertions  json.RawMessage `json:"assertions,omitempty"` // Opaque to the proxy
	Fixtures    json.RawMessage `json:"fixtures,omitempty"`   // Opaque to the proxy
	Tags        []string        `json:"tags,omitempty"`
	PolicyRefs  []string        `json:"policy_refs,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ListFilter narrows a trace listing.
type ListFilter struct {
	Model    string     `json:"model,omitempty"`     // Exact model match
	Status   string     `json:"status,omitempty"`    // "success" or "error"
	DateFrom *time.Time `json:"date_from,omitempty"` // Inclusive lower bound
	DateTo   *time.Time `json:"date_to,omitempty"`   // Inclusive upper bound
}

// ListOptions controls pagination, ordering, and filtering of trace
// listings. Zero values fall back to the defaults applied by
// WithDefaults.
type ListOptions struct {
	Limit     int        `json:"limit,omitempty"`      // Max records, default 100
	Offset    int        `json:"offset,omitempty"`     // Skip N records
	SortBy    string     `json:"sort_by,omitempty"`    // timestamp, duration, model
	SortOrder string     `json:"sort_order,omitempty"` // asc, desc
	Filter    ListFilter `json:"filter,omitempty"`
}

// DefaultListOptions returns the listing defaults: newest first, one
// page of 100.
func DefaultListOptions() *ListOptions {
	return &ListOptions{
		Limit:     100,
		SortBy:    SortByTimestamp,
		SortOrder: SortDesc,
	}
}

// WithDefaults returns a copy of o with unset fields replaced by
// defaults and unknown sort parameters coerced to safe values. A nil
// receiver yields DefaultListOptions.
func (o *ListOptions) WithDefaults() *ListOptions {
	if o == nil {
		return DefaultListOptions()
	}
	out := *o
	if out.Limit <= 0 {
		out.Limit = 100
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	switch out.SortBy {
	case SortByTimestamp, SortByDuration, SortByModel:
	default:
		out.SortBy = SortByTimestamp
	}
	switch out.SortOrder {
	case SortAsc, SortDesc:
	default:
		out.SortOrder = SortDesc
	}
	return &out
}

// Matches reports whether t passes every set field of the filter.
func (f *ListFilter) Matches(t *Trace) bool {
	if f == nil {
		return true
	}
	if f.Model != "" && t.Metadata.Model != f.Model {
		return false
	}
	if f.Status != "" && t.Metadata.Status != f.Status {
		return false
	}
	if f.DateFrom != nil && t.Timestamp.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && t.Timestamp.After(*f.DateTo) {
		return false
	}
	return true
}

// SessionMetadata summarizes the traces sharing one session id.
type SessionMetadata struct {
	SessionID       string    `json:"session_id"`
	TraceCount      int       `json:"trace_count"`
	FirstSeen       time.Time `json:"first_seen"`        // Earliest trace timestamp
	LastSeen        time.Time `json:"last_seen"`         // Latest trace timestamp
	TotalDurationMS int64     `json:"total_duration_ms"` // Sum over member traces
	Models          []string  `json:"models,omitempty"`  // Distinct models, sorted
}

// Store defines the interface for trace storage backends.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	// SaveTrace persists a trace record. Saving an existing id
	// replaces the stored record.
	SaveTrace(ctx context.Context, t *Trace) error

	// GetTrace retrieves a trace by id. Returns a *NotFoundError
	// when no such trace exists.
	GetTrace(ctx context.Context, id string) (*Trace, error)

	// ListTraces returns traces matching opts. A nil opts means
	// DefaultListOptions. Returns an empty slice when nothing
	// matches.
	ListTraces(ctx context.Context, opts *ListOptions) ([]*Trace, error)

	// DeleteTrace removes a trace by id. Returns a *NotFoundError
	// when no such trace exists.
	DeleteTrace(ctx context.Context, id string) error

	// CountTraces returns the total number of stored traces.
	CountTraces(ctx context.Context) (int64, error)

	// ListSessionTraces returns every trace carrying the session id,
	// ordered by step index ascending (ties broken by timestamp).
	ListSessionTraces(ctx context.Context, sessionID string) ([]*Trace, error)

	// GetSessionMetadata summarizes a session. Returns a
	// *NotFoundError when the session has no traces.
	GetSessionMetadata(ctx context.Context, sessionID string) (*SessionMetadata, error)

	// SaveTest persists a test case, replacing any record with the
	// same id.
	SaveTest(ctx context.Context, tc *TestCase) error

	// GetTest retrieves a test case by id.
	GetTest(ctx context.Context, id string) (*TestCase, error)

	// ListTests returns all stored test cases, newest first.
	ListTests(ctx context.Context) ([]*TestCase, error)

	// DeleteTest removes a test case by id.
	DeleteTest(ctx context.Context, id string) error

	// Cleanup deletes traces older than maxAge (when maxAge > 0) and
	// then trims the store to the newest maxCount traces (when
	// maxCount > 0). Returns the number of traces removed.
	Cleanup(ctx context.Context, maxAge time.Duration, maxCount int) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Searcher is an optional capability of Store implementations backed
// by a full-text index.
type Searcher interface {
	// SearchTraces runs a full-text query over endpoint, request
	// messages, response content, and model, ranked by relevance.
	SearchTraces(ctx context.Context, query string, opts *ListOptions) ([]*Trace, error)

	// SearchCount returns the number of traces matching the query.
	SearchCount(ctx context.Context, query string) (int64, error)

	// SearchSuggest returns up to limit model and endpoint values
	// with the given prefix, for interactive completion.
	SearchSuggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

// RedactionSink is an optional capability of Store implementations
// that keep a redaction audit trail alongside traces.
type RedactionSink interface {
	// RecordRedactions appends audit entries describing what was
	// redacted from the trace before persistence.
	RecordRedactions(ctx context.Context, traceID string, entries []RedactionEntry) error
}

// RedactionEntry is one redaction audit row.
type RedactionEntry struct {
	TraceID    string    `json:"trace_id"`
	FieldPath  string    `json:"field_path"`     // JSON path of the scrubbed value
	ValueHash  string    `json:"value_hash"`     // SHA-256 of the original value
	Type       string    `json:"redaction_type"` // "field_path" or "pattern"
	Timestamp  time.Time `json:"timestamp"`
	User       string    `json:"user,omitempty"`
	Reversible bool      `json:"reversible"`
}

// Exporter writes traces to an output stream in a fixed format.
type Exporter interface {
	// Export writes the given traces to w. Returns an error if the
	// export fails; partial output may have been written.
	Export(ctx context.Context, traces []*Trace, w io.Writer) error
}
