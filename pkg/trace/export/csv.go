package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"traceforge-hq/traceforge/pkg/trace"
)

// CSVExporter exports traces as CSV rows. Nested request and response
// documents are embedded as JSON strings; the csv writer handles the
// quoting.
type CSVExporter struct {
	// IncludeHeader writes a column-name row first.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Export writes traces to w in CSV format.
func (e *CSVExporter) Export(ctx context.Context, traces []*trace.Trace, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return trace.NewExportError("csv", len(traces), err)
		}
	}

	for _, t := range traces {
		if err := writer.Write(traceToRow(t)); err != nil {
			return trace.NewExportError("csv", len(traces), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return trace.NewExportError("csv", len(traces), err)
	}
	return nil
}

// ExportStream writes traces arriving on a channel as CSV rows,
// flushing every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, traces <-chan *trace.Trace, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return trace.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case t, ok := <-traces:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return trace.NewExportError("csv", count, err)
				}
				return nil
			}

			if err := writer.Write(traceToRow(t)); err != nil {
				return trace.NewExportError("csv", count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return trace.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func headerRow() []string {
	return []string{
		"id", "schema_version", "timestamp", "endpoint",
		"model", "status", "duration_ms", "tokens_used",
		"first_chunk_latency_ms", "stream_duration_ms",
		"session_id", "step_index", "parent_trace_id",
		"step_id", "parent_step_id",
		"organization_id", "service_id",
		"error", "request", "response",
	}
}

func traceToRow(t *trace.Trace) []string {
	formatTime := func(ts time.Time) string {
		if ts.IsZero() {
			return ""
		}
		return ts.Format(time.RFC3339Nano)
	}
	formatIntPtr := func(p *int) string {
		if p == nil {
			return ""
		}
		return strconv.Itoa(*p)
	}
	formatInt64Ptr := func(p *int64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatInt(*p, 10)
	}

	return []string{
		t.ID,
		t.SchemaVersion,
		formatTime(t.Timestamp),
		t.Endpoint,
		t.Metadata.Model,
		t.Metadata.Status,
		strconv.FormatInt(t.Metadata.DurationMS, 10),
		formatIntPtr(t.Metadata.TokensUsed),
		formatInt64Ptr(t.Metadata.FirstChunkLatencyMS),
		formatInt64Ptr(t.Metadata.StreamDurationMS),
		t.SessionID,
		formatIntPtr(t.StepIndex),
		t.ParentTraceID,
		t.StepID,
		t.ParentStepID,
		t.OrganizationID,
		t.ServiceID,
		t.Metadata.Error,
		string(t.Request),
		string(t.Response),
	}
}
