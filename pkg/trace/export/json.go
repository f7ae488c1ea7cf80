package export

import (
	"context"
	"encoding/json"
	"io"

	"traceforge-hq/traceforge/pkg/trace"
)

// JSONExporter exports traces as JSON.
type JSONExporter struct {
	// Pretty enables indented output.
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes traces to w. A single trace is written as an object,
// multiple traces as an array. The import tooling accepts both shapes.
func (e *JSONExporter) Export(ctx context.Context, traces []*trace.Trace, w io.Writer) error {
	if len(traces) == 0 {
		_, err := w.Write([]byte("[]"))
		return err
	}

	var data []byte
	var err error

	if len(traces) == 1 {
		data, err = e.serialize(traces[0])
	} else if e.Pretty {
		data, err = json.MarshalIndent(traces, "", "  ")
	} else {
		data, err = json.Marshal(traces)
	}
	if err != nil {
		return trace.NewExportError("json", len(traces), err)
	}

	if _, err := w.Write(data); err != nil {
		return trace.NewExportError("json", len(traces), err)
	}
	return nil
}

// ExportStream writes traces arriving on a channel as a JSON array,
// one element at a time.
func (e *JSONExporter) ExportStream(ctx context.Context, traces <-chan *trace.Trace, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return trace.NewExportError("json", 0, err)
	}

	first := true
	count := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case t, ok := <-traces:
			if !ok {
				if _, err := w.Write([]byte("]")); err != nil {
					return trace.NewExportError("json", count, err)
				}
				return nil
			}

			if !first {
				if _, err := w.Write([]byte(",")); err != nil {
					return trace.NewExportError("json", count, err)
				}
				if e.Pretty {
					if _, err := w.Write([]byte("\n")); err != nil {
						return trace.NewExportError("json", count, err)
					}
				}
			}
			first = false

			data, err := e.serialize(t)
			if err != nil {
				return trace.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return trace.NewExportError("json", count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) serialize(t *trace.Trace) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(t, "", "  ")
	}
	return json.Marshal(t)
}
