package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// FormatText renders human-readable tables and summaries (default).
	FormatText OutputFormat = "text"
	// FormatJSON renders machine-readable JSON.
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --format flag value. An empty value
// means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (valid: text, json)", s)
	}
}

// Formatter renders command results to a writer.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// TextFormatter prints data with fmt's default formatting, one value
// per call.
type TextFormatter struct{}

// FormatTo writes data to w in text form.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter renders data as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes data to w as a JSON document.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// NewFormatter returns the formatter for format. Unknown formats fall
// back to text.
func NewFormatter(format OutputFormat) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{Indent: true}
	}
	return &TextFormatter{}
}

// WriteTable renders rows under headers with aligned columns.
func WriteTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(headers) > 0 {
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
