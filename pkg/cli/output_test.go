package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{
			name:  "text",
			input: "text",
			want:  FormatText,
		},
		{
			name:  "json",
			input: "json",
			want:  FormatJSON,
		},
		{
			name:  "empty defaults to text",
			input: "",
			want:  FormatText,
		},
		{
			name:    "unknown format",
			input:   "yaml",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseOutputFormat(%q) expected error, got nil", tt.input)
				}
				if !strings.Contains(err.Error(), tt.input) {
					t.Errorf("error %q does not name the bad format %q", err, tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOutputFormat(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextFormatter(t *testing.T) {
	formatter := &TextFormatter{}
	buf := &bytes.Buffer{}

	if err := formatter.FormatTo(buf, "test message"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	expected := "test message\n"
	if buf.String() != expected {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), expected)
	}
}

func TestJSONFormatter(t *testing.T) {
	tests := []struct {
		name   string
		data   interface{}
		indent bool
	}{
		{
			name:   "simple string",
			data:   "test",
			indent: false,
		},
		{
			name: "map with indent",
			data: map[string]string{
				"key": "value",
			},
			indent: true,
		},
		{
			name: "struct",
			data: struct {
				Name  string `json:"name"`
				Value int    `json:"value"`
			}{
				Name:  "test",
				Value: 42,
			},
			indent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &JSONFormatter{Indent: tt.indent}
			buf := &bytes.Buffer{}
			if err := formatter.FormatTo(buf, tt.data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}

			var result interface{}
			if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
				t.Errorf("FormatTo() produced invalid JSON: %v", err)
			}
		})
	}
}

func TestJSONFormatterRoundTrip(t *testing.T) {
	formatter := &JSONFormatter{Indent: true}
	data := map[string]string{"test": "value"}
	buf := &bytes.Buffer{}

	if err := formatter.FormatTo(buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Errorf("FormatTo() produced invalid JSON: %v", err)
	}

	if result["test"] != "value" {
		t.Errorf("FormatTo() = %v, want %v", result, data)
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		want   string
	}{
		{
			name:   "text formatter",
			format: FormatText,
			want:   "*cli.TextFormatter",
		},
		{
			name:   "json formatter",
			format: FormatJSON,
			want:   "*cli.JSONFormatter",
		},
		{
			name:   "default to text",
			format: "unknown",
			want:   "*cli.TextFormatter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := NewFormatter(tt.format)
			got := fmt.Sprintf("%T", formatter)
			if got != tt.want {
				t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestWriteTable(t *testing.T) {
	buf := &bytes.Buffer{}
	headers := []string{"ID", "STATUS"}
	rows := [][]string{
		{"tr-1", "success"},
		{"tr-22", "error"},
	}

	if err := WriteTable(buf, headers, rows); err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("WriteTable() produced %d lines, want 3: %q", len(lines), buf.String())
	}

	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "STATUS") {
		t.Errorf("header line = %q, want ID and STATUS columns", lines[0])
	}
	if !strings.HasPrefix(lines[1], "tr-1") {
		t.Errorf("row 1 = %q, want tr-1 first", lines[1])
	}

	// Columns align: STATUS starts at the same offset in every line.
	statusCol := strings.Index(lines[0], "STATUS")
	if got := strings.Index(lines[1], "success"); got != statusCol {
		t.Errorf("row 1 status column at %d, want %d", got, statusCol)
	}
	if got := strings.Index(lines[2], "error"); got != statusCol {
		t.Errorf("row 2 status column at %d, want %d", got, statusCol)
	}
}

func TestWriteTableNoHeaders(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteTable(buf, nil, [][]string{{"only", "row"}}); err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("WriteTable() produced %d lines, want 1", got)
	}
}
