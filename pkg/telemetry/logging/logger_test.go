package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func parseLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v\n%s", err, line)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&Config{Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("request completed", "status", 200)

	entries := parseLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1 (debug filtered)", len(entries))
	}
	if entries[0]["msg"] != "request completed" {
		t.Errorf("msg = %v, want %q", entries[0]["msg"], "request completed")
	}
	if entries[0]["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entries[0]["status"])
	}
}

func TestNewLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("starting", "port", 8787)

	out := buf.String()
	if !strings.Contains(out, "msg=starting") || !strings.Contains(out, "port=8787") {
		t.Errorf("text output missing expected fields: %s", out)
	}
}

func TestNewLoggerRejectsBadConfig(t *testing.T) {
	if _, err := NewLogger(&Config{Level: "loud"}); err == nil {
		t.Error("NewLogger with bad level: no error")
	}
	if _, err := NewLogger(&Config{Format: "xml"}); err == nil {
		t.Error("NewLogger with bad format: no error")
	}
}

func TestRedactionMasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&Config{Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("provider selected", "api_key", "sk-live-abcdef123456", "provider", "openai")

	entries := parseLines(t, &buf)
	if got := entries[0]["api_key"]; got != "[REDACTED]" {
		t.Errorf("api_key = %v, want [REDACTED]", got)
	}
	if got := entries[0]["provider"]; got != "openai" {
		t.Errorf("provider = %v, want openai untouched", got)
	}
}

func TestRedactionScrubsSecretPatterns(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&Config{Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Warn("upstream rejected key sk-abcdef12345678", "detail", "sent Bearer abc123token456")

	entries := parseLines(t, &buf)
	msg := entries[0]["msg"].(string)
	if strings.Contains(msg, "sk-abcdef12345678") {
		t.Errorf("message still contains raw key: %s", msg)
	}
	detail := entries[0]["detail"].(string)
	if strings.Contains(detail, "abc123token456") {
		t.Errorf("detail still contains bearer token: %s", detail)
	}
}

func TestRedactionLeavesNumericTokenFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&Config{Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("usage recorded", "prompt_tokens", 15, "completion_tokens", 42)

	entries := parseLines(t, &buf)
	if entries[0]["prompt_tokens"] != float64(15) {
		t.Errorf("prompt_tokens = %v, want 15", entries[0]["prompt_tokens"])
	}
	if entries[0]["completion_tokens"] != float64(42) {
		t.Errorf("completion_tokens = %v, want 42", entries[0]["completion_tokens"])
	}
}

func TestRedactionAppliesToWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&Config{Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.With("auth_token", "sk-persistent-cred-99").Info("attached")

	entries := parseLines(t, &buf)
	if got := entries[0]["auth_token"]; got != "[REDACTED]" {
		t.Errorf("auth_token via With() = %v, want [REDACTED]", got)
	}
}

func TestDisableRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&Config{Writer: &buf, DisableRedaction: true})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("raw", "api_key", "sk-visible-12345678")

	if !strings.Contains(buf.String(), "sk-visible-12345678") {
		t.Error("redaction ran despite DisableRedaction")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContextAttrs(t *testing.T) {
	ctx := context.Background()
	if got := ContextAttrs(ctx); len(got) != 0 {
		t.Fatalf("ContextAttrs(empty) = %v, want none", got)
	}

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSessionID(ctx, "sess-9")
	ctx = WithProvider(ctx, "anthropic")

	attrs := ContextAttrs(ctx)
	if len(attrs) != 6 {
		t.Fatalf("ContextAttrs returned %d elements, want 6", len(attrs))
	}

	pairs := map[string]string{}
	for i := 0; i < len(attrs); i += 2 {
		pairs[attrs[i].(string)] = attrs[i+1].(string)
	}
	if pairs["request_id"] != "req-1" || pairs["session_id"] != "sess-9" || pairs["provider"] != "anthropic" {
		t.Errorf("unexpected context attrs: %v", pairs)
	}

	if got := RequestID(ctx); got != "req-1" {
		t.Errorf("RequestID = %q, want req-1", got)
	}
	if got := Model(ctx); got != "" {
		t.Errorf("Model on unset context = %q, want empty", got)
	}
}

func TestFromContextAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&Config{Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	ctx := WithTraceID(WithModel(context.Background(), "gpt-4"), "tr-77")
	FromContext(ctx, logger).Info("dispatched")

	entries := parseLines(t, &buf)
	if entries[0]["trace_id"] != "tr-77" {
		t.Errorf("trace_id = %v, want tr-77", entries[0]["trace_id"])
	}
	if entries[0]["model"] != "gpt-4" {
		t.Errorf("model = %v, want gpt-4", entries[0]["model"])
	}
}
