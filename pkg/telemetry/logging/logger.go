package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"traceforge-hq/traceforge/pkg/redact"
)

// Format is the log output format.
type Format string

const (
	// FormatJSON emits one JSON object per line.
	FormatJSON Format = "json"
	// FormatText emits logfmt-style key=value lines.
	FormatText Format = "text"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string

	// Format is the output format: "json" or "text". Default: "json"
	Format string

	// AddSource includes file:line in every record. Default: false
	AddSource bool

	// DisableRedaction turns off the masking of sensitive attribute keys
	// and the scrubbing of secret patterns from string values.
	// Default: false (redaction on)
	DisableRedaction bool

	// Writer receives log output. Default: os.Stdout
	Writer io.Writer
}

// NewLogger builds a slog.Logger from the config without touching the
// process default.
func NewLogger(cfg *Config) (*slog.Logger, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}

	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	format, err := ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}

	writer := c.Writer
	if writer == nil {
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: c.AddSource,
	}

	var handler slog.Handler
	switch format {
	case FormatText:
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	if !c.DisableRedaction {
		handler = &redactingHandler{
			inner:    handler,
			redactor: redact.New(redact.DefaultConfig()),
		}
	}

	return slog.New(handler), nil
}

// Setup builds a logger from the config and installs it as the process
// default, so package loggers created with slog.Default() inherit it.
func Setup(cfg *Config) (*slog.Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel converts a level string into a slog.Level.
// An empty string means info.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "info", "INFO", "":
		return slog.LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

// ParseFormat converts a format string into a Format.
// An empty string means JSON.
func ParseFormat(format string) (Format, error) {
	switch format {
	case "json", "JSON", "":
		return FormatJSON, nil
	case "text", "TEXT":
		return FormatText, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s", format)
	}
}

// redactingHandler masks sensitive attribute keys and scrubs secret
// patterns from string values before passing records to the inner handler.
type redactingHandler struct {
	inner    slog.Handler
	redactor *redact.Redactor
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, h.redactor.RedactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = h.redactAttr(a)
	}
	return &redactingHandler{inner: h.inner.WithAttrs(out), redactor: h.redactor}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

// redactAttr masks string values under sensitive keys and pattern-scans
// all other strings. Non-string values pass through untouched, so numeric
// fields like token counts keep their keys even when the key name contains
// a sensitive substring.
func (h *redactingHandler) redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	switch v.Kind() {
	case slog.KindString:
		if h.redactor.IsSensitiveKey(a.Key) {
			return slog.String(a.Key, h.redactor.Placeholder())
		}
		return slog.String(a.Key, h.redactor.RedactString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		out := make([]any, 0, len(group))
		for _, ga := range group {
			out = append(out, h.redactAttr(ga))
		}
		return slog.Group(a.Key, out...)
	default:
		return a
	}
}
