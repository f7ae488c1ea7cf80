package providers

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// maxSSELineSize bounds a single server-sent event line. Tool-call
// arguments can make individual chunks large.
const maxSSELineSize = 1024 * 1024

// SSEEvent is one server-sent event as read off the wire.
type SSEEvent struct {
	// Type is the value of the "event:" field, empty when absent.
	Type string

	// Data is the joined value of the "data:" field lines.
	Data string
}

// SSEReader reads server-sent events from an upstream response body.
// It handles multi-line data fields and ignores comments, ids, and retry
// hints. All streaming adapters share it.
type SSEReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

// NewSSEReader wraps an upstream response body in an event reader. The
// reader owns the body and closes it on Close.
func NewSSEReader(body io.ReadCloser) *SSEReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEReader{
		body:    body,
		scanner: scanner,
	}
}

// Next reads the next event. Returns io.EOF when the stream ends
// normally and the context error when ctx is cancelled mid-read.
func (r *SSEReader) Next(ctx context.Context) (*SSEEvent, error) {
	if r.closed {
		return nil, io.EOF
	}

	var eventType string
	var dataLines []string

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, err
			}
			// Emit a trailing event that was not terminated by a blank
			// line before reporting end of stream.
			if eventType != "" || len(dataLines) > 0 {
				return &SSEEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}, nil
			}
			return nil, io.EOF
		}

		line := r.scanner.Text()

		// Blank line terminates the event.
		if line == "" {
			if eventType != "" || len(dataLines) > 0 {
				return &SSEEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}, nil
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// Other fields (id, retry) and comments are ignored.
	}
}

// Close closes the underlying response body. Safe to call more than once.
func (r *SSEReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.body.Close()
}
