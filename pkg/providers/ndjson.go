package providers

import (
	"bufio"
	"context"
	"io"
)

// NDJSONReader reads newline-delimited JSON objects from an upstream
// response body. Ollama streams this format instead of server-sent
// events.
type NDJSONReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

// NewNDJSONReader wraps an upstream response body in a line reader. The
// reader owns the body and closes it on Close.
func NewNDJSONReader(body io.ReadCloser) *NDJSONReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &NDJSONReader{
		body:    body,
		scanner: scanner,
	}
}

// Next reads the next non-empty line. Returns io.EOF when the stream
// ends normally and the context error when ctx is cancelled mid-read.
func (r *NDJSONReader) Next(ctx context.Context) ([]byte, error) {
	if r.closed {
		return nil, io.EOF
	}

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
			return nil, io.EOF
		}

		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer on the next Scan.
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
}

// Close closes the underlying response body. Safe to call more than once.
func (r *NDJSONReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.body.Close()
}
