// Package upstream provides a fake LLM provider for gateway and
// adapter tests. One server speaks every upstream dialect the router
// can select, so end-to-end tests point all providers at a single
// httptest listener.
package upstream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Response is one canned upstream reply, keyed by request path.
type Response struct {
	StatusCode int
	Body       any               // string, []byte, or JSON-marshaled value
	Headers    map[string]string
	Delay      time.Duration

	// SSEChunks streams the reply as server-sent events (OpenAI,
	// Anthropic, Gemini dialects). A trailing [DONE] marker is
	// appended when Done is set.
	SSEChunks []string
	Done      bool

	// NDJSONLines streams the reply as newline-delimited JSON
	// (Ollama dialect).
	NDJSONLines []string
}

// Server is the fake provider. It records every request body so tests
// can assert what the adapters actually sent, or that nothing was
// sent at all during replay.
type Server struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]Response
	calls     int
	lastPath  string
	lastBody  []byte
}

// New starts the fake provider. The caller owns Close.
func New() *Server {
	s := &Server{responses: make(map[string]Response)}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.Close()
}

// Respond registers the reply for a request path.
func (s *Server) Respond(path string, r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = r
}

// Calls returns the number of requests received.
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastRequest returns the path and body of the most recent request.
func (s *Server) LastRequest() (string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPath, s.lastBody
}

// Reset clears the call counter and captured request.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = 0
	s.lastPath = ""
	s.lastBody = nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.calls++
	s.lastPath = r.URL.Path
	s.lastBody = body
	resp, ok := s.responses[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}

	switch {
	case len(resp.SSEChunks) > 0:
		s.streamSSE(w, resp)
	case len(resp.NDJSONLines) > 0:
		s.streamNDJSON(w, resp)
	default:
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		writeBody(w, resp.Body)
	}
}

func (s *Server) streamSSE(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	for _, chunk := range resp.SSEChunks {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}
	if resp.Done {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

func (s *Server) streamNDJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/x-ndjson")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	for _, line := range resp.NDJSONLines {
		fmt.Fprintf(w, "%s\n", line)
		flusher.Flush()
	}
}

func writeBody(w io.Writer, body any) {
	switch v := body.(type) {
	case nil:
	case string:
		_, _ = io.WriteString(w, v)
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}
