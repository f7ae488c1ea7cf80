package server

import (
	"fmt"
	"net/http"

	"traceforge-hq/traceforge/pkg/proxy/middleware"
)

// routes assembles the route tree and middleware chain. Middleware
// runs outermost first: panic recovery, request ID assignment, access
// logging, then CORS.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/v1/chat/completions", s.comp.gateway.ChatCompletions())
	mux.Handle("/v1/completions", s.comp.gateway.Completions())
	mux.Handle("/v1/embeddings", s.comp.gateway.Embeddings())

	mux.Handle("/health", s.comp.checker.Handler())
	mux.HandleFunc("/health/live", handleLiveness)

	if s.comp.metrics != nil {
		mux.Handle("/metrics", s.comp.metrics.JSONHandler())
		mux.Handle("/metrics/prometheus", s.comp.metrics.PrometheusHandler())
	}

	var handler http.Handler = mux
	handler = middleware.CORSMiddleware(middleware.DefaultCORSConfig())(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	return handler
}

// handleLiveness answers process liveness without touching any
// dependency. Readiness, including storage probes, lives at /health.
func handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	fmt.Fprintln(w, `{"status":"ok"}`)
}
