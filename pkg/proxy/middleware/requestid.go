package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"traceforge-hq/traceforge/pkg/telemetry/logging"
)

// HeaderRequestID carries the per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware assigns every request a correlation ID. An inbound
// X-Request-ID is kept so callers can correlate across hops; otherwise a
// new UUID is generated. The ID lands in the request context, where the
// log handler picks it up, and is echoed on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set(HeaderRequestID, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
