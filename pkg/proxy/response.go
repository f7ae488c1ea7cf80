package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"traceforge-hq/traceforge/pkg/proxy/types"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope, deriving the status from the
// error type.
func WriteError(w http.ResponseWriter, errResp *types.ErrorResponse) {
	WriteJSON(w, errResp.Error.HTTPStatusCode(), errResp)
}

// WriteErrorStatus writes an error envelope with an explicit status,
// used when the upstream supplied a concrete status to mirror.
func WriteErrorStatus(w http.ResponseWriter, status int, errResp *types.ErrorResponse) {
	WriteJSON(w, status, errResp)
}

// WriteUpstream passes an upstream response through: preserved headers,
// original status, body byte for byte.
func WriteUpstream(w http.ResponseWriter, status int, headers map[string]string, body []byte) {
	for key, value := range headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// SetSSEHeaders prepares the response for a server-sent event stream.
// Must be called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteSSEChunk writes one data frame and flushes it to the client.
func WriteSSEChunk(w http.ResponseWriter, flusher http.Flusher, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// WriteSSEDone terminates the stream with the [DONE] sentinel.
func WriteSSEDone(w http.ResponseWriter, flusher http.Flusher) {
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// WriteSSEError emits an error envelope as a stream frame. Used for
// failures after the stream headers are already on the wire, where a
// status change is no longer possible.
func WriteSSEError(w http.ResponseWriter, flusher http.Flusher, errResp *types.ErrorResponse) {
	payload, err := json.Marshal(errResp)
	if err != nil {
		return
	}
	_ = WriteSSEChunk(w, flusher, payload)
}
