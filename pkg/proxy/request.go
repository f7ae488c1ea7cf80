package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// DefaultMaxBodyBytes caps inbound request bodies at 1 MiB.
const DefaultMaxBodyBytes = 1 << 20

// ParsedRequest is the outcome of parsing one inbound body. The raw
// bytes are kept verbatim alongside the typed form: fingerprinting and
// cassette recording need the exact payload the client sent, not a
// re-marshalled one.
type ParsedRequest struct {
	// Endpoint is the logical endpoint (providers.EndpointChat, ...).
	Endpoint string

	// Body is the validated request body, byte for byte.
	Body []byte

	// Model is the requested model identifier.
	Model string

	// Stream is true when the client asked for server-sent events.
	Stream bool

	// Exactly one of the following is set, matching Endpoint.
	Chat       *types.ChatCompletionRequest
	Completion *types.CompletionRequest
	Embeddings *types.EmbeddingsRequest
}

// ParseRequest reads, parses, and schema-validates the request body for
// the given endpoint. The body is decoded exactly once; every later
// stage works from the returned ParsedRequest. A non-nil error response
// is ready to serve as a 400.
func ParseRequest(w http.ResponseWriter, r *http.Request, endpoint string, maxBytes int64) (*ParsedRequest, *types.ErrorResponse) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	body, errResp := readBody(w, r, maxBytes)
	if errResp != nil {
		return nil, errResp
	}

	parsed := &ParsedRequest{Endpoint: endpoint, Body: body}

	switch endpoint {
	case providers.EndpointChat:
		var req types.ChatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, types.NewInvalidRequestError("request body is not valid JSON", "", types.CodeInvalidJSON)
		}
		if err := req.Validate(); err != nil {
			return nil, validationErrorResponse(err)
		}
		parsed.Chat = &req
		parsed.Model = req.Model
		parsed.Stream = req.Stream

	case providers.EndpointCompletion:
		var req types.CompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, types.NewInvalidRequestError("request body is not valid JSON", "", types.CodeInvalidJSON)
		}
		if err := req.Validate(); err != nil {
			return nil, validationErrorResponse(err)
		}
		if req.Stream {
			return nil, types.NewInvalidRequestError(
				"streaming is not supported on /v1/completions", "stream", types.CodeInvalidValue)
		}
		parsed.Completion = &req
		parsed.Model = req.Model

	case providers.EndpointEmbeddings:
		var req types.EmbeddingsRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, types.NewInvalidRequestError("request body is not valid JSON", "", types.CodeInvalidJSON)
		}
		if err := req.Validate(); err != nil {
			return nil, validationErrorResponse(err)
		}
		parsed.Embeddings = &req
		parsed.Model = req.Model

	default:
		return nil, types.NewInvalidRequestError("unknown endpoint", "", "")
	}

	return parsed, nil
}

func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, *types.ErrorResponse) {
	if r.Body == nil {
		return nil, types.NewInvalidRequestError("request body is required", "", types.CodeMissingField)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, types.NewInvalidRequestError(
				fmt.Sprintf("request body exceeds the %d byte limit", maxBytes),
				"", types.CodeRequestTooLarge)
		}
		return nil, types.NewInvalidRequestError("failed to read request body", "", "")
	}
	if len(body) == 0 {
		return nil, types.NewInvalidRequestError("request body is required", "", types.CodeMissingField)
	}
	return body, nil
}

func validationErrorResponse(err error) *types.ErrorResponse {
	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		return types.NewInvalidRequestError(err.Error(), "", "")
	}
	code := types.CodeInvalidValue
	if strings.Contains(ve.Message, "required") {
		code = types.CodeMissingField
	}
	return types.NewInvalidRequestError(ve.Message, ve.Field, code)
}

// ClientIP returns the address the rate limiter keys on: the host part
// of the peer address. Forwarding headers are not consulted; the proxy
// fronts local development and CI traffic, and a spoofable header must
// not mint fresh budgets.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
