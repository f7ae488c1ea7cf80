package types

// ErrorResponse represents an OpenAI-compatible error response.
// This is returned for all error conditions to ensure compatibility with
// OpenAI SDKs and tools.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message. It never contains
	// secrets, stack traces, or internal paths.
	Message string `json:"message"`

	// Type categorizes the error. See the ErrorType constants.
	Type string `json:"type"`

	// Param is the name of the parameter that caused the error (if applicable).
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details carries optional structured context, such as the upstream
	// status or the fingerprint of a missing cassette.
	Details map[string]any `json:"details,omitempty"`
}

// Error type constants. Clients branch on these values, so they are part
// of the wire contract and must stay stable.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeRateLimit indicates the per-client provider budget was
	// exhausted (429).
	ErrorTypeRateLimit = "rate_limit_error"

	// ErrorTypeProvider indicates a generic upstream provider failure.
	// The response status mirrors the upstream status when one was
	// received, otherwise 502.
	ErrorTypeProvider = "provider_error"

	// ErrorTypeAnthropic indicates an error surfaced by the Anthropic
	// adapter.
	ErrorTypeAnthropic = "anthropic_error"

	// ErrorTypeGemini indicates an error surfaced by the Gemini adapter.
	ErrorTypeGemini = "gemini_error"

	// ErrorTypeOllama indicates an error surfaced by the Ollama adapter.
	ErrorTypeOllama = "ollama_error"

	// ErrorTypeStorage indicates a trace persistence failure (500).
	// Storage failures are normally logged without affecting the client
	// response; this type appears only on endpoints whose purpose is
	// storage access.
	ErrorTypeStorage = "storage_error"

	// ErrorTypeVCRMiss indicates replay mode found no cassette for the
	// request fingerprint (500).
	ErrorTypeVCRMiss = "vcr_miss"

	// ErrorTypeStrictMiss indicates strict mode found no cassette (500).
	ErrorTypeStrictMiss = "strict_miss"

	// ErrorTypeStrictRecordForbidden indicates a recording was attempted
	// in strict mode (500).
	ErrorTypeStrictRecordForbidden = "strict_record_forbidden"

	// ErrorTypeCassetteTamper indicates a cassette failed signature
	// verification (500).
	ErrorTypeCassetteTamper = "cassette_tamper"

	// ErrorTypeTimeout indicates the upstream call exceeded the request
	// deadline (504).
	ErrorTypeTimeout = "timeout_error"

	// ErrorTypeServer indicates an unexpected internal failure, such as a
	// recovered panic (500).
	ErrorTypeServer = "server_error"
)

// Error code constants for common error scenarios.
const (
	// CodeMissingField indicates a required field is missing.
	CodeMissingField = "missing_field"

	// CodeInvalidValue indicates a field has an invalid value.
	CodeInvalidValue = "invalid_value"

	// CodeInvalidJSON indicates the request body is not valid JSON.
	CodeInvalidJSON = "invalid_json"

	// CodeRequestTooLarge indicates the request payload is too large.
	CodeRequestTooLarge = "request_too_large"

	// CodeProviderTimeout indicates the provider request timed out.
	CodeProviderTimeout = "provider_timeout"

	// CodeProviderUnreachable indicates the provider could not be
	// reached at the transport level.
	CodeProviderUnreachable = "provider_unreachable"
)

// NewErrorResponse creates a new error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates an error response for invalid requests (400).
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewRateLimitError creates an error response for exhausted rate budgets (429).
func NewRateLimitError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeRateLimit, "", "")
}

// NewProviderError creates an error response attributed to the given
// provider type. Known providers get their own error type so clients can
// distinguish upstream failures per backend.
func NewProviderError(providerType, message string) *ErrorResponse {
	return NewErrorResponse(message, ProviderErrorType(providerType), "", "")
}

// ProviderErrorType maps a provider type to its wire error type.
func ProviderErrorType(providerType string) string {
	switch providerType {
	case "anthropic":
		return ErrorTypeAnthropic
	case "gemini":
		return ErrorTypeGemini
	case "ollama":
		return ErrorTypeOllama
	default:
		return ErrorTypeProvider
	}
}

// NewTimeoutError creates an error response for upstream deadline
// overruns (504).
func NewTimeoutError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeTimeout, "", CodeProviderTimeout)
}

// NewStorageError creates an error response for storage failures (500).
func NewStorageError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeStorage, "", "")
}

// NewServerError creates an error response for unexpected internal
// failures (500). The message must stay generic; internals are logged,
// never sent to the client.
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServer, "", "")
}

// NewVCRMissError creates an error response for a replay miss (500).
// The message is expected to carry the request fingerprint.
func NewVCRMissError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeVCRMiss, "", "")
}

// NewStrictMissError creates an error response for a strict-mode miss (500).
func NewStrictMissError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeStrictMiss, "", "")
}

// NewStrictRecordForbiddenError creates an error response for a recording
// attempt in strict mode (500).
func NewStrictRecordForbiddenError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeStrictRecordForbidden, "", "")
}

// NewCassetteTamperError creates an error response for a cassette that
// failed signature verification (500).
func NewCassetteTamperError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeCassetteTamper, "", "")
}

// WithDetails attaches structured context to the error and returns the
// response for chaining.
func (e *ErrorResponse) WithDetails(details map[string]any) *ErrorResponse {
	e.Error.Details = details
	return e
}

// HTTPStatusCode returns the default HTTP status code for the error type.
// Handlers override it when the upstream supplied a concrete status.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return 400
	case ErrorTypeRateLimit:
		return 429
	case ErrorTypeProvider, ErrorTypeAnthropic, ErrorTypeGemini, ErrorTypeOllama:
		return 502
	case ErrorTypeTimeout:
		return 504
	case ErrorTypeStorage, ErrorTypeServer, ErrorTypeVCRMiss, ErrorTypeStrictMiss,
		ErrorTypeStrictRecordForbidden, ErrorTypeCassetteTamper:
		return 500
	default:
		return 500
	}
}
