package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
	"traceforge-hq/traceforge/pkg/vcr"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
		wantInMsg  string
		neverInMsg string
	}{
		{
			name:       "replay miss carries fingerprint",
			err:        vcr.NewMissError("openai", "abc123"),
			wantStatus: http.StatusInternalServerError,
			wantType:   types.ErrorTypeVCRMiss,
			wantInMsg:  "abc123",
		},
		{
			name:       "strict miss",
			err:        vcr.NewStrictMissError("openai", "def456"),
			wantStatus: http.StatusInternalServerError,
			wantType:   types.ErrorTypeStrictMiss,
			wantInMsg:  "strict mode",
		},
		{
			name:       "record forbidden",
			err:        vcr.NewRecordForbiddenError("openai", "def456"),
			wantStatus: http.StatusInternalServerError,
			wantType:   types.ErrorTypeStrictRecordForbidden,
			wantInMsg:  "forbidden",
		},
		{
			name:       "tamper hides cassette path",
			err:        vcr.NewTamperError("openai", "fp789", "/var/lib/traceforge/cassettes/openai/fp789.json"),
			wantStatus: http.StatusInternalServerError,
			wantType:   types.ErrorTypeCassetteTamper,
			wantInMsg:  "fp789",
			neverInMsg: "/var/lib",
		},
		{
			name:       "timeout",
			err:        &providers.TimeoutError{Provider: "openai", Timeout: 30 * time.Second},
			wantStatus: http.StatusGatewayTimeout,
			wantType:   types.ErrorTypeTimeout,
			wantCode:   types.CodeProviderTimeout,
		},
		{
			name:       "transport failure hides dial cause",
			err:        &providers.TransportError{Provider: "openai", Cause: errors.New("dial tcp 10.0.0.5:443: connect: connection refused")},
			wantStatus: http.StatusBadGateway,
			wantType:   types.ErrorTypeProvider,
			wantCode:   types.CodeProviderUnreachable,
			wantInMsg:  "unreachable",
			neverInMsg: "10.0.0.5",
		},
		{
			name: "upstream error passes envelope and status through",
			err: &providers.UpstreamError{
				Provider: "openai",
				Status:   http.StatusTooManyRequests,
				Body:     json.RawMessage(`{"error":{"message":"Rate limit reached for gpt-4","type":"rate_limit_error"}}`),
			},
			wantStatus: http.StatusTooManyRequests,
			wantType:   types.ErrorTypeRateLimit,
			wantInMsg:  "Rate limit reached",
		},
		{
			name: "upstream error with empty body gets a synthesized message",
			err: &providers.UpstreamError{
				Provider: "openai",
				Status:   http.StatusServiceUnavailable,
				Body:     json.RawMessage(`{}`),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantType:   types.ErrorTypeProvider,
			wantInMsg:  "status 503",
		},
		{
			name:       "parse error",
			err:        &providers.ParseError{Provider: "gemini", RawResponse: "<html>bad gateway</html>", Cause: errors.New("invalid character '<'")},
			wantStatus: http.StatusBadGateway,
			wantType:   types.ErrorTypeProvider,
			wantInMsg:  "unparsable",
			neverInMsg: "<html>",
		},
		{
			name:       "stream error",
			err:        &providers.StreamError{Provider: "openai", Message: "stream read failed", Cause: errors.New("unexpected EOF")},
			wantStatus: http.StatusBadGateway,
			wantType:   types.ErrorTypeProvider,
			wantInMsg:  "interrupted",
		},
		{
			name:       "bare deadline",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   types.ErrorTypeTimeout,
		},
		{
			name:       "unknown error stays generic",
			err:        errors.New("pq: connection reset while writing trace row"),
			wantStatus: http.StatusInternalServerError,
			wantType:   types.ErrorTypeServer,
			neverInMsg: "pq:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errResp, status := MapError("openai", tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if errResp.Error.Type != tt.wantType {
				t.Errorf("type = %q, want %q", errResp.Error.Type, tt.wantType)
			}
			if tt.wantCode != "" && errResp.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", errResp.Error.Code, tt.wantCode)
			}
			if tt.wantInMsg != "" && !strings.Contains(errResp.Error.Message, tt.wantInMsg) {
				t.Errorf("message %q does not contain %q", errResp.Error.Message, tt.wantInMsg)
			}
			if tt.neverInMsg != "" && strings.Contains(errResp.Error.Message, tt.neverInMsg) {
				t.Errorf("message %q leaks %q", errResp.Error.Message, tt.neverInMsg)
			}
		})
	}
}

func TestMapError_ProviderTypedEnvelope(t *testing.T) {
	errResp, _ := MapError("anthropic", &providers.TransportError{Provider: "anthropic", Cause: errors.New("refused")})
	if errResp.Error.Type != types.ErrorTypeAnthropic {
		t.Errorf("type = %q, want %q", errResp.Error.Type, types.ErrorTypeAnthropic)
	}
}

func TestMapError_WrappedErrorsStillMatch(t *testing.T) {
	wrapped := errors.Join(errors.New("dispatch"), vcr.NewMissError("openai", "zz9"))
	errResp, status := MapError("openai", wrapped)
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
	if errResp.Error.Type != types.ErrorTypeVCRMiss {
		t.Errorf("type = %q, want %q", errResp.Error.Type, types.ErrorTypeVCRMiss)
	}
}
