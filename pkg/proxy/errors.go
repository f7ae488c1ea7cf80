package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
	"traceforge-hq/traceforge/pkg/vcr"
)

// MapError converts a dispatch or VCR failure into the client-facing
// error envelope and status. Messages are client-safe: transport causes,
// cassette paths, and anything else internal stays in the logs.
//
// Status mapping: timeouts 504, transport failures 502, upstream-typed
// failures mirror the upstream status, VCR failures 500.
func MapError(providerType string, err error) (*types.ErrorResponse, int) {
	var (
		timeoutErr   *providers.TimeoutError
		transportErr *providers.TransportError
		upstreamErr  *providers.UpstreamError
		parseErr     *providers.ParseError
		streamErr    *providers.StreamError
		tamperErr    *vcr.TamperError
	)

	switch {
	case errors.As(err, &tamperErr):
		// Tampering is never reported as a miss. The stored path stays
		// out of the message.
		msg := fmt.Sprintf(
			"cassette failed signature verification: recording was modified or signed with a different secret (fingerprint %s)",
			tamperErr.Fingerprint)
		return types.NewCassetteTamperError(msg), http.StatusInternalServerError

	case vcr.IsStrictMiss(err):
		return types.NewStrictMissError(err.Error()), http.StatusInternalServerError

	case vcr.IsRecordForbidden(err):
		return types.NewStrictRecordForbiddenError(err.Error()), http.StatusInternalServerError

	case vcr.IsMiss(err):
		return types.NewVCRMissError(err.Error()), http.StatusInternalServerError

	case errors.As(err, &timeoutErr):
		return types.NewTimeoutError(timeoutErr.Error()), http.StatusGatewayTimeout

	case errors.As(err, &transportErr):
		errResp := types.NewProviderError(providerType,
			fmt.Sprintf("provider %q is unreachable", transportErr.Provider))
		errResp.Error.Code = types.CodeProviderUnreachable
		return errResp, http.StatusBadGateway

	case errors.As(err, &upstreamErr):
		// The adapter already normalized the upstream error envelope.
		var errResp types.ErrorResponse
		if json.Unmarshal(upstreamErr.Body, &errResp) == nil && errResp.Error.Message != "" {
			return &errResp, upstreamErr.Status
		}
		return types.NewProviderError(providerType,
			fmt.Sprintf("provider returned status %d", upstreamErr.Status)), upstreamErr.Status

	case errors.As(err, &parseErr):
		return types.NewProviderError(providerType,
			"provider returned an unparsable response"), http.StatusBadGateway

	case errors.As(err, &streamErr):
		return types.NewProviderError(providerType,
			"stream interrupted by an upstream failure"), http.StatusBadGateway

	case errors.Is(err, context.DeadlineExceeded):
		return types.NewTimeoutError("upstream request exceeded the deadline"), http.StatusGatewayTimeout

	default:
		return types.NewServerError(
			"An internal error occurred. Please try again later."), http.StatusInternalServerError
	}
}
