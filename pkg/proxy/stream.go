package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	oteltrace "go.opentelemetry.io/otel/trace"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
	"traceforge-hq/traceforge/pkg/routing"
	"traceforge-hq/traceforge/pkg/session"
	"traceforge-hq/traceforge/pkg/telemetry/metrics"
	"traceforge-hq/traceforge/pkg/telemetry/tracing"
	"traceforge-hq/traceforge/pkg/trace"
	"traceforge-hq/traceforge/pkg/vcr"
)

// handleStream proxies a streaming chat completion. Chunks are forwarded
// as SSE frames the moment they arrive and accumulated on the side; when
// the stream ends the aggregate becomes the trace response and, in
// recording modes, the cassette body. Replaying that cassette later
// serves the aggregate as a plain JSON response.
//
// No deadline wraps the stream context: the transport's header timeout
// bounds dispatch, and a fixed deadline would cut off long generations.
// Client disconnects cancel the context and end the upstream read.
func (g *Gateway) handleStream(ctx context.Context, w http.ResponseWriter, span oteltrace.Span, sess *session.Context, sel *routing.Selection, parsed *ParsedRequest, fingerprint string, start time.Time) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("response writer does not support flushing", "provider", sel.Name)
		sess.WriteHeaders(w, "")
		WriteError(w, types.NewServerError("streaming is not supported by this server configuration"))
		return
	}

	stream, err := sel.Adapter.DispatchStream(ctx, &providers.Request{
		Endpoint: parsed.Endpoint,
		Body:     parsed.Body,
		Chat:     parsed.Chat,
		Model:    parsed.Model,
		APIKey:   sel.APIKey,
	})
	if err != nil {
		g.logger.Error("stream dispatch failed",
			"provider", sel.Name,
			"model", parsed.Model,
			"error", err)
		tracing.SetError(span, err)
		g.metrics.RecordRequest(sel.Name, parsed.Model, metrics.StatusError, time.Since(start))

		traceID := g.recordErrorTrace(ctx, sess, sel, parsed, start, err)
		sess.WriteHeaders(w, traceID)
		errResp, status := MapError(sel.Type, err)
		WriteErrorStatus(w, status, errResp)
		return
	}

	// The trace ID must reach the client in headers, and headers are
	// sealed once the first chunk goes out, so the skeleton is built
	// before streaming starts and recorded after it ends.
	t := g.newTrace(sess, sel, parsed)
	traceID := ""
	if t != nil {
		traceID = t.ID
	}
	sess.WriteHeaders(w, traceID)
	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	acc := newStreamAccumulator(parsed.Model)
	var streamErr error
	var firstChunkAt time.Time

	for chunk := range stream {
		if chunk.Error != nil {
			streamErr = chunk.Error
			g.logger.Warn("stream interrupted",
				"provider", sel.Name,
				"model", parsed.Model,
				"chunks_forwarded", acc.chunks,
				"error", chunk.Error)
			errResp, _ := MapError(sel.Type, chunk.Error)
			WriteSSEError(w, flusher, errResp)
			break
		}
		if firstChunkAt.IsZero() {
			firstChunkAt = time.Now()
		}
		acc.consume(chunk)
		if len(chunk.Data) > 0 {
			if err := WriteSSEChunk(w, flusher, chunk.Data); err != nil {
				streamErr = err
				break
			}
		}
	}
	WriteSSEDone(w, flusher)

	duration := time.Since(start)
	if t != nil {
		t.Metadata.DurationMS = duration.Milliseconds()
		streamMS := duration.Milliseconds()
		t.Metadata.StreamDurationMS = &streamMS
		if !firstChunkAt.IsZero() {
			firstMS := firstChunkAt.Sub(start).Milliseconds()
			t.Metadata.FirstChunkLatencyMS = &firstMS
		}
	}

	if streamErr != nil {
		tracing.SetError(span, streamErr)
		g.metrics.RecordRequest(sel.Name, parsed.Model, metrics.StatusError, duration)
		if t != nil {
			t.Metadata.Status = trace.StatusError
			t.Metadata.Error = streamErr.Error()
			g.recordTrace(ctx, t)
		}
		return
	}

	aggregate := acc.response()
	body, err := json.Marshal(aggregate)
	if err != nil {
		g.logger.Error("stream aggregate encoding failed", "provider", sel.Name, "error", err)
		body = nil
	}

	// Partial streams never reach this point, so only complete exchanges
	// are recorded.
	if body != nil {
		g.recordCassette(sel.Type, fingerprint, parsed.Body, &vcr.CassetteResponse{
			Status:  http.StatusOK,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    body,
		})
	}

	if t != nil {
		t.Response = body
		t.Metadata.Status = trace.StatusSuccess
		if acc.usage != nil && acc.usage.TotalTokens > 0 {
			total := acc.usage.TotalTokens
			t.Metadata.TokensUsed = &total
		}
		g.recordTrace(ctx, t)
	}

	tracing.SetOK(span)
	g.metrics.RecordRequest(sel.Name, parsed.Model, metrics.StatusSuccess, duration)
	g.metrics.RecordUpstreamLatency(sel.Name, parsed.Model, duration)
	if acc.usage != nil {
		g.metrics.RecordTokens(sel.Name, parsed.Model, acc.usage.PromptTokens, acc.usage.CompletionTokens)
	}

	g.logger.Debug("stream complete",
		"provider", sel.Name,
		"model", parsed.Model,
		"chunks", acc.chunks,
		"duration_ms", duration.Milliseconds())
}

// streamAccumulator rebuilds a complete chat.completion response from
// the chunks that flowed through the gateway.
type streamAccumulator struct {
	id      string
	created int64
	model   string
	role    string
	content strings.Builder
	finish  string
	usage   *types.Usage
	chunks  int
}

func newStreamAccumulator(model string) *streamAccumulator {
	return &streamAccumulator{model: model}
}

func (a *streamAccumulator) consume(chunk *providers.StreamChunk) {
	a.chunks++
	if len(chunk.Data) > 0 {
		if a.id == "" {
			a.id = gjson.GetBytes(chunk.Data, "id").String()
		}
		if a.created == 0 {
			a.created = gjson.GetBytes(chunk.Data, "created").Int()
		}
		if model := gjson.GetBytes(chunk.Data, "model").String(); model != "" {
			a.model = model
		}
		if a.role == "" {
			a.role = gjson.GetBytes(chunk.Data, "choices.0.delta.role").String()
		}
	}
	a.content.WriteString(chunk.Delta)
	if chunk.FinishReason != "" {
		a.finish = chunk.FinishReason
	}
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}
}

func (a *streamAccumulator) response() *types.ChatCompletionResponse {
	id := a.id
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}
	created := a.created
	if created == 0 {
		created = time.Now().Unix()
	}
	role := a.role
	if role == "" {
		role = "assistant"
	}
	finish := a.finish
	if finish == "" {
		finish = "stop"
	}
	var usage types.Usage
	if a.usage != nil {
		usage = *a.usage
	}

	return &types.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   a.model,
		Choices: []types.Choice{{
			Index:        0,
			Message:      types.Message{Role: role, Content: a.content.String()},
			FinishReason: finish,
		}},
		Usage: usage,
	}
}
