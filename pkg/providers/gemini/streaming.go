package gemini

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// streamState carries the minted identifiers across one normalized
// stream.
type streamState struct {
	id      string
	model   string
	created int64
	started bool
}

// DispatchStream translates the chat request, forwards it to
// streamGenerateContent with alt=sse, and normalizes the fragment stream
// into OpenAI chat.completion.chunk events. Each SSE data line is a full
// generateContent fragment; there is no terminator line, the stream just
// ends.
func (a *Adapter) DispatchStream(ctx context.Context, req *providers.Request) (<-chan *providers.StreamChunk, error) {
	if req.Chat == nil {
		unsupported := unsupportedEndpoint(req.Endpoint)
		return nil, &providers.UpstreamError{
			Provider: providers.TypeGemini,
			Status:   unsupported.Status,
			Body:     unsupported.Body,
		}
	}

	body, err := json.Marshal(transformRequest(req.Chat))
	if err != nil {
		return nil, &providers.StreamError{Provider: a.Name(), Message: "encode upstream request", Cause: err}
	}

	headers := a.headers(req.APIKey)
	headers["Accept"] = "text/event-stream"

	url := a.url(req.Model, "streamGenerateContent") + "?alt=sse"
	resp, err := a.Post(ctx, url, body, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := providers.ReadErrorBody(resp.Body)
		resp.Body.Close()
		return nil, &providers.UpstreamError{
			Provider: providers.TypeGemini,
			Status:   resp.StatusCode,
			Body:     normalizeErrorBody(resp.StatusCode, errBody),
		}
	}

	reader := providers.NewSSEReader(resp.Body)
	chunks := make(chan *providers.StreamChunk, 100)

	go func() {
		defer close(chunks)
		defer reader.Close()

		state := &streamState{
			id:      "chatcmpl-" + uuid.NewString(),
			model:   req.Model,
			created: time.Now().Unix(),
		}
		for {
			event, err := reader.Next(ctx)
			if err != nil {
				if err != io.EOF {
					chunks <- &providers.StreamChunk{Error: &providers.StreamError{
						Provider: a.Name(),
						Message:  "stream read failed",
						Cause:    err,
					}}
				}
				return
			}
			if event.Data == "" {
				continue
			}

			var fragment generateResponse
			if err := json.Unmarshal([]byte(event.Data), &fragment); err != nil {
				chunks <- &providers.StreamChunk{Error: &providers.ParseError{
					Provider:    a.Name(),
					RawResponse: event.Data,
					Cause:       err,
				}}
				return
			}

			for _, chunk := range state.handle(&fragment) {
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return chunks, nil
}

// handle normalizes one stream fragment into zero or more chunks: a role
// chunk the first time, a content chunk when the fragment carries text,
// and a finish chunk when it carries a finish reason.
func (s *streamState) handle(fragment *generateResponse) []*providers.StreamChunk {
	var out []*providers.StreamChunk

	if !s.started {
		s.started = true
		out = append(out, s.chunk(types.Delta{Role: providers.RoleAssistant}, nil, ""))
	}

	if len(fragment.Candidates) == 0 {
		return out
	}
	cand := fragment.Candidates[0]

	var text string
	for _, part := range cand.Content.Parts {
		text += part.Text
	}
	if text != "" {
		out = append(out, s.chunk(types.Delta{Content: text}, nil, text))
	}

	if cand.FinishReason != "" {
		finish := normalizeFinishReason(cand.FinishReason)
		final := s.chunk(types.Delta{}, &finish, "")
		final.FinishReason = finish
		if fragment.UsageMetadata != nil {
			final.Usage = &types.Usage{
				PromptTokens:     fragment.UsageMetadata.PromptTokenCount,
				CompletionTokens: fragment.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      fragment.UsageMetadata.TotalTokenCount,
			}
		}
		out = append(out, final)
	}
	return out
}

func (s *streamState) chunk(delta types.Delta, finishReason *string, accumulated string) *providers.StreamChunk {
	wire := types.ChatCompletionStreamChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []types.StreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
	}
	data, _ := json.Marshal(wire)
	return &providers.StreamChunk{Data: data, Delta: accumulated}
}
