package ollama

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

// DispatchStream translates the chat request, forwards it with streaming
// enabled, and normalizes the newline-delimited response into OpenAI
// chat.completion.chunk events. Each line is a chat response object; the
// final line has done set with the done reason and token counts.
func (a *Adapter) DispatchStream(ctx context.Context, req *providers.Request) (<-chan *providers.StreamChunk, error) {
	if req.Chat == nil {
		return nil, &providers.StreamError{
			Provider: a.Name(),
			Message:  "streaming is only supported for chat completions",
		}
	}

	body, err := json.Marshal(transformChatRequest(req.Chat, true))
	if err != nil {
		return nil, &providers.StreamError{Provider: a.Name(), Message: "encode upstream request", Cause: err}
	}

	resp, err := a.Post(ctx, a.url(chatPath), body, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := providers.ReadErrorBody(resp.Body)
		resp.Body.Close()
		return nil, &providers.UpstreamError{
			Provider: providers.TypeOllama,
			Status:   resp.StatusCode,
			Body:     normalizeErrorBody(resp.StatusCode, errBody),
		}
	}

	reader := providers.NewNDJSONReader(resp.Body)
	chunks := make(chan *providers.StreamChunk, 100)

	go func() {
		defer close(chunks)
		defer reader.Close()

		state := &streamState{
			id:      "chatcmpl-" + uuid.NewString(),
			created: time.Now().Unix(),
		}
		for {
			line, err := reader.Next(ctx)
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

			var fragment chatResponse
			if err := json.Unmarshal(line, &fragment); err != nil {
				chunks <- &providers.StreamChunk{Error: &providers.ParseError{
					Provider:    a.Name(),
					RawResponse: string(line),
					Cause:       err,
				}}
				return
			}
			// The daemon reports mid-stream failures on an error field.
			var we wireError
			if json.Unmarshal(line, &we) == nil && we.Error != "" {
				chunks <- &providers.StreamChunk{Error: &providers.StreamError{
					Provider: a.Name(),
					Message:  we.Error,
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
			if fragment.Done {
				return
			}
		}
	}()

	return chunks, nil
}

// handle normalizes one response line into zero or more chunks: a role
// chunk the first time, a content chunk when the line carries text, and
// a finish chunk on the final line.
func (s *streamState) handle(fragment *chatResponse) []*providers.StreamChunk {
	var out []*providers.StreamChunk

	if !s.started {
		s.started = true
		s.model = fragment.Model
		out = append(out, s.chunk(types.Delta{Role: providers.RoleAssistant}, nil, ""))
	}

	if fragment.Message.Content != "" {
		out = append(out, s.chunk(types.Delta{Content: fragment.Message.Content}, nil, fragment.Message.Content))
	}

	if fragment.Done {
		finish := normalizeDoneReason(fragment.DoneReason)
		final := s.chunk(types.Delta{}, &finish, "")
		final.FinishReason = finish
		final.Usage = &types.Usage{
			PromptTokens:     fragment.PromptEvalCount,
			CompletionTokens: fragment.EvalCount,
			TotalTokens:      fragment.PromptEvalCount + fragment.EvalCount,
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
