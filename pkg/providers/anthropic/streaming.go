package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// streamEvent is one Messages API stream event. The delta field carries
// different members per event type: text for content_block_delta, stop
// reason for message_delta.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		ID    string    `json:"id"`
		Model string    `json:"model"`
		Usage wireUsage `json:"usage"`
	} `json:"message"`
	Index int          `json:"index"`
	Delta *streamDelta `json:"delta"`
	Usage *wireUsage   `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type streamDelta struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	PartialJSON  string `json:"partial_json"`
	StopReason   string `json:"stop_reason"`
	StopSequence string `json:"stop_sequence"`
}

// streamState carries the identifiers from message_start through the
// rest of the normalized stream.
type streamState struct {
	id           string
	model        string
	created      int64
	inputTokens  int
	outputTokens int
}

// DispatchStream translates the chat request, forwards it with streaming
// enabled, and normalizes the Messages API event stream into OpenAI
// chat.completion.chunk events.
func (a *Adapter) DispatchStream(ctx context.Context, req *providers.Request) (<-chan *providers.StreamChunk, error) {
	if req.Chat == nil {
		unsupported := unsupportedEndpoint(req.Endpoint)
		return nil, &providers.UpstreamError{
			Provider: providers.TypeAnthropic,
			Status:   unsupported.Status,
			Body:     unsupported.Body,
		}
	}

	body, err := json.Marshal(transformRequest(req.Chat, true))
	if err != nil {
		return nil, &providers.StreamError{Provider: a.Name(), Message: "encode upstream request", Cause: err}
	}

	headers := a.headers(req.APIKey)
	headers["Accept"] = "text/event-stream"

	resp, err := a.Post(ctx, a.url(), body, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := providers.ReadErrorBody(resp.Body)
		resp.Body.Close()
		return nil, &providers.UpstreamError{
			Provider: providers.TypeAnthropic,
			Status:   resp.StatusCode,
			Body:     normalizeErrorBody(resp.StatusCode, errBody),
		}
	}

	reader := providers.NewSSEReader(resp.Body)
	chunks := make(chan *providers.StreamChunk, 100)

	go func() {
		defer close(chunks)
		defer reader.Close()

		state := &streamState{created: time.Now().Unix()}
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

			chunk, done, err := state.handle([]byte(event.Data))
			if err != nil {
				chunks <- &providers.StreamChunk{Error: err}
				return
			}
			if chunk != nil {
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if done {
				return
			}
		}
	}()

	return chunks, nil
}

// handle consumes one stream event and returns the normalized chunk to
// forward, if any. done reports that message_stop was seen.
func (s *streamState) handle(data []byte) (chunk *providers.StreamChunk, done bool, err error) {
	var event streamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, false, &providers.ParseError{
			Provider:    providers.TypeAnthropic,
			RawResponse: string(data),
			Cause:       err,
		}
	}

	switch event.Type {
	case "message_start":
		if event.Message != nil {
			s.id = event.Message.ID
			s.model = event.Message.Model
			s.inputTokens = event.Message.Usage.InputTokens
		}
		return s.chunk(types.Delta{Role: providers.RoleAssistant}, nil, ""), false, nil

	case "content_block_delta":
		if event.Delta == nil || event.Delta.Type != "text_delta" {
			return nil, false, nil
		}
		return s.chunk(types.Delta{Content: event.Delta.Text}, nil, event.Delta.Text), false, nil

	case "message_delta":
		finish := providers.FinishReasonStop
		if event.Delta != nil && event.Delta.StopReason != "" {
			finish = normalizeStopReason(event.Delta.StopReason)
		}
		if event.Usage != nil {
			s.outputTokens = event.Usage.OutputTokens
		}
		out := s.chunk(types.Delta{}, &finish, "")
		out.FinishReason = finish
		out.Usage = &types.Usage{
			PromptTokens:     s.inputTokens,
			CompletionTokens: s.outputTokens,
			TotalTokens:      s.inputTokens + s.outputTokens,
		}
		return out, false, nil

	case "message_stop":
		return nil, true, nil

	case "error":
		message := "upstream stream error"
		if event.Error != nil && event.Error.Message != "" {
			message = event.Error.Message
		}
		return nil, false, &providers.StreamError{Provider: providers.TypeAnthropic, Message: message}

	default:
		// content_block_start, content_block_stop, ping
		return nil, false, nil
	}
}

// chunk builds a normalized chat.completion.chunk carrying the given
// delta.
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
