package openai

import (
	"context"
	"encoding/json"
	"io"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// DispatchStream forwards a streaming request. Upstream chunks are
// already OpenAI chat.completion.chunk events, so Data is the wire bytes
// unchanged; only the accumulation fields are extracted.
func (a *Adapter) DispatchStream(ctx context.Context, req *providers.Request) (<-chan *providers.StreamChunk, error) {
	headers := a.headers(req.APIKey)
	headers["Accept"] = "text/event-stream"

	resp, err := a.Post(ctx, a.url(req.Endpoint), req.Body, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := providers.ReadErrorBody(resp.Body)
		resp.Body.Close()
		return nil, &providers.UpstreamError{
			Provider: providers.TypeOpenAI,
			Status:   resp.StatusCode,
			Body:     normalizeErrorBody(resp.StatusCode, body),
		}
	}

	reader := providers.NewSSEReader(resp.Body)
	chunks := make(chan *providers.StreamChunk, 100)

	go func() {
		defer close(chunks)
		defer reader.Close()

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
			if event.Data == "[DONE]" {
				return
			}

			chunk, err := parseChunk([]byte(event.Data))
			if err != nil {
				chunks <- &providers.StreamChunk{Error: &providers.ParseError{
					Provider:    a.Name(),
					RawResponse: event.Data,
					Cause:       err,
				}}
				return
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, nil
}

// parseChunk extracts the accumulation fields from an OpenAI stream chunk
// without altering the wire bytes.
func parseChunk(data []byte) (*providers.StreamChunk, error) {
	var wire struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
		Usage *types.Usage `json:"usage"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}

	chunk := &providers.StreamChunk{
		Data:  json.RawMessage(data),
		Usage: wire.Usage,
	}
	if len(wire.Choices) > 0 {
		chunk.Delta = wire.Choices[0].Delta.Content
		if wire.Choices[0].FinishReason != nil {
			chunk.FinishReason = *wire.Choices[0].FinishReason
		}
	}
	return chunk, nil
}
