package anthropic

import (
	"encoding/json"
	"time"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// Anthropic Messages API wire types.

type messagesRequest struct {
	Model         string          `json:"model"`
	Messages      []wireMessage   `json:"messages"`
	System        string          `json:"system,omitempty"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []wireTool      `json:"tools,omitempty"`
	ToolChoice    *wireToolChoice `json:"tool_choice,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type wireTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type wireToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      wireUsage      `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// transformRequest maps an OpenAI-shape chat request onto the Messages
// API. The system message moves to the top-level system field, and
// max_tokens gets the required default when the client omitted it.
func transformRequest(req *types.ChatCompletionRequest, stream bool) *messagesRequest {
	out := &messagesRequest{
		Model:         req.Model,
		Messages:      make([]wireMessage, 0, len(req.Messages)),
		MaxTokens:     4096,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        stream,
		StopSequences: providers.StopSequences(req.Stop),
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		out.MaxTokens = *req.MaxTokens
	}

	for _, msg := range req.Messages {
		if msg.Role == providers.RoleSystem {
			out.System = providers.ContentText(msg.Content)
			continue
		}
		out.Messages = append(out.Messages, wireMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	out.ToolChoice = transformToolChoice(req.ToolChoice)

	return out
}

func transformToolChoice(choice interface{}) *wireToolChoice {
	switch v := choice.(type) {
	case string:
		switch v {
		case "auto":
			return &wireToolChoice{Type: "auto"}
		case "required":
			return &wireToolChoice{Type: "any"}
		}
		return nil
	case map[string]interface{}:
		if fn, ok := v["function"].(map[string]interface{}); ok {
			if name, ok := fn["name"].(string); ok {
				return &wireToolChoice{Type: "tool", Name: name}
			}
		}
		return nil
	default:
		return nil
	}
}

// transformResponse normalizes a Messages API response to OpenAI shape:
// content[0].text becomes choices[0].message.content, input/output token
// counts become prompt/completion/total, and stop_reason becomes
// finish_reason.
func transformResponse(resp *messagesResponse) *types.ChatCompletionResponse {
	msg := types.Message{Role: providers.RoleAssistant}

	var text string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:   block.ID,
				Type: providers.ToolTypeFunction,
				Function: types.FunctionCall{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}
	msg.Content = text

	return &types.ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []types.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: normalizeStopReason(resp.StopReason),
		}},
		Usage: types.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// normalizeStopReason maps Messages API stop reasons to OpenAI finish
// reasons.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "tool_use":
		return providers.FinishReasonToolCalls
	default:
		return reason
	}
}

// normalizeErrorBody maps an Anthropic error payload to the OpenAI error
// envelope with the anthropic_error type.
func normalizeErrorBody(status int, body []byte) json.RawMessage {
	message := "upstream request failed"
	var we wireError
	if err := json.Unmarshal(body, &we); err == nil && we.Error.Message != "" {
		message = we.Error.Message
	}
	resp := types.NewProviderError(providers.TypeAnthropic, message)
	if status > 0 {
		resp.WithDetails(map[string]any{"upstream_status": status})
	}
	out, _ := json.Marshal(resp)
	return out
}
