package anthropic

import (
	"encoding/json"
	"testing"

	"traceforge-hq/traceforge/pkg/proxy/types"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestTransformRequest_SystemMessageExtraction(t *testing.T) {
	req := &types.ChatCompletionRequest{
		Model: "claude-3-opus",
		Messages: []types.Message{
			{Role: "system", Content: "You are terse."},
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello."},
			{Role: "user", Content: "Bye"},
		},
	}

	out := transformRequest(req, false)

	if out.System != "You are terse." {
		t.Errorf("System = %q", out.System)
	}
	if len(out.Messages) != 3 {
		t.Fatalf("got %d messages, want 3 (system removed)", len(out.Messages))
	}
	if out.Messages[0].Role != "user" || out.Messages[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", out.Messages[0].Role, out.Messages[1].Role)
	}
}

func TestTransformRequest_MaxTokensDefault(t *testing.T) {
	req := &types.ChatCompletionRequest{
		Model:    "claude-3-opus",
		Messages: []types.Message{{Role: "user", Content: "Hi"}},
	}

	if got := transformRequest(req, false).MaxTokens; got != 4096 {
		t.Errorf("MaxTokens = %d, want 4096 default", got)
	}

	req.MaxTokens = intPtr(100)
	if got := transformRequest(req, false).MaxTokens; got != 100 {
		t.Errorf("MaxTokens = %d, want 100", got)
	}
}

func TestTransformRequest_SamplingAndStop(t *testing.T) {
	req := &types.ChatCompletionRequest{
		Model:       "claude-3-opus",
		Messages:    []types.Message{{Role: "user", Content: "Hi"}},
		Temperature: floatPtr(0.2),
		TopP:        floatPtr(0.9),
		Stop:        []interface{}{"END", "STOP"},
	}

	out := transformRequest(req, true)

	if out.Temperature == nil || *out.Temperature != 0.2 {
		t.Errorf("Temperature = %v", out.Temperature)
	}
	if out.TopP == nil || *out.TopP != 0.9 {
		t.Errorf("TopP = %v", out.TopP)
	}
	if len(out.StopSequences) != 2 || out.StopSequences[0] != "END" {
		t.Errorf("StopSequences = %v", out.StopSequences)
	}
	if !out.Stream {
		t.Error("Stream = false, want true")
	}
}

func TestTransformRequest_Tools(t *testing.T) {
	req := &types.ChatCompletionRequest{
		Model:    "claude-3-opus",
		Messages: []types.Message{{Role: "user", Content: "Weather?"}},
		Tools: []types.Tool{{
			Type: "function",
			Function: types.FunctionDefinition{
				Name:        "get_weather",
				Description: "Get the weather",
				Parameters:  map[string]interface{}{"type": "object"},
			},
		}},
		ToolChoice: "auto",
	}

	out := transformRequest(req, false)

	if len(out.Tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(out.Tools))
	}
	if out.Tools[0].Name != "get_weather" {
		t.Errorf("tool name = %q", out.Tools[0].Name)
	}
	if out.Tools[0].InputSchema["type"] != "object" {
		t.Errorf("input schema = %v", out.Tools[0].InputSchema)
	}
	if out.ToolChoice == nil || out.ToolChoice.Type != "auto" {
		t.Errorf("tool choice = %+v", out.ToolChoice)
	}
}

func TestTransformToolChoice(t *testing.T) {
	tests := []struct {
		name   string
		choice interface{}
		want   *wireToolChoice
	}{
		{"nil", nil, nil},
		{"auto", "auto", &wireToolChoice{Type: "auto"}},
		{"required", "required", &wireToolChoice{Type: "any"}},
		{"none", "none", nil},
		{
			"named function",
			map[string]interface{}{
				"type":     "function",
				"function": map[string]interface{}{"name": "get_weather"},
			},
			&wireToolChoice{Type: "tool", Name: "get_weather"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := transformToolChoice(tt.choice)
			if tt.want == nil {
				if got != nil {
					t.Errorf("got %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTransformResponse(t *testing.T) {
	resp := &messagesResponse{
		ID:         "msg_123",
		Type:       "message",
		Role:       "assistant",
		Model:      "claude-3-opus-20240229",
		StopReason: "end_turn",
		Content: []contentBlock{
			{Type: "text", Text: "Hello "},
			{Type: "text", Text: "there."},
		},
		Usage: wireUsage{InputTokens: 10, OutputTokens: 4},
	}

	out := transformResponse(resp)

	if out.ID != "msg_123" {
		t.Errorf("ID = %q", out.ID)
	}
	if out.Object != "chat.completion" {
		t.Errorf("Object = %q", out.Object)
	}
	if len(out.Choices) != 1 {
		t.Fatalf("got %d choices", len(out.Choices))
	}
	if out.Choices[0].Message.Content != "Hello there." {
		t.Errorf("content = %q", out.Choices[0].Message.Content)
	}
	if out.Choices[0].FinishReason != "stop" {
		t.Errorf("finish reason = %q", out.Choices[0].FinishReason)
	}
	if out.Usage.PromptTokens != 10 || out.Usage.CompletionTokens != 4 || out.Usage.TotalTokens != 14 {
		t.Errorf("usage = %+v", out.Usage)
	}
}

func TestTransformResponse_ToolUse(t *testing.T) {
	resp := &messagesResponse{
		ID:         "msg_tools",
		Model:      "claude-3-opus",
		StopReason: "tool_use",
		Content: []contentBlock{
			{Type: "text", Text: "Checking."},
			{
				Type:  "tool_use",
				ID:    "toolu_1",
				Name:  "get_weather",
				Input: json.RawMessage(`{"city":"Berlin"}`),
			},
		},
		Usage: wireUsage{InputTokens: 20, OutputTokens: 15},
	}

	out := transformResponse(resp)

	choice := out.Choices[0]
	if choice.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q, want tool_calls", choice.FinishReason)
	}
	if len(choice.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls", len(choice.Message.ToolCalls))
	}
	call := choice.Message.ToolCalls[0]
	if call.ID != "toolu_1" || call.Function.Name != "get_weather" {
		t.Errorf("call = %+v", call)
	}
	if call.Function.Arguments != `{"city":"Berlin"}` {
		t.Errorf("arguments = %q", call.Function.Arguments)
	}
}

func TestNormalizeStopReason(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"end_turn", "stop"},
		{"stop_sequence", "stop"},
		{"max_tokens", "length"},
		{"tool_use", "tool_calls"},
		{"something_new", "something_new"},
	}
	for _, tt := range tests {
		if got := normalizeStopReason(tt.in); got != tt.want {
			t.Errorf("normalizeStopReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeErrorBody(t *testing.T) {
	upstream := `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`
	body := normalizeErrorBody(529, []byte(upstream))

	var envelope types.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("not an envelope: %v", err)
	}
	if envelope.Error.Type != types.ErrorTypeAnthropic {
		t.Errorf("type = %q, want %q", envelope.Error.Type, types.ErrorTypeAnthropic)
	}
	if envelope.Error.Message != "Overloaded" {
		t.Errorf("message = %q", envelope.Error.Message)
	}
	if envelope.Error.Details["upstream_status"] != float64(529) {
		t.Errorf("details = %v", envelope.Error.Details)
	}
}

func TestNormalizeErrorBody_Garbage(t *testing.T) {
	body := normalizeErrorBody(500, []byte("<html>"))

	var envelope types.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("not an envelope: %v", err)
	}
	if envelope.Error.Message == "" {
		t.Error("message is empty")
	}
}
