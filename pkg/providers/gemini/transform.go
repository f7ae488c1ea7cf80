package gemini

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// Gemini generateContent wire types.

type generateRequest struct {
	Contents          []wireContent     `json:"contents"`
	SystemInstruction *wireContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []wireTools       `json:"tools,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text         string            `json:"text,omitempty"`
	FunctionCall *wireFunctionCall `json:"functionCall,omitempty"`
}

type wireFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type wireTools struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type wireError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// transformRequest maps an OpenAI-shape chat request onto generateContent.
// The system message becomes systemInstruction, assistant turns get the
// "model" role, and sampling parameters collect under generationConfig.
func transformRequest(req *types.ChatCompletionRequest) *generateRequest {
	out := &generateRequest{
		Contents: make([]wireContent, 0, len(req.Messages)),
	}

	for _, msg := range req.Messages {
		text := providers.ContentText(msg.Content)
		switch msg.Role {
		case providers.RoleSystem:
			out.SystemInstruction = &wireContent{Parts: []wirePart{{Text: text}}}
		case providers.RoleAssistant:
			out.Contents = append(out.Contents, wireContent{
				Role:  "model",
				Parts: []wirePart{{Text: text}},
			})
		default:
			out.Contents = append(out.Contents, wireContent{
				Role:  "user",
				Parts: []wirePart{{Text: text}},
			})
		}
	}

	config := &generationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxTokens,
		StopSequences:   providers.StopSequences(req.Stop),
	}
	if config.Temperature != nil || config.TopP != nil ||
		config.MaxOutputTokens != nil || len(config.StopSequences) > 0 {
		out.GenerationConfig = config
	}

	if len(req.Tools) > 0 {
		decls := make([]functionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			decls = append(decls, functionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			})
		}
		out.Tools = []wireTools{{FunctionDeclarations: decls}}
	}

	return out
}

// transformResponse normalizes a generateContent response to OpenAI
// shape. Gemini responses carry no identifier, so one is minted.
func transformResponse(model string, resp *generateResponse) *types.ChatCompletionResponse {
	out := &types.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
	}

	if resp.UsageMetadata != nil {
		out.Usage = types.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	msg := types.Message{Role: providers.RoleAssistant}
	finish := providers.FinishReasonStop
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		var text string
		for _, part := range cand.Content.Parts {
			text += part.Text
			if part.FunctionCall != nil {
				msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
					ID:   "call_" + uuid.NewString(),
					Type: providers.ToolTypeFunction,
					Function: types.FunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: string(part.FunctionCall.Args),
					},
				})
			}
		}
		msg.Content = text
		finish = normalizeFinishReason(cand.FinishReason)
		if len(msg.ToolCalls) > 0 {
			finish = providers.FinishReasonToolCalls
		}
	} else {
		msg.Content = ""
	}

	out.Choices = []types.Choice{{
		Index:        0,
		Message:      msg,
		FinishReason: finish,
	}}
	return out
}

// normalizeFinishReason maps Gemini finish reasons to OpenAI finish
// reasons.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "STOP", "":
		return providers.FinishReasonStop
	case "MAX_TOKENS":
		return providers.FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return providers.FinishReasonContentFilter
	default:
		return providers.FinishReasonStop
	}
}

// normalizeErrorBody maps a Gemini error payload to the OpenAI error
// envelope with the gemini_error type.
func normalizeErrorBody(status int, body []byte) json.RawMessage {
	message := "upstream request failed"
	var we wireError
	if err := json.Unmarshal(body, &we); err == nil && we.Error.Message != "" {
		message = we.Error.Message
	}
	resp := types.NewProviderError(providers.TypeGemini, message)
	if status > 0 {
		resp.WithDetails(map[string]any{"upstream_status": status})
	}
	out, _ := json.Marshal(resp)
	return out
}
