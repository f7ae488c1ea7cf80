package ollama

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
)

// Ollama native API wire types.

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *wireOptions  `json:"options,omitempty"`
	Tools    []types.Tool  `json:"tools,omitempty"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         wireMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type generateRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	Stream  bool         `json:"stream"`
	Options *wireOptions `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type embedRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"`
}

type embedResponse struct {
	Model           string      `json:"model"`
	Embeddings      [][]float64 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

type wireError struct {
	Error string `json:"error"`
}

// transformChatRequest maps an OpenAI-shape chat request onto /api/chat.
// System messages pass through: Ollama accepts the system role natively.
func transformChatRequest(req *types.ChatCompletionRequest, stream bool) *chatRequest {
	out := &chatRequest{
		Model:    req.Model,
		Messages: make([]wireMessage, 0, len(req.Messages)),
		Stream:   stream,
		Options:  transformOptions(req.Temperature, req.TopP, req.MaxTokens, req.Stop),
		Tools:    req.Tools,
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, wireMessage{
			Role:    msg.Role,
			Content: providers.ContentText(msg.Content),
		})
	}
	return out
}

// transformGenerateRequest maps a legacy completion request onto
// /api/generate.
func transformGenerateRequest(req *types.CompletionRequest, stream bool) *generateRequest {
	return &generateRequest{
		Model:   req.Model,
		Prompt:  promptText(req.Prompt),
		Stream:  stream,
		Options: transformOptions(req.Temperature, req.TopP, req.MaxTokens, req.Stop),
	}
}

// transformEmbedRequest maps an embeddings request onto /api/embed, which
// accepts the same string-or-list input shape.
func transformEmbedRequest(req *types.EmbeddingsRequest) *embedRequest {
	return &embedRequest{
		Model: req.Model,
		Input: req.Input,
	}
}

func transformOptions(temperature, topP *float64, maxTokens *int, stop interface{}) *wireOptions {
	opts := &wireOptions{
		Temperature: temperature,
		TopP:        topP,
		NumPredict:  maxTokens,
		Stop:        providers.StopSequences(stop),
	}
	if opts.Temperature == nil && opts.TopP == nil && opts.NumPredict == nil && len(opts.Stop) == 0 {
		return nil
	}
	return opts
}

// promptText flattens an OpenAI-style prompt value (string or list of
// strings) into the single prompt /api/generate expects.
func promptText(prompt interface{}) string {
	switch v := prompt.(type) {
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// transformChatResponse normalizes an /api/chat response to OpenAI shape.
// Ollama responses carry no identifier, so one is minted.
func transformChatResponse(resp *chatResponse) *types.ChatCompletionResponse {
	msg := types.Message{
		Role:    providers.RoleAssistant,
		Content: resp.Message.Content,
	}
	for _, call := range resp.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			ID:   "call_" + uuid.NewString(),
			Type: providers.ToolTypeFunction,
			Function: types.FunctionCall{
				Name:      call.Function.Name,
				Arguments: string(call.Function.Arguments),
			},
		})
	}

	finish := normalizeDoneReason(resp.DoneReason)
	if len(msg.ToolCalls) > 0 {
		finish = providers.FinishReasonToolCalls
	}

	return &types.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []types.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finish,
		}},
		Usage: usage(resp.PromptEvalCount, resp.EvalCount),
	}
}

// transformGenerateResponse normalizes an /api/generate response to the
// legacy completion shape.
func transformGenerateResponse(resp *generateResponse) *types.CompletionResponse {
	return &types.CompletionResponse{
		ID:      "cmpl-" + uuid.NewString(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []types.CompletionChoice{{
			Text:         resp.Response,
			Index:        0,
			FinishReason: normalizeDoneReason(resp.DoneReason),
		}},
		Usage: usage(resp.PromptEvalCount, resp.EvalCount),
	}
}

// transformEmbedResponse normalizes an /api/embed response to OpenAI
// shape.
func transformEmbedResponse(resp *embedResponse) *types.EmbeddingsResponse {
	data := make([]types.Embedding, 0, len(resp.Embeddings))
	for i, vec := range resp.Embeddings {
		data = append(data, types.Embedding{
			Object:    "embedding",
			Embedding: vec,
			Index:     i,
		})
	}
	return &types.EmbeddingsResponse{
		Object: "list",
		Data:   data,
		Model:  resp.Model,
		Usage: types.Usage{
			PromptTokens: resp.PromptEvalCount,
			TotalTokens:  resp.PromptEvalCount,
		},
	}
}

func usage(promptTokens, completionTokens int) types.Usage {
	return types.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// normalizeDoneReason maps Ollama done reasons to OpenAI finish reasons.
func normalizeDoneReason(reason string) string {
	switch reason {
	case "length":
		return providers.FinishReasonLength
	default:
		return providers.FinishReasonStop
	}
}

// normalizeErrorBody maps an Ollama error payload to the OpenAI error
// envelope with the ollama_error type.
func normalizeErrorBody(status int, body []byte) json.RawMessage {
	message := "upstream request failed"
	var we wireError
	if err := json.Unmarshal(body, &we); err == nil && we.Error != "" {
		message = we.Error
	}
	resp := types.NewProviderError(providers.TypeOllama, message)
	if status > 0 {
		resp.WithDetails(map[string]any{"upstream_status": status})
	}
	out, _ := json.Marshal(resp)
	return out
}
