package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAIChat returns a chat completion in the OpenAI shape.
func OpenAIChat(model, content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{
			"index": 0,
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// OpenAIChunk returns one OpenAI streaming chunk as a JSON string.
func OpenAIChunk(model, delta, finishReason string) string {
	d := map[string]any{}
	if delta != "" {
		d["content"] = delta
	}
	chunk := map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{
			"index": 0,
			"delta": d,
		}},
	}
	if finishReason != "" {
		chunk["choices"].([]map[string]any)[0]["finish_reason"] = finishReason
	}
	raw, _ := json.Marshal(chunk)
	return string(raw)
}

// AnthropicMessage returns a reply in the Anthropic messages shape.
func AnthropicMessage(model, content string) map[string]any {
	return map[string]any{
		"id":   "msg_mock",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{{
			"type": "text",
			"text": content,
		}},
		"model":       model,
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":  10,
			"output_tokens": 20,
		},
	}
}

// GeminiGenerate returns a reply in the Gemini generateContent shape.
func GeminiGenerate(content string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": content}},
			},
			"finishReason": "STOP",
			"index":        0,
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     10,
			"candidatesTokenCount": 20,
			"totalTokenCount":      30,
		},
	}
}

// OllamaChat returns a reply in the Ollama chat shape.
func OllamaChat(model, content string) map[string]any {
	return map[string]any{
		"model":      model,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		"message": map[string]any{
			"role":    "assistant",
			"content": content,
		},
		"done":              true,
		"done_reason":       "stop",
		"prompt_eval_count": 10,
		"eval_count":        20,
	}
}

// OllamaLine returns one Ollama NDJSON stream line.
func OllamaLine(model, delta string, done bool) string {
	line := map[string]any{
		"model":      model,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		"message": map[string]any{
			"role":    "assistant",
			"content": delta,
		},
		"done": done,
	}
	if done {
		line["done_reason"] = "stop"
		line["prompt_eval_count"] = 10
		line["eval_count"] = 20
	}
	raw, _ := json.Marshal(line)
	return string(raw)
}

// Error returns a canned upstream error in the OpenAI envelope.
func Error(status int, message string) Response {
	return Response{
		StatusCode: status,
		Body: map[string]any{
			"error": map[string]any{
				"message": message,
				"type":    "invalid_request_error",
			},
		},
	}
}

// RateLimited returns a 429 with a Retry-After header.
func RateLimited(retryAfter int) Response {
	r := Error(http.StatusTooManyRequests, "Rate limit exceeded")
	r.Headers = map[string]string{"Retry-After": fmt.Sprintf("%d", retryAfter)}
	return r
}
