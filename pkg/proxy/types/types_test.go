package types

import (
	"encoding/json"
	"testing"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func validChatRequest() *ChatCompletionRequest {
	return &ChatCompletionRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: "user", Content: "Hi"}},
	}
}

func TestChatCompletionRequest_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ChatCompletionRequest)
		wantField string
	}{
		{"valid", func(r *ChatCompletionRequest) {}, ""},
		{"missing model", func(r *ChatCompletionRequest) { r.Model = "" }, "model"},
		{"no messages", func(r *ChatCompletionRequest) { r.Messages = nil }, "messages"},
		{"temperature too high", func(r *ChatCompletionRequest) { r.Temperature = f64(2.5) }, "temperature"},
		{"negative temperature", func(r *ChatCompletionRequest) { r.Temperature = f64(-0.1) }, "temperature"},
		{"top_p out of range", func(r *ChatCompletionRequest) { r.TopP = f64(1.5) }, "top_p"},
		{"zero max_tokens", func(r *ChatCompletionRequest) { r.MaxTokens = intp(0) }, "max_tokens"},
		{"presence_penalty out of range", func(r *ChatCompletionRequest) { r.PresencePenalty = f64(3) }, "presence_penalty"},
		{"frequency_penalty out of range", func(r *ChatCompletionRequest) { r.FrequencyPenalty = f64(-2.5) }, "frequency_penalty"},
		{"message without role", func(r *ChatCompletionRequest) { r.Messages[0].Role = "" }, "messages[0].role"},
		{"message without content", func(r *ChatCompletionRequest) { r.Messages[0].Content = nil }, "messages[0].content"},
		{"too many stop sequences", func(r *ChatCompletionRequest) {
			r.Stop = []interface{}{"a", "b", "c", "d", "e"}
		}, "stop"},
		{"stop wrong type", func(r *ChatCompletionRequest) { r.Stop = 42.0 }, "stop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validChatRequest()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestChatCompletionRequest_StopAcceptsStringAndList(t *testing.T) {
	for _, raw := range []string{
		`{"model":"gpt-4","messages":[{"role":"user","content":"Hi"}],"stop":"###"}`,
		`{"model":"gpt-4","messages":[{"role":"user","content":"Hi"}],"stop":["###","END"]}`,
	} {
		var r ChatCompletionRequest
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := r.Validate(); err != nil {
			t.Errorf("Validate() error = %v for %s", err, raw)
		}
	}
}

func TestCompletionRequest_Validate(t *testing.T) {
	r := &CompletionRequest{Model: "gpt-3.5-turbo-instruct", Prompt: "Once upon a time"}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}

	r.Prompt = nil
	if err := r.Validate(); err == nil {
		t.Fatal("Validate() should require prompt")
	}
}

func TestEmbeddingsRequest_Validate(t *testing.T) {
	r := &EmbeddingsRequest{Model: "text-embedding-3-small", Input: []interface{}{"hello"}}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}

	r.Input = nil
	if err := r.Validate(); err == nil {
		t.Fatal("Validate() should require input")
	}
}

func TestErrorDetail_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		errType string
		want    int
	}{
		{ErrorTypeInvalidRequest, 400},
		{ErrorTypeRateLimit, 429},
		{ErrorTypeProvider, 502},
		{ErrorTypeAnthropic, 502},
		{ErrorTypeGemini, 502},
		{ErrorTypeOllama, 502},
		{ErrorTypeTimeout, 504},
		{ErrorTypeStorage, 500},
		{ErrorTypeVCRMiss, 500},
		{ErrorTypeStrictMiss, 500},
		{ErrorTypeStrictRecordForbidden, 500},
		{ErrorTypeCassetteTamper, 500},
		{"something_else", 500},
	}
	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			d := &ErrorDetail{Type: tt.errType}
			if got := d.HTTPStatusCode(); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProviderErrorType(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"anthropic", ErrorTypeAnthropic},
		{"gemini", ErrorTypeGemini},
		{"ollama", ErrorTypeOllama},
		{"openai", ErrorTypeProvider},
		{"", ErrorTypeProvider},
	}
	for _, tt := range tests {
		if got := ProviderErrorType(tt.provider); got != tt.want {
			t.Errorf("ProviderErrorType(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestErrorResponse_WireShape(t *testing.T) {
	resp := NewVCRMissError("VCR replay miss: no cassette for fingerprint abc123").
		WithDetails(map[string]any{"fingerprint": "abc123"})

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	inner, ok := decoded["error"]
	if !ok {
		t.Fatal("wire shape must nest fields under \"error\"")
	}
	if inner["type"] != ErrorTypeVCRMiss {
		t.Errorf("type = %v, want %s", inner["type"], ErrorTypeVCRMiss)
	}
	if _, ok := inner["details"]; !ok {
		t.Error("details should be present when set")
	}
}
