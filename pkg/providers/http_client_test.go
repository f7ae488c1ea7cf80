package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewHTTPClient_Defaults(t *testing.T) {
	client := NewHTTPClient(ProviderConfig{Name: "test"})

	config := client.Config()
	if config.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", config.Timeout, DefaultTimeout)
	}
	if config.MaxIdleConns != 100 {
		t.Errorf("MaxIdleConns = %d, want 100", config.MaxIdleConns)
	}
	if config.MaxIdleConnsPerHost != 10 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 10", config.MaxIdleConnsPerHost)
	}
	if client.Name() != "test" {
		t.Errorf("Name() = %q, want %q", client.Name(), "test")
	}
}

func TestHTTPClient_PostJSON(t *testing.T) {
	var gotBody string
	var gotContentType string
	var gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Custom")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewHTTPClient(ProviderConfig{Name: "test"})
	defer client.Close()

	status, body, err := client.PostJSON(context.Background(), server.URL,
		[]byte(`{"model":"gpt-4"}`), map[string]string{"X-Custom": "yes"})
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
	if gotBody != `{"model":"gpt-4"}` {
		t.Errorf("upstream saw body %q", gotBody)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotCustom != "yes" {
		t.Errorf("X-Custom = %q, want yes", gotCustom)
	}
}

func TestHTTPClient_PostJSON_UpstreamStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(ProviderConfig{Name: "test"})
	defer client.Close()

	status, body, err := client.PostJSON(context.Background(), server.URL, []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("PostJSON() error = %v, want nil for upstream 429", err)
	}
	if status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", status)
	}
	if !strings.Contains(string(body), "slow down") {
		t.Errorf("body = %q, want upstream error body", body)
	}
}

func TestHTTPClient_TransportError(t *testing.T) {
	// A closed server guarantees connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewHTTPClient(ProviderConfig{Name: "test"})
	defer client.Close()

	_, _, err := client.PostJSON(context.Background(), url, []byte(`{}`), nil)
	if err == nil {
		t.Fatal("PostJSON() error = nil, want transport error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T, want *TransportError", err)
	}
	if te.Provider != "test" {
		t.Errorf("Provider = %q, want test", te.Provider)
	}
	if te.Unwrap() == nil {
		t.Error("Unwrap() = nil, want underlying network error")
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := NewHTTPClient(ProviderConfig{Name: "test", Timeout: 5 * time.Second})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := client.PostJSON(ctx, server.URL, []byte(`{}`), nil)
	if err == nil {
		t.Fatal("PostJSON() error = nil, want timeout")
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T (%v), want *TimeoutError", err, err)
	}
	if te.Provider != "test" {
		t.Errorf("Provider = %q, want test", te.Provider)
	}
}

func TestReadErrorBody_Bounded(t *testing.T) {
	big := strings.NewReader(strings.Repeat("x", maxErrorBodySize*2))
	body := ReadErrorBody(big)
	if len(body) != maxErrorBodySize {
		t.Errorf("len = %d, want %d", len(body), maxErrorBodySize)
	}
}
