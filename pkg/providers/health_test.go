package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHealthTracker_ThresholdAndReset(t *testing.T) {
	var h healthTracker

	s := h.snapshot()
	if !s.Healthy {
		t.Error("fresh tracker should report healthy")
	}
	if s.LastSuccess != nil || s.LastFailure != nil {
		t.Error("fresh tracker should have no timestamps")
	}

	h.recordFailure()
	h.recordFailure()
	if s := h.snapshot(); !s.Healthy {
		t.Errorf("healthy = false after 2 failures, want true (threshold is %d)", healthFailureThreshold)
	}

	h.recordFailure()
	s = h.snapshot()
	if s.Healthy {
		t.Error("healthy = true after 3 consecutive failures, want false")
	}
	if s.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", s.ConsecutiveFailures)
	}
	if s.LastFailure == nil {
		t.Error("LastFailure = nil after failures")
	}

	h.recordSuccess()
	s = h.snapshot()
	if !s.Healthy {
		t.Error("a single success should restore health")
	}
	if s.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d after success, want 0", s.ConsecutiveFailures)
	}
	if s.RequestsTotal != 4 || s.FailuresTotal != 3 {
		t.Errorf("totals = %d/%d, want 4 requests / 3 failures", s.RequestsTotal, s.FailuresTotal)
	}
	if s.LastSuccess == nil {
		t.Error("LastSuccess = nil after success")
	}
}

func TestHTTPClient_HealthTracksUpstreamOutcomes(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusInternalServerError)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	client := NewHTTPClient(ProviderConfig{Name: "test"})
	defer client.Close()

	for i := 0; i < 3; i++ {
		if _, _, err := client.PostJSON(context.Background(), server.URL, []byte(`{}`), nil); err != nil {
			t.Fatalf("PostJSON() error = %v", err)
		}
	}

	s := client.Healthy()
	if s.Healthy {
		t.Error("healthy = true after three 500s, want false")
	}
	if s.RequestsTotal != 3 || s.FailuresTotal != 3 {
		t.Errorf("totals = %d/%d, want 3/3", s.RequestsTotal, s.FailuresTotal)
	}

	status.Store(http.StatusOK)
	if _, _, err := client.PostJSON(context.Background(), server.URL, []byte(`{}`), nil); err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}

	s = client.Healthy()
	if !s.Healthy {
		t.Error("healthy = false after recovery, want true")
	}
	if s.RequestsTotal != 4 || s.FailuresTotal != 3 {
		t.Errorf("totals = %d/%d, want 4/3", s.RequestsTotal, s.FailuresTotal)
	}
	if s.LastSuccess == nil {
		t.Error("LastSuccess = nil after a 200")
	}
}

func TestHTTPClient_Health4xxCountsAsHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(ProviderConfig{Name: "test"})
	defer client.Close()

	for i := 0; i < 3; i++ {
		if _, _, err := client.PostJSON(context.Background(), server.URL, []byte(`{}`), nil); err != nil {
			t.Fatalf("PostJSON() error = %v", err)
		}
	}

	s := client.Healthy()
	if !s.Healthy {
		t.Error("healthy = false after 429s, want true (4xx is the request's fault)")
	}
	if s.FailuresTotal != 0 {
		t.Errorf("FailuresTotal = %d, want 0", s.FailuresTotal)
	}
	if s.RequestsTotal != 3 {
		t.Errorf("RequestsTotal = %d, want 3", s.RequestsTotal)
	}
}

func TestHTTPClient_HealthTransportFailureCounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewHTTPClient(ProviderConfig{Name: "test"})
	defer client.Close()

	if _, _, err := client.PostJSON(context.Background(), url, []byte(`{}`), nil); err == nil {
		t.Fatal("PostJSON() error = nil, want transport error")
	}

	s := client.Healthy()
	if s.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", s.ConsecutiveFailures)
	}
	if s.LastFailure == nil {
		t.Error("LastFailure = nil after transport failure")
	}
	if !s.Healthy {
		t.Error("healthy = false after a single failure, want true")
	}
}
