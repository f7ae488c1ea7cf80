package providers

import (
	"context"
	"io"
	"strings"
	"testing"
)

func readAllEvents(t *testing.T, raw string) []*SSEEvent {
	t.Helper()
	reader := NewSSEReader(io.NopCloser(strings.NewReader(raw)))
	defer reader.Close()

	var events []*SSEEvent
	for {
		event, err := reader.Next(context.Background())
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		events = append(events, event)
	}
}

func TestSSEReader_Events(t *testing.T) {
	raw := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"
	events := readAllEvents(t, raw)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Data != `{"a":1}` {
		t.Errorf("events[0].Data = %q", events[0].Data)
	}
	if events[2].Data != "[DONE]" {
		t.Errorf("events[2].Data = %q", events[2].Data)
	}
}

func TestSSEReader_EventTypes(t *testing.T) {
	raw := "event: message_start\ndata: {\"type\":\"message_start\"}\n\nevent: ping\ndata: {}\n\n"
	events := readAllEvents(t, raw)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "message_start" {
		t.Errorf("events[0].Type = %q", events[0].Type)
	}
	if events[1].Type != "ping" {
		t.Errorf("events[1].Type = %q", events[1].Type)
	}
}

func TestSSEReader_MultiLineData(t *testing.T) {
	raw := "data: line one\ndata: line two\n\n"
	events := readAllEvents(t, raw)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "line one\nline two" {
		t.Errorf("Data = %q", events[0].Data)
	}
}

func TestSSEReader_TrailingEventWithoutBlankLine(t *testing.T) {
	raw := "data: first\n\ndata: last"
	events := readAllEvents(t, raw)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Data != "last" {
		t.Errorf("events[1].Data = %q", events[1].Data)
	}
}

func TestSSEReader_IgnoresCommentsAndIDs(t *testing.T) {
	raw := ": keep-alive\nid: 42\nretry: 1000\ndata: real\n\n"
	events := readAllEvents(t, raw)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "real" {
		t.Errorf("Data = %q", events[0].Data)
	}
}

func TestSSEReader_ContextCancellation(t *testing.T) {
	reader := NewSSEReader(io.NopCloser(strings.NewReader("data: x\n\n")))
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.Next(ctx)
	if err != context.Canceled {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestSSEReader_CloseThenNext(t *testing.T) {
	reader := NewSSEReader(io.NopCloser(strings.NewReader("data: x\n\n")))
	reader.Close()
	reader.Close()

	_, err := reader.Next(context.Background())
	if err != io.EOF {
		t.Errorf("Next() after Close = %v, want io.EOF", err)
	}
}
