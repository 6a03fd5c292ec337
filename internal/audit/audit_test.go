package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		EventID:   "e1",
		Timestamp: time.Now().UTC(),
		EventType: "code_requested",
		Target:    "a@b.com",
		Channel:   "email",
		Success:   true,
	})
	sink.Emit(context.Background(), Event{
		EventID:   "e2",
		EventType: "code_rejected",
		Error:     "invalid_credentials",
	})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first Event
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if first.EventID != "e1" || first.EventType != "code_requested" || !first.Success {
		t.Fatalf("unexpected decoded event: %+v", first)
	}
}

func TestChannelSinkDeliversEvents(t *testing.T) {
	sink := NewChannelSink(2)

	sink.Emit(context.Background(), Event{EventID: "e1"})

	select {
	case event := <-sink.Events():
		if event.EventID != "e1" {
			t.Fatalf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("event should be buffered")
	}
}

func TestChannelSinkHonorsContextCancellation(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(context.Background(), Event{EventID: "e1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Buffer is full; a cancelled context must not block.
	done := make(chan struct{})
	go func() {
		sink.Emit(ctx, Event{EventID: "e2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked despite cancelled context")
	}
}
