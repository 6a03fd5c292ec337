package otpAuth

import (
	"context"
	"testing"
	"time"
)

func TestAuditDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled audit config must not create a dispatcher")
	}

	// A nil dispatcher is a silent no-op everywhere.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

func TestAuditDispatcherDeliversBeforeClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: true}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventID: "e", EventType: "code_requested"})
	}
	d.Close()

	var delivered int
	for {
		select {
		case <-sink.Events():
			delivered++
		default:
			if delivered != 5 {
				t.Fatalf("expected 5 delivered events, got %d", delivered)
			}
			return
		}
	}
}

func TestAuditDispatcherDropAccounting(t *testing.T) {
	// A sink that never drains while the dispatcher is saturated.
	blocked := make(chan struct{})
	sink := &blockingSink{release: blocked}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(blocked)
		d.Close()
	}()

	deadline := time.After(2 * time.Second)
	for d.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("saturated dispatcher never recorded a drop")
		default:
			d.Emit(context.Background(), AuditEvent{EventID: "e"})
		}
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(_ context.Context, _ AuditEvent) {
	<-s.release
}
