package bus

import (
	"context"
	"strings"
	"testing"
)

func TestGroupNameSanitizesAndTruncates(t *testing.T) {
	got := GroupName("/chat room!", "general lounge/#1")
	if strings.ContainsAny(got, " !/#") {
		t.Fatalf("expected disallowed characters to be replaced, got %q", got)
	}
	if !strings.HasPrefix(got, "sio_") {
		t.Fatalf("expected sio_ prefix, got %q", got)
	}

	long := GroupName("/ns", strings.Repeat("a", 200))
	if len(long) != 99 {
		t.Fatalf("expected truncation to 99 chars, got %d", len(long))
	}
}

func TestMemoryBusFanOut(t *testing.T) {
	b := NewMemoryBus()
	received := make(chan Envelope, 1)
	if err := b.Subscribe(context.Background(), func(group string, env Envelope) {
		if group == "sio__room1" {
			received <- env
		}
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := Envelope{Header: `2["hi"]`}
	if err := b.GroupSend(context.Background(), "sio__room1", env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-received:
		if got.Header != env.Header {
			t.Fatalf("unexpected envelope: %+v", got)
		}
	default:
		t.Fatal("expected GroupSend to deliver synchronously")
	}
}
