package session

import (
	"testing"
	"time"

	"github.com/dsio/gosio/engineio/packet"
)

func newTestSession() *Session {
	return newSession("sid1", TransportPolling, 25*time.Millisecond, 20*time.Millisecond, 1000)
}

func TestShouldSendPing(t *testing.T) {
	s := newTestSession()
	if !s.ShouldSendPing() {
		t.Fatal("expected true before any ping has been sent")
	}
	s.MarkPingSent()
	if s.ShouldSendPing() {
		t.Fatal("expected false immediately after marking ping sent")
	}
	time.Sleep(30 * time.Millisecond)
	if !s.ShouldSendPing() {
		t.Fatal("expected true once pingInterval has elapsed")
	}
}

func TestIsTimedOut(t *testing.T) {
	s := newTestSession()
	if s.IsTimedOut() {
		t.Fatal("fresh session should not be timed out")
	}
	s.lastPong = time.Now().Add(-2 * (s.pingInterval + s.pingTimeout) - time.Millisecond)
	if !s.IsTimedOut() {
		t.Fatal("expected timeout once 2*(pingInterval+pingTimeout) has elapsed since last pong")
	}
}

func TestEnqueueNoOpWhenClosed(t *testing.T) {
	s := newTestSession()
	s.markClosed()
	s.Enqueue(packet.Packet{Type: packet.Message, Data: []byte("x")})
	if len(s.queue) != 0 {
		t.Fatal("enqueue on a closed session must be a no-op")
	}
}

func TestNextPayloadTimesOutEmpty(t *testing.T) {
	s := newTestSession()
	payload := s.NextPayload(10 * time.Millisecond)
	if len(payload) != 0 {
		t.Fatalf("expected empty payload on timeout, got %q", payload)
	}
}

func TestNextPayloadWakesOnEnqueue(t *testing.T) {
	s := newTestSession()
	done := make(chan []byte, 1)
	go func() {
		done <- s.NextPayload(time.Second)
	}()
	time.Sleep(5 * time.Millisecond)
	s.Enqueue(packet.Packet{Type: packet.Message, Data: []byte("hi")})

	select {
	case payload := <-done:
		decoded, err := packet.DecodeHTTPPayload(payload)
		if err != nil || len(decoded) != 1 || string(decoded[0].Data) != "hi" {
			t.Fatalf("unexpected payload: %q err=%v", payload, err)
		}
	case <-time.After(time.Second):
		t.Fatal("NextPayload did not wake on enqueue")
	}
}

func TestRegistryCreateGetDestroy(t *testing.T) {
	r := NewRegistry()
	s := r.Create(TransportPolling, 25*time.Millisecond, 20*time.Millisecond, 1000)
	if s.SID() == "" {
		t.Fatal("expected a non-empty sid")
	}
	if got, ok := r.Get(s.SID()); !ok || got != s {
		t.Fatal("expected Get to return the created session")
	}
	r.Destroy(s.SID())
	if _, ok := r.Get(s.SID()); ok {
		t.Fatal("expected session to be gone after destroy")
	}
	// Idempotent.
	r.Destroy(s.SID())
}

func TestActiveGetGuard(t *testing.T) {
	s := newTestSession()
	if !s.TryActiveGet() {
		t.Fatal("first TryActiveGet should succeed")
	}
	if s.TryActiveGet() {
		t.Fatal("concurrent TryActiveGet should fail")
	}
	s.ClearActiveGet()
	if !s.TryActiveGet() {
		t.Fatal("TryActiveGet should succeed again after clear")
	}
}
