// Package session implements the Engine.IO session object and its process
// registry: the outbound queue and heartbeat state machine both transports
// use, and the active_get/active_post concurrency guards of the HTTP
// long-polling transport.
package session

import (
	"sync"
	"time"

	"github.com/dsio/gosio/engineio/metrics"
	"github.com/dsio/gosio/engineio/packet"
	"github.com/dsio/gosio/pkg/types"
)

// Transport names the transport a session is currently bound to.
type Transport string

const (
	TransportPolling   Transport = "polling"
	TransportWebSocket Transport = "websocket"
)

// WebSocketSink is the minimal surface a WebSocket transport exposes to a
// Session so the session package never needs to import gorilla/websocket
// directly.
type WebSocketSink interface {
	WriteText(data []byte) error
	WriteBinary(data []byte) error
	Close() error
}

// Session is one Engine.IO connection's server-side state.
type Session struct {
	mu sync.Mutex

	sid string
	// transport is a lock-free atomic value: it is read on every send
	// but written only during handshake and upgrade.
	transport types.Atomic[Transport]
	ws        WebSocketSink

	pingInterval time.Duration
	pingTimeout  time.Duration
	maxPayload   int

	queue []packet.Packet

	// waiters are notified (closed) whenever the queue gains a packet so a
	// blocked next_payload wakes up immediately instead of only on timeout.
	waiters []chan struct{}

	activeGet  bool
	activePost bool
	closed     bool

	lastSeen     time.Time
	lastPingSent time.Time
	lastPong     time.Time
}

func newSession(sid string, transport Transport, pingInterval, pingTimeout time.Duration, maxPayload int) *Session {
	now := time.Now()
	s := &Session{
		sid:          sid,
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		maxPayload:   maxPayload,
		lastSeen:     now,
		lastPong:     now,
	}
	s.transport.Store(transport)
	return s
}

func (s *Session) SID() string { return s.sid }

func (s *Session) Transport() Transport {
	return s.transport.Load()
}

func (s *Session) SetTransport(t Transport) {
	s.transport.Store(t)
}

func (s *Session) PingInterval() time.Duration { return s.pingInterval }
func (s *Session) PingTimeout() time.Duration  { return s.pingTimeout }
func (s *Session) MaxPayload() int             { return s.maxPayload }

// AttachWebSocket binds a WebSocket sink to the session. Returns false if a
// different WebSocket is already attached.
func (s *Session) AttachWebSocket(ws WebSocketSink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ws != nil && s.ws != ws {
		return false
	}
	s.ws = ws
	return true
}

func (s *Session) WebSocket() WebSocketSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws
}

func (s *Session) DetachWebSocket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws = nil
}

// Touch records inbound activity, used by both transports on every request.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Closed reports whether the session has already been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// markClosed latches the closed flag and returns whether this call was the
// one to do so (false if already closed), so Close() logic stays idempotent.
func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// MarkClosedOnce is the exported form of markClosed, used by the Engine's
// idempotent session-close flow.
func (s *Session) MarkClosedOnce() bool {
	return s.markClosed()
}

// EnqueueNoop enqueues a noop (type 6) packet, bypassing the closed check —
// used to unblock a waiting long-poll GET as the very first step of
// closing a session, before the closed flag is latched by the caller.
func (s *Session) EnqueueNoop() {
	s.mu.Lock()
	s.queue = append(s.queue, packet.Packet{Type: packet.Noop})
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// --- Heartbeat state machine ---

func (s *Session) MarkPingSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPingSent = time.Now()
}

func (s *Session) MarkPongReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPong = time.Now()
}

func (s *Session) LastPingSent() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPingSent
}

func (s *Session) LastPong() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPong
}

// ShouldSendPing implements: !closed && (last_ping_sent == 0 || now -
// last_ping_sent >= pingInterval).
func (s *Session) ShouldSendPing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.lastPingSent.IsZero() {
		return true
	}
	return time.Since(s.lastPingSent) >= s.pingInterval
}

// IsTimedOut implements: closed || (now - last_pong > 2*(pingInterval + pingTimeout)).
func (s *Session) IsTimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	return time.Since(s.lastPong) > 2*(s.pingInterval+s.pingTimeout)
}

// --- Concurrency guards ---

// TryActiveGet sets active_get if not already set, returning false if a GET
// is already in flight.
func (s *Session) TryActiveGet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeGet {
		return false
	}
	s.activeGet = true
	return true
}

func (s *Session) ClearActiveGet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeGet = false
}

func (s *Session) TryActivePost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activePost {
		return false
	}
	s.activePost = true
	return true
}

func (s *Session) ClearActivePost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePost = false
}

// --- Outbound queue ---

// Enqueue appends a packet to the outbound queue. A no-op on closed sessions.
func (s *Session) Enqueue(p packet.Packet) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, p)
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// NextPayload blocks up to timeout for at least one packet to be enqueued,
// then drains everything currently ready into a single maxPayload-bounded
// HTTP long-polling payload, per the payload assembly contract in packet.DrainForPayload.
// Returns empty bytes if nothing arrived before the timeout.
func (s *Session) NextPayload(timeout time.Duration) []byte {
	s.mu.Lock()
	if len(s.queue) == 0 {
		wait := make(chan struct{})
		s.waiters = append(s.waiters, wait)
		s.mu.Unlock()

		select {
		case <-wait:
		case <-time.After(timeout):
		}

		s.mu.Lock()
	}

	payload, consumed := packet.DrainForPayload(s.queue, s.maxPayload)
	if consumed > 0 {
		s.queue = append([]packet.Packet(nil), s.queue[consumed:]...)
	}
	s.mu.Unlock()

	metrics.OutboundQueueDepth.Observe(float64(consumed))

	return payload
}

// DrainAll empties the queue unconditionally, returning every pending
// packet in FIFO order. Used by the WebSocket upgrade drain step, which
// must flush pre-upgrade traffic without a maxPayload ceiling.
func (s *Session) DrainAll() []packet.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.queue
	s.queue = nil
	return drained
}
