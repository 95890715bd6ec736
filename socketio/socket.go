package socketio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dsio/gosio/engineio/app"
	"github.com/dsio/gosio/engineio/errors"
	"github.com/dsio/gosio/engineio/session"
	"github.com/dsio/gosio/pkg/types"
	"github.com/dsio/gosio/socketio/bus"
	"github.com/dsio/gosio/socketio/parser"
)

// NamespaceSocket is one client's connection to one namespace: a
// registry-level entity created on a successful CONNECT and torn down on
// DISCONNECT, transport close, or server-initiated disconnect.
type NamespaceSocket struct {
	server    *Server
	eio       *app.Socket
	namespace *Namespace
	id        string

	rooms *types.Set[string]

	mu          sync.Mutex
	nextAckID   int64
	pendingAcks map[int64]AckFunc

	stateMu sync.RWMutex
	state   any
}

func newNamespaceSocket(server *Server, eio *app.Socket, ns *Namespace, id string) *NamespaceSocket {
	return &NamespaceSocket{
		server:      server,
		eio:         eio,
		namespace:   ns,
		id:          id,
		rooms:       types.NewSet[string](),
		pendingAcks: make(map[int64]AckFunc),
	}
}

func (s *NamespaceSocket) ID() string          { return s.id }
func (s *NamespaceSocket) Namespace() *Namespace { return s.namespace }
func (s *NamespaceSocket) EngineIOSocket() *app.Socket { return s.eio }

// State returns the arbitrary user-attached value (e.g. a per-connection
// handler object registered through socketio/bind).
func (s *NamespaceSocket) State() any {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *NamespaceSocket) SetState(v any) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = v
}

func (s *NamespaceSocket) sendPacket(pkt parser.Packet) error {
	pkt.Namespace = s.namespace.name
	return s.server.sendRaw(s.eio, pkt)
}

// Emit sends an EVENT (or BINARY_EVENT, transparently, if any arg is
// binary) with no ack requested.
func (s *NamespaceSocket) Emit(event string, args ...any) error {
	return s.sendPacket(parser.Packet{
		Type: parser.Event,
		Data: append([]any{event}, args...),
	})
}

// EmitWithAck sends an EVENT and registers cb to run when the matching ACK
// arrives.
func (s *NamespaceSocket) EmitWithAck(event string, args []any, cb AckFunc) error {
	id := atomic.AddInt64(&s.nextAckID, 1) - 1

	s.mu.Lock()
	s.pendingAcks[id] = cb
	s.mu.Unlock()

	return s.sendPacket(parser.Packet{
		Type: parser.Event,
		Data: append([]any{event}, args...),
		ID:   &id,
	})
}

// Disconnect sends a DISCONNECT packet to the client then runs the
// namespace-disconnect teardown flow.
func (s *NamespaceSocket) Disconnect() {
	_ = s.sendPacket(parser.Packet{Type: parser.Disconnect})
	s.server.onClientDisconnect(s, "server_disconnect")
}

// Join adds room to this socket's room set, mirroring the membership onto
// the external bus when this connection is a WebSocket (so cross-process
// broadcasts to the room reach it).
func (s *NamespaceSocket) Join(room string) {
	s.rooms.Add(room)
	s.namespace.joinRoom(room, s.id)
	if s.eio.Session().Transport() == session.TransportWebSocket && s.server.bus != nil {
		_ = s.server.bus.GroupAdd(context.Background(), bus.GroupName(s.namespace.name, room), s.eio.SID())
	}
}

// Leave removes room from this socket's room set.
func (s *NamespaceSocket) Leave(room string) {
	s.rooms.Delete(room)
	s.namespace.leaveRoom(room, s.id)
	if s.eio.Session().Transport() == session.TransportWebSocket && s.server.bus != nil {
		_ = s.server.bus.GroupDiscard(context.Background(), bus.GroupName(s.namespace.name, room), s.eio.SID())
	}
}

// LeaveAll removes this socket from every room it currently belongs to.
func (s *NamespaceSocket) LeaveAll() {
	for room := range s.rooms.All() {
		s.Leave(room)
	}
}

// handlePacketFromClient dispatches one decoded Socket.IO packet already
// routed to this namespace-socket by Server.dispatch.
func (s *NamespaceSocket) handlePacketFromClient(pkt parser.Packet) {
	switch pkt.Type {
	case parser.Event, parser.BinaryEvent:
		s.handleEvent(pkt)
	case parser.Ack, parser.BinaryAck:
		s.handleAck(pkt)
	case parser.Disconnect:
		s.server.onClientDisconnect(s, "client_disconnect")
	}
}

func (s *NamespaceSocket) handleEvent(pkt parser.Packet) {
	data, ok := pkt.Data.([]any)
	if !ok || len(data) == 0 {
		s.server.forceDisconnectBadPacket(s.eio, errors.ReasonBadEventPayload)
		return
	}

	event, ok := data[0].(string)
	if !ok {
		s.server.forceDisconnectBadPacket(s.eio, errors.ReasonBadEventPayload)
		return
	}
	args := data[1:]

	var ack AckFunc
	if pkt.ID != nil {
		id := *pkt.ID
		ack = func(replyArgs ...any) {
			_ = s.sendPacket(parser.Packet{
				Type: parser.Ack,
				Data: replyArgs,
				ID:   &id,
			})
		}
	}

	if handler, ok := s.namespace.listener(event); ok {
		handler(s, args, ack)
	}
	// Events with no registered listener are silently dropped.
}

func (s *NamespaceSocket) handleAck(pkt parser.Packet) {
	if pkt.ID == nil {
		return
	}

	s.mu.Lock()
	cb, ok := s.pendingAcks[*pkt.ID]
	delete(s.pendingAcks, *pkt.ID)
	s.mu.Unlock()
	if !ok {
		return
	}

	args, ok := pkt.Data.([]any)
	if !ok {
		args = []any{pkt.Data}
	}
	cb(args...)
}
