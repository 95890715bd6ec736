package socketio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dsio/gosio/engineio"
	"github.com/dsio/gosio/engineio/app"
	eioerrors "github.com/dsio/gosio/engineio/errors"
	"github.com/dsio/gosio/engineio/session"
	"github.com/dsio/gosio/pkg/log"
	"github.com/dsio/gosio/socketio/bus"
	"github.com/dsio/gosio/socketio/metrics"
	"github.com/dsio/gosio/socketio/parser"
)

const websocketTransport = session.TransportWebSocket

// DisconnectHook is run, best-effort, for every NamespaceSocket teardown.
type DisconnectHook func(socket *NamespaceSocket, reason string)

// namedDisconnectHook pairs a hook with its registration name so repeated
// registrations under the same name overwrite instead of accumulating.
type namedDisconnectHook struct {
	name string
	fn   DisconnectHook
}

// Server is the Socket.IO application layer: it implements
// engineio/app.Application and fans each Engine.IO connection's messages
// out across namespaces.
type Server struct {
	engine *engineio.Engine
	bus    bus.GroupBus

	mu         sync.RWMutex
	namespaces map[string]*Namespace
	parsers    map[string]*parser.Decoder    // by Engine.IO sid
	sockets    map[string]*NamespaceSocket   // by "<sid>#<ns>"

	nextSocketCounter int64

	hooksMu         sync.Mutex
	disconnectHooks []namedDisconnectHook

	log *log.Log
}

// NewServer builds a Socket.IO server bound to engine. If groupBus is nil,
// a single-process bus.MemoryBus is used.
func NewServer(engine *engineio.Engine, groupBus bus.GroupBus) *Server {
	if groupBus == nil {
		groupBus = bus.NewMemoryBus()
	}

	s := &Server{
		engine:     engine,
		bus:        groupBus,
		namespaces: make(map[string]*Namespace),
		parsers:    make(map[string]*parser.Decoder),
		sockets:    make(map[string]*NamespaceSocket),
		log:        log.NewLog("gosio:socketio:server"),
	}

	_ = groupBus.Subscribe(context.Background(), s.onBusEnvelope)
	return s
}

// Of returns the namespace registered under name, creating it on first use.
func (s *Server) Of(name string) *Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[name]
	if !ok {
		ns = newNamespace(name)
		s.namespaces[name] = ns
	}
	return ns
}

func (s *Server) getNamespace(name string) (*Namespace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[name]
	return ns, ok
}

// RegisterDisconnectHook registers fn under name; it runs for every
// namespace-socket teardown, in first-registration order. Registering again
// with the same name overwrites the previous hook in place, so repeated
// startup wiring stays idempotent.
func (s *Server) RegisterDisconnectHook(name string, fn DisconnectHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	for i := range s.disconnectHooks {
		if s.disconnectHooks[i].name == name {
			s.disconnectHooks[i].fn = fn
			return
		}
	}
	s.disconnectHooks = append(s.disconnectHooks, namedDisconnectHook{name: name, fn: fn})
}

// --- engineio/app.Application ---

func (s *Server) OnConnect(eioSocket *app.Socket) {
	s.mu.Lock()
	s.parsers[eioSocket.SID()] = parser.NewDecoder()
	s.parsers[eioSocket.SID()].OnAccumulatorDrop(func() {
		metrics.BinaryAccumulatorDropped.Inc()
	})
	s.mu.Unlock()

	metrics.SessionsTotal.Inc()
}

func (s *Server) OnMessage(eioSocket *app.Socket, data []byte, binary bool) {
	s.mu.RLock()
	dec, ok := s.parsers[eioSocket.SID()]
	s.mu.RUnlock()
	if !ok {
		return
	}

	var pkt *parser.Packet
	var err error
	if binary {
		pkt, err = dec.AddBinary(data)
	} else {
		pkt, err = dec.AddText(string(data))
	}
	if err != nil {
		s.log.Warning("sid %s: %v", eioSocket.SID(), err)
		return
	}
	if pkt == nil {
		return
	}

	s.dispatch(eioSocket, *pkt)
}

func (s *Server) OnDisconnect(eioSocket *app.Socket, reason eioerrors.CloseReason) {
	sid := eioSocket.SID()

	s.mu.Lock()
	var affected []*NamespaceSocket
	for key, sock := range s.sockets {
		if hasSIDPrefix(key, sid) {
			affected = append(affected, sock)
		}
	}
	delete(s.parsers, sid)
	s.mu.Unlock()

	for _, sock := range affected {
		s.onClientDisconnect(sock, "engineio_"+string(reason))
	}

	metrics.SessionsTotal.Dec()
}

func hasSIDPrefix(key, sid string) bool {
	return len(key) > len(sid) && key[:len(sid)] == sid && key[len(sid)] == '#'
}

func socketKey(sid, namespace string) string {
	return sid + "#" + namespace
}

// --- Dispatch ---

func (s *Server) dispatch(eioSocket *app.Socket, pkt parser.Packet) {
	ns, known := s.getNamespace(pkt.Namespace)

	key := socketKey(eioSocket.SID(), pkt.Namespace)
	s.mu.RLock()
	sock, hasSocket := s.sockets[key]
	s.mu.RUnlock()

	switch {
	case pkt.Type == parser.Connect && !known:
		_ = s.sendRaw(eioSocket, parser.Packet{
			Type:      parser.ConnectError,
			Namespace: pkt.Namespace,
			Data:      map[string]any{"message": "Unknown namespace"},
		})

	case !known:
		// Non-CONNECT traffic for a namespace nobody registered is ignored.

	case pkt.Type == parser.Connect && !hasSocket:
		s.createNamespaceSocket(eioSocket, ns, pkt.Data)

	case !hasSocket:
		eioSocket.Close(eioerrors.ReasonMissingConnect)

	default:
		sock.handlePacketFromClient(pkt)
	}
}

func (s *Server) createNamespaceSocket(eioSocket *app.Socket, ns *Namespace, authPayload any) {
	id := fmt.Sprintf("%s#%d", eioSocket.SID(), atomic.AddInt64(&s.nextSocketCounter, 1)-1)
	sock := newNamespaceSocket(s, eioSocket, ns, id)

	if handler := ns.getConnectHandler(); handler != nil {
		if !handler(sock, authPayload) {
			_ = s.sendRaw(eioSocket, parser.Packet{
				Type:      parser.ConnectError,
				Namespace: ns.name,
				Data:      map[string]any{"message": "Not authorized"},
			})
			return
		}
	}

	s.mu.Lock()
	s.sockets[socketKey(eioSocket.SID(), ns.name)] = sock
	s.mu.Unlock()
	ns.addSocket(sock)
	metrics.NamespaceSocketsTotal.Inc()

	_ = s.sendRaw(eioSocket, parser.Packet{
		Type:      parser.Connect,
		Namespace: ns.name,
		Data:      map[string]any{"sid": id},
	})
}

func (s *Server) forceDisconnectBadPacket(eioSocket *app.Socket, reason eioerrors.CloseReason) {
	eioSocket.Close(reason)
}

// onClientDisconnect removes sock from its namespace and the dispatch
// table, runs every disconnect hook best-effort (a panicking/erroring hook
// must not stop the rest), and leaves every room.
func (s *Server) onClientDisconnect(sock *NamespaceSocket, reason string) {
	s.mu.Lock()
	delete(s.sockets, socketKey(sock.eio.SID(), sock.namespace.name))
	s.mu.Unlock()

	sock.namespace.removeSocket(sock)
	metrics.NamespaceSocketsTotal.Dec()

	s.hooksMu.Lock()
	hooks := make([]DisconnectHook, len(s.disconnectHooks))
	for i, h := range s.disconnectHooks {
		hooks[i] = h.fn
	}
	s.hooksMu.Unlock()

	for _, hook := range hooks {
		runHookSafely(hook, sock, reason)
	}

	sock.LeaveAll()
}

func runHookSafely(hook DisconnectHook, sock *NamespaceSocket, reason string) {
	defer func() {
		if r := recover(); r != nil {
			// Best-effort: a failing hook must not prevent the remaining
			// hooks from running.
		}
	}()
	hook(sock, reason)
}

// sendRaw encodes pkt and writes it (plus any binary attachments) to
// eioSocket directly — used for packets sent before a NamespaceSocket
// exists (CONNECT, CONNECT_ERROR) as well as by NamespaceSocket.sendPacket.
func (s *Server) sendRaw(eioSocket *app.Socket, pkt parser.Packet) error {
	header, attachments, err := parser.EncodeWithAttachments(pkt)
	if err != nil {
		return fmt.Errorf("socketio: encode packet: %w", err)
	}
	if err := eioSocket.SendText(header); err != nil {
		return err
	}
	for _, a := range attachments {
		if err := eioSocket.SendBinary(a); err != nil {
			return err
		}
	}
	return nil
}

// --- Broadcast ---

// Emit broadcasts event to every socket in namespace. If room is nil, every
// local namespace-socket receives it directly. If room is set, the packet
// is encoded once and published to the bus for that room's group, plus
// delivered directly to any local, non-WebSocket socket in the room (which
// has no bus group membership to be reached through).
func (s *Server) Emit(namespace string, room *string, event string, args ...any) error {
	ns, ok := s.getNamespace(namespace)
	if !ok {
		return fmt.Errorf("socketio: unknown namespace %q", namespace)
	}

	pkt := parser.Packet{Type: parser.Event, Namespace: namespace, Data: append([]any{event}, args...)}

	if room == nil {
		for _, sock := range ns.allLocalSockets() {
			_ = sock.sendPacket(pkt)
		}
		return nil
	}

	header, attachments, err := parser.EncodeWithAttachments(pkt)
	if err != nil {
		return fmt.Errorf("socketio: encode packet: %w", err)
	}

	group := bus.GroupName(namespace, *room)
	if s.bus != nil {
		if err := s.bus.GroupSend(context.Background(), group, bus.Envelope{Header: header, Attachments: attachments}); err != nil {
			label := "other"
			switch s.bus.(type) {
			case *bus.MemoryBus:
				label = "memory"
			case *bus.RedisBus:
				label = "redis"
			case *bus.NATSBus:
				label = "nats"
			}
			metrics.BusPublishFailures.WithLabelValues(label).Inc()
			s.log.Warning("group send to %s failed: %v", group, err)
		}
	}

	for _, sock := range ns.localSocketsInRoom(*room) {
		if sock.eio.Session().Transport() != websocketTransport {
			_ = sock.sendPacket(pkt)
		}
	}
	return nil
}

// onBusEnvelope is invoked for every envelope this process receives from
// the group bus (originating from this or another process). It writes the
// header as an Engine.IO message text frame, then each attachment as a
// binary message frame, to every local socket whose transport is
// WebSocket and whose room/namespace the group name encodes.
//
// Group names are opaque beyond their sio_<ns>_<room> construction, so
// delivery here fans out to every namespace's local room membership that
// matches — cheaper bus implementations could attach routing metadata
// instead, but this keeps the Envelope limited to header and attachments.
func (s *Server) onBusEnvelope(group string, env bus.Envelope) {
	s.mu.RLock()
	namespaces := make([]*Namespace, 0, len(s.namespaces))
	for _, ns := range s.namespaces {
		namespaces = append(namespaces, ns)
	}
	s.mu.RUnlock()

	for _, ns := range namespaces {
		for room, members := range ns.snapshotRooms() {
			if bus.GroupName(ns.name, room) != group {
				continue
			}
			for id := range members {
				sock, ok := ns.socketByID(id)
				if !ok || sock.eio.Session().Transport() != websocketTransport {
					continue
				}
				_ = sock.eio.SendText(env.Header)
				for _, a := range env.Attachments {
					_ = sock.eio.SendBinary(a)
				}
			}
		}
	}
}
