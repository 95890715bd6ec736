// Package socketio implements the Socket.IO v5 multiplexing layer on top of
// engineio: namespaces, namespace sockets, acks, rooms, and cross-process
// broadcast via the external bus.GroupBus collaborator.
package socketio

import (
	"sync"

	"github.com/dsio/gosio/pkg/types"
)

// AckFunc is the callback a client's ack id resolves to; calling it sends
// an ACK packet back to the client with the given arguments.
type AckFunc func(args ...any)

// EventHandler handles one EVENT/BINARY_EVENT delivered to a namespace. ack
// is nil when the inbound packet carried no ack id.
type EventHandler func(socket *NamespaceSocket, args []any, ack AckFunc)

// ConnectHandler authorizes a CONNECT for a namespace. Returning false
// rejects the connection with a CONNECT_ERROR.
type ConnectHandler func(socket *NamespaceSocket, auth any) bool

// Namespace is a process-wide singleton keyed by name (e.g. "/", "/chat").
type Namespace struct {
	name string

	mu             sync.RWMutex
	connectHandler ConnectHandler
	listeners      map[string]EventHandler
	sockets        map[string]*NamespaceSocket   // by NamespaceSocket.ID()
	rooms          map[string]*types.Set[string] // room -> set of NamespaceSocket.ID()
}

func newNamespace(name string) *Namespace {
	return &Namespace{
		name:      name,
		listeners: make(map[string]EventHandler),
		sockets:   make(map[string]*NamespaceSocket),
		rooms:     make(map[string]*types.Set[string]),
	}
}

func (n *Namespace) Name() string { return n.name }

// On registers the handler for event within this namespace.
func (n *Namespace) On(event string, handler EventHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[event] = handler
}

// OnConnect registers the namespace's connect authorization handler.
func (n *Namespace) OnConnect(handler ConnectHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectHandler = handler
}

func (n *Namespace) listener(event string) (EventHandler, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.listeners[event]
	return h, ok
}

func (n *Namespace) getConnectHandler() ConnectHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connectHandler
}

func (n *Namespace) addSocket(s *NamespaceSocket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sockets[s.ID()] = s
}

func (n *Namespace) removeSocket(s *NamespaceSocket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sockets, s.ID())
	for _, members := range n.rooms {
		members.Delete(s.ID())
	}
}

func (n *Namespace) allLocalSockets() []*NamespaceSocket {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*NamespaceSocket, 0, len(n.sockets))
	for _, s := range n.sockets {
		out = append(out, s)
	}
	return out
}

func (n *Namespace) localSocketsInRoom(room string) []*NamespaceSocket {
	n.mu.Lock()
	members, ok := n.rooms[room]
	n.mu.Unlock()
	if !ok {
		return nil
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*NamespaceSocket, 0, members.Len())
	for id := range members.All() {
		if s, ok := n.sockets[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// socketByID looks up a local namespace-socket by its NamespaceSocket.ID().
func (n *Namespace) socketByID(id string) (*NamespaceSocket, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.sockets[id]
	return s, ok
}

// snapshotRooms returns a point-in-time copy of room -> member-id-set, safe
// to range over without holding the namespace lock (used when fanning out
// a bus envelope across every room, which may itself call back into local
// sends).
func (n *Namespace) snapshotRooms() map[string]map[string]struct{} {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]map[string]struct{}, len(n.rooms))
	for room, members := range n.rooms {
		ids := make(map[string]struct{})
		for id := range members.All() {
			ids[id] = struct{}{}
		}
		out[room] = ids
	}
	return out
}

func (n *Namespace) joinRoom(room, socketID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	members, ok := n.rooms[room]
	if !ok {
		members = types.NewSet[string]()
		n.rooms[room] = members
	}
	members.Add(socketID)
}

func (n *Namespace) leaveRoom(room, socketID string) {
	n.mu.Lock()
	members, ok := n.rooms[room]
	n.mu.Unlock()
	if ok {
		members.Delete(socketID)
	}
}
