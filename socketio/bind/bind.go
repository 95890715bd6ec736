// Package bind is the consumer-binding layer: a declarative wrapper that
// registers a namespace's connect/disconnect/event handlers with a
// socketio.Server exactly once, at startup.
//
// Handlers are declared explicitly on a Binding value rather than
// discovered by reflection, with two distinct handler shapes: EventFunc
// for handlers that want the server to auto-acknowledge on their behalf,
// and EventWithAckFunc for handlers that control the ack themselves.
// Application code written against this package never touches packet types
// or ack ids directly.
package bind

import "github.com/dsio/gosio/socketio"

// State is the arbitrary per-connection value a Binding creates; handlers
// receive it so application code doesn't need to type-assert
// socketio.NamespaceSocket.State() itself.
type State any

// ConnectFunc authorizes a CONNECT for the bound namespace. It returns the
// per-connection state to attach to the socket (via
// socketio.NamespaceSocket.SetState) and whether to accept the connection.
// Returning ok=false rejects with CONNECT_ERROR and discards state.
type ConnectFunc func(socket *socketio.NamespaceSocket, auth any) (state State, ok bool)

// DisconnectFunc runs when a bound namespace-socket tears down, for any
// reason. state is whatever the ConnectFunc produced; it may
// be nil if the socket connected before a ConnectFunc was registered.
type DisconnectFunc func(socket *socketio.NamespaceSocket, state State, reason string)

// EventFunc handles one event with no ack semantics. If the inbound packet
// carried an ack id, it is auto-acked (with no arguments) after the handler
// returns.
type EventFunc func(socket *socketio.NamespaceSocket, state State, args []any)

// EventWithAckFunc handles one event and is always given the ack callback
// (nil if the client sent none), so it controls whether and when to
// acknowledge.
type EventWithAckFunc func(socket *socketio.NamespaceSocket, state State, args []any, ack socketio.AckFunc)

// Binding declares everything one namespace needs: its name, an optional
// connect authorizer, an optional disconnect hook, and its event handlers.
// Namespace must be set explicitly (clients address the default namespace
// as "/", not ""); Register does not normalize it.
type Binding struct {
	Namespace  string
	Connect    ConnectFunc
	Disconnect DisconnectFunc

	Events        map[string]EventFunc
	EventsWithAck map[string]EventWithAckFunc
}

// Register wires b's handlers into server. Calling Register again with an
// equivalent Binding for the same namespace is idempotent: it overwrites
// the namespace's registered handlers in place and never leaves stale
// state behind.
func Register(server *socketio.Server, b Binding) {
	ns := server.Of(b.Namespace)

	if b.Connect != nil {
		connect := b.Connect
		ns.OnConnect(func(socket *socketio.NamespaceSocket, auth any) bool {
			state, ok := connect(socket, auth)
			if !ok {
				return false
			}
			socket.SetState(state)
			return true
		})
	}

	for name, fn := range b.Events {
		fn := fn
		ns.On(name, func(socket *socketio.NamespaceSocket, args []any, ack socketio.AckFunc) {
			fn(socket, socket.State(), args)
			if ack != nil {
				ack()
			}
		})
	}

	for name, fn := range b.EventsWithAck {
		fn := fn
		ns.On(name, func(socket *socketio.NamespaceSocket, args []any, ack socketio.AckFunc) {
			fn(socket, socket.State(), args, ack)
		})
	}

	if b.Disconnect != nil {
		namespace := b.Namespace
		disconnect := b.Disconnect
		server.RegisterDisconnectHook(namespace, func(socket *socketio.NamespaceSocket, reason string) {
			if socket.Namespace().Name() != namespace {
				return
			}
			disconnect(socket, socket.State(), reason)
		})
	}
}
