// Package app defines the Engine.IO application contract: the callback
// interface transports invoke, and a thin per-session socket facade handed
// to application code.
package app

import (
	"fmt"

	eioerrors "github.com/dsio/gosio/engineio/errors"
	"github.com/dsio/gosio/engineio/packet"
	"github.com/dsio/gosio/engineio/session"
)

// Application is the callback contract an Engine.IO consumer implements.
// Exactly one Application is bound to a server at a time (see Engine.App in
// package engineio); the Socket.IO server in this module is itself an
// Application.
type Application interface {
	OnConnect(socket *Socket)
	OnMessage(socket *Socket, data []byte, binary bool)
	OnDisconnect(socket *Socket, reason eioerrors.CloseReason)
}

// EchoApplication is the default Application: it echoes every inbound
// message back to the sender and otherwise does nothing. It keeps a bare
// Engine.IO server usable (e.g. against the standard Engine.IO client
// test-suite) before any higher protocol layer is attached.
type EchoApplication struct{}

func (EchoApplication) OnConnect(*Socket) {}

func (EchoApplication) OnMessage(socket *Socket, data []byte, binary bool) {
	if binary {
		_ = socket.SendBinary(data)
		return
	}
	_ = socket.SendText(string(data))
}

func (EchoApplication) OnDisconnect(*Socket, eioerrors.CloseReason) {}

// Closer is implemented by engineio.Engine so Socket.Close can reach back
// into session teardown without app importing engineio (which would be a
// cycle: engineio depends on app for the callback contract).
type Closer interface {
	CloseSession(sid string, reason eioerrors.CloseReason)
}

// Socket is the per-connection facade application code interacts with. It
// wraps a Session and knows how to address it: HTTP long-poll enqueue, or a
// direct WebSocket write, chosen by the session's current transport.
type Socket struct {
	sess   *session.Session
	closer Closer
}

func NewSocket(sess *session.Session, closer Closer) *Socket {
	return &Socket{sess: sess, closer: closer}
}

func (s *Socket) SID() string { return s.sess.SID() }

func (s *Socket) Session() *session.Session { return s.sess }

// SendText delivers a message (type 4) packet as text.
func (s *Socket) SendText(data string) error {
	return s.send(packet.Packet{Type: packet.Message, Data: []byte(data)})
}

// SendBinary delivers a message (type 4) packet as binary.
func (s *Socket) SendBinary(data []byte) error {
	return s.send(packet.Packet{Type: packet.Message, Data: data, Binary: true})
}

func (s *Socket) send(p packet.Packet) error {
	if s.sess.Transport() == session.TransportWebSocket {
		ws := s.sess.WebSocket()
		if ws == nil {
			return fmt.Errorf("engineio/app: session %s has no websocket attached", s.sess.SID())
		}
		if p.Binary {
			return ws.WriteBinary(packet.EncodeWSBinaryFrame(p.Type, p.Data))
		}
		return ws.WriteText(packet.EncodeWSTextFrame(p.Type, string(p.Data)))
	}
	s.sess.Enqueue(p)
	return nil
}

// Close tears down the session with the given reason. Idempotent.
func (s *Socket) Close(reason eioerrors.CloseReason) {
	s.closer.CloseSession(s.sess.SID(), reason)
}
