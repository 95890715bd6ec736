package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsio/gosio/engineio"
	"github.com/dsio/gosio/engineio/errors"
	"github.com/dsio/gosio/engineio/packet"
	"github.com/dsio/gosio/engineio/session"
	"github.com/dsio/gosio/pkg/log"
)

// wsConn adapts a *websocket.Conn to session.WebSocketSink, serializing
// concurrent writes the way gorilla/websocket requires (one writer at a
// time per connection).
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) WriteText(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) WriteBinary(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// WebSocketHandler implements the WebSocket transport: fresh
// connections and polling→WebSocket upgrades, frame dispatch, and the
// per-connection server heartbeat loop.
type WebSocketHandler struct {
	Engine   *engineio.Engine
	Upgrader websocket.Upgrader

	log *log.Log
}

func NewWebSocketHandler(e *engineio.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		Engine: e,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.NewLog("gosio:engineio:websocket"),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != "4" {
		httpError(w, http.StatusBadRequest, errors.ErrBadHandshake)
		return
	}
	if q.Get("transport") != "websocket" {
		httpError(w, http.StatusBadRequest, errors.ErrTransportMissing)
		return
	}

	sid := q.Get("sid")

	var sess *session.Session
	fresh := sid == ""

	if fresh {
		sess = h.Engine.CreateSession(session.TransportWebSocket)
	} else {
		var ok bool
		sess, ok = h.Engine.Registry.Get(sid)
		if !ok {
			httpError(w, http.StatusBadRequest, errors.ErrUnknownSession)
			return
		}
		if sess.Closed() {
			httpError(w, http.StatusBadRequest, errors.ErrSessionClosed)
			return
		}
		if sess.IsTimedOut() {
			httpError(w, http.StatusBadRequest, errors.ErrSessionTimedOut)
			return
		}
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		if fresh {
			h.Engine.Registry.Destroy(sess.SID())
		}
		return
	}

	sink := &wsConn{conn: conn}
	if !sess.AttachWebSocket(sink) {
		h.log.Debug("refusing upgrade for %s: %v", sess.SID(), errors.ErrWebSocketBound)
		_ = conn.Close()
		return
	}

	if fresh {
		body, encErr := packet.EncodeOpenPacket(packet.OpenPayload{
			SID:          sess.SID(),
			Upgrades:     []string{},
			PingInterval: sess.PingInterval().Milliseconds(),
			PingTimeout:  sess.PingTimeout().Milliseconds(),
			MaxPayload:   sess.MaxPayload(),
		})
		if encErr == nil {
			_ = sink.WriteText(body)
		}

		socket, _ := h.Engine.Socket(sess.SID())
		h.Engine.App.OnConnect(socket)
	}

	done := make(chan struct{})
	go h.heartbeatLoop(sess, done)

	h.readLoop(conn, sess)

	close(done)
	sess.DetachWebSocket()
	h.Engine.CloseSession(sess.SID(), errors.ReasonWebSocketDisconnect)
}

func (h *WebSocketHandler) heartbeatLoop(sess *session.Session, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-time.After(sess.PingInterval()):
		}

		ws := sess.WebSocket()
		if ws == nil {
			return
		}
		sentAt := time.Now()
		if err := ws.WriteText(packet.EncodeWSTextFrame(packet.Ping, "")); err != nil {
			return
		}
		sess.MarkPingSent()

		select {
		case <-done:
			return
		case <-time.After(sess.PingTimeout()):
		}

		if sess.LastPong().Before(sentAt) {
			_ = ws.Close()
			return
		}
	}
}

func (h *WebSocketHandler) readLoop(conn *websocket.Conn, sess *session.Session) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		sess.Touch()

		var p packet.Packet
		switch mt {
		case websocket.TextMessage:
			p, err = packet.DecodeWSTextFrame(data)
		case websocket.BinaryMessage:
			p, err = packet.DecodeWSBinaryFrame(data)
		default:
			continue
		}
		if err != nil {
			continue
		}

		if h.dispatch(conn, sess, p) {
			return
		}
	}
}

// dispatch handles one decoded frame. Returns true if the read loop should
// stop (connection is closing).
func (h *WebSocketHandler) dispatch(conn *websocket.Conn, sess *session.Session, p packet.Packet) bool {
	ws := sess.WebSocket()

	switch p.Type {
	case packet.Ping:
		if string(p.Data) == "probe" {
			if ws != nil {
				_ = ws.WriteText(packet.EncodeWSTextFrame(packet.Pong, "probe"))
			}
			return false
		}
		if ws != nil {
			if p.Binary {
				_ = ws.WriteBinary(packet.EncodeWSBinaryFrame(packet.Pong, p.Data))
			} else {
				_ = ws.WriteText(packet.EncodeWSTextFrame(packet.Pong, string(p.Data)))
			}
		}
		return false

	case packet.Pong:
		sess.MarkPongReceived()
		return false

	case packet.Upgrade:
		sess.SetTransport(session.TransportWebSocket)
		// Queued packets were bound for a polling payload; emit each in
		// that segment representation ("b"+base64 for binary messages) as
		// a text frame, preserving enqueue order.
		for _, pending := range sess.DrainAll() {
			if ws == nil {
				break
			}
			_ = ws.WriteText(packet.EncodeHTTPSegment(pending))
		}
		sess.Enqueue(packet.Packet{Type: packet.Noop})
		return false

	case packet.Message:
		socket, _ := h.Engine.Socket(sess.SID())
		h.Engine.App.OnMessage(socket, p.Data, p.Binary)
		return false

	case packet.Close:
		h.Engine.CloseSession(sess.SID(), errors.ReasonClientClose)
		_ = conn.Close()
		return true

	default:
		return false
	}
}
