// Package transport implements the Engine.IO HTTP long-polling and
// WebSocket transports over a *engineio.Engine.
package transport

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dsio/gosio/engineio"
	"github.com/dsio/gosio/engineio/errors"
	"github.com/dsio/gosio/engineio/packet"
	"github.com/dsio/gosio/engineio/session"
	"github.com/dsio/gosio/pkg/log"
	"github.com/dsio/gosio/pkg/utils"
)

// PollingHandler is an http.Handler implementing the long-polling
// transport: GET without sid is the handshake, GET with sid drains the
// outbound queue, POST with sid ingests client packets.
type PollingHandler struct {
	Engine *engineio.Engine
	log    *log.Log
}

func NewPollingHandler(e *engineio.Engine) *PollingHandler {
	return &PollingHandler{Engine: e, log: log.NewLog("gosio:engineio:polling")}
}

func (h *PollingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != "4" {
		httpError(w, http.StatusBadRequest, errors.ErrBadHandshake)
		return
	}
	if q.Get("transport") != "polling" {
		httpError(w, http.StatusBadRequest, errors.ErrTransportMissing)
		return
	}

	sid := q.Get("sid")

	switch {
	case sid == "" && r.Method == http.MethodGet:
		h.handshake(w, r)
	case sid != "" && r.Method == http.MethodGet:
		h.handleGet(w, r, sid)
	case sid != "" && r.Method == http.MethodPost:
		h.handlePost(w, r, sid)
	case sid != "":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		httpError(w, http.StatusBadRequest, errors.ErrBadHandshake)
	}
}

func (h *PollingHandler) handshake(w http.ResponseWriter, r *http.Request) {
	sess := h.Engine.CreateSession(session.TransportPolling)

	body, err := packet.EncodeOpenPacket(packet.OpenPayload{
		SID:          sess.SID(),
		Upgrades:     []string{"websocket"},
		PingInterval: sess.PingInterval().Milliseconds(),
		PingTimeout:  sess.PingTimeout().Milliseconds(),
		MaxPayload:   sess.MaxPayload(),
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writePlain(w, http.StatusOK, body)

	socket, _ := h.Engine.Socket(sess.SID())
	h.Engine.App.OnConnect(socket)
}

func (h *PollingHandler) handleGet(w http.ResponseWriter, r *http.Request, sid string) {
	sess, ok := h.Engine.Registry.Get(sid)
	if !ok {
		httpError(w, http.StatusBadRequest, errors.ErrUnknownSession)
		return
	}
	if sess.Closed() {
		httpError(w, http.StatusBadRequest, errors.ErrSessionClosed)
		return
	}
	if sess.Transport() == session.TransportWebSocket {
		httpError(w, http.StatusBadRequest, errors.ErrAlreadyUpgraded)
		return
	}
	if sess.IsTimedOut() {
		h.Engine.CloseSession(sid, errors.ReasonTimeout)
		httpError(w, http.StatusBadRequest, errors.ErrSessionTimedOut)
		return
	}

	if !sess.TryActiveGet() {
		h.Engine.CloseSession(sid, errors.ReasonConcurrentGet)
		httpError(w, http.StatusBadRequest, errors.ErrConcurrentGet)
		return
	}
	defer sess.ClearActiveGet()

	sess.Touch()

	var pingTimer *utils.Timer
	if sess.ShouldSendPing() {
		sess.Enqueue(packet.Packet{Type: packet.Ping})
		sess.MarkPingSent()
	} else {
		// Deferred ping: fire once the remainder of the interval,
		// measured from the last ping actually sent, elapses.
		remaining := sess.PingInterval() - time.Since(sess.LastPingSent())
		if remaining < 0 {
			remaining = 0
		}
		pingTimer = utils.SetTimeout(func() {
			sess.Enqueue(packet.Packet{Type: packet.Ping})
			sess.MarkPingSent()
		}, remaining)
	}

	payload := sess.NextPayload((sess.PingInterval() + sess.PingTimeout()))
	if pingTimer != nil {
		utils.ClearTimeout(pingTimer)
	}

	writePlain(w, http.StatusOK, payload)
}

func (h *PollingHandler) handlePost(w http.ResponseWriter, r *http.Request, sid string) {
	sess, ok := h.Engine.Registry.Get(sid)
	if !ok {
		httpError(w, http.StatusBadRequest, errors.ErrUnknownSession)
		return
	}
	if sess.Closed() {
		httpError(w, http.StatusBadRequest, errors.ErrSessionClosed)
		return
	}
	if sess.Transport() == session.TransportWebSocket {
		httpError(w, http.StatusBadRequest, errors.ErrAlreadyUpgraded)
		return
	}
	if sess.IsTimedOut() {
		h.Engine.CloseSession(sid, errors.ReasonTimeout)
		httpError(w, http.StatusBadRequest, errors.ErrSessionTimedOut)
		return
	}

	if !sess.TryActivePost() {
		h.Engine.CloseSession(sid, errors.ReasonConcurrentPost)
		httpError(w, http.StatusBadRequest, errors.ErrConcurrentPost)
		return
	}
	defer sess.ClearActivePost()

	sess.Touch()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
		return
	}

	packets, err := packet.DecodeHTTPPayload(body)
	if err != nil {
		httpError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
		return
	}

	socket, _ := h.Engine.Socket(sid)
	for _, p := range packets {
		switch p.Type {
		case packet.Pong:
			sess.MarkPongReceived()
		case packet.Message:
			h.Engine.App.OnMessage(socket, p.Data, p.Binary)
		case packet.Close:
			h.Engine.CloseSession(sid, errors.ReasonClientClose)
		case packet.Ping:
			sess.Enqueue(packet.Packet{Type: packet.Pong, Data: p.Data})
		}
	}

	writePlain(w, http.StatusOK, []byte("ok"))
}

func writePlain(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func httpError(w http.ResponseWriter, status int, err error) {
	writePlain(w, status, []byte(err.Error()))
}
