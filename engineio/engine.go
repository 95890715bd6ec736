// Package engineio wires together the packet codec, session registry, and
// application contract into the Engine struct the HTTP long-polling and
// WebSocket transports (engineio/transport) are constructed with.
package engineio

import (
	"github.com/dsio/gosio/engineio/app"
	"github.com/dsio/gosio/engineio/config"
	eioerrors "github.com/dsio/gosio/engineio/errors"
	"github.com/dsio/gosio/engineio/session"
	"github.com/dsio/gosio/pkg/log"
)

// Engine is the process-wide Engine.IO server: one session registry, one
// bound Application, and the configured timing/size limits.
type Engine struct {
	Registry *session.Registry
	App      app.Application
	Options  *config.ServerOptions

	log *log.Log
}

func New(opts *config.ServerOptions, application app.Application) *Engine {
	if opts == nil {
		opts = config.DefaultServerOptions()
	}
	if application == nil {
		application = app.EchoApplication{}
	}
	return &Engine{
		Registry: session.NewRegistry(),
		App:      application,
		Options:  opts,
		log:      log.NewLog("gosio:engineio"),
	}
}

// CreateSession allocates and registers a new session for the given
// transport, using the engine's configured timing and payload limits.
func (e *Engine) CreateSession(transport session.Transport) *session.Session {
	return e.Registry.Create(transport, e.Options.PingInterval(), e.Options.PingTimeout(), e.Options.MaxPayload())
}

// Socket returns the application-facing facade for sid, creating it fresh
// each call (it is a thin, stateless wrapper around the session).
func (e *Engine) Socket(sid string) (*app.Socket, bool) {
	sess, ok := e.Registry.Get(sid)
	if !ok {
		return nil, false
	}
	return app.NewSocket(sess, e), true
}

// CloseSession implements app.Closer. It is idempotent: enqueues a noop to
// unblock any waiting long-poll GET, latches closed, invokes
// Application.OnDisconnect, and removes the session from the registry —
// exactly once, regardless of how many paths call it concurrently (the
// WebSocket disconnect handler and an HTTP close both converge here).
func (e *Engine) CloseSession(sid string, reason eioerrors.CloseReason) {
	sess, ok := e.Registry.Get(sid)
	if !ok {
		return
	}
	e.closeSession(sess, reason)
}

func (e *Engine) closeSession(sess *session.Session, reason eioerrors.CloseReason) {
	sess.EnqueueNoop()

	if !sess.MarkClosedOnce() {
		return
	}
	e.log.Debug("closing session %s: %s", sess.SID(), reason)

	socket := app.NewSocket(sess, e)
	e.App.OnDisconnect(socket, reason)

	if ws := sess.WebSocket(); ws != nil {
		_ = ws.Close()
	}

	e.Registry.Destroy(sess.SID())
}
