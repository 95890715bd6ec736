// Package errors declares the sentinel errors and close reasons used across
// the engineio packages.
package errors

import "errors"

var (
	ErrBadHandshake     = errors.New("engineio: bad handshake request")
	ErrUnknownSession   = errors.New("engineio: unknown session")
	ErrSessionClosed    = errors.New("engineio: session closed")
	ErrSessionTimedOut  = errors.New("engineio: session timed out")
	ErrAlreadyUpgraded  = errors.New("engineio: session already upgraded to websocket")
	ErrConcurrentGet    = errors.New("engineio: concurrent GET on same session")
	ErrConcurrentPost   = errors.New("engineio: concurrent POST on same session")
	ErrInvalidPayload   = errors.New("engineio: invalid payload")
	ErrWebSocketBound   = errors.New("engineio: session already has a websocket bound")
	ErrTransportMissing = errors.New("engineio: missing or unsupported transport parameter")
)

// CloseReason is a short machine-readable code describing why a session or
// transport was closed. It is passed to Application.OnDisconnect and to the
// underlying socket's Close.
type CloseReason string

const (
	ReasonClientClose         CloseReason = "client_close"
	ReasonConcurrentGet       CloseReason = "concurrent_get"
	ReasonConcurrentPost      CloseReason = "concurrent_post"
	ReasonMissingConnect      CloseReason = "missing_connect"
	ReasonBadEventPayload     CloseReason = "bad_event_payload"
	ReasonWebSocketDisconnect CloseReason = "websocket_disconnect"
	ReasonTimeout             CloseReason = "timeout"
	ReasonServerClose         CloseReason = "server_close"
)

func (r CloseReason) String() string { return string(r) }
