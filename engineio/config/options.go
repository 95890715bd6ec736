// Package config holds the Engine.IO tunables, following the
// Optional[T]-backed options pattern the rest of this module's ambient stack
// uses for "unset vs. zero" configuration fields.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dsio/gosio/pkg/types"
)

const (
	DefaultPingInterval = 25000 * time.Millisecond
	DefaultPingTimeout  = 20000 * time.Millisecond
	DefaultMaxPayload   = 1_000_000
)

// ServerOptionsInterface exposes the tunables named in the EIO wire format's
// open packet and the HTTP transport's timing contract.
type ServerOptionsInterface interface {
	SetPingInterval(time.Duration) ServerOptionsInterface
	GetRawPingInterval() types.Optional[time.Duration]
	PingInterval() time.Duration

	SetPingTimeout(time.Duration) ServerOptionsInterface
	GetRawPingTimeout() types.Optional[time.Duration]
	PingTimeout() time.Duration

	SetMaxPayload(int) ServerOptionsInterface
	GetRawMaxPayload() types.Optional[int]
	MaxPayload() int

	Assign(ServerOptionsInterface) ServerOptionsInterface
}

type ServerOptions struct {
	pingInterval types.Optional[time.Duration]
	pingTimeout  types.Optional[time.Duration]
	maxPayload   types.Optional[int]
}

func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{}
}

func (s *ServerOptions) SetPingInterval(v time.Duration) ServerOptionsInterface {
	s.pingInterval = types.NewSome(v)
	return s
}

func (s *ServerOptions) GetRawPingInterval() types.Optional[time.Duration] {
	return s.pingInterval
}

func (s *ServerOptions) PingInterval() time.Duration {
	if s.pingInterval != nil {
		return s.pingInterval.Get()
	}
	return DefaultPingInterval
}

func (s *ServerOptions) SetPingTimeout(v time.Duration) ServerOptionsInterface {
	s.pingTimeout = types.NewSome(v)
	return s
}

func (s *ServerOptions) GetRawPingTimeout() types.Optional[time.Duration] {
	return s.pingTimeout
}

func (s *ServerOptions) PingTimeout() time.Duration {
	if s.pingTimeout != nil {
		return s.pingTimeout.Get()
	}
	return DefaultPingTimeout
}

func (s *ServerOptions) SetMaxPayload(v int) ServerOptionsInterface {
	s.maxPayload = types.NewSome(v)
	return s
}

func (s *ServerOptions) GetRawMaxPayload() types.Optional[int] {
	return s.maxPayload
}

func (s *ServerOptions) MaxPayload() int {
	if s.maxPayload != nil {
		return s.maxPayload.Get()
	}
	return DefaultMaxPayload
}

// Assign copies only the fields explicitly set on data, leaving this
// options object's existing fields untouched otherwise.
func (s *ServerOptions) Assign(data ServerOptionsInterface) ServerOptionsInterface {
	if data == nil {
		return s
	}
	if raw := data.GetRawPingInterval(); raw != nil {
		s.pingInterval = raw
	}
	if raw := data.GetRawPingTimeout(); raw != nil {
		s.pingTimeout = raw
	}
	if raw := data.GetRawMaxPayload(); raw != nil {
		s.maxPayload = raw
	}
	return s
}

// FromEnv reads PING_INTERVAL_MS, PING_TIMEOUT_MS and MAX_PAYLOAD_BYTES,
// falling back to the package defaults for anything unset or unparsable.
func FromEnv() *ServerOptions {
	opts := DefaultServerOptions()
	if v, ok := envInt("PING_INTERVAL_MS"); ok {
		opts.SetPingInterval(time.Duration(v) * time.Millisecond)
	}
	if v, ok := envInt("PING_TIMEOUT_MS"); ok {
		opts.SetPingTimeout(time.Duration(v) * time.Millisecond)
	}
	if v, ok := envInt("MAX_PAYLOAD_BYTES"); ok {
		opts.SetMaxPayload(v)
	}
	return opts
}

func envInt(name string) (int, bool) {
	raw, set := os.LookupEnv(name)
	if !set {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
