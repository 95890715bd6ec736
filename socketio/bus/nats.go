package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dsio/gosio/pkg/utils"
)

const natsSubjectPrefix = "gosio."

// NATSConfig mirrors the connection tuning exposed by a typical NATS client
// wrapper: reconnect behavior and client identification.
type NATSConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "gosio",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NATSBus is a GroupBus backed by NATS subject-based pub/sub, an
// alternative transport to RedisBus for the same GroupBus interface.
type NATSBus struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("socketio/bus: nats connect: %w", err)
	}
	return &NATSBus{conn: conn, subs: make(map[string]*nats.Subscription)}, nil
}

func (n *NATSBus) GroupAdd(context.Context, string, string) error { return nil }

func (n *NATSBus) GroupDiscard(context.Context, string, string) error { return nil }

func (n *NATSBus) GroupSend(_ context.Context, group string, env Envelope) error {
	payload, err := utils.MsgPack().Encode(env)
	if err != nil {
		return fmt.Errorf("socketio/bus: encode envelope: %w", err)
	}
	return n.conn.Publish(natsSubjectPrefix+group, payload)
}

func (n *NATSBus) Subscribe(_ context.Context, fn func(group string, env Envelope)) error {
	sub, err := n.conn.Subscribe(natsSubjectPrefix+">", func(msg *nats.Msg) {
		var env Envelope
		if err := utils.MsgPack().Decode(msg.Data, &env); err != nil {
			busLog.Warning("nats bus: dropping undecodable envelope on %s: %v", msg.Subject, err)
			return
		}
		group := msg.Subject[len(natsSubjectPrefix):]
		fn(group, env)
	})
	if err != nil {
		return fmt.Errorf("socketio/bus: nats subscribe: %w", err)
	}

	n.mu.Lock()
	n.subs["*"] = sub
	n.mu.Unlock()
	return nil
}

func (n *NATSBus) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		_ = sub.Unsubscribe()
	}
	n.conn.Close()
	return nil
}
