package bus

import (
	"context"
	"fmt"
	"sync"

	rds "github.com/redis/go-redis/v9"

	"github.com/dsio/gosio/pkg/log"
	"github.com/dsio/gosio/pkg/utils"
)

var busLog = log.NewLog("gosio:socketio:bus")

const redisChannelPrefix = "gosio#"

// RedisBus is a GroupBus backed by Redis Pub/Sub. Group membership itself
// is tracked only locally (the bus is a pure fan-out collaborator, not a
// membership registry); GroupSend simply publishes to the channel named
// after the group.
type RedisBus struct {
	client *rds.Client

	subMu  sync.RWMutex
	pubsub *rds.PubSub
}

func NewRedisBus(client *rds.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (r *RedisBus) GroupAdd(ctx context.Context, group, member string) error {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	if r.pubsub == nil {
		return nil
	}
	return r.pubsub.Subscribe(ctx, redisChannelPrefix+group)
}

func (r *RedisBus) GroupDiscard(ctx context.Context, group, member string) error {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	if r.pubsub == nil {
		return nil
	}
	return r.pubsub.Unsubscribe(ctx, redisChannelPrefix+group)
}

func (r *RedisBus) GroupSend(ctx context.Context, group string, env Envelope) error {
	payload, err := utils.MsgPack().Encode(env)
	if err != nil {
		return fmt.Errorf("socketio/bus: encode envelope: %w", err)
	}
	return r.client.Publish(ctx, redisChannelPrefix+group, payload).Err()
}

// Subscribe starts a pattern subscription covering every group channel and
// dispatches incoming envelopes to fn.
func (r *RedisBus) Subscribe(ctx context.Context, fn func(group string, env Envelope)) error {
	r.subMu.Lock()
	r.pubsub = r.client.PSubscribe(ctx, redisChannelPrefix+"*")
	r.subMu.Unlock()

	ch := r.pubsub.Channel()
	go func() {
		for msg := range ch {
			var env Envelope
			if err := utils.MsgPack().Decode([]byte(msg.Payload), &env); err != nil {
				busLog.Warning("redis bus: dropping undecodable envelope on %s: %v", msg.Channel, err)
				continue
			}
			group := msg.Channel[len(redisChannelPrefix):]
			fn(group, env)
		}
	}()
	return nil
}

func (r *RedisBus) Close() error {
	if r.pubsub != nil {
		return r.pubsub.Close()
	}
	return nil
}
