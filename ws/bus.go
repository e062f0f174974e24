package ws

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// BusMessage is one delivery from the pub/sub bus.
type BusMessage struct {
	Channel string
	Payload string
}

// Subscription is a live pub/sub stream. Channel is closed when the
// subscription is closed or the backing connection drops.
type Subscription interface {
	Channel() <-chan BusMessage
	PSubscribe(ctx context.Context, patterns ...string) error
	Close() error
}

// Bus is the cross-instance publish/subscribe transport. Delivery is
// best-effort: a failed publish is the caller's to log, not retry.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) Subscription
}

type redisBus struct {
	client *redis.Client
}

// NewRedisBus wraps a Redis client as the hub's pub/sub bus.
func NewRedisBus(client *redis.Client) Bus {
	return &redisBus{client: client}
}

func (b *redisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, channels ...string) Subscription {
	return &redisSubscription{pubsub: b.client.Subscribe(ctx, channels...)}
}

type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	out    chan BusMessage
}

func (s *redisSubscription) PSubscribe(ctx context.Context, patterns ...string) error {
	return s.pubsub.PSubscribe(ctx, patterns...)
}

func (s *redisSubscription) Channel() <-chan BusMessage {
	s.once.Do(func() {
		s.out = make(chan BusMessage, 64)
		go func() {
			defer close(s.out)
			for msg := range s.pubsub.Channel() {
				s.out <- BusMessage{Channel: msg.Channel, Payload: msg.Payload}
			}
		}()
	})
	return s.out
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
