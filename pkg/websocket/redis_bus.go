package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Bus over Redis pub/sub, for running several instances
// behind a load balancer.
type RedisBus struct {
	client *redis.Client
	prefix string
}

func NewRedisBus(client *redis.Client, prefix string) *RedisBus {
	return &RedisBus{client: client, prefix: prefix}
}

func (b *RedisBus) channel(group string) string {
	return b.prefix + group
}

func (b *RedisBus) Publish(ctx context.Context, group string, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel(group), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", group, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published after it returns is missed.
func (b *RedisBus) Subscribe(ctx context.Context, group string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.channel(group))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", group, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	go sub.forward()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) forward() {
	for msg := range s.pubsub.Channel() {
		select {
		case s.events <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan []byte {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
