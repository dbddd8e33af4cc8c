package websocket

import (
	"context"
	"sync"
)

// Bus fans a group's events out to every subscriber of that group, on this
// process or others. Events published to one group are delivered to each
// subscription in publish order.
type Bus interface {
	Publish(ctx context.Context, group string, payload []byte) error
	Subscribe(ctx context.Context, group string) (Subscription, error)
}

type Subscription interface {
	Events() <-chan []byte
	Close() error
}

// LocalBus is an in-process Bus.
type LocalBus struct {
	mu     sync.RWMutex
	groups map[string]map[*localSubscription]struct{}
	buffer int
}

func NewLocalBus(buffer int) *LocalBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &LocalBus{
		groups: make(map[string]map[*localSubscription]struct{}),
		buffer: buffer,
	}
}

func (b *LocalBus) Publish(ctx context.Context, group string, payload []byte) error {
	b.mu.RLock()
	subs := make([]*localSubscription, 0, len(b.groups[group]))
	for sub := range b.groups[group] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	// Sends may block on a full subscriber, so they happen without b.mu.
	for _, sub := range subs {
		select {
		case sub.events <- payload:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, group string) (Subscription, error) {
	sub := &localSubscription{
		bus:    b,
		group:  group,
		events: make(chan []byte, b.buffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.groups[group] == nil {
		b.groups[group] = make(map[*localSubscription]struct{})
	}
	b.groups[group][sub] = struct{}{}
	return sub, nil
}

// Subscribers reports the number of live subscriptions for group.
func (b *LocalBus) Subscribers(group string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[group])
}

type localSubscription struct {
	bus    *LocalBus
	group  string
	events chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *localSubscription) Events() <-chan []byte {
	return s.events
}

// Close unsubscribes. The events channel is left open; consumers stop on
// their own signal.
func (s *localSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)

		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		delete(s.bus.groups[s.group], s)
		if len(s.bus.groups[s.group]) == 0 {
			delete(s.bus.groups, s.group)
		}
	})
	return nil
}
