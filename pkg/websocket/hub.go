package websocket

import (
	"context"
	"fmt"
	"sync"

	"carpool/pkg/logger"
)

// Hub tracks the local clients of each group and holds one bus
// subscription per non-empty group. A single pump goroutine per group
// delivers that group's events, so every local member sees them in bus
// order.
type Hub struct {
	bus    Bus
	logger *logger.Logger

	mutex sync.Mutex
	rooms map[string]*room
}

type room struct {
	clients map[*Client]struct{}
	sub     Subscription
	stop    chan struct{}
}

func NewHub(bus Bus, log *logger.Logger) *Hub {
	return &Hub{
		bus:    bus,
		logger: log,
		rooms:  make(map[string]*room),
	}
}

// Join adds the client to group, subscribing the hub to the group first if
// this is its first local member. The bus is never called with h.mutex
// held.
func (h *Hub) Join(ctx context.Context, client *Client, group string) error {
	if h.addMember(client, group) {
		return nil
	}

	sub, err := h.bus.Subscribe(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to join %s: %w", group, err)
	}

	h.mutex.Lock()
	r, ok := h.rooms[group]
	if !ok {
		r = &room{
			clients: make(map[*Client]struct{}),
			sub:     sub,
			stop:    make(chan struct{}),
		}
		h.rooms[group] = r
		go h.pump(group, r)
	}
	h.addLocked(r, client, group)
	h.mutex.Unlock()

	if ok {
		// Lost the race to another first member.
		sub.Close()
	}
	return nil
}

func (h *Hub) addMember(client *Client, group string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	r, ok := h.rooms[group]
	if !ok {
		return false
	}
	h.addLocked(r, client, group)
	return true
}

func (h *Hub) addLocked(r *room, client *Client, group string) {
	r.clients[client] = struct{}{}
	client.setGroup(group)

	h.logger.WithFields(map[string]interface{}{
		"group":   group,
		"user_id": client.UserID.Hex(),
		"members": len(r.clients),
	}).Debug("Client joined group")
}

// Leave removes the client from group. The last member leaving drops the
// bus subscription.
func (h *Hub) Leave(client *Client, group string) {
	h.mutex.Lock()
	sub := h.leaveLocked(client, group)
	h.mutex.Unlock()

	h.closeSubscription(group, sub)
}

// leaveLocked returns the group's subscription when client was its last
// member. The caller closes it after releasing h.mutex.
func (h *Hub) leaveLocked(client *Client, group string) Subscription {
	r, ok := h.rooms[group]
	if !ok {
		return nil
	}
	if _, member := r.clients[client]; !member {
		return nil
	}

	delete(r.clients, client)

	h.logger.WithFields(map[string]interface{}{
		"group":   group,
		"user_id": client.UserID.Hex(),
	}).Debug("Client left group")

	if len(r.clients) > 0 {
		return nil
	}
	close(r.stop)
	delete(h.rooms, group)
	return r.sub
}

func (h *Hub) closeSubscription(group string, sub Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		h.logger.WithError(err).WithField("group", group).Warn("Failed to close group subscription")
	}
}

func (h *Hub) Broadcast(ctx context.Context, group string, payload []byte) error {
	return h.bus.Publish(ctx, group, payload)
}

// Members returns the number of local clients in group.
func (h *Hub) Members(group string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if r, ok := h.rooms[group]; ok {
		return len(r.clients)
	}
	return 0
}

// Groups returns the number of groups with local members.
func (h *Hub) Groups() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.rooms)
}

func (h *Hub) pump(group string, r *room) {
	events := r.sub.Events()
	for {
		select {
		case <-r.stop:
			return
		case data, ok := <-events:
			if !ok {
				return
			}
			h.deliver(group, r, data)
		}
	}
}

func (h *Hub) deliver(group string, r *room, data []byte) {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.deliver(data) {
			continue
		}
		// Closed or slow consumer: disconnect rather than block the group.
		// The client catches up through replay when it reconnects.
		h.logger.WithFields(map[string]interface{}{
			"group":   group,
			"user_id": client.UserID.Hex(),
		}).Warn("Dropping websocket client")
		h.Leave(client, group)
		client.Close()
	}
}
