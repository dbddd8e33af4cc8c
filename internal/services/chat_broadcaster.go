package services

import (
	"context"
	"encoding/json"
	"fmt"

	"carpool/internal/models"
	"carpool/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionGroup names the broadcast group of a chat session.
func SessionGroup(sessionID primitive.ObjectID) string {
	return "chat_session_" + sessionID.Hex()
}

// ChatBroadcaster publishes chat events to a session's group.
type ChatBroadcaster interface {
	Publish(ctx context.Context, sessionID primitive.ObjectID, event *models.ChatEvent) error
}

type hubBroadcaster struct {
	hub *websocket.Hub
}

func NewChatBroadcaster(hub *websocket.Hub) ChatBroadcaster {
	return &hubBroadcaster{hub: hub}
}

func (b *hubBroadcaster) Publish(ctx context.Context, sessionID primitive.ObjectID, event *models.ChatEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode chat event: %w", err)
	}
	if err := b.hub.Broadcast(ctx, SessionGroup(sessionID), payload); err != nil {
		return fmt.Errorf("failed to broadcast chat event: %w", err)
	}
	return nil
}
