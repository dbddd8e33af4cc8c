package push

import "context"

type PushProvider interface {
	SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error)
}

// NotificationRequest targets either a device Token or a Topic.
type NotificationRequest struct {
	Token    string            `json:"token,omitempty"`
	Topic    string            `json:"topic,omitempty"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"`
	// CollapseKey lets a newer notice replace an undelivered older one.
	CollapseKey string `json:"collapse_key,omitempty"`
}

type NotificationResponse struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Token     string `json:"token,omitempty"`
}
