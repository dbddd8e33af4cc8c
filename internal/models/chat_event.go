package models

const (
	ChatEventMessage = "chat.message"
	ChatEventAction  = "chat.action"

	ChatActionHide     = "hide"
	ChatActionUnhide   = "unhide"
	ChatActionMarkRead = "mark_read"
)

// ChatEvent is the outbound live-channel frame.
type ChatEvent struct {
	Type      string `json:"type"`
	Action    string `json:"action,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	UserUUID  string `json:"user_uuid,omitempty"`
	// Hidden is only set on replayed messages.
	Hidden *bool `json:"hidden,omitempty"`
}

// ChatInbound is the inbound live-channel frame. Exactly one of Message or
// Action is expected.
type ChatInbound struct {
	Message   *string `json:"message,omitempty"`
	Action    string  `json:"action,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
}
